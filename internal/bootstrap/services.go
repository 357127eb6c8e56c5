package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/followscope/followscope/config"
	"github.com/followscope/followscope/internal/adapters/botworker"
	"github.com/followscope/followscope/internal/adapters/reconciler"
	redisadapter "github.com/followscope/followscope/internal/adapters/redis"
	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/data"
	"github.com/followscope/followscope/internal/observability/statsd"
	"github.com/followscope/followscope/internal/service"
)

// shutdownWaitTimeout is the maximum time to wait for services to stop gracefully.
const shutdownWaitTimeout = 15 * time.Second

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Worker    *botworker.Worker
	Status    *service.StatusService
	Admission *service.AdmissionService
	Sessions  core.SessionStore
	Verifier  core.TokenVerifier

	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// serviceRepositories groups data adapters backing service ports.
type serviceRepositories struct {
	DB       *sql.DB
	Graph    *data.GraphRepo
	Status   *data.StatusRepo
	ScanInfo *data.ScanInfoRepo
	Sessions *redisadapter.SessionStore
}

// buildObservability configures the metrics sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obsLogger := logger
	if obsLogger == nil {
		obsLogger = slog.Default()
	}

	var metricsSink *statsd.Client
	if cfg.Metrics.IsEnabled() {
		client, err := statsd.NewClient(statsd.Config{
			Enabled: true,
			Address: cfg.Metrics.StatsdAddress,
			Prefix:  "followscope",
			Logger:  obsLogger,
		})
		if err != nil {
			obsLogger.Error("failed to initialise statsd client", "error", err)
		} else {
			metricsSink = client
		}
	}

	return ObservabilityContainer{
		MetricsSink:   metricsSink,
		MetricsConfig: cfg.Metrics,
	}
}

// buildRepositories builds repositories backing service ports; no business rules here.
func buildRepositories(cfg *config.AppConfig, deps *ServiceDeps) *serviceRepositories {
	return &serviceRepositories{
		DB: deps.DB,
		Graph: data.NewGraphRepo(deps.DB, data.GraphRepoConfig{
			BatchLimit: cfg.Bot.BatchLimit,
			Logger:     deps.Logger,
		}),
		Status:   data.NewStatusRepo(deps.DB),
		ScanInfo: data.NewScanInfoRepo(deps.DB),
		Sessions: redisadapter.NewSessionStore(deps.RedisClient, cfg.Redis.SessionTTL),
	}
}

// metricsSink adapts the optional statsd client to the Sink interface,
// keeping nil-ness explicit for downstream options structs.
//
//nolint:ireturn // callers take the Sink interface.
func metricsSink(obs ObservabilityContainer) statsd.Sink {
	if obs.MetricsSink == nil {
		return nil
	}
	return obs.MetricsSink
}

// NewServices wires repositories, domain services, and the bot worker.
func NewServices(ctx context.Context, deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil {
		return ServiceContainer{}, errors.New("service dependencies are required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = &config.AppConfig{}
	}

	observability := buildObservability(logger, cfg.Observability)
	sink := metricsSink(observability)
	repos := buildRepositories(cfg, deps)

	syncService, err := service.NewSyncService(service.SyncServiceOptions{
		Graph:  repos.Graph,
		Logger: logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire sync service: %w", err)
	}

	admission, err := service.NewAdmissionService(service.AdmissionServiceOptions{
		Status:  repos.Status,
		Config:  cfg.Bot,
		Logger:  logger,
		Metrics: sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire admission service: %w", err)
	}

	runner, err := service.NewBotRunner(service.BotRunnerOptions{
		Graph:    repos.Graph,
		Status:   repos.Status,
		ScanInfo: repos.ScanInfo,
		Sync:     syncService,
		Logger:   logger,
		Metrics:  sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire bot runner: %w", err)
	}

	worker, err := botworker.NewWorker(botworker.WorkerOptions{
		Admission: admission,
		Runner:    runner,
		Graph:     repos.Graph,
		Sessions:  repos.Sessions,
		Config:    cfg.Bot,
		Logger:    logger,
		Metrics:   sink,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire bot worker: %w", err)
	}

	statusService, err := service.NewStatusService(service.StatusServiceOptions{
		Status:   repos.Status,
		Graph:    repos.Graph,
		ScanInfo: repos.ScanInfo,
		Logger:   logger,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire status service: %w", err)
	}

	verifier, err := BuildVerifier(ctx, cfg, logger)
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("wire token verifier: %w", err)
	}

	return ServiceContainer{
		Worker:        worker,
		Status:        statusService,
		Admission:     admission,
		Sessions:      repos.Sessions,
		Verifier:      verifier,
		Observability: observability,
	}, nil
}

// ServiceOrchestrationConfig contains configuration for service orchestration.
type ServiceOrchestrationConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// backgroundServiceHandle tracks a running background service.
type backgroundServiceHandle struct {
	name string
	done <-chan struct{}
}

// startReconcilerIfEnabled launches the stale-status reconciler loop.
func startReconcilerIfEnabled(
	ctx context.Context,
	cfg *ServiceOrchestrationConfig,
	enabled map[config.ServiceMode]bool,
	errCh chan<- error,
) *backgroundServiceHandle {
	if !enabled[config.ServiceModeReconciler] {
		return nil
	}

	logger := cfg.Logger
	runner, err := reconciler.NewRunner(reconciler.RunnerOptions{
		DB:      cfg.DB,
		Config:  cfg.Config.Reconciler,
		Logger:  logger,
		Metrics: metricsSink(cfg.Services.Observability),
	})
	if err != nil {
		errCh <- fmt.Errorf("wire reconciler: %w", err)
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if runErr := runner.Run(ctx); runErr != nil {
			select {
			case errCh <- fmt.Errorf("reconciler failed: %w", runErr):
			case <-ctx.Done():
			}
		}
	}()

	logger.InfoContext(ctx, "background service started", "service", "reconciler")
	return &backgroundServiceHandle{name: "reconciler", done: done}
}

// RunServicesWithShutdown starts all enabled services and manages their lifecycle.
// This function blocks until a shutdown signal is received or a service fails.
func RunServicesWithShutdown(cfg *ServiceOrchestrationConfig) error {
	if cfg == nil {
		return errors.New("service orchestration config is required")
	}
	if cfg.Config == nil {
		return errors.New("service orchestration config missing AppConfig")
	}

	serviceCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg.Logger = logger

	enabled, err := cfg.Config.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("determine enabled services: %w", err)
	}
	errCh := make(chan error, len(enabled)+1)

	var httpServer *http.Server
	if enabled[config.ServiceModeHTTP] {
		httpServer = StartHTTPServer(&HTTPServerConfig{
			Config:   cfg.Config,
			Services: cfg.Services,
			Logger:   logger,
		})
	}

	var backgrounds []backgroundServiceHandle
	if handle := startReconcilerIfEnabled(serviceCtx, cfg, enabled, errCh); handle != nil {
		backgrounds = append(backgrounds, *handle)
	}

	return waitForShutdown(shutdownConfig{
		ctx:         serviceCtx,
		cancel:      cancel,
		errCh:       errCh,
		httpServer:  httpServer,
		worker:      cfg.Services.Worker,
		timeout:     cfg.Config.HTTP.ShutdownTimeout,
		logger:      logger,
		backgrounds: backgrounds,
	})
}

// shutdownConfig contains dependencies for graceful shutdown.
type shutdownConfig struct {
	ctx         context.Context
	cancel      context.CancelFunc
	errCh       <-chan error
	httpServer  *http.Server
	worker      *botworker.Worker
	timeout     time.Duration
	logger      *slog.Logger
	backgrounds []backgroundServiceHandle
}

// waitForShutdown waits for shutdown signal or service error.
func waitForShutdown(cfg shutdownConfig) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case <-quit:
		cfg.logger.Info("shutting down services...")
		cfg.cancel()
		return gracefulStop(cfg)
	case err := <-cfg.errCh:
		cfg.logger.Error("service error", "error", err)
		cfg.cancel()
		if stopErr := gracefulStop(cfg); stopErr != nil {
			cfg.logger.Error("graceful stop failed", "error", stopErr)
		}
		return err
	}
}

// gracefulStop attempts to gracefully stop all services. In-flight bot jobs
// are waited on so their terminal status records get written.
func gracefulStop(cfg shutdownConfig) error {
	if cfg.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.timeout)
		defer cancel()

		if err := ShutdownHTTPServer(ShutdownConfig{
			Context: shutdownCtx,
			Server:  cfg.httpServer,
			Logger:  cfg.logger,
		}); err != nil {
			return err
		}
	}

	if cfg.worker != nil {
		waitForService(waitChan(cfg.worker.Wait), "bot worker", cfg.logger)
	}

	for _, svc := range cfg.backgrounds {
		waitForService(svc.done, svc.name, cfg.logger)
	}

	return nil
}

// waitChan adapts a blocking wait function to a channel.
func waitChan(wait func()) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		wait()
	}()
	return done
}

// waitForService waits for a service to finish with timeout.
func waitForService(done <-chan struct{}, name string, logger *slog.Logger) {
	if done == nil {
		return
	}
	select {
	case <-done:
		logger.Info(name + " stopped")
	case <-time.After(shutdownWaitTimeout):
		logger.Warn("timeout waiting for " + name + " to stop")
	}
}

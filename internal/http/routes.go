// Package httpx provides the HTTP API: remote session login, bot job
// submission, and polling endpoints for status, non-followers, and follow
// stats.
package httpx

import (
	"log/slog"
	"net/http"

	"github.com/followscope/followscope/internal/core"
	"github.com/followscope/followscope/internal/service"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Worker   BotSubmitter           // Required: bot job submission
	Status   *service.StatusService // Required: polling reads
	Sessions core.SessionStore      // Required: remote session login
	Verifier core.TokenVerifier     // Required: bearer token verification
	Logger   *slog.Logger           // Optional: request and handler logging
}

// NewRouter creates and configures the HTTP router.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mux := http.NewServeMux()

	authHandlers := &AuthHandlers{Sessions: services.Sessions, Logger: logger}
	botHandlers := &BotHandlers{Worker: services.Worker, Status: services.Status, Logger: logger}
	statsHandlers := &StatsHandlers{Status: services.Status, Logger: logger}

	requireAuth := RequireAuth(services.Verifier)

	mux.Handle("POST /api/auth/login", requireAuth(http.HandlerFunc(authHandlers.Login)))
	mux.Handle("POST /api/auth/logout", requireAuth(http.HandlerFunc(authHandlers.Logout)))

	mux.Handle("POST /api/bots/{kind}/run", requireAuth(http.HandlerFunc(botHandlers.Run)))
	mux.Handle("GET /api/bots/status", requireAuth(http.HandlerFunc(botHandlers.GetStatus)))

	mux.Handle("GET /api/non-followers", requireAuth(http.HandlerFunc(statsHandlers.NonFollowers)))
	mux.Handle("GET /api/follow-stats", requireAuth(http.HandlerFunc(statsHandlers.FollowStats)))

	mux.Handle("GET /healthz", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /healthz", http.HandlerFunc(healthHandler))

	var handler http.Handler = mux
	handler = Recover(logger)(handler)
	handler = Logging(logger)(handler)
	return handler
}

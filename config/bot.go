package config

import "time"

const (
	// MaxBatchLimit is the store-imposed ceiling on atomic batch operations.
	MaxBatchLimit = 500

	defaultMaxConcurrentBots = 3
	defaultFetchPageSize     = 50
)

// BotConfig contains bot worker and snapshot fetcher configuration.
type BotConfig struct {
	// MaxConcurrentBots bounds how many bot jobs may run system-wide.
	MaxConcurrentBots int `env:"BOT_MAX_CONCURRENT" envDefault:"3"`

	// BatchLimit is the maximum number of documents written or deleted per
	// atomic store batch. Clamped to MaxBatchLimit.
	BatchLimit int `env:"BOT_BATCH_LIMIT" envDefault:"500"`

	// FetchTimeout bounds a single remote snapshot fetch, including all pages.
	FetchTimeout time.Duration `env:"BOT_FETCH_TIMEOUT" envDefault:"5m"`

	// FetchBaseURL is the base URL of the remote social network API.
	FetchBaseURL string `env:"BOT_FETCH_BASE_URL" envDefault:"https://i.instagram.com"`

	// FetchPageSize is the page size requested from the remote API.
	FetchPageSize int `env:"BOT_FETCH_PAGE_SIZE" envDefault:"50"`

	// UserListExpr is the JMESPath expression that extracts the identifier
	// list from one page of the remote response.
	UserListExpr string `env:"BOT_FETCH_USER_LIST_EXPR" envDefault:"users[].username"`

	// NextCursorExpr is the JMESPath expression that extracts the pagination
	// cursor from one page of the remote response. An empty result ends the walk.
	NextCursorExpr string `env:"BOT_FETCH_NEXT_CURSOR_EXPR" envDefault:"next_max_id"`
}

// Sanitize applies guardrails to bot configuration values.
func (b *BotConfig) Sanitize() {
	if b.MaxConcurrentBots < 1 {
		b.MaxConcurrentBots = defaultMaxConcurrentBots
	}
	if b.BatchLimit < 1 || b.BatchLimit > MaxBatchLimit {
		b.BatchLimit = MaxBatchLimit
	}
	if b.FetchTimeout <= 0 {
		b.FetchTimeout = 5 * time.Minute
	}
	if b.FetchPageSize < 1 {
		b.FetchPageSize = defaultFetchPageSize
	}
}

// ReconcilerConfig contains status reconciler configuration.
//
// The reconciler implicitly fails bot status records that have been stuck in
// the running state longer than MaxJobAge (e.g., after a process crash between
// admission and the terminal status write).
type ReconcilerConfig struct {
	// Interval is the reconciler tick interval.
	Interval time.Duration `env:"RECONCILER_INTERVAL" envDefault:"1m"`

	// MaxJobAge is the age past which a running record is considered stuck.
	MaxJobAge time.Duration `env:"RECONCILER_MAX_JOB_AGE" envDefault:"30m"`

	// BatchSize bounds how many stuck records are failed per tick.
	BatchSize int `env:"RECONCILER_BATCH_SIZE" envDefault:"100"`
}

// Sanitize applies guardrails to reconciler configuration values.
func (r *ReconcilerConfig) Sanitize() {
	if r.Interval <= 0 {
		r.Interval = time.Minute
	}
	if r.MaxJobAge <= 0 {
		r.MaxJobAge = 30 * time.Minute
	}
	if r.BatchSize < 1 {
		r.BatchSize = 100
	}
}

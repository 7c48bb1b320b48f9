// Package http serves the ledger over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"pesa/internal/amqp"
	"pesa/internal/core"
	"pesa/internal/ingest"
	"pesa/internal/log"
	"pesa/internal/middleware/ratelimit"
	"pesa/internal/middleware/security"
	"pesa/internal/middleware/trace"
)

// Ledger is the application surface the API needs.
type Ledger interface {
	Ingest(ctx context.Context, msg core.RawMessage) (core.Outcome, error)
	Scan(ctx context.Context, lookbackMonths int) (ingest.ScanResult, error)
	Insights(ctx context.Context) (core.OnboardingInsights, error)
	Suggestions(ctx context.Context, minCount int) ([]core.CategorySuggestion, error)

	Get(ctx context.Context, receipt string) (core.Transaction, error)
	List(ctx context.Context) ([]core.Transaction, error)
	ListBetween(ctx context.Context, from, to time.Time) ([]core.Transaction, error)
	ListRecent(ctx context.Context, limit int) ([]core.Transaction, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, receipt string) error
	DeleteAll(ctx context.Context) (int64, error)

	SetOverride(ctx context.Context, o core.Override) (core.Override, error)
	ListOverrides(ctx context.Context) ([]core.Override, error)
	DeleteOverride(ctx context.Context, scope core.OverrideScope, key string) error

	Ping(ctx context.Context) error
}

// Publisher hands inbound SMS to the ingestion worker.
type Publisher interface {
	PublishSMS(ctx context.Context, msg *amqp.SMSReceivedMessage) error
}

type Options struct {
	// Publisher is optional; without it messages are ingested inline.
	Publisher Publisher
	Logger    *log.Logger
	RateLimit ratelimit.Config
	// TrustedProxies are extra CIDRs allowed to set forwarding headers.
	TrustedProxies []string
}

type Server struct {
	http.Server
	ledger    Ledger
	publisher Publisher
	logger    *log.Logger
	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	now       func() time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server.
func NewServer(addr string, ledger Ledger, opts Options) (*Server, error) {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	ips, err := security.NewIPResolver(opts.TrustedProxies...)
	if err != nil {
		return nil, err
	}

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			// Scans read a whole inbox before answering.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		ledger:    ledger,
		publisher: opts.Publisher,
		logger:    logger,
		limiter:   ratelimit.NewLimiter(opts.RateLimit),
		tracer:    trace.NewMiddleware(logger, ips.ClientIP),
		now:       time.Now,
	}

	limited := s.limiter.Middleware(ips.ClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.Handle("POST /api/messages", limited(http.HandlerFunc(s.handleIngestMessage)))
	mux.Handle("POST /api/scan", limited(http.HandlerFunc(s.handleScan)))

	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/recent", s.handleRecentTransactions)
	mux.HandleFunc("GET /api/transactions/count", s.handleCountTransactions)
	mux.HandleFunc("GET /api/transactions/{receipt}", s.handleGetTransaction)
	mux.HandleFunc("DELETE /api/transactions/{receipt}", s.handleDeleteTransaction)
	mux.HandleFunc("DELETE /api/transactions", s.handleDeleteAllTransactions)

	mux.HandleFunc("GET /api/insights", s.handleInsights)
	mux.HandleFunc("GET /api/suggestions", s.handleSuggestions)

	mux.HandleFunc("GET /api/overrides", s.handleListOverrides)
	mux.HandleFunc("PUT /api/overrides", s.handleSetOverride)
	mux.HandleFunc("DELETE /api/overrides/{scope}/{key}", s.handleDeleteOverride)

	var h http.Handler = mux
	h = security.Headers(security.DefaultHeadersConfig())(h)
	h = log.AccessLog(h)
	h = s.tracer.Middleware(h)
	s.Handler = h

	return s, nil
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}

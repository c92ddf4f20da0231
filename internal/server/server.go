// Package server exposes the ingestion queue over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/speechify/internal/document"
	"github.com/dgnsrekt/speechify/internal/metrics"
)

// Header names understood by the server.
const (
	HeaderRequestID      = "X-Request-ID"
	HeaderIdempotencyKey = "Idempotency-Key"
	HeaderReplayed       = "Idempotent-Replayed"
)

// Queue is the ingestion queue served by the router.
type Queue interface {
	AddToQueue(doc document.Document) bool
	GetNextChunk() (document.Chunk, bool)
}

// Config controls request admission.
type Config struct {
	// RateLimit is the sustained number of submissions accepted per second.
	// Zero disables limiting.
	RateLimit float64
	Burst     int

	// IdempotencyKeys is how many submission and pull keys are remembered.
	IdempotencyKeys int

	// MaxBodyBytes bounds the size of a submitted document.
	MaxBodyBytes int64
}

// DefaultConfig returns the server defaults.
func DefaultConfig() Config {
	return Config{
		RateLimit:       20,
		Burst:           40,
		IdempotencyKeys: 1024,
		MaxBodyBytes:    8 << 20,
	}
}

// Router serves the ingestion queue over HTTP.
type Router struct {
	cfg      Config
	queue    Queue
	logger   *log.Logger
	metrics  *metrics.Metrics
	gatherer prometheus.Gatherer
	limiter  *rate.Limiter
	keys     *idempotencyCache
	mux      *http.ServeMux
}

// Option configures a Router.
type Option func(*Router)

// WithLogger sets the request logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithMetrics records request metrics in m and serves g on /metrics.
func WithMetrics(m *metrics.Metrics, g prometheus.Gatherer) Option {
	return func(r *Router) {
		r.metrics = m
		r.gatherer = g
	}
}

// New builds the HTTP handler serving q.
func New(q Queue, cfg Config, opts ...Option) http.Handler {
	defaults := DefaultConfig()
	if cfg.IdempotencyKeys <= 0 {
		cfg.IdempotencyKeys = defaults.IdempotencyKeys
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaults.MaxBodyBytes
	}

	r := &Router{
		cfg:    cfg,
		queue:  q,
		logger: log.Default(),
		keys:   newIdempotencyCache(cfg.IdempotencyKeys),
		mux:    http.NewServeMux(),
	}
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	for _, opt := range opts {
		opt(r)
	}

	r.routes()
	return r.withRecovery(withRequestID(withCORS(gzhttp.GzipHandler(r.mux))))
}

func (r *Router) routes() {
	r.mux.HandleFunc("GET /healthz", r.handleHealthz)

	for _, prefix := range []string{"", "/api"} {
		r.mux.Handle("POST "+prefix+"/addToQueue", r.instrument("/addToQueue", r.handleAddToQueue))
		r.mux.Handle("GET "+prefix+"/getNextChunk", r.instrument("/getNextChunk", r.handleGetNextChunk))
	}

	if r.gatherer != nil {
		r.mux.Handle("GET /metrics", promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{}))
	} else {
		r.mux.Handle("GET /metrics", promhttp.Handler())
	}
}

func (r *Router) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// Run serves h on addr until ctx is cancelled, then shuts down gracefully.
func Run(ctx context.Context, addr string, h http.Handler, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen on %s: %w", addr, err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info("Server exited gracefully")
	return nil
}

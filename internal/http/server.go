// Package http exposes the engine as a JSON API.
//
// Months in paths, queries and bodies are 0-indexed (0 = January), the same
// as in stored documents.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"billstack/internal/core"
	"billstack/internal/log"
	"billstack/internal/metrics"
	"billstack/internal/middleware/ratelimit"
	"billstack/internal/middleware/security"
	"billstack/internal/middleware/trace"
	"billstack/internal/services"
)

const (
	readHeaderTimeout = 5 * time.Second
	readTimeout       = 15 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readyTimeout      = 2 * time.Second
)

// Options configures the server. Zero values pick defaults.
type Options struct {
	Clock              core.Clock
	Logger             *log.Logger
	Metrics            *metrics.Metrics
	RateLimitPerMinute int
}

type Server struct {
	http.Server
	engine   *services.Engine
	clock    core.Clock
	logger   *log.Logger
	metrics  *metrics.Metrics
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, engine *services.Engine, opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = core.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	logger := opts.Logger.WithComponent(log.ComponentHTTP)
	detector := security.NewDetector()

	s := &Server{
		engine:   engine,
		clock:    opts.Clock,
		logger:   logger,
		metrics:  opts.Metrics,
		detector: detector,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: opts.RateLimitPerMinute}),
		tracer:   trace.NewMiddleware(logger, detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	var h http.Handler = mux
	h = s.limiter.Middleware(detector.ExtractClientIP, s.onRateLimit,
		http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete)(h)
	h = detector.Middleware(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handle(s.handleReady))
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	mux.HandleFunc("GET /accounts", s.handle(s.handleListAccounts))
	mux.HandleFunc("POST /accounts", s.handle(s.handleCreateAccount))
	mux.HandleFunc("GET /accounts/total", s.handle(s.handleTotalBalance))
	mux.HandleFunc("GET /accounts/{id}", s.handle(s.handleGetAccount))
	mux.HandleFunc("PUT /accounts/{id}", s.handle(s.handleUpdateAccount))
	mux.HandleFunc("POST /accounts/{id}/default", s.handle(s.handleSetDefaultAccount))

	mux.HandleFunc("GET /transactions", s.handle(s.handleListTransactions))
	mux.HandleFunc("POST /transactions", s.handle(s.handleCreateTransaction))
	mux.HandleFunc("GET /transactions/{id}", s.handle(s.handleGetTransaction))
	mux.HandleFunc("PATCH /transactions/{id}", s.handle(s.handleEditTransaction))
	mux.HandleFunc("DELETE /transactions/{id}", s.handle(s.handleDeleteTransaction))

	mux.HandleFunc("GET /bills", s.handle(s.handleListBills))
	mux.HandleFunc("POST /bills", s.handle(s.handleCreateBill))
	mux.HandleFunc("GET /bills/pending", s.handle(s.handlePendingBills))
	mux.HandleFunc("GET /bills/overdue", s.handle(s.handleOverdueBills))
	mux.HandleFunc("GET /bills/reminders", s.handle(s.handleReminders))
	mux.HandleFunc("GET /bills/{id}", s.handle(s.handleGetBill))
	mux.HandleFunc("PUT /bills/{id}", s.handle(s.handleUpdateBill))
	mux.HandleFunc("DELETE /bills/{id}", s.handle(s.handleDeleteBill))
	mux.HandleFunc("POST /bills/{id}/pay", s.handle(s.handlePayBill))
	mux.HandleFunc("POST /bills/{id}/undo", s.handle(s.handleUndoPayment))
	mux.HandleFunc("GET /bills/{id}/check", s.handle(s.handleCheckBill))
	mux.HandleFunc("GET /bills/{id}/amounts/{year}/{month}", s.handle(s.handleGetMonthlyAmount))
	mux.HandleFunc("PUT /bills/{id}/amounts/{year}/{month}", s.handle(s.handleSetMonthlyAmount))
	mux.HandleFunc("DELETE /bills/{id}/amounts/{year}/{month}", s.handle(s.handleClearMonthlyAmount))

	mux.HandleFunc("GET /reconcile/orphans", s.handle(s.handleFindOrphans))
	mux.HandleFunc("POST /reconcile/orphans/{id}/repair", s.handle(s.handleRepairOrphan))
	mux.HandleFunc("GET /reconcile/audit", s.handle(s.handleAuditBalances))

	mux.HandleFunc("GET /reports/overview", s.handle(s.handleOverview))
	mux.HandleFunc("GET /reports/statement", s.handle(s.handleStatement))
}

// apiHandler returns an error instead of writing it; handle maps it.
type apiHandler func(w http.ResponseWriter, r *http.Request) error

func (s *Server) handle(h apiHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := h(w, r); err != nil {
			s.writeError(w, r, err)
		}
	}
}

func (s *Server) onRateLimit(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldClientIP, s.detector.ExtractClientIP(r),
		log.FieldMethod, r.Method,
		log.FieldPath, r.URL.Path)
	writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "rate limit exceeded", Code: "rate_limited"})
}

// Shutdown gracefully shuts down the server and its limiter janitor.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// Stats returns the request counters of the trace middleware.
func (s *Server) Stats() trace.Stats {
	return s.tracer.Stats()
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reads the accounts document to prove the store answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) error {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()
	if _, err := s.engine.Ledger.Accounts(ctx); err != nil {
		return err
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
	return nil
}

package http

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"devopsdash/internal/cache"
	"devopsdash/internal/core"
	"devopsdash/internal/devops"
	"devopsdash/internal/log"
	"devopsdash/internal/middleware/ratelimit"
	"devopsdash/internal/middleware/security"
	"devopsdash/internal/middleware/trace"
	"devopsdash/internal/services"
)

const defaultRequestTimeout = 30 * time.Second

// MoveStore is what the server needs from the move request database besides
// the mover itself: readiness and the status counts for /metrics.
type MoveStore interface {
	Ping(ctx context.Context) error
	CountByStatus(ctx context.Context) (map[core.MoveStatus]int, error)
}

// Deps are the collaborators NewServer wires into the handlers. Factory,
// Dashboard and Mover are required; the rest default.
type Deps struct {
	Factory   devops.Factory
	Dashboard *services.Dashboard
	Mover     *services.Mover
	Exporter  *services.Exporter
	Store     MoveStore

	// Caches is stopped on Shutdown. It must have been started.
	Caches   *cache.Manager
	Limiter  *ratelimit.Limiter
	Detector *security.Detector
	Logger   *log.Logger

	RequestTimeout time.Duration
}

type Server struct {
	http.Server
	deps    Deps
	logger  *log.Logger
	trace   *trace.Middleware
	started time.Time

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Detector == nil {
		deps.Detector = security.NewDetector()
	}
	if deps.Limiter == nil {
		deps.Limiter = ratelimit.NewLimiter(ratelimit.DefaultConfig())
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = defaultRequestTimeout
	}

	s := &Server{
		deps:    deps,
		logger:  deps.Logger.WithComponent(log.ComponentHTTP),
		trace:   trace.NewMiddleware(deps.Logger, deps.Detector.ExtractClientIP),
		started: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/iterations", s.view(log.OpList, s.iterations))
	mux.HandleFunc("GET /api/states", s.view(log.OpList, s.states))
	mux.HandleFunc("GET /api/areas", s.view(log.OpList, s.areas))
	mux.HandleFunc("GET /api/fields", s.view(log.OpList, s.fields))
	mux.HandleFunc("GET /api/workitems", s.view(log.OpQuery, s.workItems))
	mux.HandleFunc("GET /api/charts/overview", s.view(log.OpQuery, s.overview))
	mux.HandleFunc("GET /api/charts/age", s.view(log.OpQuery, s.age))
	mux.HandleFunc("GET /api/charts/lead-cycle-time", s.view(log.OpQuery, s.leadCycleTime))

	mux.HandleFunc("POST /api/workitems/move", s.handleMove)
	mux.HandleFunc("POST /api/export/release-checklist", s.handleReleaseChecklist)
	mux.HandleFunc("GET /api/moves/{id}", s.handleMoveStatus)

	s.Handler = s.middleware(mux)
	s.Addr = addr
	return s
}

// middleware wraps h, outermost first: request id and access log, request
// logger, security headers, probe detection, rate limit.
func (s *Server) middleware(h http.Handler) http.Handler {
	h = s.deps.Limiter.Middleware(s.deps.Detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		s.logger.WarnContext(r.Context(), "Rate limit exceeded",
			log.FieldClientIP, s.deps.Detector.ExtractClientIP(r),
			log.FieldMethod, r.Method,
			log.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	})(h)
	h = s.detectSuspicious(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = log.Middleware(s.deps.Logger, trace.RequestIDFromRequest)(h)
	return s.trace.Middleware(h)
}

// detectSuspicious logs probes and scanners. They are still served; the
// routes reject anything unknown on their own.
func (s *Server) detectSuspicious(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.deps.Detector.IsSuspicious(r) {
			s.logger.WarnContext(r.Context(), "Suspicious request",
				log.FieldClientIP, s.deps.Detector.ExtractClientIP(r),
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldUserAgent, r.Header.Get("User-Agent"))
		}
		next.ServeHTTP(w, r)
	})
}

// Shutdown stops the background sweepers and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.deps.Caches != nil {
			s.deps.Caches.Stop()
		}
		s.deps.Limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	NewJSONResponse(map[string]string{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports not ready when the move request database does not
// answer. Azure DevOps is not probed; every call carries its own credentials.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status, code := "ready", http.StatusOK
	checks := map[string]string{}
	switch {
	case s.deps.Store == nil:
		checks["database"] = "not_configured"
	default:
		if err := s.deps.Store.Ping(ctx); err != nil {
			checks["database"] = "failed: " + err.Error()
			status, code = "not_ready", http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}
	if s.deps.Exporter == nil {
		checks["export"] = "not_configured"
	} else {
		checks["export"] = "ok"
	}

	NewJSONResponse(map[string]any{
		"status":    status,
		"timestamp": time.Now().Format(time.RFC3339),
		"checks":    checks,
	}).Status(code).Write(w)
}

// handleMetrics writes counters in the Prometheus text format.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	tm := s.trace.GetMetrics()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "# HELP http_requests_total Total number of HTTP requests\n")
	fmt.Fprintf(w, "# TYPE http_requests_total counter\n")
	fmt.Fprintf(w, "http_requests_total %d\n\n", tm.TotalRequests)

	fmt.Fprintf(w, "# HELP http_request_duration_ms_avg Average request duration\n")
	fmt.Fprintf(w, "# TYPE http_request_duration_ms_avg gauge\n")
	fmt.Fprintf(w, "http_request_duration_ms_avg %d\n\n", tm.AverageDurationMs)

	fmt.Fprintf(w, "# HELP rate_limit_rejections_total Requests rejected by the rate limiter\n")
	fmt.Fprintf(w, "# TYPE rate_limit_rejections_total counter\n")
	fmt.Fprintf(w, "rate_limit_rejections_total %d\n\n", s.deps.Limiter.Rejected())

	fmt.Fprintf(w, "# HELP active_rate_limit_clients Currently tracked rate limit clients\n")
	fmt.Fprintf(w, "# TYPE active_rate_limit_clients gauge\n")
	fmt.Fprintf(w, "active_rate_limit_clients %d\n\n", s.deps.Limiter.ActiveClients())

	fmt.Fprintf(w, "# HELP suspicious_requests_total Total suspicious requests detected\n")
	fmt.Fprintf(w, "# TYPE suspicious_requests_total counter\n")
	fmt.Fprintf(w, "suspicious_requests_total %d\n\n", s.deps.Detector.SuspiciousRequests())

	fmt.Fprintf(w, "# HELP uptime_seconds Application uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE uptime_seconds gauge\n")
	fmt.Fprintf(w, "uptime_seconds %.0f\n\n", time.Since(s.started).Seconds())

	if s.deps.Store == nil {
		return
	}
	counts, err := s.deps.Store.CountByStatus(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to count move requests", log.FieldError, err)
		return
	}
	fmt.Fprintf(w, "# HELP move_requests Move requests by status\n")
	fmt.Fprintf(w, "# TYPE move_requests gauge\n")
	for _, st := range []core.MoveStatus{core.MovePending, core.MoveApplied, core.MoveFailed} {
		fmt.Fprintf(w, "move_requests{status=%q} %d\n", st, counts[st])
	}
}

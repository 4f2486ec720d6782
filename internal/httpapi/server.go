package httpapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/adpilot/engine/internal/telemetry"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	Gatherer       prometheus.Gatherer
	Metrics        *telemetry.Metrics
	RequestTimeout time.Duration
}

// NewRouter builds the chi router with request ids, panic recovery, access
// logging and per-request timeouts.
func NewRouter(h *Handler, opts RouterOptions) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(accessLog(h.Log, opts.Metrics))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	if opts.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/runs", func(r chi.Router) {
		if opts.RequestTimeout > 0 {
			r.Use(middleware.Timeout(opts.RequestTimeout))
		}
		r.Post("/", h.CreateRun)
		r.Post("/approve", h.Approve)
		r.Get("/{runID}", h.GetRun)
		r.Get("/{runID}/events", h.ListEvents)
	})
	return r
}

// Server wraps an HTTP server with the API routes.
type Server struct {
	httpServer *http.Server
}

// NewServer creates a Server that binds to listenAddr.
func NewServer(handler http.Handler, listenAddr string) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              listenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start listens on the configured address. Blocks until the server stops.
func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on l. Blocks until the server stops.
func (s *Server) Serve(l net.Listener) error {
	return s.httpServer.Serve(l)
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func accessLog(log *zap.Logger, metrics *telemetry.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)
			metrics.HTTPRequest(r.Method, route, strconv.Itoa(status), elapsed.Seconds())
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.Duration("latency", elapsed),
			)
		})
	}
}

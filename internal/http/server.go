// Package http exposes the operational surface: Prometheus metrics, health
// probes and the Spotify OAuth opt-in flow.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"playlog/internal/core"
)

// Authenticator runs the OAuth grant flow for a user.
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, userID, code string) error
}

type Server struct {
	config  *core.ServerConfig
	logger  *zap.Logger
	server  *http.Server
	metrics *Metrics
}

type Metrics struct {
	CyclesTotal     prometheus.Counter
	CycleDuration   prometheus.Histogram
	EventsTotal     *prometheus.CounterVec
	ScrobblesTotal  prometheus.Counter
	DuplicatesTotal prometheus.Counter
	ErrorsTotal     *prometheus.CounterVec
	TrackedUsers    prometheus.Gauge
	ActiveSessions  prometheus.Gauge
}

func newMetrics() *Metrics {
	metrics := &Metrics{
		CyclesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "playlog_cycles_total",
				Help: "Total number of completed polling cycles",
			},
		),
		CycleDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "playlog_cycle_duration_seconds",
				Help:    "Time spent per polling cycle",
				Buckets: prometheus.DefBuckets,
			},
		),
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlog_track_events_total",
				Help: "Total number of track events emitted by the tracker",
			},
			[]string{"kind"},
		),
		ScrobblesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "playlog_scrobbles_total",
				Help: "Total number of plays recorded",
			},
		),
		DuplicatesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "playlog_duplicates_total",
				Help: "Total number of duplicate plays suppressed",
			},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playlog_errors_total",
				Help: "Total number of errors",
			},
			[]string{"component", "type"},
		),
		TrackedUsers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "playlog_tracked_users",
				Help: "Number of users currently opted in to tracking",
			},
		),
		ActiveSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "playlog_active_sessions",
				Help: "Number of playback sessions currently held in memory",
			},
		),
	}

	prometheus.MustRegister(
		metrics.CyclesTotal,
		metrics.CycleDuration,
		metrics.EventsTotal,
		metrics.ScrobblesTotal,
		metrics.DuplicatesTotal,
		metrics.ErrorsTotal,
		metrics.TrackedUsers,
		metrics.ActiveSessions,
	)

	return metrics
}

func NewServer(config *core.ServerConfig, auth Authenticator, registry core.UserRegistry, logger *zap.Logger) *Server {
	mux := setupRoutes(auth, registry, logger)

	return &Server{
		config:  config,
		logger:  logger,
		server:  createHTTPServer(config, mux),
		metrics: newMetrics(),
	}
}

func setupRoutes(auth Authenticator, registry core.UserRegistry, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok","service":"playlog"}`))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready","service":"playlog"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/login", loginHandler(auth, logger))
	mux.HandleFunc("/callback", callbackHandler(auth, registry, logger))
	mux.HandleFunc("/optout", optOutHandler(registry, logger))

	mux.HandleFunc("/", homeHandler(logger))

	return mux
}

// loginHandler sends the user to Spotify's consent page. The user ID rides
// along as the OAuth state parameter and comes back on the callback.
func loginHandler(auth Authenticator, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "missing user parameter", http.StatusBadRequest)
			return
		}

		logger.Info("Starting OAuth flow", zap.String("userID", userID))
		http.Redirect(w, r, auth.AuthURL(userID), http.StatusFound)
	}
}

func callbackHandler(auth Authenticator, registry core.UserRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("state")
		code := r.URL.Query().Get("code")
		if userID == "" || code == "" {
			http.Error(w, "missing state or code parameter", http.StatusBadRequest)
			return
		}

		if err := auth.Exchange(r.Context(), userID, code); err != nil {
			logger.Error("OAuth exchange failed", zap.String("userID", userID), zap.Error(err))
			http.Error(w, "authorization failed", http.StatusBadGateway)
			return
		}

		if err := registry.SetTracking(r.Context(), userID, true); err != nil {
			logger.Error("Failed to enable tracking", zap.String("userID", userID), zap.Error(err))
			http.Error(w, "failed to enable tracking", http.StatusInternalServerError)
			return
		}

		logger.Info("User opted in", zap.String("userID", userID))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"tracking","user":%q}`, userID)
	}
}

func optOutHandler(registry core.UserRegistry, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("user")
		if userID == "" {
			http.Error(w, "missing user parameter", http.StatusBadRequest)
			return
		}

		if err := registry.SetTracking(r.Context(), userID, false); err != nil {
			logger.Error("Failed to disable tracking", zap.String("userID", userID), zap.Error(err))
			http.Error(w, "failed to disable tracking", http.StatusInternalServerError)
			return
		}

		logger.Info("User opted out", zap.String("userID", userID))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, `{"status":"not tracking","user":%q}`, userID)
	}
}

func homeHandler(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte(`<!DOCTYPE html>
<html>
<head>
    <title>Playlog</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 40px; }
        .header { color: #333; }
        .endpoint { margin: 10px 0; }
        .endpoint a { text-decoration: none; color: #0066cc; }
        .endpoint a:hover { text-decoration: underline; }
    </style>
</head>
<body>
    <h1 class="header">🎧 Playlog</h1>
    <p>Spotify listening history tracker</p>

    <h2>Endpoints</h2>
    <div class="endpoint">📊 <a href="/metrics">Metrics</a> - Prometheus metrics</div>
    <div class="endpoint">💚 <a href="/healthz">Health</a> - Health check</div>
    <div class="endpoint">✅ <a href="/readyz">Ready</a> - Readiness check</div>
    <div class="endpoint">🔑 /login?user=&lt;id&gt; - Opt in via Spotify</div>
    <div class="endpoint">🚪 /optout?user=&lt;id&gt; - Stop tracking</div>
</body>
</html>`)); err != nil {
			logger.Debug("Failed to write home page", zap.Error(err))
		}
	}
}

func createHTTPServer(config *core.ServerConfig, mux *http.ServeMux) *http.Server {
	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      mux,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting HTTP server",
		zap.String("addr", s.server.Addr))

	go func() {
		<-ctx.Done()
		s.logger.Info("Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("Failed to shutdown HTTP server gracefully", zap.Error(err))
		}
	}()

	if err := s.server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

func (s *Server) GetMetrics() *Metrics {
	return s.metrics
}

func (s *Server) RecordCycle(duration time.Duration) {
	s.metrics.CyclesTotal.Inc()
	s.metrics.CycleDuration.Observe(duration.Seconds())
}

func (s *Server) RecordEvent(kind string) {
	s.metrics.EventsTotal.WithLabelValues(kind).Inc()
}

func (s *Server) RecordScrobble() {
	s.metrics.ScrobblesTotal.Inc()
}

func (s *Server) RecordDuplicate() {
	s.metrics.DuplicatesTotal.Inc()
}

func (s *Server) RecordError(component, errorType string) {
	s.metrics.ErrorsTotal.WithLabelValues(component, errorType).Inc()
}

func (s *Server) SetTrackedUsers(count int) {
	s.metrics.TrackedUsers.Set(float64(count))
}

func (s *Server) SetActiveSessions(count int) {
	s.metrics.ActiveSessions.Set(float64(count))
}

package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"quizwhiz/internal/app"
	"quizwhiz/internal/domain"
)

const maxSampleLimit = 100

// RouterConfig collects what the HTTP surface needs.
type RouterConfig struct {
	Service        *app.QuizService
	WS             *WSHandler
	Gatherer       prometheus.Gatherer
	Topics         []string
	AllowedOrigins []string
	Log            logrus.FieldLogger
}

// NewRouter mounts the websocket endpoint, the admin API and /metrics.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Log == nil {
		cfg.Log = logrus.StandardLogger()
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, requestLogger(cfg.Log), middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		ExposedHeaders: []string{"Content-Length"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	if cfg.WS != nil {
		r.Get("/ws", cfg.WS.ServeWS)
	}

	api := &adminAPI{service: cfg.Service, topics: cfg.Topics}
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/topics", api.topicsHandler)
		r.Route("/pool", func(r chi.Router) {
			r.Get("/count", api.countHandler)
			r.Get("/sample", api.sampleHandler)
			r.Delete("/", api.clearHandler)
		})
	})
	return r
}

type adminAPI struct {
	service *app.QuizService
	topics  []string
}

func (a *adminAPI) topicsHandler(w http.ResponseWriter, r *http.Request) {
	topics := a.topics
	if topics == nil {
		topics = []string{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"topics": topics})
}

func (a *adminAPI) countHandler(w http.ResponseWriter, r *http.Request) {
	n, err := a.service.PoolCount(r.Context())
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": n})
}

func (a *adminAPI) sampleHandler(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}
	if limit > maxSampleLimit {
		limit = maxSampleLimit
	}
	questions, err := a.service.SamplePool(r.Context(), limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"questions": questions})
}

func (a *adminAPI) clearHandler(w http.ResponseWriter, r *http.Request) {
	if err := a.service.ClearPool(r.Context()); err != nil {
		respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, domain.ErrStore) {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, status, map[string]string{"error": err.Error()})
}

func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("http request")
		})
	}
}

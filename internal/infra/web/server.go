package web

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"vton-backend/internal/config"
	"vton-backend/internal/domain"
	"vton-backend/internal/infra/limiter"
	"vton-backend/internal/infra/logging"
	"vton-backend/internal/infra/metrics"
	"vton-backend/internal/infra/webhook"
	"vton-backend/internal/usecase"
)

type ctxKey int

const userIDKey ctxKey = iota

// UserID extracts the authenticated user from a request context.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

type Server struct {
	taskUC      usecase.TaskUseCase
	reconciler  usecase.ReconcilerUseCase
	statusCache usecase.StatusCache
	auth        *AuthManager
	verifier    *webhook.Verifier
	limiter     *limiter.SlidingWindow
	polling     config.PollingConfig
	log         *zerolog.Logger
}

func NewServer(
	taskUC usecase.TaskUseCase,
	reconciler usecase.ReconcilerUseCase,
	statusCache usecase.StatusCache,
	auth *AuthManager,
	verifier *webhook.Verifier,
	lim *limiter.SlidingWindow,
	polling config.PollingConfig,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		taskUC:      taskUC,
		reconciler:  reconciler,
		statusCache: statusCache,
		auth:        auth,
		verifier:    verifier,
		limiter:     lim,
		polling:     polling,
		log:         logger,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/token", s.tokenHandler())
		r.Post("/tryon/webhook", s.webhookHandler())

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/tryon", s.createHandler())
			r.Get("/tryon", s.listHandler())
			r.Delete("/tryon/{taskID}", s.cancelHandler())
			r.Get("/tryon/{taskID}/results", s.resultsHandler())
			r.Get("/tryon/{taskID}/events", s.eventsHandler())

			r.With(s.rateLimitMiddleware).Get("/tryon/{taskID}/status", s.statusHandler())
		})
	})

	return Chain(r, TraceID(), RequestLog(s.log), Recover(s.log), Timeout(60*time.Second))
}

// authMiddleware verifies the bearer token and stashes the subject in
// the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.auth.ParseFromRequest(r)
		if err != nil {
			writeError(w, domain.ErrUnauthenticated)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, claims.Subject)
		ctx = logging.WithUserID(ctx, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// rateLimitMiddleware enforces the per-user polling budget. Rejections
// carry Retry-After so well-behaved clients back off instead of hammering.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := UserID(r.Context())
		if key == "" {
			key = r.RemoteAddr
		}
		ok, retryAfter := s.limiter.Allow(key)
		if !ok {
			metrics.IncRateLimitHit("status")
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			writeError(w, domain.ErrRateLimited)
			return
		}
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(s.limiter.Limit()))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(s.limiter.Remaining(key)))
		next.ServeHTTP(w, r)
	})
}

package app

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/fixpoint-hq/fixpoint/internal/audit"
	"github.com/fixpoint-hq/fixpoint/internal/observability"
	"github.com/fixpoint-hq/fixpoint/internal/platform/httpx"
	"github.com/fixpoint-hq/fixpoint/jobs"
)

// RouterParams groups dependencies for building the operational HTTP
// router. Business operations are invoked through the service layer, not
// over HTTP, so the router carries health, readiness, metrics and the
// read-only audit timeline.
type RouterParams struct {
	Logger      *slog.Logger
	Config      *Config
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	JobsHandler *jobs.Handler
	Metrics     *observability.Metrics
	Audit       *audit.Recorder
}

// NewRouter constructs the chi.Router for the ops surface.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if params.Pool != nil {
			if err := params.Pool.Ping(ctx); err != nil {
				params.Logger.Warn("readiness postgres", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "postgres unreachable")
				return
			}
		}
		if params.Redis != nil {
			if err := params.Redis.Ping(ctx).Err(); err != nil {
				params.Logger.Warn("readiness redis", slog.Any("error", err))
				httpx.Problem(w, http.StatusServiceUnavailable, "Not Ready", "redis unreachable")
				return
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ready"})
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}
	if params.Audit != nil {
		r.Get("/audit/timeline", auditTimeline(params.Audit))
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}

// auditTimeline serves the read-only trail with the same filters the
// recorder supports. Mutations stay inside the service layer.
func auditTimeline(recorder *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filters := audit.TimelineFilters{
			Entity: q.Get("entity"),
			Action: q.Get("action"),
		}
		if raw := q.Get("actor_id"); raw != "" {
			actorID, err := uuid.Parse(raw)
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "actor_id must be a UUID")
				return
			}
			filters.ActorID = actorID
		}
		for name, dst := range map[string]*time.Time{"from": &filters.From, "to": &filters.To} {
			if raw := q.Get(name); raw != "" {
				ts, err := time.Parse(time.RFC3339, raw)
				if err != nil {
					httpx.Problem(w, http.StatusBadRequest, "Validation Failed", name+" must be RFC 3339")
					return
				}
				*dst = ts
			}
		}
		filters.Page, _ = strconv.Atoi(q.Get("page"))
		filters.PageSize, _ = strconv.Atoi(q.Get("page_size"))

		result, err := recorder.Timeline(r.Context(), filters)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, result)
	}
}

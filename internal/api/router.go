package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/alecgard/taskhub/internal/auth"
	"github.com/alecgard/taskhub/internal/config"
	"github.com/alecgard/taskhub/internal/metrics"
	"github.com/alecgard/taskhub/internal/notify"
	"github.com/alecgard/taskhub/internal/ratelimit"
	"github.com/alecgard/taskhub/internal/team"
	"github.com/alecgard/taskhub/internal/teamtask"
	"github.com/alecgard/taskhub/internal/todo"
	"github.com/alecgard/taskhub/internal/user"
)

// AuthService is the sign-in and identity surface used by the handlers.
type AuthService interface {
	auth.Authenticator
	RequestCode(ctx context.Context, ch notify.Channel, value string) (*auth.CodeRequest, error)
	VerifyCode(ctx context.Context, ch notify.Channel, value, code string) (*auth.Token, error)
	Logout(ctx context.Context, token string) (*auth.LogoutResult, error)
	LogoutAll(ctx context.Context, userID string) (*auth.LogoutResult, error)
	CurrentUser(ctx context.Context, userID string) (*user.User, error)
	UpdateUsername(ctx context.Context, userID, name string) (*user.User, error)
	Stats(ctx context.Context) (*auth.Stats, error)
}

// TeamService manages teams and their membership.
type TeamService interface {
	Create(ctx context.Context, ownerID, name string, description *string) (*team.View, error)
	Get(ctx context.Context, teamID, requesterID string) (*team.View, error)
	ListForUser(ctx context.Context, userID string) ([]*team.View, error)
	Update(ctx context.Context, teamID, callerID string, in team.UpdateInput) (*team.View, error)
	Delete(ctx context.Context, teamID, callerID string) error
	Invite(ctx context.Context, teamID, inviterID, targetID string) (*team.Member, error)
	UpdateMemberRole(ctx context.Context, teamID, ownerID, targetID string, newRole team.Role) (*team.Member, error)
	TransferOwnership(ctx context.Context, teamID, ownerID, targetID string) (*team.View, error)
	RemoveMember(ctx context.Context, teamID, removerID, targetID string) error
	ListMembers(ctx context.Context, teamID, requesterID string) ([]*team.Member, error)
}

// TaskService manages team tasks and per-member completion.
type TaskService interface {
	Create(ctx context.Context, teamID, userID string, in teamtask.CreateInput) (*teamtask.Task, error)
	List(ctx context.Context, teamID, userID string) ([]*teamtask.Task, error)
	Get(ctx context.Context, teamID, taskID, userID string) (*teamtask.Task, error)
	Update(ctx context.Context, teamID, taskID, userID string, in teamtask.UpdateInput) (*teamtask.Task, error)
	Delete(ctx context.Context, teamID, taskID, userID string) error
	SetCompletion(ctx context.Context, teamID, taskID, userID string, completed bool) (*teamtask.Aggregate, error)
	Completions(ctx context.Context, teamID, taskID, userID string) ([]teamtask.Completion, error)
}

// TodoService manages personal todos.
type TodoService interface {
	Create(ctx context.Context, userID string, in todo.CreateInput) (*todo.Todo, error)
	List(ctx context.Context, userID string, params todo.ListParams) ([]*todo.Todo, error)
	Get(ctx context.Context, userID, id string) (*todo.Todo, error)
	Update(ctx context.Context, userID, id string, in todo.UpdateInput) (*todo.Todo, error)
	Complete(ctx context.Context, userID, id string) (*todo.Todo, error)
	Delete(ctx context.Context, userID, id string) error
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RouterDeps holds all dependencies for the API router.
type RouterDeps struct {
	Auth    AuthService
	Teams   TeamService
	Tasks   TaskService
	Todos   TodoService
	Limiter *ratelimit.Limiter
	Metrics *metrics.Metrics
	DB      Pinger

	AllowedOrigins []string
	AuthRateLimit  config.AuthRateLimitConfig
}

// NewRouter builds the chi router with all routes and middleware.
func NewRouter(deps RouterDeps) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(secureHeaders)
	r.Use(corsMiddleware(deps.AllowedOrigins))
	r.Use(slogRequestLogger)
	if deps.Metrics != nil {
		r.Use(metricsMiddleware(deps.Metrics))
	}

	authH := newAuthHandler(deps.Auth)
	todos := newTodosHandler(deps.Todos)
	teams := newTeamsHandler(deps.Teams)
	tasks := newTasksHandler(deps.Tasks)

	r.Get("/health", healthHandler(deps.DB))
	r.Get("/.well-known/taskhub.json", WellKnownHandler)
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.ExpositionHandler())
	}

	// Public sign-in routes, throttled per client IP.
	r.Group(func(pr chi.Router) {
		if rl := deps.AuthRateLimit; rl.RequestsPerSecond > 0 {
			pr.Use(ipThrottle(rl.RequestsPerSecond, max(rl.Burst, 1), rejectCounter(deps.Metrics, "ip")))
		}
		pr.Post("/api/v1/auth/request-code", authH.RequestCode)
		pr.Post("/api/v1/auth/verify-code", authH.VerifyCode)
	})

	// Authenticated routes.
	r.Route("/api/v1", func(ar chi.Router) {
		ar.Use(auth.Middleware(deps.Auth))
		if deps.Limiter != nil {
			ar.Use(ratelimit.Middleware(deps.Limiter, rejectCounter(deps.Metrics, "user")))
		}

		ar.Post("/auth/logout", authH.Logout)
		ar.Post("/auth/logout-all", authH.LogoutAll)
		ar.Get("/auth/me", authH.Me)
		ar.Patch("/auth/me", authH.UpdateMe)
		ar.Get("/auth/stats", authH.Stats)

		if deps.Metrics != nil {
			ar.Get("/metrics/summary", deps.Metrics.SummaryHandler())
		}

		ar.Route("/todos", func(tr chi.Router) {
			tr.Get("/", todos.List)
			tr.Post("/", todos.Create)
			tr.Get("/{todoID}", todos.Get)
			tr.Patch("/{todoID}", todos.Update)
			tr.Delete("/{todoID}", todos.Delete)
			tr.Post("/{todoID}/complete", todos.Complete)
		})

		ar.Route("/teams", func(tr chi.Router) {
			tr.Get("/", teams.List)
			tr.Post("/", teams.Create)

			tr.Route("/{teamID}", func(tr chi.Router) {
				tr.Get("/", teams.Get)
				tr.Patch("/", teams.Update)
				tr.Delete("/", teams.Delete)

				tr.Get("/members", teams.ListMembers)
				tr.Post("/members", teams.Invite)
				tr.Patch("/members/{userID}", teams.UpdateMemberRole)
				tr.Delete("/members/{userID}", teams.RemoveMember)
				tr.Post("/owner", teams.TransferOwnership)

				tr.Get("/tasks", tasks.List)
				tr.Post("/tasks", tasks.Create)
				tr.Get("/tasks/{taskID}", tasks.Get)
				tr.Patch("/tasks/{taskID}", tasks.Update)
				tr.Delete("/tasks/{taskID}", tasks.Delete)
				tr.Put("/tasks/{taskID}/completion", tasks.SetCompletion)
				tr.Get("/tasks/{taskID}/completions", tasks.Completions)
			})
		})
	})

	return r
}

// rejectCounter returns a callback counting limiter rejections, or nil when
// metrics are disabled.
func rejectCounter(m *metrics.Metrics, limiterType string) func() {
	if m == nil {
		return nil
	}
	return func() { m.IncRateLimitRejection(limiterType) }
}

// healthHandler reports process liveness and, when a database is wired,
// whether it answers a ping.
func healthHandler(db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := db.Ping(ctx); err != nil {
			slog.Warn("health check: database unreachable", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status":   "degraded",
				"database": "unreachable",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{
			"status":   "ok",
			"database": "connected",
		})
	}
}

// slogRequestLogger is a simple structured logging middleware using slog.
func slogRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"bytes", ww.BytesWritten(),
			"request_id", RequestIDFromContext(r.Context()),
		)
	})
}

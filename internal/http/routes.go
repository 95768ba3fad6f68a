package http

import (
	"context"

	"task_tracker/internal/config"
	"task_tracker/internal/http/handlers"
	"task_tracker/internal/http/middleware"
	"task_tracker/internal/service"
	"task_tracker/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	redis "github.com/redis/go-redis/v9"
)

// Deps is everything the router needs. DB and Redis are nil when the server
// runs on in-memory stores.
type Deps struct {
	Config  *config.Config
	Version string
	Tasks   *service.TaskService
	Links   *service.LinkService
	Users   handlers.UserStore
	Hub     *ws.Hub
	DB      *pgxpool.Pool
	Redis   *redis.Client
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	cfg := d.Config
	h := handlers.NewHandler(d.Tasks, d.Links, d.Users, cfg.DevMode)

	checks := map[string]handlers.CheckFunc{}
	if d.DB != nil {
		checks["database"] = d.DB.Ping
	}
	if d.Redis != nil {
		rdb := d.Redis
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	healthHandler := handlers.NewHealthHandler(d.Version, checks)

	r.Use(middleware.RequestLogger(), middleware.Metrics(), middleware.CORS(cfg.AllowedOrigin))

	// Health checks (no rate limiting)
	r.GET("/health", healthHandler.Health)
	r.GET("/healthz", healthHandler.Liveness)
	r.GET("/readyz", healthHandler.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes
	v1 := r.Group("/api/v1")
	v1.Use(middleware.RedisRateLimit(d.Redis, cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(v1, h, d.Redis, cfg)

	r.GET("/ws", ws.HandleWS(d.Hub, wsAuthenticator(d.Users), cfg.AllowedOrigin))
}

// wsAuthenticator accepts an access token only while its user still exists;
// a deleted account is treated like a missing token.
func wsAuthenticator(users handlers.UserStore) ws.Authenticator {
	return func(ctx context.Context, token string) (int64, error) {
		userID, err := service.ParseJWT(token)
		if err != nil {
			return 0, err
		}
		if _, err := users.GetByID(ctx, userID); err != nil {
			return 0, err
		}
		return userID, nil
	}
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, rdb *redis.Client, cfg *config.Config) {
	// Auth
	api.POST("/auth/refresh", h.Refresh)
	api.POST("/auth/telegram/confirm", h.ConfirmTelegram)
	if cfg.DevMode {
		api.POST("/auth/dev", h.DevLogin)
	}

	authed := api.Group("")
	authed.Use(middleware.JWT())

	authed.GET("/me", h.Me)
	authed.POST("/auth/telegram/link", h.IssueTelegramLink)
	authed.DELETE("/auth/telegram/link", h.UnlinkTelegram)

	// Mutation rate limiter (per user, not per IP)
	mut := middleware.UserRateLimit(rdb, "tasks", cfg.MutationRateLimit, cfg.MutationRateWindow)

	authed.GET("/lists", h.ListLists)
	authed.POST("/lists", mut, h.CreateList)
	authed.GET("/lists/:id", h.GetList)
	authed.PATCH("/lists/:id", mut, h.UpdateList)
	authed.PUT("/lists/:id", mut, h.UpdateList)
	authed.GET("/lists/:id/tasks", h.ListTasksInList)
	authed.POST("/lists/:id/tasks", mut, h.CreateTask)

	authed.GET("/tasks", h.ListAssigned)
	authed.GET("/tasks/:id", h.GetTask)
	authed.PATCH("/tasks/:id", mut, h.UpdateTask)
	authed.POST("/tasks/:id/complete", mut, h.CompleteTask)
	authed.DELETE("/tasks/:id", mut, h.DeleteTask)
}

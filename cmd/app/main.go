package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"task_tracker/internal/config"
	"task_tracker/internal/db"
	httpServer "task_tracker/internal/http"
	"task_tracker/internal/http/handlers"
	"task_tracker/internal/linktoken"
	"task_tracker/internal/logger"
	"task_tracker/internal/notify"
	"task_tracker/internal/presence"
	"task_tracker/internal/repository"
	"task_tracker/internal/service"
	"task_tracker/internal/sweeper"
	"task_tracker/internal/telegram"
	"task_tracker/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

var version = "dev"

type userStore interface {
	handlers.UserStore
	service.TelegramBinder
	notify.Directory
}

type taskStore interface {
	service.TaskStore
	sweeper.Store
}

type stores struct {
	users userStore
	lists service.ListStore
	tasks taskStore
	pool  *pgxpool.Pool
}

func openStores(cfg *config.Config) stores {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL is empty, using in-memory storage (DEV_MODE)")
		mem := repository.NewMemoryStore()
		return stores{users: mem, lists: mem, tasks: mem}
	}

	pool := db.Connect(cfg.DatabaseURL)
	return stores{
		users: repository.NewUserRepository(pool),
		lists: repository.NewListRepository(pool),
		tasks: repository.NewTaskRepository(pool),
		pool:  pool,
	}
}

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)

	if !cfg.DevMode {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st := openStores(cfg)
	if st.pool != nil {
		defer st.pool.Close()
	}

	rdb := db.ConnectRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	var (
		pres      presence.Store
		redisPres *presence.RedisStore
		backend   linktoken.Backend
	)
	if rdb != nil {
		defer rdb.Close()
		redisPres = presence.NewRedisStore(rdb, cfg.InstanceID, cfg.PresenceTTL)
		pres = redisPres
		backend = linktoken.NewRedisBackend(rdb)
	} else {
		pres = presence.NewMemoryStore()
		backend = linktoken.NewMemoryBackend()
	}

	var (
		messenger notify.Messenger
		botName   string
	)
	if cfg.BotToken != "" {
		client, err := telegram.NewClient(cfg.BotToken, cfg.NotifySendTimeout)
		if err != nil {
			logger.Warn("telegram delivery disabled", "error", err)
		} else {
			messenger = client
			botName = client.Username()
		}
	} else {
		logger.Warn("BOT_TOKEN is empty, offline users will not be notified")
	}

	hub := ws.NewHub(pres)
	dispatcher := notify.NewDispatcher(hub, pres, st.users, messenger, cfg.NotifySendTimeout)
	tasks := service.NewTaskService(st.tasks, st.lists, st.users, dispatcher)
	links := service.NewLinkService(linktoken.NewStore(backend, cfg.EntryURL(botName)), st.users, cfg.LinkTokenTTL, cfg.LinkConfirmCooldown)
	sw := sweeper.New(st.tasks, dispatcher, cfg.SweepInterval)

	r := gin.New()
	r.Use(gin.Recovery())
	httpServer.RegisterRoutes(r, httpServer.Deps{
		Config:  cfg,
		Version: version,
		Tasks:   tasks,
		Links:   links,
		Users:   st.users,
		Hub:     hub,
		DB:      st.pool,
		Redis:   rdb,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("server started", "port", cfg.AppPort, "version", version)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		return sw.Run(gctx)
	})

	if redisPres != nil {
		g.Go(func() error {
			return redisPres.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		err := srv.Shutdown(shutdownCtx)
		if herr := hub.Shutdown(shutdownCtx); herr != nil {
			logger.Warn("websocket clients did not unregister in time", "error", herr)
		}
		if redisPres != nil {
			// whatever the pumps did not release in time goes with the instance key
			if cerr := redisPres.Clear(shutdownCtx); cerr != nil {
				logger.Warn("clear presence failed", "error", cerr)
			}
		}
		if derr := dispatcher.Shutdown(shutdownCtx); derr != nil {
			logger.Warn("pending notifications dropped", "error", derr)
		}
		return err
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server error", "error", err)
	}
	logger.Info("server exited")
}

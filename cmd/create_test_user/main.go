package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"task_tracker/internal/db"
	"task_tracker/internal/domain"
	"task_tracker/internal/logger"
	"task_tracker/internal/repository"
	"task_tracker/internal/service"
)

func main() {
	username := flag.String("username", "testuser", "username to create or reuse")
	flag.Parse()

	// expects DATABASE_URL and JWT_SECRET env vars
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		logger.Fatal("DATABASE_URL not set")
	}

	pool := db.Connect(dsn)
	defer pool.Close()

	repo := repository.NewUserRepository(pool)
	ctx := context.Background()

	u, err := repo.GetByUsername(ctx, *username)
	switch {
	case err == nil:
		logger.Info("user already exists", "id", u.ID)
	case errors.Is(err, domain.ErrNotFound):
		u = &domain.User{Username: *username}
		if err := repo.Create(ctx, u); err != nil {
			logger.Fatal("create user failed", "error", err)
		}
		logger.Info("user created", "id", u.ID)
	default:
		logger.Fatal("lookup user failed", "error", err)
	}

	service.InitJWT(os.Getenv("JWT_SECRET"), 0, 0)
	pair, err := service.GenerateTokenPair(u.ID)
	if err != nil {
		logger.Fatal("failed to generate token", "error", err)
	}

	fmt.Printf("user_id=%d\naccess=%s\nrefresh=%s\n", u.ID, pair.Access, pair.Refresh)
}

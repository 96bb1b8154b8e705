package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/iliyamo/auth-service/internal/config"
	"github.com/iliyamo/auth-service/internal/database"
	"github.com/iliyamo/auth-service/internal/handler"
	"github.com/iliyamo/auth-service/internal/middleware"
	"github.com/iliyamo/auth-service/internal/queue"
	"github.com/iliyamo/auth-service/internal/repository"
	"github.com/iliyamo/auth-service/internal/router"
	"github.com/iliyamo/auth-service/internal/service"
	"github.com/iliyamo/auth-service/internal/utils"
)

func main() {
	cfg := config.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()
	if cfg.DBMigrate {
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("mysql: %v", err)
		}
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	issuer, err := utils.NewTokenIssuer(cfg.JWTSecret, cfg.JWTAlg, cfg.AccessTTL())
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}

	var events service.LoginPublisher
	if cfg.AuditPublish {
		pub := queue.NewPublisher(cfg.AMQPURL)
		defer pub.Close()
		events = pub
	}

	opts := service.Options{
		BcryptCost:    cfg.BcryptCost,
		StoreTimeout:  cfg.StoreTimeout,
		RetryAttempts: cfg.StoreRetryAttempts,
		RetryBackoff:  cfg.StoreRetryBackoff,
	}
	users := repository.NewUserRepo(db)
	roles := repository.NewRoleRepo(db)
	sessions := repository.NewSessionRepo(rdb, cfg.RefreshTTL(), cfg.SessionRevokePrevious)
	authSvc := service.NewAuthService(users, sessions, issuer, events, opts)
	roleSvc := service.NewRoleService(roles, users, opts)

	e := router.NewEcho(cfg.TrustedProxies)
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.RegisterRoutes(e)
	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)
	router.RegisterAuth(e, handler.NewAuthHandler(authSvc), issuer, limiter)
	router.RegisterRoles(e, handler.NewRoleHandler(roleSvc), issuer, cfg.RolesAdminRole)
	if cfg.RolesAdminRole == "" {
		log.Printf("warning: /roles endpoints are not protected (ROLES_ADMIN_ROLE unset)")
	}

	addr := ":" + cfg.Port
	go func() {
		log.Printf("listening on %s (env=%s)", addr, cfg.Env)
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal(err)
		}
	}()

	<-ctx.Done()
	log.Printf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}

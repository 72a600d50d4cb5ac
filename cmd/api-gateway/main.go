package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	_ "github.com/huuhuy2910/dnu-thesis-system-sub001/api/swagger"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/app"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/handler"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/internal/router"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/config"
	"github.com/huuhuy2910/dnu-thesis-system-sub001/pkg/logger"
)

// @title Thesis Defense Scheduling API
// @version 1.0.0
// @description Committee registry and defense assignment engine
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := app.Build(cfg, logr)
	if err != nil {
		logr.Sugar().Fatalw("bootstrap failed", "error", err)
	}
	defer container.Close()

	if err := container.Start(ctx); err != nil {
		logr.Sugar().Fatalw("background workers failed", "error", err)
	}

	checks := map[string]handler.Pinger{"postgres": container.DB}
	if container.Redis != nil {
		checks["redis"] = handler.PingFunc(func(ctx context.Context) error {
			return container.Redis.Ping(ctx).Err()
		})
	}

	r := router.New(cfg, logr, container.Auth, container.Metrics, router.Handlers{
		Assignments:  handler.NewDefenseAssignmentHandler(container.Scheduler, container.AutoAssign),
		Committees:   handler.NewCommitteeHandler(container.Committees, container.Views, container.Export, container.Audit),
		Availability: handler.NewAvailabilityHandler(container.Availability),
		Lecturers:    handler.NewLecturerHandler(container.Views, container.Export),
		Students:     handler.NewStudentDefenseHandler(container.Views),
		Ops:          handler.NewMetricsHandler(container.Metrics, checks, logr),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Error("server failed", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	logr.Info("server stopped")
}

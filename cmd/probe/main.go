package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pulsewatch/pulsewatch/pkg/api"
	"github.com/pulsewatch/pulsewatch/pkg/config"
	"github.com/pulsewatch/pulsewatch/pkg/database"
	"github.com/pulsewatch/pulsewatch/pkg/notification"
	"github.com/pulsewatch/pulsewatch/pkg/probe"
	"github.com/pulsewatch/pulsewatch/pkg/recorder"
	"github.com/pulsewatch/pulsewatch/pkg/scheduler"
)

func main() {
	environment := os.Getenv("PULSEWATCH_ENV")
	if environment == "" {
		environment = "development"
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	logger := buildLogger(cfg)
	defer logger.Sync()
	sugar := logger.Sugar()

	sugar.Infow("starting pulsewatch probe engine", "environment", environment)

	db, err := database.NewDB(cfg)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "error", err)
	}
	defer db.Close()

	probe.SetCertExpiryWarningDays(cfg.Monitor.CertExpiryWarningDays)
	probe.SetPushTolerance(cfg.Monitor.PushToleranceMultiplier)

	registry := probe.NewRegistry(cfg.Monitor.DefaultTimeoutSeconds)
	rec := recorder.New(db.HistoryRepository())
	notifier := notification.New(db.MonitorRepository(), db.HistoryRepository(), db.NotificationRepository(), sugar)

	sched := scheduler.New(db.MonitorRepository(), registry, rec, notifier, sugar)
	if err := sched.ResetAll(); err != nil {
		sugar.Fatalw("failed to load active monitors", "error", err)
	}
	sched.Start()

	cleaner := scheduler.NewCleaner(db.HistoryRepository(), cfg.Cleaner.RetentionDays, sugar)
	if err := cleaner.Start(cfg.Cleaner.IntervalCron); err != nil {
		sugar.Fatalw("failed to start data cleaner", "error", err)
	}

	if environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(db.MonitorRepository(), rec, notifier)

	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:        router,
		ReadTimeout:    30 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		sugar.Infow("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			sugar.Fatalw("http server failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	sugar.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		sugar.Errorw("http server shutdown error", "error", err)
	}

	cleaner.Stop()
	sched.Stop()

	sugar.Info("shutdown complete")
}

// buildLogger constructs a zap logger from the engine's LogConfig: a
// development encoder when console output is requested, production JSON
// otherwise, writing to logs.file in addition to stdout when configured.
func buildLogger(cfg *config.Config) *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(cfg.Logs.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "time"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	if cfg.Logs.Console {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	writers := []zapcore.WriteSyncer{zapcore.AddSync(os.Stdout)}
	if cfg.Logs.File != "" {
		if f, err := os.OpenFile(cfg.Logs.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644); err == nil {
			writers = append(writers, zapcore.AddSync(f))
		}
	}

	core := zapcore.NewCore(encoder, zapcore.NewMultiWriteSyncer(writers...), level)
	return zap.New(core)
}

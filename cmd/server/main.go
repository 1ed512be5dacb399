package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"vcfolio/internal/auth"
	"vcfolio/internal/config"
	"vcfolio/internal/database"
	"vcfolio/internal/handlers"
	"vcfolio/internal/service"
	"vcfolio/internal/storage"
)

func main() {
	logger := logrus.New()

	// Load .env file if it exists, but don't fail if it's missing (e.g. in production)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}
	if err := cfg.RequireAdmin(); err != nil {
		logger.Fatalf("config: %v", err)
	}
	logger.SetLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Open(ctx, cfg.DBDriver, cfg.DSN)
	if err != nil {
		logger.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logger.Fatalf("db migrate failed: %v", err)
	}

	disk, err := storage.NewDisk(cfg.UploadDir, logger)
	if err != nil {
		logger.Fatalf("upload dir: %v", err)
	}

	repo := database.New(db, logger)
	docs := service.NewDocumentService(repo, disk, cfg.Upload, logger)
	sessions := auth.NewSessions(cfg.AdminPassword, cfg.SessionSecret, cfg.SessionTTL, logger)
	h := handlers.NewHandler(repo, docs, sessions, logger)

	rg := gin.Default()
	rg.MaxMultipartMemory = cfg.Upload.MultipartMemory()
	h.Routes(rg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           rg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Infof("server starting on :%s (db=%s, uploads=%s, max upload %s)", cfg.Port, cfg.DBDriver, disk.Dir(), cfg.Upload.MaxSize)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("listen: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warnf("shutdown: %v", err)
	}
}

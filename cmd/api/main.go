package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"tripletfilter/api/internal/app"
	"tripletfilter/api/internal/auth"
	"tripletfilter/api/internal/config"
	"tripletfilter/api/internal/feed"
	"tripletfilter/api/internal/logstore"
	"tripletfilter/api/internal/objstore"
	"tripletfilter/api/internal/progress"
	"tripletfilter/api/internal/reconcile"
	"tripletfilter/api/internal/search"
	"tripletfilter/api/internal/session"
)

func main() {
	cfg := config.Load()

	logger, err := newLogger(cfg.DevLogging)
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer logger.Sync()

	categories, err := config.LoadCategories(cfg.CategoriesFile)
	if err != nil {
		logger.Fatal("categories load failed", zap.Error(err))
	}
	verifier, err := auth.LoadPasswordVerifier(cfg.AccountsFile)
	if err != nil {
		logger.Fatal("accounts load failed", zap.Error(err))
	}

	store, err := objstore.NewMinioStore(objstore.MinioOptions{
		Endpoint:  cfg.StoreEndpoint,
		AccessKey: cfg.StoreAccessKey,
		SecretKey: cfg.StoreSecretKey,
		Bucket:    cfg.StoreBucket,
		UseTLS:    cfg.StoreUseTLS,
		Transport: objstore.TransportOptions{MaxQPS: cfg.StoreMaxQPS},
	}, logger)
	if err != nil {
		logger.Fatal("object store connection failed", zap.Error(err))
	}

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		logger.Fatal("redis connection failed", zap.Error(err))
	}
	defer redisStore.Close()

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		defer meiliClient.Close()
	}

	folders := objstore.NewFolderIndex(store, cfg.FolderIndexTTL, logger)
	service := app.New(cfg, app.Deps{
		Categories: categories,
		Store:      store,
		Logs:       logstore.New(store, logger),
		Feeds:      feed.NewCache(store, logger),
		Folders:    folders,
		Reconciler: reconcile.New(store, folders, logger),
		Progress:   progress.NewTracker(store, cfg.ProgressFolder, logger),
		Search:     search.NewService(meiliClient),
		Verifier:   verifier,
		Sessions:   redisStore,
		Logger:     logger,
	})

	httpServer := app.NewHTTPServer(service, cfg.CORSOrigin, logger)
	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("triplet filter API listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", zap.Error(err))
	}
}

func newLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/chi-demo/middleware"
	"github.com/tendant/sharevault/internal/logging"
	"github.com/tendant/sharevault/pkg/sharevault/api"
	"github.com/tendant/sharevault/pkg/sharevault/config"
	fsstorage "github.com/tendant/sharevault/pkg/sharevault/storage/fs"
)

func main() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "err", err)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogFormat, cfg.LogLevel)
	if err != nil {
		slog.Error("Failed to create logger", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	ctx := context.Background()
	svc, closeRepo, err := cfg.BuildService(ctx, logger)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}
	defer closeRepo()

	store, err := cfg.BuildBlobStore(ctx)
	if err != nil {
		logger.Error("Failed to build blob store", "err", err)
		os.Exit(1)
	}

	routerCfg := api.RouterConfig{
		Service:          svc,
		Uploader:         cfg.BuildUploader(store, logger),
		SiteURL:          cfg.SiteURL,
		Manifest:         cfg.Manifest(),
		StrictPagination: cfg.PaginationStrict,
		Logger:           logger,
	}

	if cfg.Auth.JWTSecret != "" {
		routerCfg.AdminAuth = api.AdminAuth(api.NewTokenAuth(cfg.Auth.JWTSecret))
	} else {
		logger.Warn("AUTH_JWT_SECRET not set, admin and upload routes will reject every request")
	}

	if cfg.Auth.RevalidateAPIKeySHA256 != "" {
		apiKeyMiddleware, err := middleware.ApiKeyMiddleware(middleware.ApiKeyConfig{
			APIKeys: map[string]string{
				"revalidate": cfg.Auth.RevalidateAPIKeySHA256,
			},
		})
		if err != nil {
			logger.Error("Failed initialize API Key middleware", "err", err)
			os.Exit(1)
		}
		routerCfg.RevalidateAuth = apiKeyMiddleware
	} else {
		logger.Warn("REVALIDATE_API_KEY_SHA256 not set, revalidation webhook will reject every request")
	}

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	api.Register(server.R, routerCfg)

	if backend, ok := store.(*fsstorage.Backend); ok && backend.URLPrefix() != "" {
		prefix := backend.URLPrefix()
		server.R.Mount(prefix, http.StripPrefix(prefix, backend.Handler()))
	}

	for _, p := range svc.Policies().All() {
		logger.Debug("cache policy", "name", p.Name, "ttl", p.TTL, "cache_control", p.CacheControl())
	}
	logger.Info("Starting ShareVault",
		"addr", cfg.Addr(),
		"environment", cfg.Environment,
		"database", cfg.Database.Type,
		"uploads_configured", cfg.S3.Bucket != "" || cfg.FS.BaseDir != "",
	)

	server.Run()
}

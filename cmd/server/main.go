package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/tendant/chi-demo/app"
	"github.com/tendant/simple-submit/pkg/simplesubmit/api"
	"github.com/tendant/simple-submit/pkg/simplesubmit/config"
)

func main() {
	// Load .env file if it exists (silently ignore if not found)
	_ = godotenv.Load()

	cfg, err := config.Load(config.WithEnv())
	if err != nil {
		slog.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}

	logger := config.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	ctx := context.Background()
	sessions, closeSessions, err := cfg.BuildSessionStore(ctx, logger)
	if err != nil {
		logger.Error("Failed to open session store", "err", err)
		os.Exit(1)
	}
	defer closeSessions()

	thumbnails, err := cfg.BuildThumbnailStore()
	if err != nil {
		logger.Error("Failed to create thumbnail store", "err", err)
		os.Exit(1)
	}

	repositories := cfg.BuildRepositoryFactory()
	handler := api.NewHandler(api.Config{
		Sessions:      sessions,
		Auth:          cfg.BuildAuthProvider(),
		Repositories:  api.RepositoryFactory(repositories),
		Thumbnails:    thumbnails,
		JWTSecret:     cfg.SessionJWTSecret,
		SecureCookies: cfg.SecureCookies,
		Logger:        logger,
	})

	server := app.DefaultApp()

	app.RoutesHealthz(server.R)
	app.RoutesHealthzReady(server.R)

	server.R.Mount("/", handler.Routes())

	logger.Info("Starting submission server",
		"s3_bucket", cfg.S3.Bucket,
		"hydroshare_api", cfg.HydroShare.APIURL)

	server.Run()
}

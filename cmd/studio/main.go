package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/digkill/PixelMuse/internal/api"
	"github.com/digkill/PixelMuse/internal/config"
	"github.com/digkill/PixelMuse/internal/database"
	"github.com/digkill/PixelMuse/internal/gemini"
	"github.com/digkill/PixelMuse/internal/httpclient"
	"github.com/digkill/PixelMuse/internal/repository"
	"github.com/digkill/PixelMuse/internal/service"
	"github.com/digkill/PixelMuse/internal/storage"
	"github.com/digkill/PixelMuse/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store repository.Store
	var db *sql.DB
	switch cfg.StoreDriver {
	case config.StoreDriverMySQL:
		db, err = database.Connect(cfg)
		if err != nil {
			log.Fatalf("database connect: %v", err)
		}
		defer db.Close()
		if err := database.Migrate(ctx, db); err != nil {
			log.Fatalf("database migrate: %v", err)
		}
		store = repository.NewMySQLStore(db)
	default:
		store = repository.NewMemoryStore()
	}
	logr.Info("store ready", "driver", cfg.StoreDriver)

	var images service.ImageStorage
	if cfg.S3Enabled() {
		uploader, err := storage.NewImageUploader(storage.FromAppConfig(cfg))
		if err != nil {
			log.Fatalf("storage uploader: %v", err)
		}
		images = uploader
	}

	geminiClient := gemini.New(gemini.Options{
		BaseURL:    cfg.GeminiBaseURL,
		APIVersion: cfg.GeminiAPIVersion,
		TextModel:  cfg.GeminiTextModel,
		ImageModel: cfg.GeminiImageModel,
		HTTPClient: httpclient.New(httpclient.Options{PreferIPv4: cfg.PreferIPv4, Timeout: cfg.HTTPTimeout, Logger: logr}),
		Logger:     logr,
	})

	accountRepo := repository.NewAccountRepository(store)
	sessionRepo := repository.NewSessionRepository(store)
	guestRepo := repository.NewGuestUsageRepository(store)
	recordRepo := repository.NewRecordRepository(store)
	credentialRepo := repository.NewCredentialRepository(store)

	plans := service.NewPlanCatalog()
	templates := service.NewTemplateCatalog()
	accountService := service.NewAccountService(logr, accountRepo, sessionRepo, plans, time.Now)
	quota := service.NewGuestQuota(guestRepo, time.Now, cfg.Timezone)
	entitlements := service.NewEntitlements(accountService)
	credentials := service.NewCredentialService(logr, cfg.GeminiAPIKey, credentialRepo, geminiClient)
	history := service.NewHistoryService(logr, recordRepo, images, time.Now)
	generation := service.NewGenerationService(logr, accountService, quota, credentials, templates, history, geminiClient)

	if cfg.AdminPassword == "" {
		logr.Info("ADMIN_PASSWORD is not set, admin routes disabled")
	}
	if !credentials.HasBuiltin() {
		logr.Warn("GEMINI_API_KEY is not set, generation needs a custom key")
	}

	server := api.NewServer(api.Options{
		Addr:          cfg.ListenAddr,
		AdminUsername: cfg.AdminUsername,
		AdminPassword: cfg.AdminPassword,
		WriteTimeout:  cfg.HTTPTimeout*2 + 30*time.Second,
	}, logr, api.Services{
		Plans:        plans,
		Templates:    templates,
		Accounts:     accountService,
		Quota:        quota,
		Entitlements: entitlements,
		Credentials:  credentials,
		Generation:   generation,
		History:      history,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx)
	})
	if credentials.HasBuiltin() {
		g.Go(func() error {
			result := credentials.Validate(gctx, cfg.GeminiAPIKey)
			if !result.Valid {
				logr.Warn("built-in API key check failed", "status", result.Status, "message", result.Message)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logr.Error("studio stopped", "err", err)
	}
}

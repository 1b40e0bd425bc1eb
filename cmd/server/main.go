package main

import (
	"context"
	"net/http"

	"ImageVault/internal/config"
	"ImageVault/internal/handlers"
	"ImageVault/internal/keycache"
	"ImageVault/internal/middleware"
	"ImageVault/internal/rateguard"
	"ImageVault/internal/repo"
	"ImageVault/internal/service"
	"ImageVault/internal/storage"
	"ImageVault/internal/token"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		panic(err)
	}

	// создаём предустановленный регистратор zap
	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}

	// делаем регистратор SugaredLogger
	sugar := logger.Sugar()
	middleware.SetLogger(sugar) // передаём логгер в middleware
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	// слабый мастер-секрет валит процесс на старте, не в рантайме
	if err := config.ValidateMasterSecret(cfg.MasterSecret); err != nil {
		sugar.Fatalw("master secret rejected", "error", err)
	}

	gormDB, err := repo.InitDB(cfg.DatabaseDSN)
	if err != nil {
		sugar.Fatalw("failed to initialize database", "error", err)
	}

	blobs, err := buildBlobStore(cfg)
	if err != nil {
		sugar.Fatalw("failed to initialize blob store", "error", err)
	}

	clock := clockwork.NewRealClock()

	authority := token.NewAuthority(cfg.AuthSecret, cfg.ObjectTokenTTL, cfg.KeyTokenTTL, clock)

	cache := keycache.New(clock, keycache.DefaultSweepInterval)
	cache.Start()
	defer cache.Stop()

	guardCfg := rateguard.DefaultGuardConfig()
	guardCfg.BanThreshold = cfg.BanThreshold
	guardCfg.BanWindow = cfg.BanWindow
	guardCfg.BanDuration = cfg.BanDuration
	guard := rateguard.New(guardCfg, rateguard.DefaultLimits(), clock, sugar)
	guard.Start()
	defer guard.Stop()

	userService := service.NewUserService(repo.NewUserRepository(gormDB))
	vaultService := service.NewVaultService(blobs, repo.NewObjectRepository(gormDB), authority, cache, cfg.MasterSecret, sugar)

	h := handlers.NewHandler(userService, vaultService, guard, sugar, cfg)

	sugar.Infow("Starting server",
		"addr", cfg.RunAddress,
		"blob_backend", cfg.BlobBackend,
		"object_token_ttl", cfg.ObjectTokenTTL,
		"key_token_ttl", cfg.KeyTokenTTL,
	)

	if err := http.ListenAndServe(cfg.RunAddress, h.Router); err != nil {
		sugar.Fatalw("Server failed", "error", err)
	}
}

func buildBlobStore(cfg *config.Config) (storage.BlobStore, error) {
	if cfg.BlobBackend == "s3" {
		return storage.NewS3Store(context.Background(), storage.S3Config{
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
		})
	}
	return storage.NewFSStore(cfg.BlobDir)
}

// Package app wires configuration into the components shared by the API
// server and the command line client.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"carbonlock/marketplace-portal/internal/config"
	"carbonlock/marketplace-portal/internal/marketplace"
	"carbonlock/marketplace-portal/internal/notifications"
	"carbonlock/marketplace-portal/internal/remote"
	"carbonlock/marketplace-portal/pkg/security"
	"carbonlock/marketplace-portal/pkg/storage"
)

// DemoPrincipal acts as the caller of the in-memory stand-in when none is
// configured.
const DemoPrincipal = "rrkah-fqaaa-aaaaa-aaaaq-cai"

// NewLogger builds a zap logger from the logging section.
func NewLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
		}
		zc.Level = level
	}
	return zc.Build()
}

// CallerPrincipal is the principal the shell acts as.
func CallerPrincipal(cfg config.RemoteConfig) string {
	if cfg.CallerPrincipal == "" && cfg.Mode != config.RemoteModeHTTP {
		return DemoPrincipal
	}
	return cfg.CallerPrincipal
}

// InitTimeout bounds the initial fetch of both lists.
func InitTimeout(cfg config.RemoteConfig) time.Duration {
	if cfg.Timeout.Duration <= 0 {
		return 30 * time.Second
	}
	return 2 * cfg.Timeout.Duration
}

// NewRemote returns the contract service selected by cfg.Mode.
func NewRemote(cfg config.RemoteConfig, logger *zap.Logger) (remote.ContractService, error) {
	switch cfg.Mode {
	case config.RemoteModeHTTP:
		signer, err := security.NewSigner(cfg.CallerPrincipal, cfg.IdentitySecret, cfg.TokenTTL.Duration)
		if err != nil {
			return nil, fmt.Errorf("failed to create caller identity: %w", err)
		}
		logger.Info("Using remote contract service", zap.String("url", cfg.URL), zap.String("caller", signer.Principal()))
		return remote.NewHTTPClient(cfg.URL, cfg.Timeout.Duration, logger, remote.WithSigner(signer)), nil
	case config.RemoteModeMemory, "":
		caller := CallerPrincipal(cfg)
		logger.Info("Using in-memory contract service", zap.String("caller", caller), zap.Int("seed_credits", cfg.SeedCredits))
		mem := remote.NewMemoryService(caller, time.Now)
		if err := mem.SeedCredits(context.Background(), cfg.SeedCredits); err != nil {
			return nil, fmt.Errorf("failed to seed credits: %w", err)
		}
		return mem, nil
	}
	return nil, fmt.Errorf("unknown remote mode %q", cfg.Mode)
}

// NewMarketplace creates the shell core for cfg.
func NewMarketplace(cfg *config.Config, svc remote.ContractService, notifier notifications.Notifier, logger *zap.Logger) *marketplace.Service {
	return marketplace.NewService(svc, notifier, logger, marketplace.Options{
		CallerPrincipal:  CallerPrincipal(cfg.Remote),
		PageSize:         cfg.View.PageSize,
		DefaultSort:      cfg.View.DefaultSort,
		DefaultDirection: cfg.View.DefaultDirection,
	})
}

// NewExportStore returns nil when no bucket is configured.
func NewExportStore(ctx context.Context, cfg config.ExportConfig, logger *zap.Logger) (*marketplace.ExportStore, error) {
	if !cfg.UploadEnabled() {
		return nil, nil
	}
	client, err := storage.NewS3Client(ctx, storage.S3Config{
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		UsePathStyle:    cfg.S3UsePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create export storage: %w", err)
	}
	return marketplace.NewExportStore(client, cfg.S3Bucket, cfg.KeyPrefix, cfg.PresignTTL.Duration, logger), nil
}

package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"carbonlock/marketplace-portal/internal/config"
	"carbonlock/marketplace-portal/internal/remote"
)

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{Level: "warn"})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))

	_, err = NewLogger(config.LoggingConfig{Level: "loud"})
	assert.Error(t, err)
}

func TestNewRemoteSelectsMode(t *testing.T) {
	svc, err := NewRemote(config.RemoteConfig{Mode: config.RemoteModeMemory}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &remote.MemoryService{}, svc)

	svc, err = NewRemote(config.RemoteConfig{
		Mode:            config.RemoteModeHTTP,
		URL:             "http://localhost:4943",
		Timeout:         config.Duration{Duration: time.Second},
		CallerPrincipal: "bkyz2-fmaaa-aaaaa-qaaaq-cai",
		IdentitySecret:  "secret",
		TokenTTL:        config.Duration{Duration: time.Minute},
	}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &remote.HTTPClient{}, svc)

	_, err = NewRemote(config.RemoteConfig{Mode: "grpc"}, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRemoteSeedsCredits(t *testing.T) {
	svc, err := NewRemote(config.RemoteConfig{Mode: config.RemoteModeMemory, SeedCredits: 2}, zap.NewNop())
	require.NoError(t, err)

	credits, err := svc.ListCredits(context.Background())
	require.NoError(t, err)
	require.Len(t, credits, 2)
	for _, c := range credits {
		assert.Equal(t, DemoPrincipal, c.Owner)
		require.NotNil(t, c.RiskScore)
		assert.Equal(t, uint8(remote.SeedRiskScore), *c.RiskScore)
		assert.Equal(t, []int{remote.SeedRiskScore}, c.RiskScoreHistory)
	}
}

func TestCallerPrincipal(t *testing.T) {
	assert.Equal(t, DemoPrincipal, CallerPrincipal(config.RemoteConfig{Mode: config.RemoteModeMemory}))
	assert.Equal(t, "", CallerPrincipal(config.RemoteConfig{Mode: config.RemoteModeHTTP}))
	assert.Equal(t, "bkyz2-fmaaa-aaaaa-qaaaq-cai",
		CallerPrincipal(config.RemoteConfig{Mode: config.RemoteModeMemory, CallerPrincipal: "bkyz2-fmaaa-aaaaa-qaaaq-cai"}))
}

func TestNewExportStore(t *testing.T) {
	store, err := NewExportStore(context.Background(), config.ExportConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = NewExportStore(context.Background(), config.ExportConfig{
		S3Bucket:          "exports",
		S3Region:          "us-east-1",
		S3Endpoint:        "http://localhost:9000",
		S3AccessKeyID:     "key",
		S3SecretAccessKey: "secret",
		S3UsePathStyle:    true,
		KeyPrefix:         "exports/",
	}, zap.NewNop())
	require.NoError(t, err)
	assert.NotNil(t, store)
}

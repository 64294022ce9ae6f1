package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/jobfeed/internal/config"
)

func TestSetupTracing_DisabledWithoutEndpoint(t *testing.T) {
	shutdown, err := SetupTracing(config.Config{})
	require.NoError(t, err)
	assert.Nil(t, shutdown)
}

func TestSetupTracing_WithEndpoint(t *testing.T) {
	cfg := config.Config{
		OTLPEndpoint:    "localhost:4317",
		OTELServiceName: "jobfeed-test",
	}
	shutdown, err := SetupTracing(cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// The exporter dials lazily, so shutdown with no spans must return
	// promptly even without a collector listening.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = shutdown(ctx)
}

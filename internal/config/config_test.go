package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "mirrormatch", cfg.MongoDB)
	assert.InDelta(t, 0.68, cfg.MatchThreshold, 1e-9)
	assert.Equal(t, 10, cfg.RateLimitRPM)
	assert.Equal(t, "uploads", cfg.UploadsDir)
}

func TestLoad_MissingRequired(t *testing.T) {
	// t.Setenv cannot unset, so drop the variable manually and restore after.
	old, had := os.LookupEnv("MONGODB_URI")
	os.Unsetenv("MONGODB_URI")
	t.Cleanup(func() {
		if had {
			os.Setenv("MONGODB_URI", old)
		}
	})
	t.Setenv("JWT_SECRET", "test-secret")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_ThresholdOverride(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("MATCH_THRESHOLD", "0.5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.MatchThreshold, 1e-9)
}

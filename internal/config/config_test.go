package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8082", cfg.Port)
	assert.Equal(t, 30*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, 720*time.Hour, cfg.RetentionWindow)
	assert.Equal(t, 10*time.Second, cfg.LockTimeout)
	assert.Equal(t, 5*time.Second, cfg.Verifier.Timeout)
	assert.Equal(t, 3, cfg.AlertThreshold)
	assert.Equal(t, 5, cfg.RevokeThreshold)
	assert.Empty(t, cfg.DatabaseURL)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("PAYMENT_WINDOW", "5m")
	t.Setenv("ALERT_THRESHOLD", "2")
	t.Setenv("SIDE_EFFECT_RETRIES", "1")
	t.Setenv("SIDE_EFFECT_RETRY_BASE_DELAY", "50ms")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 5*time.Minute, cfg.PaymentWindow)
	assert.Equal(t, 2, cfg.AlertThreshold)
	assert.Equal(t, 1, cfg.WorkerConfig().MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.WorkerConfig().BaseDelay)
	assert.Equal(t, 1, cfg.PublisherRetry().MaxAttempts)
}

func TestLoad_RejectsMalformedDuration(t *testing.T) {
	t.Setenv("PAYMENT_WINDOW", "soon")
	_, err := Load()
	assert.Error(t, err)
}

func TestSecurityPolicy(t *testing.T) {
	t.Run("env values", func(t *testing.T) {
		policy, warnings, err := Security{AlertThreshold: 2, RevokeThreshold: 4}.SecurityPolicy()
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, 2, policy.AlertThreshold)
		assert.Equal(t, 4, policy.RevokeThreshold)
	})

	t.Run("clamped", func(t *testing.T) {
		policy, warnings, err := Security{AlertThreshold: 6, RevokeThreshold: 6}.SecurityPolicy()
		require.NoError(t, err)
		assert.Len(t, warnings, 1)
		assert.Equal(t, 5, policy.AlertThreshold)
		assert.Equal(t, 6, policy.RevokeThreshold)
	})

	t.Run("file overrides env", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("revoke_threshold: 10\n"), 0o600))

		policy, warnings, err := Security{AlertThreshold: 3, RevokeThreshold: 5, PolicyFile: path}.SecurityPolicy()
		require.NoError(t, err)
		assert.Empty(t, warnings)
		assert.Equal(t, 3, policy.AlertThreshold)
		assert.Equal(t, 10, policy.RevokeThreshold)
	})

	t.Run("missing file", func(t *testing.T) {
		_, _, err := Security{PolicyFile: filepath.Join(t.TempDir(), "nope.yaml")}.SecurityPolicy()
		assert.Error(t, err)
	})

	t.Run("malformed file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "policy.yaml")
		require.NoError(t, os.WriteFile(path, []byte("alert_threshold: [\n"), 0o600))
		_, _, err := Security{PolicyFile: path}.SecurityPolicy()
		assert.Error(t, err)
	})
}

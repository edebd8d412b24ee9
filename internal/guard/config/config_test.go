package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayguard/internal/guard/models"
)

func TestDefaultsMirrorPolicy(t *testing.T) {
	cfg := Default()

	auth, ok := cfg.LimitFor(models.ClassAuth)
	require.True(t, ok)
	assert.Equal(t, 5, auth.MaxRequests)
	assert.Equal(t, 5*time.Minute, auth.Window)

	checkout, ok := cfg.LimitFor(models.ClassCheckout)
	require.True(t, ok)
	assert.Equal(t, 10, checkout.MaxRequests)
	assert.Equal(t, time.Minute, checkout.Window)

	_, ok = cfg.LimitFor(models.ClassDefault)
	assert.False(t, ok, "unclassified routes are unrestricted by the limiter")

	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 15*time.Minute, cfg.Lockout.BlockDuration)
	assert.Equal(t, 30*time.Minute, cfg.Session.RotationInterval)
}

func TestParseLimit(t *testing.T) {
	limit, err := ParseLimit("10/1m")
	require.NoError(t, err)
	assert.Equal(t, Limit{MaxRequests: 10, Window: time.Minute}, limit)

	limit, err = ParseLimit(" 5 / 300s ")
	require.NoError(t, err)
	assert.Equal(t, Limit{MaxRequests: 5, Window: 300 * time.Second}, limit)

	for _, bad := range []string{"", "10", "x/1m", "10/x", "10/-1m"} {
		_, err := ParseLimit(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("GUARD_LIMIT_CHECKOUT", "3/30s")
	t.Setenv("GUARD_LOCKOUT_THRESHOLD", "7")
	t.Setenv("SESSION_INVALIDATE_ON_IP_CHANGE", "true")
	t.Setenv("GUARD_BLOCKED_USER_AGENTS", "sqlmap, EvilBot")

	cfg := FromEnv()

	checkout, ok := cfg.LimitFor(models.ClassCheckout)
	require.True(t, ok)
	assert.Equal(t, Limit{MaxRequests: 3, Window: 30 * time.Second}, checkout)
	assert.Equal(t, 7, cfg.Lockout.Threshold)
	assert.True(t, cfg.Session.InvalidateOnIPChange)
	assert.False(t, cfg.Session.InvalidateOnUAChange)
	assert.Equal(t, []string{"sqlmap", "evilbot"}, cfg.Request.BlockedUserAgents)
}

func TestLimitZeroCountMeansUnrestricted(t *testing.T) {
	t.Setenv("GUARD_LIMIT_SEARCH", "0/1m")
	cfg := FromEnv()
	_, ok := cfg.LimitFor(models.ClassSearch)
	assert.False(t, ok)
}

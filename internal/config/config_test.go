package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dativo-io/warden/internal/access"
)

func resetViper(t *testing.T) {
	t.Helper()
	t.Setenv("WARDEN_DATA_DIR", "")
	t.Setenv("WARDEN_SECRETS_KEY", "")
	t.Setenv("WARDEN_ACCESS_TIER", "")
	t.Setenv("WARDEN_RATE_LIMIT_REQUESTS", "")
	t.Setenv("WARDEN_ALLOWED_CHANNELS", "")
	t.Setenv("WARDEN_ADMIN_USERS", "")
	t.Setenv("WARDEN_LLM_PROVIDER", "")
	viper.Reset()
	viper.SetEnvPrefix("WARDEN")
	viper.AutomaticEnv()
	viper.SetDefault(KeyListenAddr, DefaultListenAddr)
	viper.SetDefault(KeyAccessTier, DefaultAccessTier)
	viper.SetDefault(KeyRateLimitCap, DefaultRateLimitCap)
	viper.SetDefault(KeyRateLimitWindow, DefaultRateLimitWindow)
	viper.SetDefault(KeyConversationTTL, DefaultConversationTTL)
	viper.SetDefault(KeyConversationMax, DefaultConversationMax)
	viper.SetDefault(KeyPendingTTL, DefaultPendingTTL)
	viper.SetDefault(KeyToolBatchLimit, DefaultToolBatchLimit)
	viper.SetDefault(KeyLLMProvider, DefaultLLMProvider)
	viper.SetDefault(KeyDigestSchedule, DefaultDigestSchedule)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, access.TierReadOnly, cfg.Tier, "fresh deployments start read-only")
	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, DefaultRateLimitCap, cfg.RateLimitCap)
	assert.Equal(t, time.Minute, cfg.RateLimitWindow)
	assert.Equal(t, time.Hour, cfg.ConversationTTL)
	assert.Equal(t, 5*time.Minute, cfg.PendingTTL)
	assert.Equal(t, "anthropic", cfg.LLMProvider)
	assert.True(t, cfg.UsingDefaultSecretsKey())
	assert.Len(t, cfg.SecretsKey, 64)
	assert.Empty(t, cfg.AllowedChannels)
}

func TestLoad_ExplicitTier(t *testing.T) {
	resetViper(t)
	t.Setenv("WARDEN_ACCESS_TIER", "full_write")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, access.TierFullWrite, cfg.Tier)
}

func TestLoad_UnknownTierRejected(t *testing.T) {
	resetViper(t)
	t.Setenv("WARDEN_ACCESS_TIER", "full_wrte")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown access_tier")
}

func TestLoad_ExplicitSecretsKey(t *testing.T) {
	resetViper(t)
	t.Setenv("WARDEN_SECRETS_KEY", "abcdefghijklmnopqrstuvwxyz012345")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz012345", cfg.SecretsKey)
	assert.False(t, cfg.UsingDefaultSecretsKey())
}

func TestLoad_InvalidSecretsKeyLength(t *testing.T) {
	resetViper(t)
	t.Setenv("WARDEN_SECRETS_KEY", "too-short")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "secrets_key must be exactly 32 bytes")
}

func TestLoad_ChannelAndUserLists(t *testing.T) {
	resetViper(t)
	t.Setenv("WARDEN_ALLOWED_CHANNELS", "C001, C002,C003")
	t.Setenv("WARDEN_ADMIN_USERS", "U100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"C001", "C002", "C003"}, cfg.AllowedChannels)
	assert.Equal(t, []string{"U100"}, cfg.AdminUsers)
}

func TestLoad_UnknownProviderRejected(t *testing.T) {
	resetViper(t)
	t.Setenv("WARDEN_LLM_PROVIDER", "ollama")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm_provider")
}

func TestLoad_CustomDataDir(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("WARDEN_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
}

func TestLoad_CustomRateLimit(t *testing.T) {
	resetViper(t)
	t.Setenv("WARDEN_RATE_LIMIT_REQUESTS", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.RateLimitCap)
}

func TestConfig_DBPaths(t *testing.T) {
	cfg := &Config{DataDir: "/data/warden"}
	assert.Equal(t, "/data/warden/secrets.db", cfg.SecretsDBPath())
	assert.Equal(t, "/data/warden/audit.db", cfg.AuditDBPath())
}

func TestConfig_EnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := &Config{DataDir: dir + "/nested/deep"}
	require.NoError(t, cfg.EnsureDataDir())
}

func TestDeriveDefaultKey_Deterministic(t *testing.T) {
	k1 := deriveDefaultKey("/home/user/.warden", "secrets-encryption")
	k2 := deriveDefaultKey("/home/user/.warden", "secrets-encryption")
	assert.Equal(t, k1, k2)
	require.NoError(t, validateSecretsKey(k1))
}

func TestDeriveDefaultKey_DifferentPaths(t *testing.T) {
	k1 := deriveDefaultKey("/home/alice/.warden", "salt")
	k2 := deriveDefaultKey("/home/bob/.warden", "salt")
	assert.NotEqual(t, k1, k2)
}

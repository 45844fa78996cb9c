// Package config holds OPERATOR-LEVEL configuration for a Warden
// installation.
//
// This is infrastructure config set by whoever deploys Warden, NOT
// end-user state. The boundary is:
//
//   - Operator config (this package): data directory, listen address,
//     access tier, rate limits, channel allow-lists, digest schedule.
//     Set via env vars (WARDEN_*) or config file (warden.config.yaml).
//
//   - Credentials: ATS API key, chat bot token and signing secret, LLM
//     API keys. Stored in the encrypted secrets vault (internal/secrets);
//     matching env vars work as a quickstart fallback and the server
//     logs a warning when they are used.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/dativo-io/warden/internal/access"
)

// Viper keys. Each maps to an env var with the WARDEN_ prefix
// (e.g. "access_tier" → WARDEN_ACCESS_TIER) and to a YAML field in
// warden.config.yaml.
const (
	KeyDataDir    = "data_dir"
	KeyListenAddr = "listen_addr"
	KeySecretsKey = "secrets_key"

	KeyAccessTier       = "access_tier"
	KeyRateLimitCap     = "rate_limit_requests"
	KeyRateLimitWindow  = "rate_limit_window_seconds"
	KeyConversationTTL  = "conversation_ttl_seconds"
	KeyConversationMax  = "conversation_max_messages"
	KeyPendingTTL       = "pending_ttl_seconds"
	KeyAllowedChannels  = "allowed_channels"
	KeyAdminUsers       = "admin_users"
	KeyToolBatchLimit   = "tool_batch_limit"
	KeyLLMProvider      = "llm_provider"
	KeyLLMModel         = "llm_model"
	KeyDigestSchedule   = "digest_schedule"
	KeyDigestChannel    = "digest_channel"
	KeyOTelEnabled      = "otel_enabled"
	KeyATSAPIKey        = "ats_api_key"
	KeyChatToken        = "chat_bot_token"
	KeyChatSigningKey   = "chat_signing_secret"
	KeyAnthropicAPIKey  = "anthropic_api_key"
	KeyOpenAIAPIKey     = "openai_api_key"
)

// Defaults. The access tier defaults to read-only so a fresh deployment
// cannot mutate the ATS until an operator opts in.
const (
	DefaultListenAddr      = ":8080"
	DefaultAccessTier      = "read_only"
	DefaultRateLimitCap    = 20
	DefaultRateLimitWindow = 60
	DefaultConversationTTL = 3600
	DefaultConversationMax = 50
	DefaultPendingTTL      = 300
	DefaultToolBatchLimit  = 25
	DefaultLLMProvider     = "anthropic"
	DefaultDigestSchedule  = "0 9 * * 1-5"
)

// Config is the resolved operator configuration for a Warden process.
type Config struct {
	DataDir    string
	ListenAddr string
	SecretsKey string // AES-256 key for the vault: 32 raw bytes or 64 hex chars

	Tier            access.Tier
	RateLimitCap    int
	RateLimitWindow time.Duration
	ConversationTTL time.Duration
	ConversationMax int
	PendingTTL      time.Duration
	AllowedChannels []string
	AdminUsers      []string
	ToolBatchLimit  int

	LLMProvider string // "anthropic" or "openai"
	LLMModel    string // empty selects the provider's default

	DigestSchedule string // cron expression; empty disables the digest
	DigestChannel  string

	OTelEnabled bool

	usingDefaultSecretsKey bool
}

// UsingDefaultSecretsKey reports whether the vault key fell back to the
// derived per-machine default. Commands warn when this is the case.
func (c *Config) UsingDefaultSecretsKey() bool {
	return c.usingDefaultSecretsKey
}

// SecretsDBPath returns the path of the secrets SQLite database.
func (c *Config) SecretsDBPath() string {
	return filepath.Join(c.DataDir, "secrets.db")
}

// AuditDBPath returns the path of the audit SQLite database.
func (c *Config) AuditDBPath() string {
	return filepath.Join(c.DataDir, "audit.db")
}

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func init() {
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

// Load reads configuration from Viper (which merges env vars, config
// file, and defaults) and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:         resolveDataDir(),
		ListenAddr:      viper.GetString(KeyListenAddr),
		SecretsKey:      viper.GetString(KeySecretsKey),
		RateLimitCap:    viper.GetInt(KeyRateLimitCap),
		RateLimitWindow: time.Duration(viper.GetInt(KeyRateLimitWindow)) * time.Second,
		ConversationTTL: time.Duration(viper.GetInt(KeyConversationTTL)) * time.Second,
		ConversationMax: viper.GetInt(KeyConversationMax),
		PendingTTL:      time.Duration(viper.GetInt(KeyPendingTTL)) * time.Second,
		AllowedChannels: splitList(viper.GetString(KeyAllowedChannels)),
		AdminUsers:      splitList(viper.GetString(KeyAdminUsers)),
		ToolBatchLimit:  viper.GetInt(KeyToolBatchLimit),
		LLMProvider:     viper.GetString(KeyLLMProvider),
		LLMModel:        viper.GetString(KeyLLMModel),
		DigestSchedule:  viper.GetString(KeyDigestSchedule),
		DigestChannel:   viper.GetString(KeyDigestChannel),
		OTelEnabled:     viper.GetBool(KeyOTelEnabled),
	}

	tier, err := parseTierStrict(viper.GetString(KeyAccessTier))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.Tier = tier

	if cfg.SecretsKey == "" {
		cfg.SecretsKey = deriveDefaultKey(cfg.DataDir, "secrets-encryption")
		cfg.usingDefaultSecretsKey = true
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".warden"
	}
	return filepath.Join(home, ".warden")
}

// parseTierStrict rejects unknown tier names. access.ParseTier's silent
// read-only fallback is right for runtime inputs but wrong for operator
// config, where a typo should fail loudly at startup.
func parseTierStrict(s string) (access.Tier, error) {
	for _, t := range []access.Tier{access.TierReadOnly, access.TierScheduleOnly, access.TierCommentOnly, access.TierFullWrite} {
		if s == t.String() {
			return t, nil
		}
	}
	return access.TierReadOnly, fmt.Errorf("unknown access_tier %q", s)
}

// deriveDefaultKey produces a deterministic 32-byte fallback key from the
// data directory path and a salt. Not cryptographically strong; it exists
// so the server runs out of the box while still encrypting at rest with a
// per-machine-unique key.
func deriveDefaultKey(dataDir, salt string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("warden:%s:%s", dataDir, salt)))
	return hex.EncodeToString(h[:])
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr must not be empty")
	}
	if c.RateLimitCap <= 0 {
		return fmt.Errorf("rate_limit_requests must be positive")
	}
	if c.RateLimitWindow <= 0 {
		return fmt.Errorf("rate_limit_window_seconds must be positive")
	}
	if c.ConversationMax <= 0 {
		return fmt.Errorf("conversation_max_messages must be positive")
	}
	if c.LLMProvider != "anthropic" && c.LLMProvider != "openai" {
		return fmt.Errorf("llm_provider must be \"anthropic\" or \"openai\" (got %q)", c.LLMProvider)
	}
	return validateSecretsKey(c.SecretsKey)
}

// validateSecretsKey accepts either 32 raw bytes or 64 hex characters
// (decoding to 32 bytes for AES-256).
func validateSecretsKey(key string) error {
	n := len(key)
	if n == 32 {
		return nil
	}
	if n == 64 {
		decoded, err := hex.DecodeString(key)
		if err == nil && len(decoded) == 32 {
			return nil
		}
	}
	return fmt.Errorf("secrets_key must be exactly 32 bytes or 64 hex characters (got %d); set WARDEN_SECRETS_KEY", n)
}

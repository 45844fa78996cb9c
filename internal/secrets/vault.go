// Package secrets is the encrypted credentials vault. Warden holds keys to
// systems that are individually dangerous (the ATS, the chat workspace,
// the LLM provider), so credentials are encrypted at rest with AES-256-GCM
// in SQLite rather than living in plain env vars. Matching env vars still
// work as a quickstart fallback; the caller logs when they are used.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	wardenotel "github.com/dativo-io/warden/internal/otel"
)

// Well-known credential names and their quickstart env fallbacks.
const (
	NameATSAPIKey         = "ats_api_key"
	NameChatBotToken      = "chat_bot_token"
	NameChatSigningSecret = "chat_signing_secret"
	NameAnthropicAPIKey   = "anthropic_api_key"
	NameOpenAIAPIKey      = "openai_api_key"
)

// EnvFallbacks maps credential names to the env var consulted when the
// vault has no entry.
var EnvFallbacks = map[string]string{
	NameATSAPIKey:         "ASHBY_API_KEY",
	NameChatBotToken:      "SLACK_BOT_TOKEN",
	NameChatSigningSecret: "SLACK_SIGNING_SECRET",
	NameAnthropicAPIKey:   "ANTHROPIC_API_KEY",
	NameOpenAIAPIKey:      "OPENAI_API_KEY",
}

var (
	// ErrSecretNotFound is returned when a name has no vault entry and no
	// env fallback.
	ErrSecretNotFound = errors.New("secret not found")
	// ErrInvalidEncryptionKey is returned when the vault key is not
	// exactly 32 bytes (required for AES-256).
	ErrInvalidEncryptionKey = errors.New("invalid encryption key")
)

var tracer = wardenotel.Tracer("github.com/dativo-io/warden/internal/secrets")

// Vault stores encrypted credentials in SQLite.
type Vault struct {
	db  *sql.DB
	gcm cipher.AEAD
}

// Metadata is the public view of a stored credential. The value itself is
// never listed.
type Metadata struct {
	Name        string    `json:"name"`
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
}

// NewVault opens (or creates) the vault at dbPath. The encryptionKey must
// be exactly 32 raw bytes or 64 hex characters decoding to 32 bytes.
func NewVault(dbPath, encryptionKey string) (*Vault, error) {
	keyBytes, err := resolveEncryptionKey(encryptionKey)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening secrets database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS secrets (
		name TEXT PRIMARY KEY,
		encrypted_value TEXT NOT NULL,
		nonce TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		accessed_at TIMESTAMP,
		access_count INTEGER DEFAULT 0
	);
	`
	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &Vault{db: db, gcm: gcm}, nil
}

// resolveEncryptionKey interprets the key as 32 raw bytes or 64 hex
// characters decoding to 32 bytes.
func resolveEncryptionKey(key string) ([]byte, error) {
	if len(key) == 64 && isHex(key) {
		decoded, err := hex.DecodeString(key)
		if err != nil || len(decoded) != 32 {
			return nil, fmt.Errorf("encryption key hex must decode to 32 bytes: %w", ErrInvalidEncryptionKey)
		}
		return decoded, nil
	}
	if len(key) == 32 {
		return []byte(key), nil
	}
	return nil, fmt.Errorf("encryption key must be 32 bytes or 64 hex characters (got %d): %w", len(key), ErrInvalidEncryptionKey)
}

func isHex(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// Close releases the database connection.
func (v *Vault) Close() error {
	return v.db.Close()
}

// Set stores an encrypted credential, overwriting any existing entry.
func (v *Vault) Set(ctx context.Context, name, value string) error {
	ctx, span := tracer.Start(ctx, "secrets.set",
		trace.WithAttributes(attribute.String("secret.name", name)))
	defer span.End()

	nonce := make([]byte, v.gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		span.RecordError(err)
		return fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := v.gcm.Seal(nil, nonce, []byte(value), nil)

	query := `
		INSERT INTO secrets (name, encrypted_value, nonce, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			encrypted_value = excluded.encrypted_value,
			nonce = excluded.nonce
	`
	_, err := v.db.ExecContext(ctx, query, name,
		base64.StdEncoding.EncodeToString(ciphertext),
		base64.StdEncoding.EncodeToString(nonce),
		time.Now())
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("storing secret: %w", err)
	}
	return nil
}

// Get retrieves and decrypts a credential.
func (v *Vault) Get(ctx context.Context, name string) (string, error) {
	ctx, span := tracer.Start(ctx, "secrets.get",
		trace.WithAttributes(attribute.String("secret.name", name)))
	defer span.End()

	var encryptedValue, nonceB64 string
	query := `SELECT encrypted_value, nonce FROM secrets WHERE name = ?`
	err := v.db.QueryRowContext(ctx, query, name).Scan(&encryptedValue, &nonceB64)
	if err == sql.ErrNoRows {
		return "", ErrSecretNotFound
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("querying secret: %w", err)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedValue)
	if err != nil {
		return "", fmt.Errorf("decoding ciphertext: %w", err)
	}
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	if err != nil {
		return "", fmt.Errorf("decoding nonce: %w", err)
	}

	plaintext, err := v.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("decrypting secret: %w", err)
	}

	_, _ = v.db.ExecContext(ctx,
		`UPDATE secrets SET accessed_at = ?, access_count = access_count + 1 WHERE name = ?`,
		time.Now(), name)

	return string(plaintext), nil
}

// GetOrEnv retrieves a credential from the vault, falling back to the
// name's registered env var. Env fallback is for single-box quickstart;
// a warning is logged so production deployments notice.
func (v *Vault) GetOrEnv(ctx context.Context, name string) (string, error) {
	value, err := v.Get(ctx, name)
	if err == nil {
		return value, nil
	}
	if !errors.Is(err, ErrSecretNotFound) {
		return "", err
	}

	envVar, ok := EnvFallbacks[name]
	if !ok {
		return "", ErrSecretNotFound
	}
	if fallback := os.Getenv(envVar); fallback != "" {
		log.Warn().Str("secret", name).Str("env_var", envVar).
			Msg("secret_env_fallback_used")
		return fallback, nil
	}
	return "", fmt.Errorf("%s not in vault and %s unset: %w", name, envVar, ErrSecretNotFound)
}

// Delete removes a credential. Deleting a missing name is a no-op.
func (v *Vault) Delete(ctx context.Context, name string) error {
	_, err := v.db.ExecContext(ctx, `DELETE FROM secrets WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting secret: %w", err)
	}
	return nil
}

// List returns metadata for every stored credential, values excluded.
func (v *Vault) List(ctx context.Context) ([]Metadata, error) {
	ctx, span := tracer.Start(ctx, "secrets.list")
	defer span.End()

	rows, err := v.db.QueryContext(ctx,
		`SELECT name, created_at, accessed_at, access_count FROM secrets ORDER BY name`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("querying secrets: %w", err)
	}
	defer rows.Close()

	var results []Metadata
	for rows.Next() {
		var m Metadata
		var createdAt, accessedAt sql.NullTime
		if err := rows.Scan(&m.Name, &createdAt, &accessedAt, &m.AccessCount); err != nil {
			continue
		}
		m.CreatedAt = createdAt.Time
		m.AccessedAt = accessedAt.Time
		results = append(results, m)
	}
	return results, nil
}

// Rotate re-encrypts an existing credential with a fresh nonce.
func (v *Vault) Rotate(ctx context.Context, name string) error {
	value, err := v.Get(ctx, name)
	if err != nil {
		return err
	}
	return v.Set(ctx, name, value)
}

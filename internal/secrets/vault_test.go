package secrets

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0123456789abcdef0123456789abcdef" // 32 raw bytes

func newTestVault(t *testing.T) *Vault {
	t.Helper()
	v, err := NewVault(filepath.Join(t.TempDir(), "secrets.db"), testKey)
	require.NoError(t, err)
	t.Cleanup(func() { _ = v.Close() })
	return v
}

func TestSetGetRoundTrip(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, NameATSAPIKey, "ashby-key-123"))
	got, err := v.Get(ctx, NameATSAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "ashby-key-123", got)
}

func TestGetMissing(t *testing.T) {
	v := newTestVault(t)
	_, err := v.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestSetOverwrites(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, NameChatBotToken, "xoxb-old"))
	require.NoError(t, v.Set(ctx, NameChatBotToken, "xoxb-new"))

	got, err := v.Get(ctx, NameChatBotToken)
	require.NoError(t, err)
	assert.Equal(t, "xoxb-new", got)
}

func TestValueEncryptedAtRest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")
	v, err := NewVault(path, testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, NameATSAPIKey, "super-secret-plaintext"))
	require.NoError(t, v.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var stored string
	require.NoError(t, db.QueryRow(`SELECT encrypted_value FROM secrets WHERE name = ?`, NameATSAPIKey).Scan(&stored))
	assert.NotContains(t, stored, "super-secret-plaintext")
}

func TestWrongKeyCannotDecrypt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")
	ctx := context.Background()

	v1, err := NewVault(path, testKey)
	require.NoError(t, err)
	require.NoError(t, v1.Set(ctx, NameATSAPIKey, "value"))
	require.NoError(t, v1.Close())

	v2, err := NewVault(path, "ffffffffffffffffffffffffffffffff")
	require.NoError(t, err)
	defer v2.Close()

	_, err = v2.Get(ctx, NameATSAPIKey)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypting")
}

func TestHexKeyAccepted(t *testing.T) {
	hexKey := "00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff"
	v, err := NewVault(filepath.Join(t.TempDir(), "secrets.db"), hexKey)
	require.NoError(t, err)
	defer v.Close()

	ctx := context.Background()
	require.NoError(t, v.Set(ctx, "k", "v"))
	got, err := v.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestBadKeyLengthRejected(t *testing.T) {
	_, err := NewVault(filepath.Join(t.TempDir(), "secrets.db"), "short")
	assert.ErrorIs(t, err, ErrInvalidEncryptionKey)
}

func TestGetOrEnvFallback(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	t.Setenv("ASHBY_API_KEY", "from-env")
	got, err := v.GetOrEnv(ctx, NameATSAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-env", got)

	// Vault entry wins over env.
	require.NoError(t, v.Set(ctx, NameATSAPIKey, "from-vault"))
	got, err = v.GetOrEnv(ctx, NameATSAPIKey)
	require.NoError(t, err)
	assert.Equal(t, "from-vault", got)
}

func TestGetOrEnvMissingEverywhere(t *testing.T) {
	v := newTestVault(t)
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := v.GetOrEnv(context.Background(), NameAnthropicAPIKey)
	assert.ErrorIs(t, err, ErrSecretNotFound)
}

func TestDelete(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, "k", "v"))
	require.NoError(t, v.Delete(ctx, "k"))
	_, err := v.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrSecretNotFound)

	require.NoError(t, v.Delete(ctx, "never-existed"))
}

func TestListExcludesValues(t *testing.T) {
	v := newTestVault(t)
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, NameATSAPIKey, "a"))
	require.NoError(t, v.Set(ctx, NameChatBotToken, "b"))

	metas, err := v.List(ctx)
	require.NoError(t, err)
	require.Len(t, metas, 2)
	assert.Equal(t, NameATSAPIKey, metas[0].Name)
	assert.Equal(t, NameChatBotToken, metas[1].Name)
}

func TestRotateKeepsValue(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secrets.db")
	v, err := NewVault(path, testKey)
	require.NoError(t, err)
	defer v.Close()
	ctx := context.Background()

	require.NoError(t, v.Set(ctx, "k", "stable"))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var nonceBefore string
	require.NoError(t, db.QueryRow(`SELECT nonce FROM secrets WHERE name = 'k'`).Scan(&nonceBefore))

	require.NoError(t, v.Rotate(ctx, "k"))

	var nonceAfter string
	require.NoError(t, db.QueryRow(`SELECT nonce FROM secrets WHERE name = 'k'`).Scan(&nonceAfter))
	assert.NotEqual(t, nonceBefore, nonceAfter)

	got, err := v.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "stable", got)
}

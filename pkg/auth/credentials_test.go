package auth

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEncryptedStore(t *testing.T) *EncryptedFileStore {
	t.Helper()
	t.Setenv("INSTATRACK_PASSPHRASE", "test-passphrase")
	store, err := NewEncryptedFileStore(filepath.Join(t.TempDir(), "credentials.enc"))
	require.NoError(t, err)
	return store
}

func TestEncryptedStoreRoundTrip(t *testing.T) {
	store := newTestEncryptedStore(t)

	account := &Account{
		Username:  "viewer",
		SessionID: "session-value",
		CSRFToken: "csrf-value",
	}
	require.NoError(t, store.Store(account))

	got, err := store.Retrieve("viewer")
	require.NoError(t, err)
	assert.Equal(t, "session-value", got.SessionID)
	assert.Equal(t, "csrf-value", got.CSRFToken)
	assert.True(t, store.Exists("viewer"))
}

func TestEncryptedStoreFileIsOpaque(t *testing.T) {
	t.Setenv("INSTATRACK_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "credentials.enc")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(&Account{
		Username:  "viewer",
		SessionID: "super-secret-session",
		CSRFToken: "csrf",
	}))

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(content), "super-secret-session")
}

func TestEncryptedStoreDeleteLastAccountRemovesFile(t *testing.T) {
	store := newTestEncryptedStore(t)

	require.NoError(t, store.Store(&Account{Username: "viewer", SessionID: "s", CSRFToken: "c"}))
	require.NoError(t, store.Delete("viewer"))

	_, err := store.Retrieve("viewer")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedStoreRetrieveMissing(t *testing.T) {
	store := newTestEncryptedStore(t)

	_, err := store.Retrieve("nobody")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("INSTATRACK_SESSION_ID", "env-session")
	t.Setenv("INSTATRACK_CSRF_TOKEN", "env-csrf")

	store := NewEnvironmentStore()

	account, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", account.Username)
	assert.Equal(t, "env-session", account.SessionID)

	assert.ErrorIs(t, store.Store(&Account{}), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("default"), ErrStoreUnavailable)
}

func TestEnvironmentStoreMissingVariables(t *testing.T) {
	t.Setenv("INSTATRACK_SESSION_ID", "")
	t.Setenv("INSTATRACK_CSRF_TOKEN", "")

	store := NewEnvironmentStore()
	_, err := store.Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
	assert.False(t, store.Exists(""))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "********", MaskSecret("short"))
	assert.Equal(t, "abcd...wxyz", MaskSecret("abcdefghijklmnopqrstuvwxyz"))
}

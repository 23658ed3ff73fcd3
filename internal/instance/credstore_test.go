package instance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

type fakeBackupStore struct {
	blobs   map[domain.InstanceID][]byte
	saveErr error
	getErr  error
}

func newFakeBackupStore() *fakeBackupStore {
	return &fakeBackupStore{blobs: make(map[domain.InstanceID][]byte)}
}

func (f *fakeBackupStore) SaveSessionBackup(_ context.Context, id domain.InstanceID, data []byte, _ time.Time) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	f.blobs[id] = append([]byte(nil), data...)
	return nil
}

func (f *fakeBackupStore) GetSessionBackup(_ context.Context, id domain.InstanceID) ([]byte, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.blobs[id], nil
}

func writeCredentialFile(t *testing.T, store *CredStore, authPath string, data []byte) {
	t.Helper()
	dir := store.Dir(authPath)
	require.NoError(t, os.MkdirAll(dir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(dir, CredentialFile), data, 0o600))
}

func TestCredStore_CredentialsPresent(t *testing.T) {
	store := NewCredStore(t.TempDir(), newFakeBackupStore())

	assert.False(t, store.CredentialsPresent("user_1_100"))

	writeCredentialFile(t, store, "user_1_100", []byte("creds"))
	assert.True(t, store.CredentialsPresent("user_1_100"))
}

func TestCredStore_BackupAndRestore(t *testing.T) {
	backup := newFakeBackupStore()
	store := NewCredStore(t.TempDir(), backup)
	id := domain.InstanceID(7)
	authPath := "user_1_100"

	writeCredentialFile(t, store, authPath, []byte("session-bytes"))
	store.Backup(context.Background(), id, authPath)
	assert.Equal(t, []byte("session-bytes"), backup.blobs[id])

	// Wipe the local tier, then restore from the blob.
	require.NoError(t, store.Purge(authPath))
	assert.False(t, store.CredentialsPresent(authPath))

	restored, err := store.Restore(context.Background(), id, authPath)
	require.NoError(t, err)
	assert.True(t, restored)

	data, err := os.ReadFile(filepath.Join(store.Dir(authPath), CredentialFile))
	require.NoError(t, err)
	assert.Equal(t, []byte("session-bytes"), data)
}

func TestCredStore_RestoreNeverOverwritesLocal(t *testing.T) {
	backup := newFakeBackupStore()
	store := NewCredStore(t.TempDir(), backup)
	id := domain.InstanceID(7)
	authPath := "user_1_100"

	writeCredentialFile(t, store, authPath, []byte("local"))
	backup.blobs[id] = []byte("stale-backup")

	restored, err := store.Restore(context.Background(), id, authPath)
	require.NoError(t, err)
	assert.True(t, restored)

	data, err := os.ReadFile(filepath.Join(store.Dir(authPath), CredentialFile))
	require.NoError(t, err)
	assert.Equal(t, []byte("local"), data, "local artifact must win over the backup blob")
}

func TestCredStore_RestoreWithoutBackup(t *testing.T) {
	store := NewCredStore(t.TempDir(), newFakeBackupStore())

	restored, err := store.Restore(context.Background(), 7, "user_1_100")
	require.NoError(t, err)
	assert.False(t, restored)
	assert.False(t, store.CredentialsPresent("user_1_100"))
}

func TestCredStore_BackupFailureIsSilent(t *testing.T) {
	backup := newFakeBackupStore()
	backup.saveErr = assert.AnError
	store := NewCredStore(t.TempDir(), backup)
	authPath := "user_1_100"

	writeCredentialFile(t, store, authPath, []byte("creds"))

	// Must not panic or delete anything.
	store.Backup(context.Background(), 7, authPath)
	assert.True(t, store.CredentialsPresent(authPath))
}

func TestCredStore_Purge(t *testing.T) {
	store := NewCredStore(t.TempDir(), newFakeBackupStore())
	authPath := "user_1_100"

	writeCredentialFile(t, store, authPath, []byte("creds"))
	require.NoError(t, store.Purge(authPath))

	assert.False(t, store.CredentialsPresent(authPath))
	_, err := os.Stat(store.Dir(authPath))
	assert.True(t, os.IsNotExist(err))

	// Purging an absent directory is fine.
	require.NoError(t, store.Purge(authPath))
}

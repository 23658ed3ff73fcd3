// Package instance hosts the session supervisor: the credential store, the
// per-instance session handle, and the registry that owns every live handle
// in the process.
package instance

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zzjunior/whatsapp-checker-api/internal/domain"
)

// CredentialFile is the minimum artifact required for an instance to skip
// fresh pairing. Auxiliary sync-state files may sit next to it but only this
// file gates "does an auth exist".
const CredentialFile = "session.db"

// BackupStore is the recovery tier: a credential blob held per instance in
// durable storage.
type BackupStore interface {
	SaveSessionBackup(ctx context.Context, id domain.InstanceID, data []byte, at time.Time) error
	GetSessionBackup(ctx context.Context, id domain.InstanceID) ([]byte, error)
}

// CredStore manages one instance's credential state across two tiers: a
// local directory per locator (fast, authoritative when present) and a
// database blob (disaster recovery).
type CredStore struct {
	root   string
	backup BackupStore
}

// NewCredStore creates a credential store rooted at the given directory.
func NewCredStore(root string, backup BackupStore) *CredStore {
	return &CredStore{root: root, backup: backup}
}

// Dir returns the local credential directory for a locator.
func (s *CredStore) Dir(authPath string) string {
	return filepath.Join(s.root, authPath)
}

// CredentialsPresent reports whether the local tier holds the minimum
// credential artifact for the locator.
func (s *CredStore) CredentialsPresent(authPath string) bool {
	info, err := os.Stat(filepath.Join(s.Dir(authPath), CredentialFile))
	return err == nil && !info.IsDir()
}

// Backup copies the local credential artifact into the recovery tier.
// Best-effort: failures are logged, never fatal, and must not fail the
// connect that triggered the backup.
func (s *CredStore) Backup(ctx context.Context, id domain.InstanceID, authPath string) {
	data, err := os.ReadFile(filepath.Join(s.Dir(authPath), CredentialFile))
	if err != nil {
		log.Warn().
			Err(err).
			Str("instance_id", id.String()).
			Msg("Session backup skipped, credential file unreadable")
		return
	}

	if err := s.backup.SaveSessionBackup(ctx, id, data, time.Now()); err != nil {
		log.Warn().
			Err(err).
			Str("instance_id", id.String()).
			Msg("Session backup failed")
		return
	}

	log.Info().
		Str("instance_id", id.String()).
		Int("bytes", len(data)).
		Msg("Session backed up to database")
}

// Restore materializes the local artifact from the recovery tier. It is a
// no-op returning true when the local artifact already exists: the local
// tier is authoritative and is never overwritten. Returns false when no
// backup blob is available.
func (s *CredStore) Restore(ctx context.Context, id domain.InstanceID, authPath string) (bool, error) {
	if s.CredentialsPresent(authPath) {
		return true, nil
	}

	data, err := s.backup.GetSessionBackup(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to read session backup: %w", err)
	}
	if len(data) == 0 {
		return false, nil
	}

	dir := s.Dir(authPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return false, fmt.Errorf("failed to create credential directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, CredentialFile), data, 0o600); err != nil {
		return false, fmt.Errorf("failed to write credential file: %w", err)
	}

	log.Info().
		Str("instance_id", id.String()).
		Str("auth_path", authPath).
		Msg("Session restored from database backup")
	return true, nil
}

// Purge deletes the local credential directory entirely. Used on instance
// deletion and on invalid-credential recovery.
func (s *CredStore) Purge(authPath string) error {
	dir := s.Dir(authPath)
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("failed to purge credential directory: %w", err)
	}

	log.Info().Str("auth_path", authPath).Msg("Credential directory purged")
	return nil
}

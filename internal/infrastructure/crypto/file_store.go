package crypto

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/veridia/tokencore/internal/domain/models"
	apperrors "github.com/veridia/tokencore/pkg/errors"
	"github.com/veridia/tokencore/pkg/logger"
)

const (
	privateKeyExt = ".pem"
	publicKeyExt  = ".pub"
	metadataExt   = ".json"

	privateKeyPerm = 0o600
	metadataPerm   = 0o644
	keyDirPerm     = 0o700
)

// keyMetadata is the on-disk metadata record kept next to the key material.
// The Active flag and the deactivation deadline live here; the PEM files are
// immutable after creation.
type keyMetadata struct {
	KID          string    `json:"kid"`
	Algorithm    string    `json:"algorithm"`
	CreatedAt    time.Time `json:"created_at"`
	Active       bool      `json:"active"`
	DeactivateAt time.Time `json:"deactivate_at,omitzero"`
}

// FileKeyStore persists signing keys as three files per key in a single
// directory: <kid>.pem (private, owner-only), <kid>.pub (public) and
// <kid>.json (metadata). Writes go through a temp file plus rename so a
// crash never leaves a half-written key behind.
type FileKeyStore struct {
	dir string
	log logger.Logger
}

// NewFileKeyStore creates the directory if needed and returns the store.
func NewFileKeyStore(dir string, log logger.Logger) (*FileKeyStore, error) {
	if err := os.MkdirAll(dir, keyDirPerm); err != nil {
		return nil, apperrors.ErrKeyStoreUnavailable(err)
	}
	return &FileKeyStore{dir: dir, log: log.WithComponent("file_key_store")}, nil
}

// Save writes the key material and metadata. Re-saving an existing KID only
// rewrites the metadata record.
func (s *FileKeyStore) Save(ctx context.Context, key *models.SigningKey) error {
	privatePath := filepath.Join(s.dir, key.KID+privateKeyExt)
	if _, err := os.Stat(privatePath); os.IsNotExist(err) {
		if err := writeFileAtomic(privatePath, key.PrivatePEM, privateKeyPerm); err != nil {
			return apperrors.ErrKeyStoreUnavailable(err)
		}
		if err := writeFileAtomic(filepath.Join(s.dir, key.KID+publicKeyExt), key.PublicPEM, metadataPerm); err != nil {
			return apperrors.ErrKeyStoreUnavailable(err)
		}
	}

	meta := keyMetadata{
		KID:          key.KID,
		Algorithm:    key.Algorithm,
		CreatedAt:    key.CreatedAt,
		Active:       key.Active,
		DeactivateAt: key.DeactivateAt,
	}
	raw, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}
	if err := writeFileAtomic(filepath.Join(s.dir, key.KID+metadataExt), raw, metadataPerm); err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}

	s.log.Debug(ctx, "signing key saved", logger.String("kid", key.KID))
	return nil
}

// LoadAll reads every metadata record in the directory and pairs it with its
// key material. A key with missing or unparsable material fails the load:
// silently skipping it could orphan live tokens signed under it.
func (s *FileKeyStore) LoadAll(ctx context.Context) ([]*models.SigningKey, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, apperrors.ErrKeyStoreUnavailable(err)
	}

	var keys []*models.SigningKey
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, metadataExt) {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(s.dir, name))
		if err != nil {
			return nil, apperrors.ErrKeyStoreUnavailable(err)
		}
		var meta keyMetadata
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, apperrors.ErrKeyStoreUnavailable(fmt.Errorf("metadata %s: %w", name, err))
		}

		privatePEM, err := os.ReadFile(filepath.Join(s.dir, meta.KID+privateKeyExt))
		if err != nil {
			return nil, apperrors.ErrKeyStoreUnavailable(fmt.Errorf("key %s: %w", meta.KID, err))
		}
		publicPEM, err := os.ReadFile(filepath.Join(s.dir, meta.KID+publicKeyExt))
		if err != nil {
			return nil, apperrors.ErrKeyStoreUnavailable(fmt.Errorf("key %s: %w", meta.KID, err))
		}

		key := &models.SigningKey{
			KID:          meta.KID,
			Algorithm:    meta.Algorithm,
			PrivatePEM:   privatePEM,
			PublicPEM:    publicPEM,
			CreatedAt:    meta.CreatedAt,
			Active:       meta.Active,
			DeactivateAt: meta.DeactivateAt,
		}
		if err := parseKeyMaterial(key); err != nil {
			return nil, apperrors.ErrKeyStoreUnavailable(err)
		}
		keys = append(keys, key)
	}

	s.log.Debug(ctx, "signing keys loaded", logger.Int("count", len(keys)))
	return keys, nil
}

// MarkInactive rewrites the metadata record with Active off.
func (s *FileKeyStore) MarkInactive(ctx context.Context, kid string) error {
	path := filepath.Join(s.dir, kid+metadataExt)
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return apperrors.ErrNotFound("signing key %q not found", kid)
	}
	if err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}

	var meta keyMetadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}
	if !meta.Active {
		return nil
	}
	meta.Active = false

	updated, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}
	if err := writeFileAtomic(path, updated, metadataPerm); err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}

	s.log.Info(ctx, "signing key marked inactive", logger.String("kid", kid))
	return nil
}

// Delete removes all three files of a key. Used by retention purging.
func (s *FileKeyStore) Delete(ctx context.Context, kid string) error {
	for _, ext := range []string{metadataExt, privateKeyExt, publicKeyExt} {
		if err := os.Remove(filepath.Join(s.dir, kid+ext)); err != nil && !os.IsNotExist(err) {
			return apperrors.ErrKeyStoreUnavailable(err)
		}
	}
	s.log.Info(ctx, "signing key purged from disk", logger.String("kid", kid))
	return nil
}

// Watch invokes onChange whenever metadata in the key directory changes,
// until the context is cancelled. It lets a replica pick up rotations done
// by a sibling sharing the same directory. Events are debounced: a rotation
// touches several files in quick succession.
func (s *FileKeyStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return apperrors.ErrKeyStoreUnavailable(err)
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return apperrors.ErrKeyStoreUnavailable(err)
	}

	go func() {
		defer watcher.Close()

		const debounce = 500 * time.Millisecond
		var timer *time.Timer
		for {
			select {
			case <-ctx.Done():
				if timer != nil {
					timer.Stop()
				}
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, metadataExt) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(debounce, onChange)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn(ctx, "key directory watch error", logger.Err(err))
			}
		}
	}()
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, perm); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

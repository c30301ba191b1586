// Package collection keeps one directory per collection under a root
// directory. Collections are staged in a hidden directory and renamed into
// place, so a listed collection is always complete.
package collection

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"doccatalog/internal/domain"
	"doccatalog/internal/port"
)

const stagingPrefix = ".staging-"

// LocalStore implements port.CollectionStore on the local filesystem.
type LocalStore struct {
	root    string
	backend port.IndexBackend
}

var _ port.CollectionStore = (*LocalStore)(nil)

// NewLocalStore creates a store rooted at dir, creating it if needed.
func NewLocalStore(dir string, backend port.IndexBackend) (*LocalStore, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("%w: failed to create collection root: %v", domain.ErrStorage, err)
	}
	return &LocalStore{root: abs, backend: backend}, nil
}

func (s *LocalStore) Root() string { return s.root }

func (s *LocalStore) Path(collectionID string) string {
	return filepath.Join(s.root, collectionID)
}

// Persist stages the index in a fresh hidden directory and renames it to
// the collection path. A stale directory already at that path (an orphan
// left by an earlier crash) is replaced.
func (s *LocalStore) Persist(collectionID string, h port.IndexHandle) (string, error) {
	if err := validID(collectionID); err != nil {
		return "", err
	}

	staging := filepath.Join(s.root, stagingPrefix+uuid.NewString())
	if err := s.backend.Persist(h, staging); err != nil {
		os.RemoveAll(staging)
		if isPathError(err) {
			return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		return "", fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	if err := syncDir(staging); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}

	target := s.Path(collectionID)
	if err := os.RemoveAll(target); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("%w: failed to clear stale collection: %v", domain.ErrStorage, err)
	}
	if err := os.Rename(staging, target); err != nil {
		os.RemoveAll(staging)
		return "", fmt.Errorf("%w: failed to move collection into place: %v", domain.ErrStorage, err)
	}
	if err := syncDir(s.root); err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return target, nil
}

func (s *LocalStore) Load(collectionID string) (port.IndexHandle, error) {
	if err := validID(collectionID); err != nil {
		return nil, err
	}
	h, err := s.backend.Load(s.Path(collectionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: collection %s", domain.ErrNotFound, collectionID)
		}
		if isPathError(err) {
			return nil, fmt.Errorf("%w: %v", domain.ErrStorage, err)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrBackend, err)
	}
	return h, nil
}

func (s *LocalStore) Remove(collectionID string) error {
	if err := validID(collectionID); err != nil {
		return err
	}
	if err := os.RemoveAll(s.Path(collectionID)); err != nil {
		return fmt.Errorf("%w: failed to remove collection: %v", domain.ErrStorage, err)
	}
	return nil
}

// ListPresent returns the collection directories under the root. Staging
// directories and plain files (such as the catalog file) are skipped.
func (s *LocalStore) ListPresent() (map[string]struct{}, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to list collections: %v", domain.ErrStorage, err)
	}
	present := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		present[e.Name()] = struct{}{}
	}
	return present, nil
}

// SweepStaging removes staging directories older than olderThan, which are
// leftovers of persists interrupted by a crash. It returns how many were
// removed.
func (s *LocalStore) SweepStaging(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to list collections: %v", domain.ErrStorage, err)
	}
	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), stagingPrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if len(errs) > 0 {
		return removed, fmt.Errorf("%w: %v", domain.ErrStorage, errors.Join(errs...))
	}
	return removed, nil
}

// validID rejects ids that would escape the root or collide with staging
// directories.
func validID(id string) error {
	if id == "" || id == "." || id == ".." || strings.HasPrefix(id, ".") ||
		strings.ContainsAny(id, `/\`) || filepath.Base(id) != id {
		return fmt.Errorf("%w: invalid collection id %q", domain.ErrStorage, id)
	}
	return nil
}

func isPathError(err error) bool {
	var pe *fs.PathError
	var le *os.LinkError
	return errors.As(err, &pe) || errors.As(err, &le)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("failed to sync %s: %w", dir, err)
	}
	return nil
}

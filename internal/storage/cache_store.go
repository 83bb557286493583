package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resonance/api/internal/model"
)

// IDLength is the length of every opaque identifier
const IDLength = 32

// exportPrefixLen is how much of an export id names its file. Ids that
// share the prefix map to the same path; the owner sidecar tells them apart.
const exportPrefixLen = 12

const ownerExt = ".id"

const claimMarker = ".claim-"

var idPattern = regexp.MustCompile(`^[0-9a-f]{32}$`)

// CacheStore maps opaque identifiers to transient media files.
// It relies on identifier uniqueness instead of locking.
type CacheStore struct {
	uploadDir string
	exportDir string
}

// NewCacheStore creates the backing directories if needed
func NewCacheStore(uploadDir, exportDir string) (*CacheStore, error) {
	for _, dir := range []string{uploadDir, exportDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
		}
	}
	return &CacheStore{uploadDir: uploadDir, exportDir: exportDir}, nil
}

// NewID returns a fresh 32-char lowercase hex identifier
func NewID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// IsValidID reports whether id has the fixed identifier form
func IsValidID(id string) bool {
	return idPattern.MatchString(id)
}

// ValidateID rejects anything that is not a system-issued identifier
func ValidateID(id string) error {
	if !IsValidID(id) {
		return model.NewValidationError("id", "invalid identifier")
	}
	return nil
}

// Path resolves the file path of an asset. The id is validated first.
func (s *CacheStore) Path(kind model.AssetKind, id string) (string, error) {
	if err := ValidateID(id); err != nil {
		return "", err
	}
	switch kind {
	case model.AssetKindVideo:
		return filepath.Join(s.uploadDir, "video_"+id+".mp4"), nil
	case model.AssetKindInstrumental:
		return filepath.Join(s.uploadDir, "instr_"+id+".mp3"), nil
	case model.AssetKindExport:
		return filepath.Join(s.exportDir, "export_"+id[:exportPrefixLen]+".mp4"), nil
	}
	return "", fmt.Errorf("unknown asset kind %q", kind)
}

// ownerPath is the sidecar holding the full id of an export. Other kinds
// carry the whole id in their file name and have none.
func (s *CacheStore) ownerPath(kind model.AssetKind, path string) string {
	if kind != model.AssetKindExport {
		return ""
	}
	return strings.TrimSuffix(path, filepath.Ext(path)) + ownerExt
}

// Seal records id as the owner of its export path. Lookups with any other
// id sharing the file name prefix report not found.
func (s *CacheStore) Seal(kind model.AssetKind, id string) error {
	path, err := s.Path(kind, id)
	if err != nil {
		return err
	}
	owner := s.ownerPath(kind, path)
	if owner == "" {
		return nil
	}
	if err := os.WriteFile(owner, []byte(id), 0o644); err != nil {
		return fmt.Errorf("failed to seal %s %s: %w", kind, id, err)
	}
	return nil
}

func (s *CacheStore) owns(kind model.AssetKind, id, path string) (bool, error) {
	owner := s.ownerPath(kind, path)
	if owner == "" {
		return true, nil
	}
	data, err := os.ReadFile(owner)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return strings.TrimSpace(string(data)) == id, nil
}

// Exists reports whether the asset file is currently present
func (s *CacheStore) Exists(kind model.AssetKind, id string) (bool, error) {
	path, err := s.Path(kind, id)
	if err != nil {
		return false, err
	}
	if ok, err := s.owns(kind, id, path); err != nil || !ok {
		return false, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.Mode().IsRegular(), nil
}

// Delete removes the asset. It reports whether a file was removed.
func (s *CacheStore) Delete(kind model.AssetKind, id string) (bool, error) {
	path, err := s.Path(kind, id)
	if err != nil {
		return false, err
	}
	if ok, err := s.owns(kind, id, path); err != nil || !ok {
		return false, err
	}
	removed := true
	if err := os.Remove(path); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("failed to delete %s %s: %w", kind, id, err)
		}
		removed = false
	}
	if owner := s.ownerPath(kind, path); owner != "" {
		if err := os.Remove(owner); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[cache] failed to remove %s: %v", owner, err)
		}
	}
	return removed, nil
}

// Create allocates a fresh identifier and opens its file for writing
func (s *CacheStore) Create(kind model.AssetKind) (string, *os.File, error) {
	id := NewID()
	path, err := s.Path(kind, id)
	if err != nil {
		return "", nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", nil, fmt.Errorf("failed to create %s file: %w", kind, err)
	}
	if err := s.Seal(kind, id); err != nil {
		f.Close()
		os.Remove(path)
		return "", nil, err
	}
	return id, f, nil
}

// Open re-checks existence and opens the asset for reading
func (s *CacheStore) Open(kind model.AssetKind, id string) (*os.File, fs.FileInfo, error) {
	path, err := s.Path(kind, id)
	if err != nil {
		return nil, nil, err
	}
	if ok, err := s.owns(kind, id, path); err != nil {
		return nil, nil, err
	} else if !ok {
		return nil, nil, model.NewNotFoundError("%s not found", kind)
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil, model.NewNotFoundError("%s not found", kind)
		}
		return nil, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, nil, err
	}
	return f, info, nil
}

// RemovePartials deletes every file sharing the asset's stem, whatever
// the extension. Used after a failed tool run.
func (s *CacheStore) RemovePartials(kind model.AssetKind, id string) {
	path, err := s.Path(kind, id)
	if err != nil {
		return
	}
	stem := strings.TrimSuffix(path, filepath.Ext(path))
	matches, _ := filepath.Glob(stem + ".*")
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !errors.Is(err, fs.ErrNotExist) {
			log.Printf("[cache] failed to remove partial %s: %v", m, err)
		}
	}
}

// Claim takes exclusive ownership of an asset by renaming it out of its
// public path. A second claim on the same id reports not found.
func (s *CacheStore) Claim(kind model.AssetKind, id string) (*Claim, error) {
	path, err := s.Path(kind, id)
	if err != nil {
		return nil, err
	}
	if ok, err := s.owns(kind, id, path); err != nil {
		return nil, err
	} else if !ok {
		return nil, model.NewNotFoundError("%s not found", kind)
	}
	claimed := path + claimMarker + NewID()[:8]
	if err := os.Rename(path, claimed); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, model.NewNotFoundError("%s not found", kind)
		}
		return nil, fmt.Errorf("failed to claim %s %s: %w", kind, id, err)
	}
	return &Claim{Kind: kind, ID: id, original: path, path: claimed, owner: s.ownerPath(kind, path)}, nil
}

// Sweep deletes cache files, including abandoned claims, last modified
// before now minus maxAge.
func (s *CacheStore) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	cutoff := now.Add(-maxAge)
	removed := 0
	for _, dir := range []string{s.uploadDir, s.exportDir} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("failed to read %s: %w", dir, err)
		}
		for _, entry := range entries {
			if entry.IsDir() || !isCacheFile(entry.Name()) {
				continue
			}
			info, err := entry.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Printf("[cache] sweep failed to remove %s: %v", entry.Name(), err)
				continue
			}
			removed++
		}
	}
	return removed, nil
}

func isCacheFile(name string) bool {
	for _, prefix := range []string{"video_", "instr_", "export_"} {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

// Claim is an asset held out of the store while it is transferred
type Claim struct {
	Kind     model.AssetKind
	ID       string
	original string
	path     string
	owner    string
}

// Path is the claimed file's current location
func (c *Claim) Path() string {
	return c.path
}

// Release deletes the claimed file for good
func (c *Claim) Release() error {
	if err := os.Remove(c.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to release %s %s: %w", c.Kind, c.ID, err)
	}
	if c.owner != "" {
		if err := os.Remove(c.owner); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to release %s %s: %w", c.Kind, c.ID, err)
		}
	}
	return nil
}

// Restore puts the file back under its public path for a later retry
func (c *Claim) Restore() error {
	if err := os.Rename(c.path, c.original); err != nil {
		return fmt.Errorf("failed to restore %s %s: %w", c.Kind, c.ID, err)
	}
	return nil
}

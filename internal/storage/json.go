package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/shhac/httpspy/internal/errors"
)

const (
	recordExt      = ".json"
	filePermission = 0644
	dirPermission  = 0755
)

// Collection implements Repository with one JSON file per record under
// <root>/<name>/. Writes replace files atomically, so a reader in another
// process sees either the previous or the next complete version of a record.
type Collection[T any] struct {
	root   string
	name   string
	logger *slog.Logger
}

// NewCollection creates a file-backed collection. No I/O happens until the
// first operation.
func NewCollection[T any](root, name string, logger *slog.Logger) *Collection[T] {
	return &Collection[T]{
		root:   root,
		name:   name,
		logger: logger.With(slog.String("collection", name)),
	}
}

// Name returns the collection name.
func (c *Collection[T]) Name() string {
	return c.name
}

// Dir returns the collection directory.
func (c *Collection[T]) Dir() string {
	return filepath.Join(c.root, c.name)
}

// Initialize creates the collection directory. Failure is logged and
// returned; readers treat a missing directory as an empty collection.
func (c *Collection[T]) Initialize() error {
	if err := c.ensureDir(); err != nil {
		c.logger.Warn("failed to initialize collection",
			slog.String("path", c.Dir()),
			slog.Any("error", err))
		return err
	}
	c.logger.Debug("initialized collection", slog.String("path", c.Dir()))
	return nil
}

// Store serializes record and atomically writes it as key's file.
func (c *Collection[T]) Store(key string, record T) error {
	path, err := c.recordPath(key)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return c.fail(apperrors.EncodingError, key, fmt.Errorf("marshal record: %w", err))
	}

	if err := c.ensureDir(); err != nil {
		return err
	}
	if err := atomicWriteFile(path, data, filePermission); err != nil {
		return c.fail(apperrors.UnavailableCollectionRoot, key, err)
	}

	c.logger.Debug("stored record", slog.String("key", key))
	return nil
}

// Retrieve reads and decodes key's record.
func (c *Collection[T]) Retrieve(key string) (T, bool, error) {
	var zero T
	path, err := c.recordPath(key)
	if err != nil {
		return zero, false, err
	}

	record, _, err := c.readRecord(key, path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return zero, false, nil
		}
		return zero, false, err
	}
	return record, true, nil
}

// Remove deletes key's file. Removing an absent key is not an error.
func (c *Collection[T]) Remove(key string) error {
	path, err := c.recordPath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete record file: %w", err)
	}

	c.logger.Debug("removed record", slog.String("key", key))
	return nil
}

// ListKeys returns the keys of all stored records.
func (c *Collection[T]) ListKeys() ([]string, error) {
	entries, err := os.ReadDir(c.Dir())
	if err != nil {
		// If directory doesn't exist, return empty list (not an error)
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, c.fail(apperrors.UnavailableCollectionRoot, "", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") || filepath.Ext(name) != recordExt {
			continue
		}
		keys = append(keys, strings.TrimSuffix(name, recordExt))
	}
	return keys, nil
}

// LoadAll decodes every record. Corrupt files are skipped.
func (c *Collection[T]) LoadAll() ([]T, error) {
	entries, err := c.loadEntries(false)
	if err != nil {
		return nil, err
	}
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.record
	}
	return out, nil
}

// LoadSorted decodes every record and orders it per q.
func (c *Collection[T]) LoadSorted(q Query) ([]T, error) {
	entries, err := c.loadEntries(q.Strict)
	if err != nil {
		return nil, err
	}
	return applyQuery(entries, q), nil
}

// Clear removes every record file. Failures on individual files are logged
// and skipped.
func (c *Collection[T]) Clear() error {
	keys, err := c.ListKeys()
	if err != nil {
		c.logger.Warn("failed to list collection for clear", slog.Any("error", err))
		return err
	}

	removed := 0
	for _, key := range keys {
		if err := os.Remove(filepath.Join(c.Dir(), key+recordExt)); err != nil && !os.IsNotExist(err) {
			c.logger.Warn("failed to remove record",
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}
		removed++
	}

	c.logger.Debug("cleared collection", slog.Int("removed", removed))
	return nil
}

func (c *Collection[T]) loadEntries(strict bool) ([]entry[T], error) {
	keys, err := c.ListKeys()
	if err != nil {
		return nil, err
	}

	entries := make([]entry[T], 0, len(keys))
	for _, key := range keys {
		record, info, err := c.readRecord(key, filepath.Join(c.Dir(), key+recordExt))
		if err != nil {
			// Removed between listing and reading
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			if strict {
				return nil, err
			}
			c.logger.Debug("skipping unreadable record",
				slog.String("key", key),
				slog.Any("error", err))
			continue
		}
		entries = append(entries, stampEntry(key, record, info.ModTime()))
	}
	return entries, nil
}

func (c *Collection[T]) readRecord(key, path string) (T, os.FileInfo, error) {
	var record T

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return record, nil, err
		}
		return record, nil, c.fail(apperrors.UnavailableCollectionRoot, key, err)
	}
	defer f.Close()

	// Stat the open file so the timestamp belongs to the version being decoded.
	info, err := f.Stat()
	if err != nil {
		return record, nil, c.fail(apperrors.UnavailableCollectionRoot, key, err)
	}

	if err := json.NewDecoder(f).Decode(&record); err != nil {
		return record, nil, c.fail(apperrors.DecodingError, key, fmt.Errorf("unmarshal record: %w", err))
	}
	return record, info, nil
}

func (c *Collection[T]) fail(kind apperrors.StorageKind, key string, err error) error {
	return &apperrors.StorageError{Kind: kind, Collection: c.name, Key: key, Err: err}
}

func (c *Collection[T]) ensureDir() error {
	if err := os.MkdirAll(c.Dir(), dirPermission); err != nil {
		return c.fail(apperrors.UnavailableCollectionRoot, "", fmt.Errorf("create collection directory: %w", err))
	}
	return nil
}

// recordPath validates key and returns its file path.
func (c *Collection[T]) recordPath(key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	path := filepath.Join(c.Dir(), key+recordExt)
	if err := verifyPathInDir(c.Dir(), path); err != nil {
		return "", err
	}
	return path, nil
}

// atomicWriteFile writes data to a file atomically by writing to a temp file
// in the same directory, syncing, then renaming over the target path.
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := f.Name()

	// Clean up temp file on any failure
	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return nil
}

// validateKey checks that a record key is safe for use as a filename.
func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: must not be empty", apperrors.ErrInvalidKey)
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("%w: must not contain %q", apperrors.ErrInvalidKey, "..")
	}
	if strings.ContainsAny(key, "/\\") {
		return fmt.Errorf("%w: must not contain path separators", apperrors.ErrInvalidKey)
	}
	if strings.ContainsRune(key, 0) {
		return fmt.Errorf("%w: must not contain null bytes", apperrors.ErrInvalidKey)
	}
	if strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: must not start with a dot", apperrors.ErrInvalidKey)
	}
	return nil
}

// verifyPathInDir checks that the resolved path is within dir.
// This is a defense-in-depth check complementing validateKey.
func verifyPathInDir(dir, path string) error {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return fmt.Errorf("%w: path outside collection directory: %v", apperrors.ErrInvalidKey, err)
	}
	if strings.HasPrefix(rel, "..") {
		return fmt.Errorf("%w: path %q escapes collection directory", apperrors.ErrInvalidKey, path)
	}
	return nil
}

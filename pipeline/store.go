package pipeline

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store persists record batches as versioned JSON documents under
// <baseDir>/<entityType>/<key>.json. A write never loses the previous
// version: the prior file is renamed to a backup before the new content is
// committed, and the new content lands via temp file + atomic rename so an
// interrupted process cannot leave a half-written active file.
type Store struct {
	baseDir string
	now     func() time.Time
}

// NewStore builds a store rooted at baseDir.
func NewStore(baseDir string) *Store {
	return &Store{
		baseDir: baseDir,
		now:     time.Now,
	}
}

// Store writes records for one entity under the given key.
func (s *Store) Store(entityType, key string, records any) error {
	dir := filepath.Join(s.baseDir, entityType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %q: %w", dir, err)
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s records: %w", entityType, err)
	}

	path := filepath.Join(dir, key+".json")
	if _, err := os.Stat(path); err == nil {
		backup, err := s.backupPath(path)
		if err != nil {
			return err
		}
		if err := os.Rename(path, backup); err != nil {
			return fmt.Errorf("back up %q: %w", path, err)
		}
		slog.Debug("backed up previous version", slog.String("path", backup))
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat %q: %w", path, err)
	}

	tmp, err := os.CreateTemp(dir, key+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit %q: %w", path, err)
	}

	slog.Debug("stored records",
		slog.String("entity", entityType),
		slog.String("path", path),
		slog.Int("bytes", len(data)),
	)
	return nil
}

// Load reads a previously stored document into out.
func (s *Store) Load(entityType, key string, out any) error {
	path := filepath.Join(s.baseDir, entityType, key+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %q: %w", path, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %q: %w", path, err)
	}
	return nil
}

// backupPath picks a free backup name. Timestamp granularity is one second;
// on collision a counter suffix keeps older backups intact.
func (s *Store) backupPath(path string) (string, error) {
	stamp := s.now().Format("20060102T150405")
	candidate := fmt.Sprintf("%s.bak-%s", path, stamp)
	for n := 1; ; n++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("stat backup %q: %w", candidate, err)
		}
		candidate = fmt.Sprintf("%s.bak-%s.%d", path, stamp, n)
	}
}

// CleanupBackups deletes backups older than the retention period across all
// entity directories. Returns the number of files removed.
func (s *Store) CleanupBackups(retention time.Duration) (int, error) {
	if retention <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-retention)
	removed := 0

	entries, err := os.ReadDir(s.baseDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read data directory: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(s.baseDir, entry.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return removed, fmt.Errorf("read %q: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() || !strings.Contains(f.Name(), ".json.bak-") {
				continue
			}
			info, err := f.Info()
			if err != nil {
				continue
			}
			if info.ModTime().Before(cutoff) {
				path := filepath.Join(dir, f.Name())
				if err := os.Remove(path); err != nil {
					return removed, fmt.Errorf("remove %q: %w", path, err)
				}
				removed++
			}
		}
	}
	if removed > 0 {
		slog.Info("cleaned up old backups", slog.Int("removed", removed))
	}
	return removed, nil
}

package chunkstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const manifestName = "manifest.json"

// manifestEntry records the expected digest and size of one unit file.
type manifestEntry struct {
	SHA256 string `json:"sha256"`
	Size   int64  `json:"size"`
}

// Tracker maintains a manifest of stored files so drift between the
// manifest and disk content can be detected. All operations are
// best effort from the store's point of view.
type Tracker struct {
	mu sync.Mutex
}

// NewTracker creates a manifest tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Record updates the manifest entry for one file under dir.
func (t *Tracker) Record(dir, name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.load(dir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, name)
	digest, size, err := hashFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			delete(entries, name)
			return t.save(dir, entries)
		}
		return err
	}

	entries[name] = manifestEntry{SHA256: digest, Size: size}
	return t.save(dir, entries)
}

// Verify compares the manifest against disk and returns the names of
// files that are missing, modified, or untracked.
func (t *Tracker) Verify(ctx context.Context, dir string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entries, err := t.load(dir)
	if err != nil {
		return nil, err
	}

	var drifted []string
	for name, want := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		digest, size, err := hashFile(filepath.Join(dir, name))
		if err != nil || digest != want.SHA256 || size != want.Size {
			drifted = append(drifted, name)
		}
	}

	paths, err := filepath.Glob(filepath.Join(dir, "*"+fileExt))
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", dir, err)
	}
	for _, p := range paths {
		name := filepath.Base(p)
		if _, ok := entries[name]; !ok {
			drifted = append(drifted, name)
		}
	}

	sort.Strings(drifted)
	return drifted, nil
}

func (t *Tracker) load(dir string) (map[string]manifestEntry, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]manifestEntry{}, nil
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	entries := map[string]manifestEntry{}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return entries, nil
}

func (t *Tracker) save(dir string, entries map[string]manifestEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	path := filepath.Join(dir, manifestName)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

func hashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	h := sha256.New()
	size, err := io.Copy(h, f)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), size, nil
}

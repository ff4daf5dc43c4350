package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/klauspost/compress/zstd"

	"github.com/skillissue/mockview/internal/models"
)

const entryExt = ".json.zst"

// Cache stores synthesized context profiles on disk, keyed by the hash of
// the synthesis inputs.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a new cache instance with the specified directory
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// CacheKey generates a unique cache key for a synthesis run.
// The key is based on:
// - the profile fingerprint (documents, domain parameters, synthesis options)
// - the extra vocabulary aliases in force
func CacheKey(fingerprint string, aliases map[string]string) (string, error) {
	h := sha256.New()

	if err := writeString(h, fingerprint); err != nil {
		return "", err
	}

	// Sort aliases for deterministic hashing
	surfaces := make([]string, 0, len(aliases))
	for s := range aliases {
		surfaces = append(surfaces, s)
	}
	sort.Strings(surfaces)
	if err := writeInt(h, len(surfaces)); err != nil {
		return "", err
	}
	for _, s := range surfaces {
		if err := writeString(h, s); err != nil {
			return "", err
		}
		if err := writeString(h, aliases[s]); err != nil {
			return "", err
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// Get retrieves a cached profile if it exists
func (c *Cache) Get(key string) (*models.ContextProfile, bool) {
	if c.dir == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.Open(c.cachePath(key))
	if err != nil {
		// Cache miss
		return nil, false
	}
	defer f.Close() //nolint:errcheck

	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, false
	}
	defer dec.Close()

	var snap models.ProfileSnapshot
	if err := json.NewDecoder(dec).Decode(&snap); err != nil {
		// Invalid cache entry, treat as miss
		return nil, false
	}

	return snap.Restore(), true
}

// Put stores a profile in the cache
func (c *Cache) Put(key string, profile *models.ContextProfile) error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Ensure cache directory exists
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}

	data, err := json.Marshal(profile.Snapshot())
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("creating encoder: %w", err)
	}
	defer enc.Close() //nolint:errcheck

	path := c.cachePath(key)
	if err := os.WriteFile(path, enc.EncodeAll(data, nil), 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}

	return nil
}

// Clear removes all cached profiles
func (c *Cache) Clear() error {
	if c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if directory exists
	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}

	// Safety check: verify this is a mockview cache directory before removing
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}

	// If directory is not empty, verify it contains only cache files
	if len(entries) > 0 {
		for _, entry := range entries {
			if entry.IsDir() {
				return fmt.Errorf("cache directory contains subdirectories - refusing to delete for safety")
			}
			if !isEntry(entry.Name()) {
				return fmt.Errorf("cache directory contains non-cache files - refusing to delete for safety")
			}
		}
	}

	return os.RemoveAll(c.dir)
}

// cachePath returns the file path for a cache key
func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+entryExt)
}

func isEntry(name string) bool {
	return len(name) > len(entryExt) && name[len(name)-len(entryExt):] == entryExt
}

// Helper functions

func writeString(w io.Writer, s string) error {
	// Write string with null byte delimiter to prevent hash collisions
	_, err := w.Write([]byte(s + "\x00"))
	return err
}

func writeInt(w io.Writer, i int) error {
	// Write int with null byte delimiter to prevent hash collisions
	_, err := fmt.Fprintf(w, "%d\x00", i)
	return err
}

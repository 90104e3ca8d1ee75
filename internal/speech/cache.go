package speech

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
)

// Cache stores synthesized clips on disk keyed by a hash of the text.
type Cache struct {
	dir  string
	next Synthesizer
}

// NewCache wraps next with an on-disk cache under dir.
func NewCache(dir string, next Synthesizer) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Cache{dir: dir, next: next}, nil
}

// Path returns the cache file for text.
func (c *Cache) Path(text string) string {
	sum := sha256.Sum256([]byte(text))
	return filepath.Join(c.dir, "utt_"+hex.EncodeToString(sum[:12])+".mp3")
}

// Synthesize returns the cached clip or synthesizes and stores it.
func (c *Cache) Synthesize(ctx context.Context, text string) ([]byte, error) {
	path := c.Path(text)
	if clip, err := os.ReadFile(path); err == nil && len(clip) > 0 {
		return clip, nil
	}

	clip, err := c.next.Synthesize(ctx, text)
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(c.dir, "utt-*.tmp")
	if err != nil {
		return clip, nil
	}
	if _, err := tmp.Write(clip); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return clip, nil
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return clip, nil
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
	}
	return clip, nil
}

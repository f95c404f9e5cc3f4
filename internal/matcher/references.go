package matcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

// DefaultReferenceCacheTTL is how long a loaded reference image is kept.
const DefaultReferenceCacheTTL = 10 * time.Minute

// ErrReferenceNotFound is returned when a reference image does not exist.
var ErrReferenceNotFound = errors.New("reference image not found")

// ReferenceStore loads students' reference images from a directory and
// keeps recently used ones in memory.
type ReferenceStore struct {
	dir   string
	cache *cache.Cache
	group singleflight.Group
}

// NewReferenceStore creates a store over dir.
func NewReferenceStore(dir string, ttl time.Duration) *ReferenceStore {
	if ttl <= 0 {
		ttl = DefaultReferenceCacheTTL
	}
	return &ReferenceStore{
		dir:   dir,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Load returns the bytes of the named reference image. Concurrent loads of
// the same image share one disk read.
func (s *ReferenceStore) Load(ctx context.Context, name string) ([]byte, error) {
	path, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	if data, ok := s.cache.Get(path); ok {
		return data.([]byte), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v, err, _ := s.group.Do(path, func() (any, error) {
		data, err := os.ReadFile(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", name, ErrReferenceNotFound)
		}
		if err != nil {
			return nil, fmt.Errorf("reading reference image %s: %w", name, err)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("reference image %s is empty", name)
		}
		s.cache.SetDefault(path, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Cached returns the number of images held in memory.
func (s *ReferenceStore) Cached() int {
	return s.cache.ItemCount()
}

// resolve maps a reference handle to a path inside the store directory.
func (s *ReferenceStore) resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", fmt.Errorf("empty reference: %w", ErrReferenceNotFound)
	}
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return "", fmt.Errorf("reference %q escapes the reference directory", name)
	}
	return filepath.Join(s.dir, name), nil
}

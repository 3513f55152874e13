package sync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"github.com/trackdeck/trackdeck/internal/debug"
	"github.com/trackdeck/trackdeck/internal/github"
)

// DiscoveryCache persists the last successful project discovery per owner so
// a sync can still resolve targets when discovery fails. The document is a
// JSON map keyed "<owner_type>:<owner>". Writes go through a temp file and
// rename, guarded by a sibling lock file; the cache is only written after a
// successful discovery.
type DiscoveryCache struct {
	path string
}

// NewDiscoveryCache returns a cache backed by the given file path.
func NewDiscoveryCache(path string) *DiscoveryCache {
	return &DiscoveryCache{path: path}
}

// DefaultCachePath places the cache next to the user's other td state.
func DefaultCachePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".td-projects.json"
	}
	return filepath.Join(home, ".td-projects.json")
}

func (c *DiscoveryCache) read() (map[string][]github.ProjectRef, error) {
	data, err := os.ReadFile(c.path)
	if err != nil {
		return nil, err
	}
	var doc map[string][]github.ProjectRef
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse discovery cache: %w", err)
	}
	return doc, nil
}

// Get returns the cached project list for an owner key, or false when the
// cache has no usable entry.
func (c *DiscoveryCache) Get(key string) ([]github.ProjectRef, bool) {
	doc, err := c.read()
	if err != nil {
		if !os.IsNotExist(err) {
			debug.Logf("sync: discovery cache unreadable: %v", err)
		}
		return nil, false
	}
	refs, ok := doc[key]
	if !ok || len(refs) == 0 {
		return nil, false
	}
	return refs, true
}

// Put replaces one owner's entry and rewrites the cache atomically.
func (c *DiscoveryCache) Put(key string, refs []github.ProjectRef) error {
	lock := flock.New(c.path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock discovery cache: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	doc, err := c.read()
	if err != nil {
		doc = map[string][]github.ProjectRef{}
	}
	doc[key] = refs

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode discovery cache: %w", err)
	}

	tmp := c.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write discovery cache: %w", err)
	}
	if err := os.Rename(tmp, c.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace discovery cache: %w", err)
	}
	return nil
}

package cache

import (
	"slices"
	"sync"

	"github.com/roach88/mapsync/internal/feature"
)

// IDSet maps a class to its known ids, in server order.
type IDSet map[feature.Class][]string

// Clone deep-copies the set.
func (s IDSet) Clone() IDSet {
	if s == nil {
		return nil
	}
	out := make(IDSet, len(s))
	for class, ids := range s {
		out[class] = slices.Clone(ids)
	}
	return out
}

// Cache is the local map mirror. It is safe for concurrent use; returned
// features are copies.
type Cache struct {
	mu       sync.RWMutex
	ids      IDSet
	features []*feature.Feature
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{ids: IDSet{}}
}

// Reset empties the cache, as on map close.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids = IDSet{}
	c.features = nil
}

// IDs returns the known ids of one class.
func (c *Cache) IDs(class feature.Class) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.ids[class])
}

// IDSet returns a copy of the whole id-set.
func (c *Cache) IDSet() IDSet {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ids.Clone()
}

// Len returns the number of cached features.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.features)
}

// Features returns copies of all cached features, optionally limited to the
// given classes.
func (c *Cache) Features(classes ...feature.Class) []*feature.Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*feature.Feature, 0, len(c.features))
	for _, f := range c.features {
		if len(classes) > 0 && !slices.Contains(classes, f.Class()) {
			continue
		}
		out = append(out, f.Clone())
	}
	return out
}

// Get returns the feature with this id and class.
func (c *Cache) Get(id string, class feature.Class) (*feature.Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.index(id, class); i >= 0 {
		return c.features[i].Clone(), true
	}
	return nil, false
}

// Lookup returns the first feature with this id, whatever its class.
func (c *Cache) Lookup(id string) (*feature.Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, f := range c.features {
		if f.ID == id {
			return f.Clone(), true
		}
	}
	return nil, false
}

// FindByTitle returns features whose normalized title matches, skipping
// classes rejected by keep (nil keeps everything).
func (c *Cache) FindByTitle(title string, keep func(feature.Class) bool) []*feature.Feature {
	c.mu.RLock()
	defer c.mu.RUnlock()

	want := feature.NormalizeTitle(title)
	var out []*feature.Feature
	for _, f := range c.features {
		if keep != nil && !keep(f.Class()) {
			continue
		}
		if feature.NormalizeTitle(f.Title()) == want {
			out = append(out, f.Clone())
		}
	}
	return out
}

// Titles returns the titles of all features of a class.
func (c *Cache) Titles(class feature.Class) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for _, f := range c.features {
		if f.Class() == class {
			out = append(out, f.Title())
		}
	}
	return out
}

// Put upserts a feature and records its id, used for local changes the
// server has acknowledged.
func (c *Cache) Put(f *feature.Feature) {
	c.mu.Lock()
	defer c.mu.Unlock()

	f = f.Clone()
	class := f.Class()
	if i := c.index(f.ID, class); i >= 0 {
		c.features[i] = f
	} else {
		c.features = append(c.features, f)
	}
	if !slices.Contains(c.ids[class], f.ID) {
		c.ids[class] = append(c.ids[class], f.ID)
	}
}

// Remove drops a feature and its id. It reports whether a feature was removed.
func (c *Cache) Remove(id string, class feature.Class) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ids, ok := c.ids[class]; ok {
		c.ids[class] = slices.DeleteFunc(slices.Clone(ids), func(s string) bool { return s == id })
	}
	return c.removeFeature(id, class)
}

// index must be called with mu held.
func (c *Cache) index(id string, class feature.Class) int {
	for i, f := range c.features {
		if f.ID == id && f.Class() == class {
			return i
		}
	}
	return -1
}

// removeFeature must be called with mu held.
func (c *Cache) removeFeature(id string, class feature.Class) bool {
	i := c.index(id, class)
	if i < 0 {
		return false
	}
	c.features = slices.Delete(c.features, i, i+1)
	return true
}

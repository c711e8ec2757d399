package catalog

import (
	"sync"

	"github.com/nao1215/salvage/internal/model"
)

// Catalog is the in-memory, hash-keyed record of what the current run
// has recovered. Every artifact is keyed by its content digest, and
// insertion order is preserved so reports and the persistent store see
// artifacts in the order they were recovered.
//
// Design decision: The catalog never replaces an entry. The first
// artifact stored under a digest wins; later candidates with identical
// content are rejected by Insert and counted by the caller as
// duplicates. This keeps the destination path recorded for a digest
// stable for the whole run.
type Catalog struct {
	// mu guards order and byHash. The pipeline inserts from a single
	// goroutine, but history and report writers may read concurrently.
	mu sync.RWMutex

	// order holds content digests in insertion order.
	order []string

	// byHash maps a content digest to its artifact record.
	byHash map[string]model.Artifact
}

// New returns an empty catalog.
func New() *Catalog {
	return &Catalog{
		order:  []string{},
		byHash: make(map[string]model.Artifact),
	}
}

// Insert records an artifact under its content hash. It returns false
// without modifying the catalog when the hash is already present.
func (c *Catalog) Insert(art model.Artifact) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byHash[art.Hash]; exists {
		return false
	}
	c.byHash[art.Hash] = art
	c.order = append(c.order, art.Hash)
	return true
}

// Has reports whether an artifact with the given content hash is
// already cataloged.
func (c *Catalog) Has(hash string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exists := c.byHash[hash]
	return exists
}

// Lookup returns the artifact stored under the given content hash.
func (c *Catalog) Lookup(hash string) (model.Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	art, exists := c.byHash[hash]
	return art, exists
}

// Len returns the number of cataloged artifacts.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.order)
}

// Artifacts returns all cataloged artifacts in insertion order.
func (c *Catalog) Artifacts() []model.Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Artifact, 0, len(c.order))
	for _, hash := range c.order {
		out = append(out, c.byHash[hash])
	}
	return out
}

// Filter narrows the artifacts returned by List. A filter returns true
// to keep the artifact.
type Filter func(model.Artifact) bool

// ByTag keeps artifacts carved as the given format tag.
func ByTag(tag string) Filter {
	return func(a model.Artifact) bool { return a.Tag == tag }
}

// BySource keeps artifacts recovered from the given source locator.
func BySource(source string) Filter {
	return func(a model.Artifact) bool { return a.Source == source }
}

// MinSize keeps artifacts of at least n bytes.
func MinSize(n int64) Filter {
	return func(a model.Artifact) bool { return a.Size >= n }
}

// TruncatedOnly keeps artifacts whose carve was cut short.
func TruncatedOnly() Filter {
	return func(a model.Artifact) bool { return a.Truncated }
}

// List returns the artifacts matching all given filters, in insertion
// order. With no filters it is equivalent to Artifacts.
func (c *Catalog) List(filters ...Filter) []model.Artifact {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Artifact, 0, len(c.order))
	for _, hash := range c.order {
		art := c.byHash[hash]
		keep := true
		for _, f := range filters {
			if !f(art) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, art)
		}
	}
	return out
}

// Summary aggregates the catalog contents for reporting.
type Summary struct {
	// Total is the number of cataloged artifacts.
	Total int

	// TotalBytes is the summed size of all cataloged artifacts.
	TotalBytes int64

	// Truncated is the number of artifacts cut short by the carver.
	Truncated int

	// ByTag counts artifacts per format tag.
	ByTag map[string]int

	// BySource counts artifacts per source locator.
	BySource map[string]int
}

// Summarize computes aggregate counts over the cataloged artifacts.
func (c *Catalog) Summarize() Summary {
	c.mu.RLock()
	defer c.mu.RUnlock()

	sum := Summary{
		ByTag:    make(map[string]int),
		BySource: make(map[string]int),
	}
	for _, hash := range c.order {
		art := c.byHash[hash]
		sum.Total++
		sum.TotalBytes += art.Size
		if art.Truncated {
			sum.Truncated++
		}
		sum.ByTag[art.Tag]++
		sum.BySource[art.Source]++
	}
	return sum
}

package signature

import (
	"bytes"
	"fmt"
	"sort"
)

// Pattern is one flattened, matchable byte sequence with its owning tag.
// The Bytes slice is shared with the registry and must not be mutated.
type Pattern struct {
	// Tag is the format the pattern belongs to.
	Tag string

	// Bytes is the magic byte sequence.
	Bytes []byte
}

// Matcher answers "which format starts at these bytes" for a fixed
// signature set. It is pure and read-only after construction, so any
// number of concurrent scanners can share one instance.
//
// Matching policy: patterns are tested longest-first, and the first full
// prefix match wins. When two patterns of equal length match, the tag
// registered earlier wins. The policy is deterministic and covered by
// tests because downstream carving depends on it.
type Matcher struct {
	// patterns in precedence order: length descending, then registration
	// order, then pattern alternative order.
	patterns []Pattern

	maxLen int
}

// MatcherOption configures a Matcher.
type MatcherOption func(*matcherOptions)

type matcherOptions struct {
	tags []string
}

// WithTags restricts matching to the given format tags. An empty list
// means all registered tags.
func WithTags(tags ...string) MatcherOption {
	return func(o *matcherOptions) {
		o.tags = append(o.tags, tags...)
	}
}

// NewMatcher creates a matcher over the registry's signatures.
// It returns ErrUnknownTag when a tag filter names an unregistered tag,
// so a mistyped --tags flag fails before any scanning starts.
func NewMatcher(reg *Registry, opts ...MatcherOption) (*Matcher, error) {
	var options matcherOptions
	for _, opt := range opts {
		opt(&options)
	}

	include := make(map[string]bool)
	for _, tag := range options.tags {
		if _, ok := reg.Lookup(tag); !ok {
			return nil, fmt.Errorf("tag %q: %w", tag, ErrUnknownTag)
		}
		include[tag] = true
	}

	m := &Matcher{}
	for _, sig := range reg.Signatures() {
		if len(include) > 0 && !include[sig.Tag] {
			continue
		}
		for _, p := range sig.Patterns {
			m.patterns = append(m.patterns, Pattern{Tag: sig.Tag, Bytes: p})
			if len(p) > m.maxLen {
				m.maxLen = len(p)
			}
		}
	}

	// Stable sort keeps registration and alternative order among
	// equal-length patterns, which is the documented tie-break.
	sort.SliceStable(m.patterns, func(i, j int) bool {
		return len(m.patterns[i].Bytes) > len(m.patterns[j].Bytes)
	})

	return m, nil
}

// Match reports the most specific format whose pattern is a prefix of
// window. Windows shorter than some patterns are fine: longer patterns
// simply cannot match and shorter ones are still tried. A window that
// matches nothing returns ok=false; Match never fails or panics.
func (m *Matcher) Match(window []byte) (tag string, sigLen int, ok bool) {
	for _, p := range m.patterns {
		if bytes.HasPrefix(window, p.Bytes) {
			return p.Tag, len(p.Bytes), true
		}
	}
	return "", 0, false
}

// Patterns returns the patterns in precedence order. Buffer scanners use
// this to drive their own per-pattern cursors; the slice must be treated
// as read-only.
func (m *Matcher) Patterns() []Pattern {
	return m.patterns
}

// MaxPatternLen returns the longest pattern length after tag filtering.
// Header probes need at least this many bytes to never miss a format.
func (m *Matcher) MaxPatternLen() int {
	return m.maxLen
}

// Empty reports whether the matcher has no patterns at all.
func (m *Matcher) Empty() bool {
	return len(m.patterns) == 0
}

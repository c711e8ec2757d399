package carver

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/signature"
)

// DefaultSafetyCap bounds a single buffer-mode carve when no better
// boundary exists. 10 MiB covers the bulk of recoverable media while
// keeping a runaway carve from swallowing the rest of the image.
const DefaultSafetyCap = 10 << 20

// Extraction is the precursor of an artifact: the carved bytes plus the
// boundary verdict. The verifier and catalog decide what becomes of it.
type Extraction struct {
	// Data is the carved content, signature bytes included.
	Data []byte

	// Truncated is true when the carve was cut at the safety cap or ran
	// into the end of the source without a real boundary. Cuts at the
	// format's registered maximum or at the next candidate are complete.
	Truncated bool
}

// Carver turns candidates into extracted byte ranges.
//
// Tree mode is the easy case: filesystem metadata already delimits the
// file, so the whole content is the carve and a failed read drops the
// candidate. Buffer mode must infer the boundary; the policy is the
// minimum of the format's registered maximum size, the distance to the
// next candidate of any tag, the safety cap, and the remaining buffer.
type Carver struct {
	registry  *signature.Registry
	logger    *slog.Logger
	safetyCap int64
}

// Option configures a Carver.
type Option func(*Carver)

// WithSafetyCap overrides the hard cap on a single buffer-mode carve.
// Zero disables the cap entirely.
func WithSafetyCap(limit int64) Option {
	return func(c *Carver) {
		c.safetyCap = limit
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Carver) {
		c.logger = logger
	}
}

// New creates a carver over the registry's size bounds.
func New(registry *signature.Registry, opts ...Option) *Carver {
	c := &Carver{
		registry:  registry,
		logger:    slog.Default(),
		safetyCap: DefaultSafetyCap,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CarveTree reads the whole file behind a tree-mode candidate. The read
// is all-or-nothing: any failure returns an error and the candidate is
// dropped by the caller with a skip count, never a partial artifact.
// The dropped return is true when the content is empty or below the
// format's registered minimum size.
func (c *Carver) CarveTree(cand model.Candidate) (ext Extraction, dropped bool, err error) {
	data, err := os.ReadFile(cand.Source)
	if err != nil {
		return Extraction{}, false, fmt.Errorf("read candidate %s: %w", cand.Source, err)
	}

	if c.belowMinimum(cand.Tag, int64(len(data))) {
		c.logger.Debug("dropping below-minimum extraction",
			"source", cand.Source,
			"tag", cand.Tag,
			"size", len(data),
		)
		return Extraction{}, true, nil
	}

	return Extraction{Data: data, Truncated: false}, false, nil
}

// CarveBuffer extracts a bounded range starting at a buffer-mode
// candidate. nextOffset is the offset of the next candidate of any tag
// in the same buffer, or a value not greater than the candidate's own
// offset when there is none. The dropped return is true when the
// extraction is empty or below the format's registered minimum size;
// dropped extractions are expected noise, not errors.
func (c *Carver) CarveBuffer(data []byte, cand model.Candidate, nextOffset int64) (ext Extraction, dropped bool) {
	remaining := int64(len(data)) - cand.Offset
	if remaining <= 0 {
		return Extraction{}, true
	}

	// End-of-source is the fallback boundary and counts as truncation:
	// the true end of the file may lie beyond the buffer.
	length := remaining
	truncated := true

	if sig, ok := c.registry.Lookup(cand.Tag); ok && sig.MaxSize > 0 && sig.MaxSize <= length {
		length = sig.MaxSize
		truncated = false
	}
	if nextOffset > cand.Offset {
		if dist := nextOffset - cand.Offset; dist <= length {
			length = dist
			truncated = false
		}
	}
	if c.safetyCap > 0 && c.safetyCap < length {
		length = c.safetyCap
		truncated = true
	}

	if length <= 0 || c.belowMinimum(cand.Tag, length) {
		c.logger.Debug("dropping below-minimum extraction",
			"source", cand.Source,
			"tag", cand.Tag,
			"offset", cand.Offset,
			"size", length,
		)
		return Extraction{}, true
	}

	return Extraction{
		Data:      data[cand.Offset : cand.Offset+length],
		Truncated: truncated,
	}, false
}

// belowMinimum reports whether size falls under the tag's registered
// minimum. Tags without a minimum never drop.
func (c *Carver) belowMinimum(tag string, size int64) bool {
	if size <= 0 {
		return true
	}
	sig, ok := c.registry.Lookup(tag)
	if !ok {
		return false
	}
	return sig.MinSize > 0 && size < sig.MinSize
}

// Extension returns the artifact file extension for a tag, falling back
// to the tag itself for formats registered without one.
func (c *Carver) Extension(tag string) string {
	if sig, ok := c.registry.Lookup(tag); ok && sig.Extension != "" {
		return sig.Extension
	}
	return tag
}

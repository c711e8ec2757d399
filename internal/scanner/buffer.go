package scanner

import (
	"bytes"
	"context"
	"iter"
	"log/slog"

	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/signature"
)

// cancelCheckInterval is how many buffer offsets are scanned between
// context checks. Checking every byte would dominate the inner loop.
const cancelCheckInterval = 1 << 16

// BufferScanner locates every occurrence of every registered pattern in
// a contiguous byte buffer, such as a loaded disk or partition image.
//
// Scanning semantics: each pattern advances independently, moving one
// byte on a miss and its own length on a hit. Overlapping matches of
// different signatures are therefore all reported. Carving is
// probabilistic and downstream filtering prunes false positives, so
// over-reporting here is intentional. At any single offset only the
// winning tag (longest pattern, then registration order) yields a
// candidate, but every pattern that matched there still skips past its
// own match.
//
// Design decision: The worst case is O(buffer length x pattern count).
// A 256-entry first-byte index prunes the inner loop to the patterns
// that can possibly start at the current byte, which in practice leaves
// at most a handful per offset. This is a performance measure only;
// correctness never depends on it.
type BufferScanner struct {
	matcher *signature.Matcher
	logger  *slog.Logger
}

// BufferOption configures a BufferScanner.
type BufferOption func(*BufferScanner)

// WithBufferLogger sets a custom logger.
func WithBufferLogger(logger *slog.Logger) BufferOption {
	return func(s *BufferScanner) {
		s.logger = logger
	}
}

// NewBufferScanner creates a buffer scanner over the matcher's
// signature set.
func NewBufferScanner(matcher *signature.Matcher, opts ...BufferOption) *BufferScanner {
	s := &BufferScanner{
		matcher: matcher,
		logger:  slog.Default(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scan returns a lazy candidate sequence over data. Candidates are
// emitted in strictly increasing offset order, which the carver's
// next-candidate boundary heuristic depends on. The sequence is finite,
// terminates on buffer exhaustion, and restarts from scratch on each
// call. Counters accumulate into stats as the sequence is consumed.
func (s *BufferScanner) Scan(ctx context.Context, name string, data []byte, stats *model.RunStats) iter.Seq[model.Candidate] {
	if stats == nil {
		stats = &model.RunStats{}
	}

	return func(yield func(model.Candidate) bool) {
		patterns := s.matcher.Patterns()

		// First-byte jump index, in precedence order per bucket.
		var index [256][]int
		for i, p := range patterns {
			first := p.Bytes[0]
			index[first] = append(index[first], i)
		}

		// nextAllowed holds each pattern's cursor: the lowest offset at
		// which it may match again after skipping its previous match.
		nextAllowed := make([]int, len(patterns))

		for i := 0; i < len(data); i++ {
			if i%cancelCheckInterval == 0 && ctx.Err() != nil {
				s.logger.Warn("buffer scan cancelled",
					"source", name,
					"offset", i,
				)
				return
			}

			bucket := index[data[i]]
			if len(bucket) == 0 {
				continue
			}

			winner := -1
			for _, pi := range bucket {
				if nextAllowed[pi] > i {
					continue
				}
				if !bytes.HasPrefix(data[i:], patterns[pi].Bytes) {
					continue
				}
				if winner < 0 {
					winner = pi
				}
				nextAllowed[pi] = i + len(patterns[pi].Bytes)
			}
			if winner < 0 {
				continue
			}

			stats.Candidates++
			cand := model.Candidate{
				Source: name,
				Kind:   model.SourceBuffer,
				Tag:    patterns[winner].Tag,
				Offset: int64(i),
				SigLen: len(patterns[winner].Bytes),
			}
			if !yield(cand) {
				return
			}
		}

		stats.BytesScanned += int64(len(data))
	}
}

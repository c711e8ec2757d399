package scanner

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/karrick/godirwalk"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/signature"
)

// minHeaderBytes is the smallest header probe size. Probing at least 16
// bytes keeps detection stable even if every long pattern is filtered
// out; files shorter than the probe are still matched with whatever
// bytes they have.
const minHeaderBytes = 16

// errStopWalk aborts the directory walk when the consumer stops pulling
// candidates. It never escapes the scanner.
var errStopWalk = errors.New("walk stopped by consumer")

// TreeScanner walks a directory tree and yields one candidate per
// regular file whose leading bytes match a registered signature.
//
// Unreadable files and directories are skipped and counted, never fatal:
// on the damaged or half-permissioned trees this tool is pointed at,
// aborting on the first EACCES would make it useless. The walk is
// lexically sorted, so sequential scans of the same tree are
// deterministic and restartable from scratch.
type TreeScanner struct {
	matcher   *signature.Matcher
	logger    *slog.Logger
	recursive bool
	workers   int
}

// TreeOption configures a TreeScanner.
type TreeOption func(*TreeScanner)

// WithRecursive controls descent into subdirectories. Default true.
func WithRecursive(recursive bool) TreeOption {
	return func(s *TreeScanner) {
		s.recursive = recursive
	}
}

// WithWorkers sets the number of concurrent header probes. Values below
// 2 keep the scan fully sequential. With workers, candidate emission
// order across files is not deterministic; per-file ordering is trivially
// preserved because a file produces at most one candidate.
func WithWorkers(n int) TreeOption {
	return func(s *TreeScanner) {
		s.workers = n
	}
}

// WithTreeLogger sets a custom logger.
func WithTreeLogger(logger *slog.Logger) TreeOption {
	return func(s *TreeScanner) {
		s.logger = logger
	}
}

// NewTreeScanner creates a tree scanner over the matcher's signature set.
func NewTreeScanner(matcher *signature.Matcher, opts ...TreeOption) *TreeScanner {
	s := &TreeScanner{
		matcher:   matcher,
		logger:    slog.Default(),
		recursive: true,
		workers:   1,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Scan returns a lazy candidate sequence over the tree rooted at root.
// The sequence is finite and restartable from scratch: each call starts
// a fresh walk. Skip and probe counters accumulate into stats; they are
// complete only after the sequence is fully drained.
func (s *TreeScanner) Scan(ctx context.Context, root string, stats *model.RunStats) iter.Seq[model.Candidate] {
	if stats == nil {
		stats = &model.RunStats{}
	}
	if s.workers > 1 {
		return s.scanParallel(ctx, root, stats)
	}
	return s.scanSequential(ctx, root, stats)
}

func (s *TreeScanner) scanSequential(ctx context.Context, root string, stats *model.RunStats) iter.Seq[model.Candidate] {
	return func(yield func(model.Candidate) bool) {
		err := godirwalk.Walk(root, &godirwalk.Options{
			Callback: func(path string, de *godirwalk.Dirent) error {
				if ctx.Err() != nil {
					return errStopWalk
				}
				if de.IsDir() {
					if !s.recursive && path != root {
						return filepath.SkipDir
					}
					return nil
				}
				if !de.IsRegular() {
					return nil
				}

				cand, probed, matched, err := s.probe(path)
				if err != nil {
					stats.SkippedUnreadable++
					s.logger.Warn("skipping unreadable file",
						"path", path,
						"error", err,
					)
					return nil
				}
				stats.FilesScanned++
				stats.BytesScanned += int64(probed)
				if !matched {
					return nil
				}

				stats.Candidates++
				if !yield(cand) {
					return errStopWalk
				}
				return nil
			},
			ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
				if errors.Is(err, errStopWalk) {
					return godirwalk.Halt
				}
				stats.SkippedUnreadable++
				s.logger.Warn("skipping unreadable entry",
					"path", path,
					"error", err,
				)
				return godirwalk.SkipNode
			},
			Unsorted: false,
		})
		if err != nil && !errors.Is(err, errStopWalk) {
			// The walk itself failed, typically a missing or unreadable
			// root. Counted like any other unreadable entry.
			stats.SkippedUnreadable++
			s.logger.Warn("walk ended early",
				"root", root,
				"error", err,
			)
		}
	}
}

// probeResult carries one file's probe outcome from a worker to the
// consuming goroutine, which owns all stats updates.
type probeResult struct {
	cand    model.Candidate
	probed  int
	matched bool
	skipped bool
}

func (s *TreeScanner) scanParallel(ctx context.Context, root string, stats *model.RunStats) iter.Seq[model.Candidate] {
	return func(yield func(model.Candidate) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		paths := make(chan string)
		results := make(chan probeResult)

		g, gctx := errgroup.WithContext(ctx)

		// Walker: feeds file paths to the probe workers.
		g.Go(func() error {
			defer close(paths)
			err := godirwalk.Walk(root, &godirwalk.Options{
				Callback: func(path string, de *godirwalk.Dirent) error {
					if de.IsDir() {
						if !s.recursive && path != root {
							return filepath.SkipDir
						}
						return nil
					}
					if !de.IsRegular() {
						return nil
					}
					select {
					case paths <- path:
						return nil
					case <-gctx.Done():
						return errStopWalk
					}
				},
				ErrorCallback: func(path string, err error) godirwalk.ErrorAction {
					if errors.Is(err, errStopWalk) {
						return godirwalk.Halt
					}
					s.logger.Warn("skipping unreadable entry",
						"path", path,
						"error", err,
					)
					select {
					case results <- probeResult{skipped: true}:
					case <-gctx.Done():
					}
					return godirwalk.SkipNode
				},
				Unsorted: false,
			})
			if err != nil && !errors.Is(err, errStopWalk) {
				s.logger.Warn("walk ended early",
					"root", root,
					"error", err,
				)
				select {
				case results <- probeResult{skipped: true}:
				case <-gctx.Done():
				}
			}
			return nil
		})

		for i := 0; i < s.workers; i++ {
			g.Go(func() error {
				for path := range paths {
					cand, probed, matched, err := s.probe(path)
					if err != nil {
						s.logger.Warn("skipping unreadable file",
							"path", path,
							"error", err,
						)
					}
					select {
					case results <- probeResult{
						cand:    cand,
						probed:  probed,
						matched: matched,
						skipped: err != nil,
					}:
					case <-gctx.Done():
						return gctx.Err()
					}
				}
				return nil
			})
		}

		go func() {
			_ = g.Wait()
			close(results)
		}()

		for res := range results {
			if res.skipped {
				stats.SkippedUnreadable++
				continue
			}
			stats.FilesScanned++
			stats.BytesScanned += int64(res.probed)
			if !res.matched {
				continue
			}
			stats.Candidates++
			if !yield(res.cand) {
				cancel()
				// Drain so the workers observe cancellation and exit.
				for range results { //nolint:revive // intentional drain
				}
				return
			}
		}
	}
}

// probe reads the leading bytes of path and matches them against the
// signature set. The read is bounded by the longest registered pattern;
// shorter files are matched with whatever bytes they have.
func (s *TreeScanner) probe(path string) (cand model.Candidate, probed int, matched bool, err error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Candidate{}, 0, false, err
	}
	defer func() {
		_ = f.Close()
	}()

	headerLen := s.matcher.MaxPatternLen()
	if headerLen < minHeaderBytes {
		headerLen = minHeaderBytes
	}

	buf := make([]byte, headerLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return model.Candidate{}, 0, false, err
	}

	tag, sigLen, ok := s.matcher.Match(buf[:n])
	if !ok {
		return model.Candidate{}, n, false, nil
	}

	return model.Candidate{
		Source: path,
		Kind:   model.SourceTree,
		Tag:    tag,
		Offset: 0,
		SigLen: sigLen,
	}, n, true, nil
}

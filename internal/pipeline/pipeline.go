package pipeline

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/nao1215/salvage/internal/carver"
	"github.com/nao1215/salvage/internal/catalog"
	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/scanner"
	"github.com/nao1215/salvage/internal/signature"
	"github.com/nao1215/salvage/internal/verify"
)

// State identifies where the pipeline is in the recovery cycle. The
// pipeline moves through the states candidate by candidate; State is
// exported so callers can observe progress, never drive it.
type State int32

const (
	// StateIdle means no run is in progress.
	StateIdle State = iota

	// StateScanning means the pipeline is pulling the next candidate
	// from the scanner.
	StateScanning

	// StateCarving means the pipeline is extracting a candidate's bytes.
	StateCarving

	// StateVerifying means the pipeline is hashing and deduplicating an
	// extraction.
	StateVerifying

	// StateCataloged means the last candidate was recorded as an
	// artifact; the pipeline returns to StateScanning for the next one.
	StateCataloged

	// StateFailed means the run could not start, typically because the
	// recovery root was not writable. Only misconfiguration detected
	// before the first candidate puts the pipeline here.
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateCarving:
		return "carving"
	case StateVerifying:
		return "verifying"
	case StateCataloged:
		return "cataloged"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pipeline orchestrates one recovery run: scan for candidates, carve
// their bytes, verify and deduplicate, write artifacts, and catalog the
// result. It is candidate-at-a-time so memory stays bounded by the
// largest single extraction, not by the number of findings.
//
// Design decision: Run yields artifacts lazily rather than collecting
// them because:
// 1. The caller can render progress while a large image is still scanning
// 2. Breaking out of the range is all it takes to stop a run early
// 3. The report accumulates either way, so nothing is lost by streaming
type Pipeline struct {
	// registry holds the signature set the run scans for.
	registry *signature.Registry

	// matcher is the compiled pattern set, possibly tag-filtered.
	matcher *signature.Matcher

	// carver extracts candidate bytes and applies size policy.
	carver *carver.Carver

	// verifier hashes extractions for integrity and dedup.
	verifier *verify.Verifier

	// catalog records recovered artifacts for the run. It may be shared
	// across pipelines to deduplicate across sources.
	catalog *catalog.Catalog

	// store, when set, archives the run write-behind: the run row at
	// start, each artifact as it is cataloged, the counters at the end.
	store *catalog.Store

	// logger is used for structured logging during execution.
	logger *slog.Logger

	// recoveryRoot is the directory per-run recovery directories are
	// created under.
	recoveryRoot string

	// tags restricts scanning to these format tags. Empty means all.
	tags []string

	// algorithm is the digest algorithm for verification.
	algorithm verify.Algorithm

	// safetyCap bounds any single extraction.
	safetyCap int64

	// workers is the tree-mode probe concurrency.
	workers int

	// recursive controls tree-mode descent into subdirectories.
	recursive bool

	// state is the observable pipeline state.
	state atomic.Int32
}

// Option is a function that configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger for the pipeline and everything it
// drives. If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

// WithRecoveryRoot sets the directory per-run recovery directories are
// created under. Required.
func WithRecoveryRoot(root string) Option {
	return func(p *Pipeline) {
		p.recoveryRoot = root
	}
}

// WithTags restricts the run to the given format tags.
func WithTags(tags ...string) Option {
	return func(p *Pipeline) {
		p.tags = tags
	}
}

// WithHashAlgorithm selects the verification digest. Default SHA-256.
func WithHashAlgorithm(alg verify.Algorithm) Option {
	return func(p *Pipeline) {
		p.algorithm = alg
	}
}

// WithSafetyCap bounds any single extraction. Default carver.DefaultSafetyCap.
func WithSafetyCap(limit int64) Option {
	return func(p *Pipeline) {
		p.safetyCap = limit
	}
}

// WithWorkers sets the tree-mode probe concurrency. Default 1.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithRecursive controls tree-mode descent into subdirectories.
// Default true.
func WithRecursive(recursive bool) Option {
	return func(p *Pipeline) {
		p.recursive = recursive
	}
}

// WithCatalog shares an existing catalog instead of creating a fresh
// one. Batch runs use this to deduplicate content across sources.
func WithCatalog(cat *catalog.Catalog) Option {
	return func(p *Pipeline) {
		p.catalog = cat
	}
}

// WithStore enables write-behind archiving of the run to the given
// persistent catalog store.
func WithStore(store *catalog.Store) Option {
	return func(p *Pipeline) {
		p.store = store
	}
}

// New creates a Pipeline over the given signature registry. It fails,
// and the engine refuses to start, on any misconfiguration: nil or
// empty registry, unknown filter tag, unknown digest algorithm, or a
// missing recovery root. Per-candidate trouble during a run is never an
// error from here.
func New(registry *signature.Registry, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		registry:  registry,
		logger:    slog.Default(),
		algorithm: verify.SHA256,
		safetyCap: carver.DefaultSafetyCap,
		workers:   1,
		recursive: true,
	}

	for _, opt := range opts {
		opt(p)
	}

	if registry == nil {
		return nil, ErrNilRegistry
	}
	if p.recoveryRoot == "" {
		return nil, ErrNoRecoveryRoot
	}

	var matcherOpts []signature.MatcherOption
	if len(p.tags) > 0 {
		matcherOpts = append(matcherOpts, signature.WithTags(p.tags...))
	}
	matcher, err := signature.NewMatcher(registry, matcherOpts...)
	if err != nil {
		return nil, fmt.Errorf("build matcher: %w", err)
	}
	if matcher.Empty() {
		return nil, ErrNoSignatures
	}
	p.matcher = matcher

	verifier, err := verify.New(p.algorithm)
	if err != nil {
		return nil, fmt.Errorf("build verifier: %w", err)
	}
	p.verifier = verifier

	p.carver = carver.New(registry,
		carver.WithSafetyCap(p.safetyCap),
		carver.WithLogger(p.logger),
	)

	if p.catalog == nil {
		p.catalog = catalog.New()
	}

	p.state.Store(int32(StateIdle))
	return p, nil
}

// State returns the pipeline's current state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Catalog returns the catalog the pipeline records artifacts into.
func (p *Pipeline) Catalog() *catalog.Catalog {
	return p.catalog
}

func (p *Pipeline) setState(s State) {
	p.state.Store(int32(s))
}

// Run starts a recovery run over src. It returns the lazy artifact
// sequence together with the run report the sequence fills in.
//
// The sequence is single-use: range it once. The caller may stop early
// by breaking out of the range; the report is finalized either way, but
// its counters are complete only after the sequence is fully drained.
// The returned error is reserved for failures to start the run at all,
// such as an unwritable recovery root.
func (p *Pipeline) Run(ctx context.Context, src scanner.Source) (iter.Seq[model.Artifact], *model.RunReport, error) {
	report := model.NewRunReport(src.Locator(), src.Kind)
	report.HashAlgorithm = string(p.verifier.Algorithm())

	sink, err := carver.NewSink(p.recoveryRoot)
	if err != nil {
		p.setState(StateFailed)
		return nil, nil, fmt.Errorf("create recovery directory: %w", err)
	}
	report.RecoveryDir = sink.Dir()

	var runID int64
	if p.store != nil {
		id, err := p.store.BeginRun(ctx, report)
		if err != nil {
			// Archiving trouble never blocks recovery.
			p.logger.Warn("failed to begin archive run",
				"source", report.Source,
				"error", err,
			)
		} else {
			runID = id
		}
	}

	p.logger.Info("recovery run started",
		"source", report.Source,
		"mode", report.ModeName,
		"recovery_dir", report.RecoveryDir,
		"hash_algorithm", report.HashAlgorithm,
	)

	if src.Kind == model.SourceBuffer {
		return p.runBuffer(ctx, src, report, sink, runID), report, nil
	}
	return p.runTree(ctx, src, report, sink, runID), report, nil
}

// RunTree starts a tree-mode run over the directory rooted at root.
func (p *Pipeline) RunTree(ctx context.Context, root string) (iter.Seq[model.Artifact], *model.RunReport, error) {
	return p.Run(ctx, scanner.TreeSource(root))
}

// RunBuffer starts a buffer-mode run over data, recorded under name.
func (p *Pipeline) RunBuffer(ctx context.Context, name string, data []byte) (iter.Seq[model.Artifact], *model.RunReport, error) {
	return p.Run(ctx, scanner.BufferSource(name, data))
}

// runTree drives a tree-mode run: every candidate is a whole file, so
// carving needs no boundary lookahead.
func (p *Pipeline) runTree(ctx context.Context, src scanner.Source, report *model.RunReport, sink *carver.Sink, runID int64) iter.Seq[model.Artifact] {
	scan := scanner.NewTreeScanner(p.matcher,
		scanner.WithRecursive(p.recursive),
		scanner.WithWorkers(p.workers),
		scanner.WithTreeLogger(p.logger),
	)

	return func(yield func(model.Artifact) bool) {
		defer p.finish(ctx, report, runID)
		p.setState(StateScanning)

		for cand := range scan.Scan(ctx, src.Root, &report.Stats) {
			p.setState(StateCarving)
			ext, dropped, err := p.carver.CarveTree(cand)
			if err != nil {
				// The file vanished or turned unreadable between the
				// probe and the carve.
				report.Stats.SkippedUnreadable++
				p.logger.Warn("skipping uncarvable file",
					"path", cand.Source,
					"error", err,
				)
				p.setState(StateScanning)
				continue
			}
			if dropped {
				report.Stats.DroppedBelowMin++
				p.logger.Debug("dropped below-minimum extraction",
					"tag", cand.Tag,
					"path", cand.Source,
				)
				p.setState(StateScanning)
				continue
			}

			art, admitted := p.admit(ctx, cand, ext, sink, runID, report)
			if admitted && !yield(art) {
				return
			}
			p.setState(StateScanning)
		}
	}
}

// runBuffer drives a buffer-mode run. The scanner is pulled one
// candidate ahead so the carver can bound each extraction by the next
// candidate's offset.
func (p *Pipeline) runBuffer(ctx context.Context, src scanner.Source, report *model.RunReport, sink *carver.Sink, runID int64) iter.Seq[model.Artifact] {
	scan := scanner.NewBufferScanner(p.matcher,
		scanner.WithBufferLogger(p.logger),
	)

	return func(yield func(model.Artifact) bool) {
		defer p.finish(ctx, report, runID)
		p.setState(StateScanning)

		next, stop := iter.Pull(scan.Scan(ctx, src.Name, src.Data, &report.Stats))
		defer stop()

		cur, ok := next()
		for ok {
			ahead, aheadOK := next()
			nextOffset := int64(-1)
			if aheadOK {
				nextOffset = ahead.Offset
			}

			p.setState(StateCarving)
			ext, dropped := p.carver.CarveBuffer(src.Data, cur, nextOffset)
			if dropped {
				report.Stats.DroppedBelowMin++
				p.logger.Debug("dropped below-minimum extraction",
					"tag", cur.Tag,
					"offset", cur.Offset,
				)
			} else {
				art, admitted := p.admit(ctx, cur, ext, sink, runID, report)
				if admitted && !yield(art) {
					return
				}
			}

			p.setState(StateScanning)
			cur, ok = ahead, aheadOK
		}
	}
}

// admit takes one extraction through verification, the write to the
// recovery directory, and cataloging. A false return means the
// candidate produced no artifact; the reason is already counted and
// logged.
func (p *Pipeline) admit(ctx context.Context, cand model.Candidate, ext carver.Extraction, sink *carver.Sink, runID int64, report *model.RunReport) (model.Artifact, bool) {
	p.setState(StateVerifying)
	hash, accept := p.verifier.Verify(ext.Data, p.catalog.Has)
	if !accept {
		report.Stats.Duplicates++
		p.logger.Debug("duplicate content suppressed",
			"tag", cand.Tag,
			"hash", hash,
			"source", cand.Source,
			"offset", cand.Offset,
		)
		return model.Artifact{}, false
	}

	dest, err := sink.Write(cand, p.carver.Extension(cand.Tag), ext.Data)
	if err != nil {
		p.logger.Error("failed to write artifact",
			"tag", cand.Tag,
			"source", cand.Source,
			"error", err,
		)
		return model.Artifact{}, false
	}

	art := model.Artifact{
		Tag:         cand.Tag,
		Source:      cand.Source,
		Offset:      cand.Offset,
		Size:        int64(len(ext.Data)),
		Hash:        hash,
		Destination: dest,
		Truncated:   ext.Truncated,
		RecoveredAt: time.Now(),
	}

	if !p.catalog.Insert(art) {
		// Lost an insert race against another pipeline sharing this
		// catalog. Treat it as the duplicate it is and drop the file
		// that was just written.
		report.Stats.Duplicates++
		if rmErr := os.Remove(dest); rmErr != nil {
			p.logger.Warn("failed to remove duplicate artifact file",
				"path", dest,
				"error", rmErr,
			)
		}
		return model.Artifact{}, false
	}
	p.setState(StateCataloged)

	report.Stats.Recovered++
	if art.Truncated {
		report.Stats.Truncated++
		p.logger.Warn("artifact truncated",
			"tag", art.Tag,
			"source", art.Source,
			"offset", art.Offset,
			"size", art.Size,
		)
	}
	report.Artifacts = append(report.Artifacts, art)

	p.logger.Info("artifact recovered",
		"tag", art.Tag,
		"size", art.Size,
		"hash", art.Hash,
		"destination", art.Destination,
	)

	if p.store != nil && runID > 0 {
		if err := p.store.SaveArtifact(ctx, runID, art); err != nil {
			p.logger.Warn("failed to archive artifact",
				"hash", art.Hash,
				"error", err,
			)
		}
	}

	return art, true
}

// finish closes out a run: stamps the report, finalizes the archive
// row, and returns the pipeline to idle. It runs whether the sequence
// was drained, abandoned early, or cancelled.
func (p *Pipeline) finish(ctx context.Context, report *model.RunReport, runID int64) {
	report.Finish()

	if p.store != nil && runID > 0 {
		// Finalize the archive row even when the run context was
		// cancelled mid-scan.
		if err := p.store.FinishRun(context.WithoutCancel(ctx), runID, report); err != nil {
			p.logger.Warn("failed to finalize archive run",
				"source", report.Source,
				"error", err,
			)
		}
	}

	p.setState(StateIdle)
	p.logger.Info("recovery run finished",
		"source", report.Source,
		"duration", report.Duration(),
		"candidates", report.Stats.Candidates,
		"recovered", report.Stats.Recovered,
		"duplicates", report.Stats.Duplicates,
		"dropped_below_min", report.Stats.DroppedBelowMin,
		"truncated", report.Stats.Truncated,
		"skipped_unreadable", report.Stats.SkippedUnreadable,
	)
}

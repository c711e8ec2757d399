package inspect

import (
	"context"
	"errors"
	"log/slog"
)

// ErrNoInspector is returned when no registered inspector understands
// the artifact's format tag.
var ErrNoInspector = errors.New("no inspector supports this artifact format")

// Detail is a single labeled attribute extracted from an artifact.
type Detail struct {
	// Key identifies the attribute (e.g. "Make", "table messages").
	Key string `json:"key"`

	// Value is the attribute value, formatted for display.
	Value string `json:"value"`

	// Note explains why the attribute matters, when it does.
	Note string `json:"note,omitempty"`
}

// Finding is the result of one inspector over one recovered artifact.
type Finding struct {
	// Inspector names the inspector that produced the finding.
	Inspector string `json:"inspector"`

	// Path is the inspected artifact file.
	Path string `json:"path"`

	// Summary is a one-line description of what was found.
	Summary string `json:"summary"`

	// Details are the individual extracted attributes.
	Details []Detail `json:"details,omitempty"`
}

// Inspector analyzes one recovered artifact file.
// Each inspector focuses on a single content format.
//
// Design decision: We use an interface rather than concrete types because:
//  1. Allows for easy extension with new inspectors
//  2. Enables testing with mock inspectors
//  3. Dispatch by format tag stays in one place (the Runner)
type Inspector interface {
	// Name returns the inspector's name for logging and reporting.
	Name() string

	// Supports reports whether the inspector understands artifacts
	// carrying the given format tag.
	Supports(tag string) bool

	// Inspect analyzes the recovered file at path.
	Inspect(ctx context.Context, path string) (*Finding, error)
}

// Runner dispatches recovered artifacts to every inspector that
// understands their format and aggregates the findings.
type Runner struct {
	// inspectors is the list of registered inspectors to consult.
	inspectors []Inspector

	// logger is used for structured logging during inspection.
	logger *slog.Logger
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithLogger sets a custom logger for the runner.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner creates a Runner with all built-in inspectors registered.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{
		inspectors: make([]Inspector, 0),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}

	r.Register(NewEXIFInspector())
	r.Register(NewSQLiteInspector())
	r.Register(NewHTMLInspector())

	return r
}

// Register adds an inspector to the list.
func (r *Runner) Register(ins Inspector) {
	r.inspectors = append(r.inspectors, ins)
}

// Run runs every inspector that supports the tag against the file at
// path. Inspector errors are logged and skipped so that one unreadable
// artifact cannot hide what the other inspectors can still extract.
// ErrNoInspector is returned when the tag matches no inspector at all.
func (r *Runner) Run(ctx context.Context, tag, path string) ([]Finding, error) {
	matched := 0
	findings := make([]Finding, 0)

	for _, ins := range r.inspectors {
		if !ins.Supports(tag) {
			continue
		}
		matched++

		select {
		case <-ctx.Done():
			return findings, ctx.Err()
		default:
		}

		finding, err := ins.Inspect(ctx, path)
		if err != nil {
			r.logger.Warn("inspector failed",
				"inspector", ins.Name(),
				"path", path,
				"error", err,
			)
			continue
		}
		if finding != nil {
			findings = append(findings, *finding)
		}
	}

	if matched == 0 {
		return nil, ErrNoInspector
	}
	return findings, nil
}

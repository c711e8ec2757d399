package log

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// auditTimeFormat is the timestamp layout of audit log lines. It matches
// the catalog store's timestamp columns so the two evidence trails can
// be correlated by eye.
const auditTimeFormat = "2006-01-02 15:04:05"

// AuditHandler wraps an slog.Handler and mirrors every record it handles
// to an append-only audit writer as a plain text line:
//
//	[2006-01-02 15:04:05] [INFO] recovery run started source=/evidence mode=tree
//
// The console keeps whatever format the inner handler produces; the
// audit file keeps a stable, greppable trail. Records at Info and above
// always reach the trail, even when the inner handler is set to a
// quieter level, so the forensic log stays complete while the console
// shows only warnings.
//
// Design decision: We use a handler wrapper rather than a custom logger
// because:
//  1. It integrates seamlessly with standard slog APIs
//  2. It works with any underlying handler (text, JSON, etc.)
//  3. Components that accept *slog.Logger need no audit awareness
type AuditHandler struct {
	// inner is the underlying slog handler that produces console output.
	inner slog.Handler

	// mu serializes writes to w. It is shared across handler clones so
	// that loggers derived via With and WithGroup never interleave lines.
	mu *sync.Mutex

	// w is the audit destination, typically an append-only file.
	w io.Writer

	// prefix is the dotted group path applied to subsequent attribute keys.
	prefix string

	// preformatted holds key=value strings from WithAttrs calls.
	preformatted []string
}

// NewAuditHandler creates an AuditHandler mirroring records to w.
// If inner is nil, the handler wraps slog.Default().Handler().
func NewAuditHandler(inner slog.Handler, w io.Writer) *AuditHandler {
	if inner == nil {
		inner = slog.Default().Handler()
	}
	return &AuditHandler{
		inner: inner,
		mu:    &sync.Mutex{},
		w:     w,
	}
}

// Enabled reports whether the handler handles records at the given level.
// Info and above are always enabled so the audit trail never loses the
// run narrative; below Info the inner handler decides.
func (h *AuditHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= slog.LevelInfo || h.inner.Enabled(ctx, level)
}

// Handle writes the audit line and passes the record to the inner handler
// when the inner handler wants it. A failed audit write never suppresses
// the console record; both errors are reported together.
func (h *AuditHandler) Handle(ctx context.Context, r slog.Record) error {
	line := h.formatLine(r)

	h.mu.Lock()
	_, auditErr := io.WriteString(h.w, line)
	h.mu.Unlock()

	if !h.inner.Enabled(ctx, r.Level) {
		return auditErr
	}
	return errors.Join(auditErr, h.inner.Handle(ctx, r))
}

// WithAttrs returns a new handler whose audit lines carry the given
// attributes before the per-record ones.
func (h *AuditHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}

	h2 := h.clone()
	h2.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		h2.preformatted = appendAttr(h2.preformatted, h.prefix, a)
	}
	return h2
}

// WithGroup returns a new handler that prefixes subsequent attribute
// keys with the group name, dotted.
func (h *AuditHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	h2 := h.clone()
	h2.inner = h.inner.WithGroup(name)
	h2.prefix = h.prefix + name + "."
	return h2
}

// clone copies the handler, sharing the write mutex and destination.
func (h *AuditHandler) clone() *AuditHandler {
	return &AuditHandler{
		inner:        h.inner,
		mu:           h.mu,
		w:            h.w,
		prefix:       h.prefix,
		preformatted: append([]string(nil), h.preformatted...),
	}
}

// formatLine renders one record as a single audit line.
func (h *AuditHandler) formatLine(r slog.Record) string {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var sb strings.Builder
	sb.WriteByte('[')
	sb.WriteString(ts.Format(auditTimeFormat))
	sb.WriteString("] [")
	sb.WriteString(r.Level.String())
	sb.WriteString("] ")
	sb.WriteString(r.Message)

	for _, kv := range h.preformatted {
		sb.WriteByte(' ')
		sb.WriteString(kv)
	}

	parts := make([]string, 0, r.NumAttrs())
	r.Attrs(func(a slog.Attr) bool {
		parts = appendAttr(parts, h.prefix, a)
		return true
	})
	for _, kv := range parts {
		sb.WriteByte(' ')
		sb.WriteString(kv)
	}

	sb.WriteByte('\n')
	return sb.String()
}

// appendAttr flattens one attribute into key=value strings, recursing
// into groups with a dotted prefix.
func appendAttr(parts []string, prefix string, a slog.Attr) []string {
	a.Value = a.Value.Resolve()

	// Empty attrs are discarded, matching slog handler conventions
	if a.Equal(slog.Attr{}) {
		return parts
	}

	if a.Value.Kind() == slog.KindGroup {
		groupPrefix := prefix
		if a.Key != "" {
			groupPrefix = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			parts = appendAttr(parts, groupPrefix, ga)
		}
		return parts
	}

	return append(parts, prefix+a.Key+"="+formatValue(a.Value))
}

// formatValue renders an attribute value, quoting anything that would
// break the one-line key=value grammar.
func formatValue(v slog.Value) string {
	s := v.String()
	if strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}

// OpenAuditFile opens the audit log for appending, creating parent
// directories as needed. The file is created owner-only: the audit
// trail names every recovered artifact, which is evidence metadata.
func OpenAuditFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create audit log directory: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // Audit path comes from operator config
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	return f, nil
}

// Option configures NewLogger.
type Option func(*options)

type options struct {
	level     slog.Level
	auditFile string
}

// WithLevel sets the minimum log level. The default is Info: the run
// narrative (start, artifacts, finish) stays visible, matching the
// chatty habits of the recovery tools this one replaces.
func WithLevel(level slog.Level) Option {
	return func(o *options) {
		o.level = level
	}
}

// WithAuditFile mirrors records to an append-only file at path. The
// trail receives every record at Info and above regardless of the
// console level. The file stays open for the life of the process.
func WithAuditFile(path string) Option {
	return func(o *options) {
		o.auditFile = path
	}
}

// NewLogger creates a logger writing human-readable output to w,
// optionally mirrored to an audit file.
//
// Returns a *slog.Logger that can be used with slog.SetDefault() or
// passed to components that accept *slog.Logger.
func NewLogger(w io.Writer, opts ...Option) (*slog.Logger, error) {
	o := options{level: slog.LevelInfo}
	for _, opt := range opts {
		opt(&o)
	}

	var handler slog.Handler = slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: o.level,
	})

	if o.auditFile != "" {
		f, err := OpenAuditFile(o.auditFile)
		if err != nil {
			return nil, err
		}
		handler = NewAuditHandler(handler, f)
	}

	return slog.New(handler), nil
}

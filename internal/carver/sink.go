package carver

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nao1215/salvage/internal/model"
)

// runDirFormat is the timestamp layout for per-run recovery directories.
const runDirFormat = "20060102_150405"

// Sink materializes extractions as files inside a per-run recovery
// directory. Each run gets its own timestamped subdirectory under the
// recovery root, so artifacts from different runs never collide, and
// names within a run are deduplicated so no artifact ever overwrites
// another.
type Sink struct {
	dir     string
	counter int
	used    map[string]bool
}

// NewSink creates the per-run directory under recoveryRoot and returns
// a sink writing into it. When two runs start within the same second,
// a numeric suffix keeps their directories distinct.
func NewSink(recoveryRoot string) (*Sink, error) {
	if err := os.MkdirAll(recoveryRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create recovery root %s: %w", recoveryRoot, err)
	}

	stamp := time.Now().Format(runDirFormat)
	dir := filepath.Join(recoveryRoot, stamp)
	for i := 2; ; i++ {
		err := os.Mkdir(dir, 0o755)
		if err == nil {
			break
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create run directory %s: %w", dir, err)
		}
		dir = filepath.Join(recoveryRoot, fmt.Sprintf("%s_%d", stamp, i))
	}

	return &Sink{
		dir:  dir,
		used: make(map[string]bool),
	}, nil
}

// Dir returns the per-run recovery directory.
func (s *Sink) Dir() string {
	return s.dir
}

// Write stores the extracted content under a deterministic name derived
// from the candidate and returns the destination path. Tree-mode
// artifacts keep their original base name; buffer-mode artifacts are
// named from their offset. Name collisions within the run get a
// recovered_<n>_ prefix.
func (s *Sink) Write(cand model.Candidate, extension string, data []byte) (string, error) {
	name := s.artifactName(cand, extension)
	dest := filepath.Join(s.dir, name)
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", dest, err)
	}
	return dest, nil
}

// artifactName picks a run-unique file name for the candidate.
func (s *Sink) artifactName(cand model.Candidate, extension string) string {
	s.counter++

	var name string
	if cand.Kind == model.SourceTree {
		name = filepath.Base(cand.Source)
		if s.used[name] {
			name = fmt.Sprintf("recovered_%d_%s", s.counter, name)
		}
	} else {
		name = fmt.Sprintf("carved_%08x_%d.%s", cand.Offset, s.counter, extension)
	}

	s.used[name] = true
	return name
}

package scanner

import (
	"fmt"
	"os"

	"github.com/nao1215/salvage/internal/model"
)

// Source describes one byte source to scan: either a directory tree to
// walk or a contiguous in-memory buffer. All fields are present in both
// variants; Kind says which ones are meaningful. A Source is owned by
// the scanner for the duration of a scan and never mutated.
type Source struct {
	// Kind selects the scanning mode.
	Kind model.SourceKind

	// Root is the directory to walk. Tree mode only.
	Root string

	// Name is the locator recorded on candidates: the image path or a
	// caller-chosen label. Buffer mode only.
	Name string

	// Data is the raw buffer content. Buffer mode only.
	Data []byte
}

// TreeSource returns a tree-mode source rooted at the given directory.
func TreeSource(root string) Source {
	return Source{Kind: model.SourceTree, Root: root}
}

// BufferSource returns a buffer-mode source over data, recorded under
// the given name in candidates and artifacts.
func BufferSource(name string, data []byte) Source {
	return Source{Kind: model.SourceBuffer, Name: name, Data: data}
}

// BufferSourceFromFile loads an image file fully into memory and returns
// a buffer-mode source for it. Failing to read the image is an input
// error, not a per-candidate skip: there is nothing to scan.
func BufferSourceFromFile(path string) (Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Source{}, fmt.Errorf("read image %s: %w", path, err)
	}
	return BufferSource(path, data), nil
}

// Locator returns the human-readable identifier of the source.
func (s Source) Locator() string {
	if s.Kind == model.SourceTree {
		return s.Root
	}
	return s.Name
}

// Size returns the number of bytes the source exposes. For tree sources
// the total is unknown before the walk and Size returns 0.
func (s Source) Size() int64 {
	if s.Kind == model.SourceBuffer {
		return int64(len(s.Data))
	}
	return 0
}

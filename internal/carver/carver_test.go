package carver

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/signature"
)

// createTestRegistry returns a registry with one signature whose bounds
// are easy to reason about in tests.
func createTestRegistry(t *testing.T, minSize, maxSize int64) *signature.Registry {
	t.Helper()

	reg := signature.NewEmptyRegistry()
	err := reg.Register(signature.FormatSignature{
		Tag:       "tst",
		Patterns:  [][]byte{[]byte("MAGIC")},
		MinSize:   minSize,
		MaxSize:   maxSize,
		Extension: "tst",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return reg
}

func bufferCandidate(offset int64) model.Candidate {
	return model.Candidate{
		Source: "image.dd",
		Kind:   model.SourceBuffer,
		Tag:    "tst",
		Offset: offset,
		SigLen: 5,
	}
}

// TestCarveBufferBoundaries tests the boundary policy.
func TestCarveBufferBoundaries(t *testing.T) {
	t.Parallel()

	t.Run("registered maximum bounds the carve and is complete", func(t *testing.T) {
		t.Parallel()

		// Pattern followed by max-size filler: the carve must be exactly
		// the maximum, not truncated.
		const maxSize = 1000
		buf := append([]byte("MAGIC"), bytes.Repeat([]byte{0xEE}, maxSize)...)

		c := New(createTestRegistry(t, 0, maxSize))
		ext, dropped := c.CarveBuffer(buf, bufferCandidate(0), 0)

		if dropped {
			t.Fatal("expected extraction, got drop")
		}
		if int64(len(ext.Data)) != maxSize {
			t.Errorf("expected length %d, got %d", maxSize, len(ext.Data))
		}
		if ext.Truncated {
			t.Error("expected carve at registered maximum to be complete")
		}
	})

	t.Run("next candidate bounds the carve and is complete", func(t *testing.T) {
		t.Parallel()

		buf := make([]byte, 10000)
		copy(buf[100:], "MAGIC")

		c := New(createTestRegistry(t, 0, 1<<20))
		ext, dropped := c.CarveBuffer(buf, bufferCandidate(100), 5000)

		if dropped {
			t.Fatal("expected extraction, got drop")
		}
		if len(ext.Data) != 4900 {
			t.Errorf("expected length 4900, got %d", len(ext.Data))
		}
		if ext.Truncated {
			t.Error("expected carve bounded by next candidate to be complete")
		}
	})

	t.Run("safety cap cuts and marks truncated", func(t *testing.T) {
		t.Parallel()

		buf := append([]byte("MAGIC"), bytes.Repeat([]byte{0xEE}, 5000)...)

		c := New(createTestRegistry(t, 0, 0), WithSafetyCap(1000))
		ext, dropped := c.CarveBuffer(buf, bufferCandidate(0), 0)

		if dropped {
			t.Fatal("expected extraction, got drop")
		}
		if len(ext.Data) != 1000 {
			t.Errorf("expected length 1000, got %d", len(ext.Data))
		}
		if !ext.Truncated {
			t.Error("expected safety-cap cut to be marked truncated")
		}
	})

	t.Run("end of buffer without boundary marks truncated", func(t *testing.T) {
		t.Parallel()

		buf := append([]byte("MAGIC"), bytes.Repeat([]byte{0xEE}, 100)...)

		c := New(createTestRegistry(t, 0, 0))
		ext, dropped := c.CarveBuffer(buf, bufferCandidate(0), 0)

		if dropped {
			t.Fatal("expected extraction, got drop")
		}
		if len(ext.Data) != 105 {
			t.Errorf("expected length 105, got %d", len(ext.Data))
		}
		if !ext.Truncated {
			t.Error("expected carve to end of buffer to be marked truncated")
		}
	})

	t.Run("registered maximum exactly at end of buffer is complete", func(t *testing.T) {
		t.Parallel()

		const maxSize = 105
		buf := append([]byte("MAGIC"), bytes.Repeat([]byte{0xEE}, 100)...)

		c := New(createTestRegistry(t, 0, maxSize))
		ext, dropped := c.CarveBuffer(buf, bufferCandidate(0), 0)

		if dropped {
			t.Fatal("expected extraction, got drop")
		}
		if ext.Truncated {
			t.Error("expected carve at registered maximum to be complete")
		}
	})

	t.Run("below minimum is dropped silently", func(t *testing.T) {
		t.Parallel()

		buf := make([]byte, 10000)
		copy(buf[0:], "MAGIC")

		// Next candidate 50 bytes away, minimum 100.
		c := New(createTestRegistry(t, 100, 0))
		_, dropped := c.CarveBuffer(buf, bufferCandidate(0), 50)

		if !dropped {
			t.Error("expected below-minimum extraction to be dropped")
		}
	})

	t.Run("extraction content starts at the signature", func(t *testing.T) {
		t.Parallel()

		buf := append(bytes.Repeat([]byte{0x11}, 64), []byte("MAGICpayload")...)

		c := New(createTestRegistry(t, 0, 0))
		ext, dropped := c.CarveBuffer(buf, bufferCandidate(64), 0)

		if dropped {
			t.Fatal("expected extraction, got drop")
		}
		if !bytes.HasPrefix(ext.Data, []byte("MAGIC")) {
			t.Error("expected extraction to begin with the signature bytes")
		}
		if !bytes.HasSuffix(ext.Data, []byte("payload")) {
			t.Error("expected extraction to reach the end of the buffer")
		}
	})
}

// TestCarveTree tests whole-file extraction.
func TestCarveTree(t *testing.T) {
	t.Parallel()

	t.Run("reads the whole file", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, "photo.png")
		content := append([]byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, []byte("tail")...)
		if err := os.WriteFile(path, content, 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		c := New(signature.NewRegistry())
		ext, dropped, err := c.CarveTree(model.Candidate{
			Source: path,
			Kind:   model.SourceTree,
			Tag:    "png",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dropped {
			t.Fatal("expected extraction, got drop")
		}
		if !bytes.Equal(ext.Data, content) {
			t.Error("expected extraction to equal full file content")
		}
		if ext.Truncated {
			t.Error("tree-mode extraction must never be truncated")
		}
	})

	t.Run("vanished file returns an error", func(t *testing.T) {
		t.Parallel()

		c := New(signature.NewRegistry())
		_, _, err := c.CarveTree(model.Candidate{
			Source: filepath.Join(t.TempDir(), "gone.png"),
			Kind:   model.SourceTree,
			Tag:    "png",
		})
		if err == nil {
			t.Error("expected an error for a vanished candidate")
		}
	})

	t.Run("below minimum file is dropped", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		path := filepath.Join(dir, "small.tst")
		if err := os.WriteFile(path, []byte("MAGIC"), 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		c := New(createTestRegistry(t, 1024, 0))
		_, dropped, err := c.CarveTree(model.Candidate{
			Source: path,
			Kind:   model.SourceTree,
			Tag:    "tst",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !dropped {
			t.Error("expected below-minimum file to be dropped")
		}
	})
}

// TestCarverExtension tests extension lookup.
func TestCarverExtension(t *testing.T) {
	t.Parallel()

	c := New(signature.NewRegistry())
	if got := c.Extension("sqlite"); got != "db" {
		t.Errorf("expected db, got %s", got)
	}
	if got := c.Extension("unregistered"); got != "unregistered" {
		t.Errorf("expected tag fallback, got %s", got)
	}
}

// TestSink tests artifact materialization.
func TestSink(t *testing.T) {
	t.Parallel()

	t.Run("creates a per-run directory", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		sink, err := NewSink(root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		info, err := os.Stat(sink.Dir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !info.IsDir() {
			t.Error("expected run directory to exist")
		}
		if filepath.Dir(sink.Dir()) != root {
			t.Errorf("expected run directory under %s, got %s", root, sink.Dir())
		}
	})

	t.Run("two sinks in the same second get distinct directories", func(t *testing.T) {
		t.Parallel()

		root := t.TempDir()
		first, err := NewSink(root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := NewSink(root)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if first.Dir() == second.Dir() {
			t.Error("expected distinct run directories")
		}
	})

	t.Run("tree artifacts keep their base name", func(t *testing.T) {
		t.Parallel()

		sink, err := NewSink(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dest, err := sink.Write(model.Candidate{
			Source: "/evidence/DCIM/photo.png",
			Kind:   model.SourceTree,
			Tag:    "png",
		}, "png", []byte("content"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if filepath.Base(dest) != "photo.png" {
			t.Errorf("expected photo.png, got %s", filepath.Base(dest))
		}

		data, err := os.ReadFile(dest)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if string(data) != "content" {
			t.Error("expected written content to round-trip")
		}
	})

	t.Run("colliding tree names are disambiguated", func(t *testing.T) {
		t.Parallel()

		sink, err := NewSink(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cand := func(dir string) model.Candidate {
			return model.Candidate{
				Source: dir + "/photo.png",
				Kind:   model.SourceTree,
				Tag:    "png",
			}
		}

		first, err := sink.Write(cand("/a"), "png", []byte("one"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		second, err := sink.Write(cand("/b"), "png", []byte("two"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if first == second {
			t.Error("expected distinct destinations for colliding names")
		}
		for _, dest := range []string{first, second} {
			if _, err := os.Stat(dest); err != nil {
				t.Errorf("expected %s to exist: %v", dest, err)
			}
		}
	})

	t.Run("buffer artifacts are named from their offset", func(t *testing.T) {
		t.Parallel()

		sink, err := NewSink(t.TempDir())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		dest, err := sink.Write(model.Candidate{
			Source: "image.dd",
			Kind:   model.SourceBuffer,
			Tag:    "jpg",
			Offset: 0x1234,
		}, "jpg", []byte("content"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		base := filepath.Base(dest)
		if base != "carved_00001234_1.jpg" {
			t.Errorf("expected carved_00001234_1.jpg, got %s", base)
		}
	})
}

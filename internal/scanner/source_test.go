package scanner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/salvage/internal/model"
)

// TestTreeSource tests tree source construction and accessors.
func TestTreeSource(t *testing.T) {
	t.Parallel()

	src := TreeSource("/mnt/evidence")
	if src.Kind != model.SourceTree {
		t.Errorf("expected tree kind, got %v", src.Kind)
	}
	if src.Locator() != "/mnt/evidence" {
		t.Errorf("expected locator '/mnt/evidence', got %q", src.Locator())
	}
	if src.Size() != 0 {
		t.Errorf("expected size 0 before the walk, got %d", src.Size())
	}
}

// TestBufferSource tests buffer source construction and accessors.
func TestBufferSource(t *testing.T) {
	t.Parallel()

	data := []byte("raw image bytes")
	src := BufferSource("usb.dd", data)
	if src.Kind != model.SourceBuffer {
		t.Errorf("expected buffer kind, got %v", src.Kind)
	}
	if src.Locator() != "usb.dd" {
		t.Errorf("expected locator 'usb.dd', got %q", src.Locator())
	}
	if src.Size() != int64(len(data)) {
		t.Errorf("expected size %d, got %d", len(data), src.Size())
	}
}

// TestBufferSourceFromFile tests loading an image file into a buffer source.
func TestBufferSourceFromFile(t *testing.T) {
	t.Parallel()

	t.Run("loads image content", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "usb.dd")
		content := []byte{0xAA, 0xBB, 0xCC, 0xDD}
		if err := os.WriteFile(path, content, 0o600); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		src, err := BufferSourceFromFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if src.Kind != model.SourceBuffer {
			t.Errorf("expected buffer kind, got %v", src.Kind)
		}
		if src.Name != path {
			t.Errorf("expected name %q, got %q", path, src.Name)
		}
		if src.Size() != int64(len(content)) {
			t.Errorf("expected size %d, got %d", len(content), src.Size())
		}
	})

	t.Run("missing image", func(t *testing.T) {
		t.Parallel()
		_, err := BufferSourceFromFile(filepath.Join(t.TempDir(), "ghost.dd"))
		if err == nil {
			t.Fatal("expected error for missing image")
		}
		if !strings.Contains(err.Error(), "read image") {
			t.Errorf("expected read-image message, got %q", err.Error())
		}
	})
}

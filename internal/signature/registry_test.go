package signature

import (
	"errors"
	"testing"
)

// TestNewRegistry tests the builtin signature table.
func TestNewRegistry(t *testing.T) {
	t.Parallel()

	t.Run("seeds builtin table", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		if reg.Len() == 0 {
			t.Fatal("expected builtin signatures to be registered")
		}

		for _, tag := range []string{"jpg", "png", "gif", "pdf", "zip", "sqlite", "html"} {
			if _, ok := reg.Lookup(tag); !ok {
				t.Errorf("expected builtin tag %q to be registered", tag)
			}
		}
	})

	t.Run("every builtin signature is valid", func(t *testing.T) {
		t.Parallel()

		for _, sig := range NewRegistry().Signatures() {
			if err := sig.Validate(); err != nil {
				t.Errorf("builtin signature %q invalid: %v", sig.Tag, err)
			}
		}
	})

	t.Run("longest builtin pattern is the sqlite magic", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		if got := reg.MaxPatternLen(); got != len("SQLite format 3") {
			t.Errorf("expected max pattern length %d, got %d", len("SQLite format 3"), got)
		}
	})

	t.Run("builtin signatures carry no minimum size", func(t *testing.T) {
		t.Parallel()

		for _, sig := range NewRegistry().Signatures() {
			if sig.MinSize != 0 {
				t.Errorf("builtin %q has minimum size %d, want 0", sig.Tag, sig.MinSize)
			}
		}
	})
}

// TestRegistryRegister tests signature validation on registration.
func TestRegistryRegister(t *testing.T) {
	t.Parallel()

	t.Run("accepts a valid signature", func(t *testing.T) {
		t.Parallel()

		reg := NewEmptyRegistry()
		err := reg.Register(FormatSignature{
			Tag:       "webp",
			Patterns:  [][]byte{[]byte("RIFF")},
			Extension: "webp",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := reg.Lookup("webp"); !ok {
			t.Error("expected registered tag to be found")
		}
	})

	t.Run("rejects malformed signatures", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name    string
			sig     FormatSignature
			wantErr error
		}{
			{
				name:    "empty tag",
				sig:     FormatSignature{Patterns: [][]byte{{0x01}}},
				wantErr: ErrEmptyTag,
			},
			{
				name:    "no patterns",
				sig:     FormatSignature{Tag: "x"},
				wantErr: ErrNoPatterns,
			},
			{
				name:    "empty pattern",
				sig:     FormatSignature{Tag: "x", Patterns: [][]byte{{}}},
				wantErr: ErrEmptyPattern,
			},
			{
				name: "min above max",
				sig: FormatSignature{
					Tag:      "x",
					Patterns: [][]byte{{0x01}},
					MinSize:  100,
					MaxSize:  10,
				},
				wantErr: ErrInvalidSizeBounds,
			},
			{
				name: "negative min",
				sig: FormatSignature{
					Tag:      "x",
					Patterns: [][]byte{{0x01}},
					MinSize:  -1,
				},
				wantErr: ErrInvalidSizeBounds,
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				t.Parallel()

				err := NewEmptyRegistry().Register(tt.sig)
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			})
		}
	})

	t.Run("rejects duplicate tag", func(t *testing.T) {
		t.Parallel()

		reg := NewEmptyRegistry()
		sig := FormatSignature{Tag: "x", Patterns: [][]byte{{0x01}}}
		if err := reg.Register(sig); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := reg.Register(sig); !errors.Is(err, ErrDuplicateTag) {
			t.Errorf("expected ErrDuplicateTag, got %v", err)
		}
	})
}

// TestRegistrySetSizeBounds tests per-tag bounds overrides.
func TestRegistrySetSizeBounds(t *testing.T) {
	t.Parallel()

	t.Run("overrides bounds of a registered tag", func(t *testing.T) {
		t.Parallel()

		reg := NewRegistry()
		if err := reg.SetSizeBounds("jpg", 512, 1<<20); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		sig, ok := reg.Lookup("jpg")
		if !ok {
			t.Fatal("expected jpg to be registered")
		}
		if sig.MinSize != 512 || sig.MaxSize != 1<<20 {
			t.Errorf("expected bounds (512, 1MiB), got (%d, %d)", sig.MinSize, sig.MaxSize)
		}
	})

	t.Run("rejects unknown tag", func(t *testing.T) {
		t.Parallel()

		err := NewRegistry().SetSizeBounds("nope", 0, 100)
		if !errors.Is(err, ErrUnknownTag) {
			t.Errorf("expected ErrUnknownTag, got %v", err)
		}
	})

	t.Run("rejects invalid bounds", func(t *testing.T) {
		t.Parallel()

		err := NewRegistry().SetSizeBounds("jpg", 200, 100)
		if !errors.Is(err, ErrInvalidSizeBounds) {
			t.Errorf("expected ErrInvalidSizeBounds, got %v", err)
		}
	})
}

// TestRegistryTags tests registration-order and sorted tag listings.
func TestRegistryTags(t *testing.T) {
	t.Parallel()

	reg := NewEmptyRegistry()
	for _, tag := range []string{"zzz", "aaa", "mmm"} {
		if err := reg.Register(FormatSignature{Tag: tag, Patterns: [][]byte{{0x01}}}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	tags := reg.Tags()
	if len(tags) != 3 || tags[0] != "zzz" || tags[1] != "aaa" || tags[2] != "mmm" {
		t.Errorf("expected registration order [zzz aaa mmm], got %v", tags)
	}

	sorted := reg.SortedTags()
	if sorted[0] != "aaa" || sorted[1] != "mmm" || sorted[2] != "zzz" {
		t.Errorf("expected lexical order [aaa mmm zzz], got %v", sorted)
	}
}

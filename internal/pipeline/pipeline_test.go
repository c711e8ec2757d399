package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/blake2b"

	"github.com/nao1215/salvage/internal/catalog"
	"github.com/nao1215/salvage/internal/model"
	"github.com/nao1215/salvage/internal/signature"
	"github.com/nao1215/salvage/internal/verify"
)

var (
	pngMagic = []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}
	jpgMagic = []byte{0xFF, 0xD8, 0xFF, 0xE0}
)

// createTestPipeline builds a pipeline over the builtin signature set
// with a temporary recovery root.
func createTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()

	opts = append([]Option{WithRecoveryRoot(t.TempDir())}, opts...)
	p, err := New(signature.NewRegistry(), opts...)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return p
}

// createTestTree writes a small tree with one PNG file and one noise
// file and returns the root and the PNG content.
func createTestTree(t *testing.T) (root string, pngContent []byte) {
	t.Helper()

	root = t.TempDir()

	pngContent = append(append([]byte{}, pngMagic...), bytes.Repeat([]byte{0x5A}, 512)...)
	if err := os.WriteFile(filepath.Join(root, "photo.png"), pngContent, 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "noise.bin"), bytes.Repeat([]byte{0xAA}, 256), 0o644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return root, pngContent
}

// drain consumes a run sequence completely.
func drain(seq iter.Seq[model.Artifact]) []model.Artifact {
	var arts []model.Artifact
	for art := range seq {
		arts = append(arts, art)
	}
	return arts
}

// TestPipelineRunTree tests tree-mode recovery of a whole file.
func TestPipelineRunTree(t *testing.T) {
	t.Parallel()

	p := createTestPipeline(t)
	root, pngContent := createTestTree(t)

	seq, report, err := p.RunTree(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arts := drain(seq)

	if len(arts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(arts))
	}

	art := arts[0]
	if art.Tag != "png" {
		t.Errorf("expected tag png, got %q", art.Tag)
	}
	if art.Size != int64(len(pngContent)) {
		t.Errorf("expected size %d, got %d", len(pngContent), art.Size)
	}
	if art.Offset != 0 {
		t.Errorf("expected offset 0 for tree artifact, got %d", art.Offset)
	}
	if art.Truncated {
		t.Error("whole-file recovery should never be truncated")
	}

	wantHash := sha256.Sum256(pngContent)
	if art.Hash != hex.EncodeToString(wantHash[:]) {
		t.Errorf("expected hash of the whole file, got %q", art.Hash)
	}

	recovered, err := os.ReadFile(art.Destination)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(recovered, pngContent) {
		t.Error("recovered file should be byte-identical to the original")
	}
	if filepath.Dir(art.Destination) != report.RecoveryDir {
		t.Errorf("artifact written outside the run directory: %q", art.Destination)
	}

	if report.Stats.FilesScanned != 2 {
		t.Errorf("expected 2 files scanned, got %d", report.Stats.FilesScanned)
	}
	if report.Stats.Candidates != 1 || report.Stats.Recovered != 1 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
	if report.FinishedAt.IsZero() {
		t.Error("expected report to be finished after drain")
	}
	if p.State() != StateIdle {
		t.Errorf("expected idle pipeline after drain, got %v", p.State())
	}
}

// TestPipelineDedup tests that identical content is cataloged once.
func TestPipelineDedup(t *testing.T) {
	t.Parallel()

	p := createTestPipeline(t)

	root := t.TempDir()
	content := append(append([]byte{}, pngMagic...), bytes.Repeat([]byte{0x11}, 300)...)
	for _, name := range []string{"a.png", "b.png"} {
		if err := os.WriteFile(filepath.Join(root, name), content, 0o644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	seq, report, err := p.RunTree(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arts := drain(seq)

	if len(arts) != 1 {
		t.Fatalf("expected 1 artifact for duplicate content, got %d", len(arts))
	}
	if filepath.Base(arts[0].Destination) != "a.png" {
		t.Errorf("expected the first file in walk order to win, got %q", arts[0].Destination)
	}
	if report.Stats.Candidates != 2 {
		t.Errorf("expected 2 candidates, got %d", report.Stats.Candidates)
	}
	if report.Stats.Recovered != 1 || report.Stats.Duplicates != 1 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
	if p.Catalog().Len() != 1 {
		t.Errorf("expected 1 catalog entry, got %d", p.Catalog().Len())
	}

	entries, err := os.ReadDir(report.RecoveryDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected 1 file in the recovery directory, got %d", len(entries))
	}
}

// TestPipelineRunBuffer tests boundary inference between neighboring
// candidates in a disk image.
func TestPipelineRunBuffer(t *testing.T) {
	t.Parallel()

	p := createTestPipeline(t)

	data := bytes.Repeat([]byte{0xAA}, 1<<20)
	copy(data[100:], jpgMagic)
	copy(data[5000:], pngMagic)

	seq, report, err := p.RunBuffer(context.Background(), "image.dd", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arts := drain(seq)

	if len(arts) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(arts))
	}

	jpg := arts[0]
	if jpg.Tag != "jpg" || jpg.Offset != 100 {
		t.Errorf("unexpected first artifact: tag=%q offset=%d", jpg.Tag, jpg.Offset)
	}
	if jpg.Size != 4900 {
		t.Errorf("expected the next candidate to bound the carve at 4900 bytes, got %d", jpg.Size)
	}
	if jpg.Truncated {
		t.Error("a carve bounded by the next candidate is complete, not truncated")
	}

	png := arts[1]
	if png.Tag != "png" || png.Offset != 5000 {
		t.Errorf("unexpected second artifact: tag=%q offset=%d", png.Tag, png.Offset)
	}
	wantSize := int64(len(data) - 5000)
	if png.Size != wantSize {
		t.Errorf("expected tail carve of %d bytes, got %d", wantSize, png.Size)
	}
	if !png.Truncated {
		t.Error("a carve cut by the end of the buffer is truncated")
	}

	if report.Stats.Candidates != 2 || report.Stats.Recovered != 2 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
	if report.Stats.Truncated != 1 {
		t.Errorf("expected 1 truncated artifact, got %d", report.Stats.Truncated)
	}
	if report.Stats.BytesScanned != int64(len(data)) {
		t.Errorf("expected %d bytes scanned, got %d", len(data), report.Stats.BytesScanned)
	}
}

// TestPipelineBufferDedup tests that dedup is content-based: the same
// bytes at two offsets catalog once even when the carve boundaries
// differ in kind.
func TestPipelineBufferDedup(t *testing.T) {
	t.Parallel()

	p := createTestPipeline(t)

	const half = 4096
	chunk := append(append([]byte{}, pngMagic...), bytes.Repeat([]byte{0x33}, half-len(pngMagic))...)
	data := append(append([]byte{}, chunk...), chunk...)

	seq, report, err := p.RunBuffer(context.Background(), "image.dd", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arts := drain(seq)

	if len(arts) != 1 {
		t.Fatalf("expected 1 artifact for repeated content, got %d", len(arts))
	}
	if arts[0].Offset != 0 {
		t.Errorf("expected the first occurrence to win, got offset %d", arts[0].Offset)
	}
	if report.Stats.Duplicates != 1 {
		t.Errorf("expected 1 duplicate, got %d", report.Stats.Duplicates)
	}
}

// TestPipelineNoiseBuffer tests that a signature-free buffer produces a
// clean, empty, successful run.
func TestPipelineNoiseBuffer(t *testing.T) {
	t.Parallel()

	p := createTestPipeline(t)

	seq, report, err := p.RunBuffer(context.Background(), "noise.dd", bytes.Repeat([]byte{0xAA}, 64<<10))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arts := drain(seq)

	if len(arts) != 0 {
		t.Fatalf("expected no artifacts, got %d", len(arts))
	}
	if report.HasFindings() {
		t.Error("expected a report without findings")
	}
	if report.Stats.Candidates != 0 || report.Stats.Recovered != 0 {
		t.Errorf("unexpected stats: %+v", report.Stats)
	}
	if report.FinishedAt.IsZero() {
		t.Error("expected the run to finish cleanly")
	}

	entries, err := os.ReadDir(report.RecoveryDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected an empty recovery directory, got %d entries", len(entries))
	}
}

// TestPipelineRegisteredMaxBounds tests that every moderately sized
// builtin signature carves exactly its registered maximum when nothing
// else bounds the extraction.
func TestPipelineRegisteredMaxBounds(t *testing.T) {
	t.Parallel()

	const sizeBound = 20 << 20

	for _, sig := range signature.NewRegistry().Signatures() {
		if sig.MaxSize <= 0 || sig.MaxSize > sizeBound {
			continue
		}

		t.Run(sig.Tag, func(t *testing.T) {
			t.Parallel()

			p := createTestPipeline(t, WithSafetyCap(2*sizeBound))

			data := bytes.Repeat([]byte{0xAA}, int(sig.MaxSize)+4096)
			copy(data, sig.Patterns[0])

			seq, _, err := p.RunBuffer(context.Background(), "max.dd", data)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			arts := drain(seq)

			if len(arts) != 1 {
				t.Fatalf("expected 1 artifact, got %d", len(arts))
			}
			if arts[0].Size != sig.MaxSize {
				t.Errorf("expected carve of exactly %d bytes, got %d", sig.MaxSize, arts[0].Size)
			}
			if arts[0].Truncated {
				t.Error("a carve bounded by the registered maximum is complete, not truncated")
			}
		})
	}
}

// TestPipelineEarlyStop tests that abandoning the sequence still
// finalizes the run.
func TestPipelineEarlyStop(t *testing.T) {
	t.Parallel()

	p := createTestPipeline(t)

	const chunk = 4096
	data := make([]byte, 0, 3*chunk)
	for fill := byte(1); fill <= 3; fill++ {
		part := append(append([]byte{}, pngMagic...), bytes.Repeat([]byte{fill}, chunk-len(pngMagic))...)
		data = append(data, part...)
	}

	seq, report, err := p.RunBuffer(context.Background(), "image.dd", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got int
	for range seq {
		got++
		break
	}

	if got != 1 {
		t.Fatalf("expected to stop after 1 artifact, got %d", got)
	}
	if p.Catalog().Len() != 1 {
		t.Errorf("expected 1 catalog entry after early stop, got %d", p.Catalog().Len())
	}
	if report.FinishedAt.IsZero() {
		t.Error("expected the abandoned run to be finalized")
	}
	if p.State() != StateIdle {
		t.Errorf("expected idle pipeline after early stop, got %v", p.State())
	}
}

// TestPipelineBelowMinimumDrop tests that extractions under a format's
// registered minimum are dropped and counted.
func TestPipelineBelowMinimumDrop(t *testing.T) {
	t.Parallel()

	reg := signature.NewEmptyRegistry()
	err := reg.Register(signature.FormatSignature{
		Tag:       "blob",
		Patterns:  [][]byte{{0x42, 0x4C}},
		MinSize:   1024,
		Extension: "blob",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	p, err := New(reg, WithRecoveryRoot(t.TempDir()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The only candidate sits 64 bytes before the end of the buffer.
	data := bytes.Repeat([]byte{0xAA}, 4096)
	copy(data[len(data)-64:], []byte{0x42, 0x4C})

	seq, report, err := p.RunBuffer(context.Background(), "image.dd", data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arts := drain(seq)

	if len(arts) != 0 {
		t.Fatalf("expected no artifacts, got %d", len(arts))
	}
	if report.Stats.Candidates != 1 {
		t.Errorf("expected 1 candidate, got %d", report.Stats.Candidates)
	}
	if report.Stats.DroppedBelowMin != 1 {
		t.Errorf("expected 1 below-minimum drop, got %d", report.Stats.DroppedBelowMin)
	}
}

// TestPipelineBlake2b tests the alternate digest algorithm end to end.
func TestPipelineBlake2b(t *testing.T) {
	t.Parallel()

	p := createTestPipeline(t, WithHashAlgorithm(verify.BLAKE2b))
	root, pngContent := createTestTree(t)

	seq, report, err := p.RunTree(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	arts := drain(seq)

	if len(arts) != 1 {
		t.Fatalf("expected 1 artifact, got %d", len(arts))
	}
	want := blake2b.Sum256(pngContent)
	if arts[0].Hash != hex.EncodeToString(want[:]) {
		t.Errorf("expected BLAKE2b hash, got %q", arts[0].Hash)
	}
	if report.HashAlgorithm != "blake2b" {
		t.Errorf("expected blake2b on the report, got %q", report.HashAlgorithm)
	}
}

// TestPipelineArchive tests write-behind archiving to the catalog store.
func TestPipelineArchive(t *testing.T) {
	t.Parallel()

	store, err := catalog.Open(t.TempDir(), catalog.DefaultOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer store.Close()

	p := createTestPipeline(t, WithStore(store))
	root, _ := createTestTree(t)

	seq, report, err := p.RunTree(context.Background(), root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	drain(seq)

	ctx := context.Background()
	history, err := store.RunHistory(ctx, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected 1 archived run, got %d", len(history))
	}
	if history[0].Recovered != 1 {
		t.Errorf("expected archived recovered count 1, got %d", history[0].Recovered)
	}
	if history[0].RecoveryDir != report.RecoveryDir {
		t.Errorf("expected archived recovery dir %q, got %q", report.RecoveryDir, history[0].RecoveryDir)
	}

	arts, err := store.ArtifactsByRun(ctx, history[0].ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(arts) != 1 {
		t.Fatalf("expected 1 archived artifact, got %d", len(arts))
	}
	if arts[0].Tag != "png" {
		t.Errorf("expected archived png artifact, got %q", arts[0].Tag)
	}

	latest, err := store.LatestRun(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if latest == nil || len(latest.Artifacts) != 1 {
		t.Fatal("expected the finalized report to round-trip through the archive")
	}
}

// TestNewValidation tests that misconfiguration refuses to start.
func TestNewValidation(t *testing.T) {
	t.Parallel()

	t.Run("nil registry", func(t *testing.T) {
		t.Parallel()

		_, err := New(nil, WithRecoveryRoot(t.TempDir()))
		if !errors.Is(err, ErrNilRegistry) {
			t.Errorf("expected ErrNilRegistry, got %v", err)
		}
	})

	t.Run("missing recovery root", func(t *testing.T) {
		t.Parallel()

		_, err := New(signature.NewRegistry())
		if !errors.Is(err, ErrNoRecoveryRoot) {
			t.Errorf("expected ErrNoRecoveryRoot, got %v", err)
		}
	})

	t.Run("unknown filter tag", func(t *testing.T) {
		t.Parallel()

		_, err := New(signature.NewRegistry(),
			WithRecoveryRoot(t.TempDir()),
			WithTags("no-such-format"))
		if !errors.Is(err, signature.ErrUnknownTag) {
			t.Errorf("expected ErrUnknownTag, got %v", err)
		}
	})

	t.Run("unknown hash algorithm", func(t *testing.T) {
		t.Parallel()

		_, err := New(signature.NewRegistry(),
			WithRecoveryRoot(t.TempDir()),
			WithHashAlgorithm(verify.Algorithm("md5")))
		if !errors.Is(err, verify.ErrUnknownAlgorithm) {
			t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
		}
	})

	t.Run("empty registry", func(t *testing.T) {
		t.Parallel()

		_, err := New(signature.NewEmptyRegistry(), WithRecoveryRoot(t.TempDir()))
		if !errors.Is(err, ErrNoSignatures) {
			t.Errorf("expected ErrNoSignatures, got %v", err)
		}
	})
}

// TestStateString tests the state names.
func TestStateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		state State
		want  string
	}{
		{StateIdle, "idle"},
		{StateScanning, "scanning"},
		{StateCarving, "carving"},
		{StateVerifying, "verifying"},
		{StateCataloged, "cataloged"},
		{StateFailed, "failed"},
		{State(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}

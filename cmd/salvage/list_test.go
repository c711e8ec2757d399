package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/salvage/internal/catalog"
	"github.com/nao1215/salvage/internal/model"
)

// saveTestRun archives a fabricated run and returns its catalog ID.
func saveTestRun(t *testing.T, store *catalog.Store, source string, startedAt time.Time, artifacts []model.Artifact) int64 {
	t.Helper()

	report := model.NewRunReport(source, model.SourceTree)
	report.RecoveryDir = "forensic_recovery/run_test"
	report.HashAlgorithm = "sha256"
	report.StartedAt = startedAt
	report.FinishedAt = startedAt.Add(2 * time.Second)
	report.Stats.FilesScanned = int64(len(artifacts)) + 1
	report.Stats.Candidates = len(artifacts)
	report.Stats.Recovered = len(artifacts)
	for _, a := range artifacts {
		if a.Truncated {
			report.Stats.Truncated++
		}
	}
	report.Artifacts = artifacts

	runID, err := store.SaveRun(context.Background(), report)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return runID
}

// testArtifact builds an archived artifact record for seeding.
func testArtifact(tag, name, hash string, size int64) model.Artifact {
	return model.Artifact{
		Tag:         tag,
		Source:      "/mnt/evidence",
		Size:        size,
		Hash:        hash,
		Destination: "forensic_recovery/run_test/" + tag + "/" + name,
		RecoveredAt: time.Date(2026, 8, 20, 10, 0, 1, 0, time.UTC),
	}
}

// TestNewListCmd tests the list command creation and flag registration.
func TestNewListCmd(t *testing.T) {
	t.Parallel()

	cmd := NewListCmd()

	t.Run("has correct use", func(t *testing.T) {
		t.Parallel()
		if cmd.Use != "list" {
			t.Errorf("expected use 'list', got %q", cmd.Use)
		}
	})

	t.Run("has short description", func(t *testing.T) {
		t.Parallel()
		if cmd.Short == "" {
			t.Error("expected non-empty short description")
		}
	})

	t.Run("has run flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("run")
		if flag == nil {
			t.Fatal("expected run flag")
		}
		if flag.DefValue != "0" {
			t.Errorf("expected default '0', got %q", flag.DefValue)
		}
	})

	t.Run("has source flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("source")
		if flag == nil {
			t.Fatal("expected source flag")
		}
		if flag.Shorthand != "s" {
			t.Errorf("expected shorthand 's', got %q", flag.Shorthand)
		}
	})

	t.Run("has tag flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("tag")
		if flag == nil {
			t.Fatal("expected tag flag")
		}
		if flag.Shorthand != "t" {
			t.Errorf("expected shorthand 't', got %q", flag.Shorthand)
		}
	})

	t.Run("has limit flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("limit")
		if flag == nil {
			t.Fatal("expected limit flag")
		}
		if flag.Shorthand != "n" {
			t.Errorf("expected shorthand 'n', got %q", flag.Shorthand)
		}
		if flag.DefValue != "20" {
			t.Errorf("expected default '20', got %q", flag.DefValue)
		}
	})

	t.Run("has json flag", func(t *testing.T) {
		t.Parallel()
		flag := cmd.Flags().Lookup("json")
		if flag == nil {
			t.Fatal("expected json flag")
		}
		if flag.Shorthand != "j" {
			t.Errorf("expected shorthand 'j', got %q", flag.Shorthand)
		}
	})

	t.Run("has catalog-dir flag", func(t *testing.T) {
		t.Parallel()
		if cmd.Flags().Lookup("catalog-dir") == nil {
			t.Error("expected catalog-dir flag")
		}
	})
}

// TestOpenCatalog tests read-style catalog opening.
func TestOpenCatalog(t *testing.T) {
	t.Parallel()

	t.Run("missing catalog", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()

		_, err := openCatalog(dir)
		if err == nil {
			t.Fatal("expected error for missing catalog")
		}
		if !strings.Contains(err.Error(), "no catalog at") {
			t.Errorf("expected missing-catalog message, got %q", err.Error())
		}
	})

	t.Run("existing catalog", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		store, err := catalog.Open(dir, catalog.DefaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		opened, err := openCatalog(dir)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := opened.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})
}

// TestRunListCmdMissingCatalog tests the hint for an absent catalog.
func TestRunListCmdMissingCatalog(t *testing.T) {
	t.Parallel()

	rootCmd := NewRootCmd()
	rootCmd.SetArgs([]string{"list", "--catalog-dir", t.TempDir()})

	err := rootCmd.Execute()
	if err == nil {
		t.Fatal("expected error for missing catalog")
	}
	if !strings.Contains(err.Error(), "no catalog at") {
		t.Errorf("expected missing-catalog message, got %q", err.Error())
	}
}

// TestRunListCmd tests the list command against a seeded catalog.
// Note: Not using t.Parallel() because these tests capture os.Stdout.
func TestRunListCmd(t *testing.T) {
	seedCatalog := func(t *testing.T) (string, *catalog.Store) {
		t.Helper()
		catalogDir := t.TempDir()
		store, err := catalog.Open(catalogDir, catalog.DefaultOptions())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return catalogDir, store
	}

	execute := func(t *testing.T, args ...string) string {
		t.Helper()
		oldStdout := os.Stdout
		r, w, _ := os.Pipe()
		os.Stdout = w

		rootCmd := NewRootCmd()
		rootCmd.SetArgs(args)
		execErr := rootCmd.Execute()

		w.Close()
		os.Stdout = oldStdout
		var buf bytes.Buffer
		_, _ = buf.ReadFrom(r)
		r.Close()

		if execErr != nil {
			t.Fatalf("unexpected error: %v", execErr)
		}
		return buf.String()
	}

	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)

	t.Run("no runs archived", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--catalog-dir", catalogDir)
		if !strings.Contains(out, "No archived runs found.") {
			t.Errorf("expected empty-catalog message, got %q", out)
		}
	})

	t.Run("lists archived runs newest first", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		saveTestRun(t, store, "/evidence/alpha", base, nil)
		saveTestRun(t, store, "/evidence/beta", base.Add(24*time.Hour), nil)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--catalog-dir", catalogDir)
		if !strings.Contains(out, "Archived runs (2):") {
			t.Errorf("expected run count header, got %q", out)
		}
		alphaAt := strings.Index(out, "/evidence/alpha")
		betaAt := strings.Index(out, "/evidence/beta")
		if alphaAt < 0 || betaAt < 0 {
			t.Fatalf("expected both sources in output, got %q", out)
		}
		if betaAt > alphaAt {
			t.Error("expected the most recent run to be listed first")
		}
	})

	t.Run("filters by source", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		saveTestRun(t, store, "/evidence/alpha", base, nil)
		saveTestRun(t, store, "/evidence/beta", base.Add(24*time.Hour), nil)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--source", "/evidence/alpha", "--catalog-dir", catalogDir)
		if !strings.Contains(out, "Archived runs (1):") {
			t.Errorf("expected a single run, got %q", out)
		}
		if !strings.Contains(out, "/evidence/alpha") {
			t.Error("expected the filtered source in output")
		}
		if strings.Contains(out, "/evidence/beta") {
			t.Error("expected other sources to be filtered out")
		}
	})

	t.Run("limit bounds the listing", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		for i := 0; i < 3; i++ {
			saveTestRun(t, store, "/evidence/alpha", base.Add(time.Duration(i)*time.Hour), nil)
		}
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--limit", "2", "--catalog-dir", catalogDir)
		if !strings.Contains(out, "Archived runs (2):") {
			t.Errorf("expected 2 listed runs, got %q", out)
		}
	})

	t.Run("lists run artifacts", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		runID := saveTestRun(t, store, "/evidence/alpha", base, []model.Artifact{
			testArtifact("jpg", "photo_000001.jpg", "a1f0", 2048),
			testArtifact("png", "graphic_000002.png", "b2e1", 4096),
		})
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--run", strconv.FormatInt(runID, 10), "--catalog-dir", catalogDir)
		if !strings.Contains(out, fmt.Sprintf("Run %d: /evidence/alpha", runID)) {
			t.Errorf("expected run header, got %q", out)
		}
		if !strings.Contains(out, "Recovered into forensic_recovery/run_test") {
			t.Errorf("expected recovery directory, got %q", out)
		}
		if !strings.Contains(out, "photo_000001.jpg") || !strings.Contains(out, "graphic_000002.png") {
			t.Errorf("expected artifact names, got %q", out)
		}
	})

	t.Run("run without artifacts", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		runID := saveTestRun(t, store, "/evidence/alpha", base, nil)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--run", strconv.FormatInt(runID, 10), "--catalog-dir", catalogDir)
		if !strings.Contains(out, "No artifacts were recovered by this run.") {
			t.Errorf("expected empty-run message, got %q", out)
		}
	})

	t.Run("run not found", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		saveTestRun(t, store, "/evidence/alpha", base, nil)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		rootCmd := NewRootCmd()
		rootCmd.SetArgs([]string{"list", "--run", "999", "--catalog-dir", catalogDir})

		err := rootCmd.Execute()
		if err == nil {
			t.Fatal("expected error for unknown run ID")
		}
		if !strings.Contains(err.Error(), "run 999 not found") {
			t.Errorf("expected run-not-found message, got %q", err.Error())
		}
	})

	t.Run("lists tag artifacts", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		saveTestRun(t, store, "/evidence/alpha", base, []model.Artifact{
			testArtifact("jpg", "photo_000001.jpg", "a1f0", 2048),
			testArtifact("png", "graphic_000002.png", "b2e1", 4096),
		})
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--tag", "jpg", "--catalog-dir", catalogDir)
		if !strings.Contains(out, "Archived jpg artifacts (1):") {
			t.Errorf("expected tag listing header, got %q", out)
		}
		if !strings.Contains(out, "photo_000001.jpg") {
			t.Error("expected the jpg artifact in output")
		}
		if strings.Contains(out, "graphic_000002.png") {
			t.Error("expected other tags to be filtered out")
		}
	})

	t.Run("no artifacts with tag", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		saveTestRun(t, store, "/evidence/alpha", base, nil)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--tag", "tiff", "--catalog-dir", catalogDir)
		if !strings.Contains(out, `No archived artifacts with tag "tiff"`) {
			t.Errorf("expected empty-tag message, got %q", out)
		}
	})

	t.Run("json run listing", func(t *testing.T) {
		catalogDir, store := seedCatalog(t)
		saveTestRun(t, store, "/evidence/alpha", base, nil)
		if err := store.Close(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		out := execute(t, "list", "--json", "--catalog-dir", catalogDir)
		if !strings.HasPrefix(strings.TrimSpace(out), "[") {
			t.Errorf("expected a JSON array, got %q", out)
		}
		if !strings.Contains(out, `"source": "/evidence/alpha"`) {
			t.Errorf("expected source field in JSON, got %q", out)
		}
	})
}

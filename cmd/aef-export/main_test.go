package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/withObsrvr/aef-exporter/internal/ledger"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func seedLedger(t *testing.T, path string) {
	t.Helper()
	ctx := context.Background()
	l, err := ledger.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if err := l.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	for _, rec := range []ledger.Record{
		{TaskID: "TASK1", JobName: "batch1", ImageID: "a/1", Year: "2021", S3Path: "s3://out-bucket/batch1/2021/32N/1"},
		{TaskID: "TASK2", JobName: "other", ImageID: "b/1", Year: "2022", S3Path: "s3://out-bucket/other/2022/33N/1"},
	} {
		if _, err := l.Append(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
}

func TestUsageErrors(t *testing.T) {
	if code, _, _ := runCLI(t); code != exitUsage {
		t.Errorf("no args: exit %d, want %d", code, exitUsage)
	}
	if code, _, stderr := runCLI(t, "frobnicate"); code != exitUsage || !strings.Contains(stderr, "unknown command") {
		t.Errorf("unknown command: exit %d, stderr %q", code, stderr)
	}
	if code, _, _ := runCLI(t, "export-aoi", "aoi.geojson", "d", "t", "b"); code != exitUsage {
		t.Errorf("missing -job-name: exit %d, want %d", code, exitUsage)
	}
	if code, _, _ := runCLI(t, "export-image", "only-one-arg"); code != exitUsage {
		t.Errorf("export-image arity: exit %d, want %d", code, exitUsage)
	}
}

func TestVersion(t *testing.T) {
	code, stdout, _ := runCLI(t, "version")
	if code != exitSuccess || !strings.Contains(stdout, version) {
		t.Errorf("version: exit %d, stdout %q", code, stdout)
	}
}

func TestExportAOIRejectsNonPolygon(t *testing.T) {
	path := filepath.Join(t.TempDir(), "point.geojson")
	if err := os.WriteFile(path, []byte(`{"type":"Point","coordinates":[1,2]}`), 0644); err != nil {
		t.Fatal(err)
	}

	code, _, stderr := runCLI(t, "export-aoi", "-job-name", "batch1", path, "aef", "coverage", "out-bucket")
	if code != exitUsage {
		t.Errorf("exit %d, want %d", code, exitUsage)
	}
	if !strings.Contains(stderr, "Polygon or a Feature") {
		t.Errorf("expected descriptive message, got %q", stderr)
	}
}

func TestJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	seedLedger(t, path)
	t.Setenv("LEDGER_PATH", path)

	code, stdout, stderr := runCLI(t, "jobs", "-job-name", "batch1")
	if code != exitSuccess {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "TASK1") || strings.Contains(stdout, "TASK2") {
		t.Errorf("unexpected listing:\n%s", stdout)
	}

	if code, _, _ := runCLI(t, "jobs", "-status", "lost"); code != exitUsage {
		t.Errorf("bad status: exit %d, want %d", code, exitUsage)
	}
}

func TestSnapshotLocal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	seedLedger(t, path)
	outDir := filepath.Join(dir, "store")

	t.Setenv("LEDGER_PATH", path)
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("LOCAL_DIR", outDir)

	code, stdout, stderr := runCLI(t, "snapshot", "-job-name", "batch1")
	if code != exitSuccess {
		t.Fatalf("exit %d: %s", code, stderr)
	}
	if !strings.Contains(stdout, "Snapshot of 1 records: file://") {
		t.Errorf("unexpected output %q", stdout)
	}

	matches, err := filepath.Glob(filepath.Join(outDir, "batch1", "_snapshots", "ledger-*.parquet"))
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 {
		t.Errorf("expected one snapshot file, got %v", matches)
	}
}

func TestSnapshotNeedsStorage(t *testing.T) {
	t.Setenv("LEDGER_PATH", filepath.Join(t.TempDir(), "ledger.db"))
	t.Setenv("STORAGE_BACKEND", "")

	if code, _, _ := runCLI(t, "snapshot", "-job-name", "batch1"); code != exitUsage {
		t.Errorf("exit %d, want %d", code, exitUsage)
	}
}

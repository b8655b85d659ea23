package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"
)

func TestBlobStoreWriteExists(t *testing.T) {
	ctx := context.Background()
	store := NewBlobStore(memblob.OpenBucket(nil), "s3", "out-bucket", "aef/")
	defer store.Close()

	ok, err := store.Exists(ctx, "batch1/2021/32N/1.tif")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if ok {
		t.Fatal("object should not exist yet")
	}

	if err := store.Write(ctx, "batch1/2021/32N/1.tif", []byte("tif")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	ok, err = store.Exists(ctx, "batch1/2021/32N/1.tif")
	if err != nil {
		t.Fatalf("Exists failed: %v", err)
	}
	if !ok {
		t.Error("object should exist after write")
	}

	if got, want := store.URI("batch1/x.json"), "s3://out-bucket/aef/batch1/x.json"; got != want {
		t.Errorf("URI = %q, want %q", got, want)
	}
}

func TestLocalStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewLocalStore(tmpDir, "aef/")
	if err != nil {
		t.Fatalf("NewLocalStore failed: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Write(ctx, "batch1/_manifests/run.json", []byte("{}")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(tmpDir, "aef", "batch1", "_manifests", "run.json"))
	if err != nil {
		t.Fatalf("file not written: %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("unexpected contents %q", data)
	}

	uri := store.URI("batch1/_manifests/run.json")
	if !strings.HasPrefix(uri, "file:///") || !strings.HasSuffix(uri, "/aef/batch1/_manifests/run.json") {
		t.Errorf("unexpected URI %q", uri)
	}
}

func TestWriteManifest(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	store := NewBlobStore(bucket, "gs", "manifests", "")
	defer store.Close()

	m := &Manifest{
		RunID:       "run-1",
		JobName:     "batch1",
		State:       "done",
		RowsQueried: 2,
		Submitted: []SubmittedInfo{
			{ImageID: "a/1", TaskID: "T1", Location: "s3://out/batch1/2021/32N/1", LedgerID: 1},
		},
		Failed: []FailedInfo{
			{ImageID: "a/2", Kind: "storage", Error: "disk full", OrphanTaskID: "T2"},
		},
		Producer:   ProducerInfo{Name: "aef-export", Version: "test"},
		StartedAt:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		FinishedAt: time.Date(2024, 1, 1, 0, 1, 0, 0, time.UTC),
	}

	uri, err := WriteManifest(ctx, store, m)
	if err != nil {
		t.Fatalf("WriteManifest failed: %v", err)
	}
	if uri != "gs://manifests/batch1/_manifests/run-1.json" {
		t.Errorf("unexpected URI %q", uri)
	}

	data, err := bucket.ReadAll(ctx, "batch1/_manifests/run-1.json")
	if err != nil {
		t.Fatalf("manifest not stored: %v", err)
	}

	var got Manifest
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("manifest is not JSON: %v", err)
	}
	if got.Failed[0].OrphanTaskID != "T2" || got.Submitted[0].LedgerID != 1 {
		t.Errorf("round trip lost fields: %+v", got)
	}
}

func TestSnapshotKey(t *testing.T) {
	got := SnapshotKey("batch1", time.Date(2024, 3, 5, 6, 7, 8, 0, time.UTC))
	if got != "batch1/_snapshots/ledger-20240305T060708Z.parquet" {
		t.Errorf("got %q", got)
	}
}

func TestNewUnknownBackend(t *testing.T) {
	if _, err := New(Config{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
	if _, err := New(Config{Backend: "s3"}); err == nil {
		t.Error("expected error for missing bucket")
	}
	if _, err := ForOutput("ftp", "b", Config{}); err == nil {
		t.Error("expected error for unknown scheme")
	}
}

package ledger

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/withObsrvr/aef-exporter/internal/errs"
)

func openMemory(t *testing.T) *Ledger {
	t.Helper()
	l, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })
	if err := l.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	return l
}

func TestInitializeTwice(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	if _, err := l.Append(ctx, Record{TaskID: "T1", JobName: "j", ImageID: "a/1", Year: "2021", S3Path: "s3://b/j/2021/32N/1"}); err != nil {
		t.Fatal(err)
	}
	if err := l.Initialize(ctx); err != nil {
		t.Fatalf("second Initialize failed: %v", err)
	}

	n, err := l.Count(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("expected 1 record after re-initialize, got %d", n)
	}
}

func TestAppendAndList(t *testing.T) {
	ctx := context.Background()
	l := openMemory(t)

	eecu := 12.5
	inputs := []Record{
		{TaskID: "T1", JobName: "batch1", ImageID: "a/1", Year: "2021", S3Path: "s3://out/batch1/2021/32N/1"},
		{TaskID: "T2", JobName: "batch1", ImageID: "a/2", Year: "2021", S3Path: "s3://out/batch1/2021/32N/2", EECUSeconds: &eecu, Status: StatusSucceeded},
		{TaskID: "T3", JobName: "other", ImageID: "b/1", Year: "2022", S3Path: "s3://out/other/2022/33N/1"},
	}
	for i, rec := range inputs {
		id, err := l.Append(ctx, rec)
		if err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
		if id != int64(i+1) {
			t.Errorf("expected id %d, got %d", i+1, id)
		}
	}

	all, err := l.List(ctx, Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 records, got %d", len(all))
	}

	first := all[0]
	if first.Status != StatusQueued {
		t.Errorf("empty status should default to queued, got %q", first.Status)
	}
	if first.Year != "2021" || first.TaskID != "T1" || first.ImageID != "a/1" {
		t.Errorf("unexpected record %+v", first)
	}
	if first.EECUSeconds != nil || first.RuntimeSeconds != nil {
		t.Error("cost fields should be null")
	}
	if all[1].EECUSeconds == nil || *all[1].EECUSeconds != 12.5 {
		t.Errorf("eecu_seconds not stored: %+v", all[1])
	}

	batch, err := l.List(ctx, Filter{JobName: "batch1", Status: StatusQueued})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch) != 1 || batch[0].TaskID != "T1" {
		t.Errorf("filter returned %+v", batch)
	}

	limited, err := l.List(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 records with limit, got %d", len(limited))
	}

	n, err := l.Count(ctx, Filter{JobName: "batch1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 batch1 records, got %d", n)
	}
}

func TestAppendRejectsUnknownStatus(t *testing.T) {
	l := openMemory(t)
	_, err := l.Append(context.Background(), Record{Status: "lost"})
	if !errs.Is(err, errs.InvalidInput) {
		t.Errorf("expected InvalidInput, got %v", err)
	}
}

func TestDurableAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ledger.db")

	l, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := l.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	if _, err := l.Append(ctx, Record{TaskID: "T1", JobName: "j", ImageID: "a/1", Year: "2020"}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	l, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer l.Close()
	if err := l.Initialize(ctx); err != nil {
		t.Fatal(err)
	}

	records, err := l.List(ctx, Filter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].TaskID != "T1" || records[0].Year != "2020" {
		t.Errorf("record not durable: %+v", records)
	}
}

func TestOpenUnwritablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "ledger.db")
	_, err := Open(path)
	if !errs.Is(err, errs.Storage) {
		t.Errorf("expected Storage error, got %v", err)
	}
}

func TestAppendWithoutInitialize(t *testing.T) {
	l, err := Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	_, err = l.Append(context.Background(), Record{TaskID: "T1"})
	if !errs.Is(err, errs.Storage) {
		t.Errorf("expected Storage error, got %v", err)
	}
}

func TestWriteSnapshot(t *testing.T) {
	runtime := 30.0
	records := []Record{
		{ID: 1, TaskID: "T1", JobName: "batch1", Status: StatusQueued, ImageID: "a/1", Year: "2021", S3Path: "s3://out/1"},
		{ID: 2, TaskID: "T2", JobName: "batch1", Status: StatusSucceeded, ImageID: "a/2", Year: "2021", S3Path: "s3://out/2", RuntimeSeconds: &runtime},
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(&buf, records); err != nil {
		t.Fatalf("WriteSnapshot failed: %v", err)
	}

	got, err := parquet.Read[Record](bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
	if got[1].RuntimeSeconds == nil || *got[1].RuntimeSeconds != 30 {
		t.Errorf("runtime not preserved: %+v", got[1])
	}
	if got[0].RuntimeSeconds != nil {
		t.Errorf("null runtime should stay null: %+v", got[0])
	}
}

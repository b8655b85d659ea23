package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Manifest describes one AOI batch run.
type Manifest struct {
	RunID       string          `json:"run_id"`
	JobName     string          `json:"job_name"`
	State       string          `json:"state"`
	Bucket      string          `json:"bucket"`
	RowsQueried int             `json:"rows_queried"`
	Submitted   []SubmittedInfo `json:"submitted"`
	Skipped     []string        `json:"skipped,omitempty"`
	Deferred    []string        `json:"deferred,omitempty"`
	Failed      []FailedInfo    `json:"failed,omitempty"`
	Producer    ProducerInfo    `json:"producer"`
	StartedAt   time.Time       `json:"started_at"`
	FinishedAt  time.Time       `json:"finished_at"`
}

// SubmittedInfo describes a row that was submitted and recorded.
type SubmittedInfo struct {
	ImageID  string `json:"image_id"`
	TaskID   string `json:"task_id"`
	Location string `json:"location"`
	LedgerID int64  `json:"ledger_id"`
}

// FailedInfo describes a row that failed. OrphanTaskID is set when the
// remote task was created but could not be recorded.
type FailedInfo struct {
	ImageID      string `json:"image_id"`
	Kind         string `json:"kind"`
	Error        string `json:"error"`
	OrphanTaskID string `json:"orphan_task_id,omitempty"`
}

// ProducerInfo describes the software that produced the manifest.
type ProducerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// MarshalJSON returns the manifest as indented JSON bytes.
func (m *Manifest) MarshalJSON() ([]byte, error) {
	type Alias Manifest
	return json.MarshalIndent((*Alias)(m), "", "  ")
}

// ManifestKey returns the key of a run's manifest, relative to the store prefix.
func ManifestKey(jobName, runID string) string {
	return fmt.Sprintf("%s/_manifests/%s.json", jobName, runID)
}

// SnapshotKey returns the key of a ledger snapshot taken at t.
func SnapshotKey(jobName string, t time.Time) string {
	return fmt.Sprintf("%s/_snapshots/ledger-%s.parquet", jobName, t.UTC().Format("20060102T150405Z"))
}

// WriteManifest stores m under its manifest key and returns its URI.
func WriteManifest(ctx context.Context, s Store, m *Manifest) (string, error) {
	data, err := m.MarshalJSON()
	if err != nil {
		return "", fmt.Errorf("marshal manifest: %w", err)
	}

	key := ManifestKey(m.JobName, m.RunID)
	if err := s.Write(ctx, key, data); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return s.URI(key), nil
}

// Package export submits single export tasks to the remote compute service.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/withObsrvr/aef-exporter/internal/engine"
	"github.com/withObsrvr/aef-exporter/internal/errs"
	"github.com/withObsrvr/aef-exporter/internal/metrics"
	"github.com/withObsrvr/aef-exporter/internal/quantize"
)

const (
	// MaxPixels is the pixel ceiling for a single image export.
	MaxPixels int64 = 2e10

	ImageWorkloadTag    = "export-image"
	CoverageWorkloadTag = "image-collection-coverage"
)

// ImageRequest asks for one asset to be exported to cloud storage.
// KeyPrefix is used as given; normalizing it is the caller's job.
type ImageRequest struct {
	AssetID   string
	Bucket    string
	KeyPrefix string
	Quantize  bool
}

// CoverageRequest asks for a collection's footprint metadata to be exported
// to a warehouse table.
type CoverageRequest struct {
	ProjectID  string
	Dataset    string
	Table      string
	Collection string
}

// Exporter submits export tasks. It never retries.
type Exporter struct {
	client engine.Client
	log    *slog.Logger
}

// New creates an exporter backed by client.
func New(client engine.Client) *Exporter {
	return &Exporter{
		client: client,
		log:    slog.With("component", "exporter"),
	}
}

// ExportImage submits one image export and returns the remote task id.
// Remote rejections are returned unmodified.
func (e *Exporter) ExportImage(ctx context.Context, req ImageRequest) (string, error) {
	const op = "export image"

	if req.AssetID == "" {
		return "", errs.Errorf(errs.InvalidInput, op, "asset id is required")
	}
	if req.Bucket == "" {
		return "", errs.Errorf(errs.InvalidInput, op, "bucket is required")
	}
	if req.KeyPrefix == "" {
		return "", errs.Errorf(errs.InvalidInput, op, "key prefix is required")
	}

	img := engine.LoadImage(req.AssetID)
	if req.Quantize {
		img = quantize.Image(img)
	}

	var taskID string
	start := time.Now()
	err := engine.WithWorkloadTag(e.client, ImageWorkloadTag, func() error {
		var err error
		taskID, err = e.client.ExportImage(ctx, engine.ImageExport{
			Image:          img,
			Description:    "export-image-" + TrailingSegment(req.AssetID),
			Bucket:         req.Bucket,
			FilePrefix:     req.KeyPrefix,
			MaxPixels:      MaxPixels,
			CloudOptimized: true,
			RequestID:      uuid.NewString(),
		})
		return err
	})
	if m := metrics.Get(); m != nil {
		m.ObserveSubmitDuration("image", time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}

	e.log.Info("image export submitted",
		"asset_id", req.AssetID,
		"bucket", req.Bucket,
		"key_prefix", req.KeyPrefix,
		"quantize", req.Quantize,
		"task_id", taskID,
	)
	return taskID, nil
}

// ExportCollectionCoverage exports one feature per image of the collection,
// carrying the image properties and footprint, to project.dataset.table.
func (e *Exporter) ExportCollectionCoverage(ctx context.Context, req CoverageRequest) (string, error) {
	const op = "export coverage"

	if req.ProjectID == "" || req.Dataset == "" || req.Table == "" {
		return "", errs.Errorf(errs.InvalidInput, op, "project, dataset and table are required")
	}
	if req.Collection == "" {
		return "", errs.Errorf(errs.InvalidInput, op, "collection is required")
	}

	fc := engine.LoadImageCollection(req.Collection).MapImages(CoverageFeature)
	table := fmt.Sprintf("%s.%s.%s", req.ProjectID, req.Dataset, req.Table)

	var taskID string
	start := time.Now()
	err := engine.WithWorkloadTag(e.client, CoverageWorkloadTag, func() error {
		var err error
		taskID, err = e.client.ExportTable(ctx, engine.TableExport{
			Collection:  fc,
			Description: "image-collection-coverage-" + uuid.NewString()[:8],
			Table:       table,
			Overwrite:   true,
			RequestID:   uuid.NewString(),
		})
		return err
	})
	if m := metrics.Get(); m != nil {
		m.ObserveSubmitDuration("table", time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}

	e.log.Info("coverage export submitted", "collection", req.Collection, "table", table, "task_id", taskID)
	return taskID, nil
}

// TrailingSegment returns the last path segment of an asset identifier.
func TrailingSegment(assetID string) string {
	return assetID[strings.LastIndex(assetID, "/")+1:]
}

package engine

import (
	"context"
	"strings"
)

// ImageExport describes a raster export to cloud storage.
type ImageExport struct {
	Image          Image
	Description    string
	Bucket         string
	FilePrefix     string
	MaxPixels      int64
	CloudOptimized bool
	RequestID      string
}

// TableExport describes a feature collection export to a warehouse table.
type TableExport struct {
	Collection  Value
	Description string
	Table       string // project.dataset.table
	Overwrite   bool
	RequestID   string
}

// Client submits asynchronous export tasks. Both calls return the remote task
// identifier once the task has been started.
type Client interface {
	Tagger
	ExportImage(ctx context.Context, req ImageExport) (string, error)
	ExportTable(ctx context.Context, req TableExport) (string, error)
}

// TaskID extracts the task identifier from an operation name such as
// "projects/p/operations/ABC".
func TaskID(operationName string) string {
	if i := strings.LastIndex(operationName, "/"); i >= 0 {
		return operationName[i+1:]
	}
	return operationName
}

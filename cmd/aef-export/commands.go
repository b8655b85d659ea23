package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"google.golang.org/api/option"

	"github.com/withObsrvr/aef-exporter/internal/aoi"
	"github.com/withObsrvr/aef-exporter/internal/catalog"
	"github.com/withObsrvr/aef-exporter/internal/config"
	"github.com/withObsrvr/aef-exporter/internal/coverage"
	"github.com/withObsrvr/aef-exporter/internal/engine"
	"github.com/withObsrvr/aef-exporter/internal/errs"
	"github.com/withObsrvr/aef-exporter/internal/export"
	"github.com/withObsrvr/aef-exporter/internal/ledger"
	"github.com/withObsrvr/aef-exporter/internal/storage"
)

func newExporter(ctx context.Context, cfg config.Config) (*export.Exporter, error) {
	client, err := engine.NewRESTClient(ctx, engine.RESTConfig{
		ProjectID:       cfg.Remote.ProjectID,
		CredentialsFile: cfg.Remote.CredentialsFile,
		Endpoint:        cfg.Remote.Endpoint,
	})
	if err != nil {
		return nil, err
	}
	return export.New(client), nil
}

func storageConfig(cfg config.Config) storage.Config {
	return storage.Config{
		Backend:    cfg.Storage.Backend,
		LocalDir:   cfg.Storage.LocalDir,
		Bucket:     cfg.Storage.Bucket,
		S3Endpoint: cfg.Storage.S3Endpoint,
		S3Region:   cfg.Storage.S3Region,
		Prefix:     cfg.Storage.Prefix,
	}
}

func runCoverage(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("coverage", stderr)
	collection := fs.String("collection", "", "image collection (default from config)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 2 {
		fmt.Fprintln(stderr, "usage: aef-export coverage <dataset> <table>")
		return exitUsage
	}

	cfg, ok := setup(*configPath, true, stderr)
	if !ok {
		return exitUsage
	}
	if *collection == "" {
		*collection = cfg.Remote.DefaultCollectionName
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}

	taskID, err := exporter.ExportCollectionCoverage(ctx, export.CoverageRequest{
		ProjectID:  cfg.Remote.ProjectID,
		Dataset:    fs.Arg(0),
		Table:      fs.Arg(1),
		Collection: *collection,
	})
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "Task id: %s\n", taskID)
	return exitSuccess
}

func runExportImage(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("export-image", stderr)
	quantize := fs.Bool("quantize", false, "quantize embeddings to int8 before export")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 3 {
		fmt.Fprintln(stderr, "usage: aef-export export-image [-quantize] <image_id> <bucket> <key_prefix>")
		return exitUsage
	}

	cfg, ok := setup(*configPath, true, stderr)
	if !ok {
		return exitUsage
	}

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}

	taskID, err := exporter.ExportImage(ctx, export.ImageRequest{
		AssetID:   fs.Arg(0),
		Bucket:    fs.Arg(1),
		KeyPrefix: fs.Arg(2),
		Quantize:  *quantize,
	})
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "Task id: %s\n", taskID)
	return exitSuccess
}

func runExportAOI(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("export-aoi", stderr)
	jobName := fs.String("job-name", "", "name grouping this batch in the ledger (required)")
	limit := fs.Int("limit", 0, "maximum coverage rows to export, 0 for all")
	onError := fs.String("on-error", "", "continue or abort on a failed row (default from config)")
	maxSubmissions := fs.Int("max-submissions", -1, "remote tasks created per run, 0 for no cap (default from config)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 4 || *jobName == "" {
		fmt.Fprintln(stderr, "usage: aef-export export-aoi -job-name NAME [-limit N] [-on-error continue|abort] [-max-submissions N] <geojson> <dataset> <table> <bucket>")
		return exitUsage
	}

	// Reject a bad geometry before touching configuration or the network.
	geometry, err := coverage.LoadGeometry(fs.Arg(0))
	if err != nil {
		return fail(stderr, err)
	}

	cfg, ok := setup(*configPath, true, stderr)
	if !ok {
		return exitUsage
	}
	if *onError == "" {
		*onError = cfg.Batch.OnError
	}
	policy, err := aoi.ParsePolicy(*onError)
	if err != nil {
		return fail(stderr, err)
	}
	if *maxSubmissions < 0 {
		*maxSubmissions = cfg.Batch.MaxSubmissions
	}
	bucket := fs.Arg(3)

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.Close()

	var clientOpts []option.ClientOption
	if cfg.Remote.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.Remote.CredentialsFile))
	}
	querier, err := coverage.NewBigQueryQuerier(ctx, cfg.Remote.ProjectID, clientOpts...)
	if err != nil {
		return fail(stderr, err)
	}
	defer querier.Close()

	exporter, err := newExporter(ctx, cfg)
	if err != nil {
		return fail(stderr, err)
	}

	opts := aoi.Options{
		OnError:        policy,
		MaxSubmissions: *maxSubmissions,
		SubmitInterval: cfg.Batch.SubmitInterval,
		URIScheme:      cfg.Storage.URIScheme,
		Producer:       storage.ProducerInfo{Name: "aef-export", Version: version},
	}
	if cfg.Batch.SkipExisting {
		out, err := storage.ForOutput(cfg.Storage.URIScheme, bucket, storageConfig(cfg))
		if err != nil {
			return fail(stderr, err)
		}
		defer out.Close()
		opts.Existing = out
	}
	if cfg.Batch.WriteManifest {
		manifests, err := storage.New(storageConfig(cfg))
		if err != nil {
			return fail(stderr, err)
		}
		defer manifests.Close()
		opts.Manifests = manifests
	}

	if cfg.Catalog.PostgresDSN != "" {
		runs, err := catalog.NewWriter(ctx, catalog.Config{PostgresDSN: cfg.Catalog.PostgresDSN})
		if err != nil {
			return fail(stderr, err)
		}
		defer runs.Close()
		opts.Catalog = runs
	}

	orch := aoi.New(querier, exporter, l, opts)
	summary, err := orch.Run(ctx, aoi.Batch{
		JobName:  *jobName,
		Bucket:   bucket,
		Geometry: geometry,
		Table:    coverage.TableRef{Project: cfg.Remote.ProjectID, Dataset: fs.Arg(1), Table: fs.Arg(2)},
		Limit:    *limit,
	})
	printSummary(stdout, summary)
	if err != nil {
		return fail(stderr, err)
	}
	if len(summary.Failed) > 0 {
		return exitRuntimeError
	}
	return exitSuccess
}

func printSummary(w io.Writer, s *aoi.Summary) {
	fmt.Fprintf(w, "Run %s (%s): %s\n", s.RunID, s.JobName, s.State)
	fmt.Fprintf(w, "  rows queried: %d\n", s.RowsQueried)
	fmt.Fprintf(w, "  submitted:    %d\n", len(s.Submitted))
	fmt.Fprintf(w, "  skipped:      %d\n", len(s.Skipped))
	fmt.Fprintf(w, "  deferred:     %d\n", len(s.Deferred))
	fmt.Fprintf(w, "  failed:       %d\n", len(s.Failed))
	for _, f := range s.Failed {
		if f.OrphanTaskID != "" {
			fmt.Fprintf(w, "    %s: %v (task %s not recorded)\n", f.Row.SystemID, f.Err, f.OrphanTaskID)
			continue
		}
		fmt.Fprintf(w, "    %s: %v\n", f.Row.SystemID, f.Err)
	}
	if s.ManifestURI != "" {
		fmt.Fprintf(w, "  manifest:     %s\n", s.ManifestURI)
	}
}

func runJobs(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("jobs", stderr)
	jobName := fs.String("job-name", "", "only records of this job")
	status := fs.String("status", "", "only records with this status")
	limit := fs.Int("limit", 50, "maximum records to print, 0 for all")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "usage: aef-export jobs [-job-name NAME] [-status S] [-limit N]")
		return exitUsage
	}
	if *status != "" && !ledger.Status(*status).Valid() {
		return fail(stderr, errs.Errorf(errs.InvalidInput, "list jobs", "unknown status %q", *status))
	}

	cfg, ok := setup(*configPath, false, stderr)
	if !ok {
		return exitUsage
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.Close()
	if err := l.Initialize(ctx); err != nil {
		return fail(stderr, err)
	}

	records, err := l.List(ctx, ledger.Filter{JobName: *jobName, Status: ledger.Status(*status), Limit: *limit})
	if err != nil {
		return fail(stderr, err)
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tJOB\tSTATUS\tYEAR\tTASK\tIMAGE\tLOCATION")
	for _, r := range records {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n", r.ID, r.JobName, r.Status, r.Year, r.TaskID, r.ImageID, r.S3Path)
	}
	if err := tw.Flush(); err != nil {
		return fail(stderr, err)
	}
	return exitSuccess
}

func runSnapshot(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs, configPath := newFlagSet("snapshot", stderr)
	jobName := fs.String("job-name", "", "job whose records are snapshotted (required)")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 0 || *jobName == "" {
		fmt.Fprintln(stderr, "usage: aef-export snapshot -job-name NAME")
		return exitUsage
	}

	cfg, ok := setup(*configPath, false, stderr)
	if !ok {
		return exitUsage
	}
	if cfg.Storage.Backend == "" {
		fmt.Fprintln(stderr, "configuration error: snapshot requires storage.backend")
		return exitUsage
	}

	l, err := ledger.Open(cfg.Ledger.Path)
	if err != nil {
		return fail(stderr, err)
	}
	defer l.Close()
	if err := l.Initialize(ctx); err != nil {
		return fail(stderr, err)
	}

	records, err := l.List(ctx, ledger.Filter{JobName: *jobName})
	if err != nil {
		return fail(stderr, err)
	}

	var buf bytes.Buffer
	if err := ledger.WriteSnapshot(&buf, records); err != nil {
		return fail(stderr, err)
	}

	store, err := storage.New(storageConfig(cfg))
	if err != nil {
		return fail(stderr, err)
	}
	defer store.Close()

	key := storage.SnapshotKey(*jobName, time.Now())
	if err := store.Write(ctx, key, buf.Bytes()); err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "Snapshot of %d records: %s\n", len(records), store.URI(key))
	return exitSuccess
}

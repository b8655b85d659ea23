package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/withObsrvr/aef-exporter/internal/config"
	"github.com/withObsrvr/aef-exporter/internal/errs"
	"github.com/withObsrvr/aef-exporter/internal/logging"
	"github.com/withObsrvr/aef-exporter/internal/metrics"
)

// Build-time variables set via -ldflags
var (
	version = "dev"
	commit  = "unknown"
)

const (
	exitSuccess      = 0
	exitRuntimeError = 1
	exitUsage        = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return exitUsage
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "coverage":
		return runCoverage(ctx, rest, stdout, stderr)
	case "export-image":
		return runExportImage(ctx, rest, stdout, stderr)
	case "export-aoi":
		return runExportAOI(ctx, rest, stdout, stderr)
	case "jobs":
		return runJobs(ctx, rest, stdout, stderr)
	case "snapshot":
		return runSnapshot(ctx, rest, stdout, stderr)
	case "version":
		fmt.Fprintf(stdout, "aef-export %s (%s)\n", version, commit)
		return exitSuccess
	case "--help", "-h", "help":
		printUsage(stdout)
		return exitSuccess
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", cmd)
		printUsage(stderr)
		return exitUsage
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `aef-export - export satellite embedding imagery

Usage:
  aef-export <command> [flags] [args]

Commands:
  coverage <dataset> <table>
      Export the collection's per-image footprints to a warehouse table
  export-image [-quantize] <image_id> <bucket> <key_prefix>
      Export one image as a cloud-optimized GeoTIFF
  export-aoi -job-name NAME [-limit N] [-on-error continue|abort] [-max-submissions N]
             <geojson> <dataset> <table> <bucket>
      Export every image intersecting a polygon and record each task in the ledger
  jobs [-job-name NAME] [-status S] [-limit N]
      List ledger records
  snapshot -job-name NAME
      Upload a parquet snapshot of a job's ledger records to the object store
  version
      Print version information

Every command accepts -config PATH (YAML). Environment variables override the file:
  GOOGLE_CLOUD_PROJECT      Billing project for the remote service (required for remote commands)
  AEF_COLLECTION_NAME       Image collection (default: GOOGLE/SATELLITE_EMBEDDING/V1/ANNUAL)
  LEDGER_PATH               SQLite ledger path (default: "sqlite_aef_export.db")
  STORAGE_BACKEND           Manifest/snapshot store: local, gcs or s3 (default: none)
  OUTPUT_URI_SCHEME         Scheme of recorded output locations (default: "s3")
  BATCH_ON_ERROR            continue or abort (default: "continue")
  BATCH_MAX_SUBMISSIONS     Remote tasks created per run, 0 for no cap
  BATCH_SUBMIT_INTERVAL     Minimum spacing between submissions (e.g. "500ms")
  CATALOG_POSTGRES_DSN      Record batch runs in a PostgreSQL catalog (optional)
  LOG_FORMAT, LOG_LEVEL     Logging (default: text, info)
  METRICS_ENABLED           Serve Prometheus metrics on METRICS_ADDR (default: ":9090")`)
}

// newFlagSet returns a flag set that reports errors instead of exiting,
// with the shared -config flag registered.
func newFlagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("AEF_CONFIG"), "path to YAML config file")
	return fs, configPath
}

// setup loads configuration and starts logging and metrics. Remote commands
// validate the full configuration.
func setup(path string, remote bool, stderr io.Writer) (config.Config, bool) {
	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(stderr, "configuration error: %v\n", err)
		return cfg, false
	}
	if remote {
		if err := cfg.Validate(); err != nil {
			fmt.Fprintf(stderr, "configuration error: %v\n", err)
			return cfg, false
		}
	}

	logging.Setup(logging.Config{Format: cfg.Logging.Format, Level: cfg.Logging.Level})

	if cfg.Metrics.Enabled {
		metrics.Init("aef_export")
		go func() {
			if err := metrics.StartServer(cfg.Metrics.Address); err != nil {
				slog.Error("metrics server stopped", "address", cfg.Metrics.Address, "error", err)
			}
		}()
	}
	return cfg, true
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitSuccess
	case errs.Is(err, errs.InvalidInput):
		return exitUsage
	default:
		return exitRuntimeError
	}
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "error: %v\n", err)
	return exitCode(err)
}

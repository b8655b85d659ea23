package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	earthengine "google.golang.org/api/earthengine/v1"
	"google.golang.org/api/option"

	"github.com/withObsrvr/aef-exporter/internal/errs"
)

// RESTConfig configures the REST client.
type RESTConfig struct {
	ProjectID       string
	CredentialsFile string // empty uses application default credentials
	Endpoint        string // empty uses the public endpoint
}

// RESTClient submits exports through the compute service's REST API.
type RESTClient struct {
	WorkloadTag

	svc     *earthengine.Service
	project string
	log     *slog.Logger
}

// NewRESTClient authenticates and returns a client bound to cfg.ProjectID.
func NewRESTClient(ctx context.Context, cfg RESTConfig) (*RESTClient, error) {
	if cfg.ProjectID == "" {
		return nil, errs.Errorf(errs.InvalidInput, "init engine", "project id is required")
	}

	opts := []option.ClientOption{option.WithQuotaProject(cfg.ProjectID)}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := earthengine.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create earth engine service: %w", err)
	}

	return &RESTClient{
		svc:     svc,
		project: cfg.ProjectID,
		log:     slog.With("component", "engine"),
	}, nil
}

func (c *RESTClient) parent() string {
	return "projects/" + c.project
}

// ExportImage starts an image export to cloud storage.
func (c *RESTClient) ExportImage(ctx context.Context, req ImageExport) (string, error) {
	body := &earthengine.ExportImageRequest{
		Expression:  Encode(req.Image),
		Description: req.Description,
		MaxPixels:   req.MaxPixels,
		RequestId:   req.RequestID,
		WorkloadTag: c.CurrentWorkloadTag(),
		FileExportOptions: &earthengine.ImageFileExportOptions{
			FileFormat: "GEO_TIFF",
			CloudStorageDestination: &earthengine.CloudStorageDestination{
				Bucket:         req.Bucket,
				FilenamePrefix: req.FilePrefix,
			},
			GeoTiffOptions: &earthengine.GeoTiffImageExportOptions{
				CloudOptimized: req.CloudOptimized,
			},
		},
	}

	op, err := c.svc.Projects.Image.Export(c.parent(), body).Context(ctx).Do()
	if err != nil {
		return "", errs.E(errs.RemoteSubmission, "export image", err)
	}

	c.log.Debug("image export started", "operation", op.Name, "description", req.Description)
	return TaskID(op.Name), nil
}

// ExportTable starts a feature collection export to a warehouse table.
func (c *RESTClient) ExportTable(ctx context.Context, req TableExport) (string, error) {
	body := &earthengine.ExportTableRequest{
		Expression:  Encode(req.Collection),
		Description: req.Description,
		RequestId:   req.RequestID,
		WorkloadTag: c.CurrentWorkloadTag(),
		BigqueryExportOptions: &earthengine.BigQueryExportOptions{
			BigqueryDestination: &earthengine.BigQueryDestination{
				Table:     req.Table,
				Overwrite: req.Overwrite,
			},
		},
	}

	op, err := c.svc.Projects.Table.Export(c.parent(), body).Context(ctx).Do()
	if err != nil {
		return "", errs.E(errs.RemoteSubmission, "export table", err)
	}

	c.log.Debug("table export started", "operation", op.Name, "table", req.Table)
	return TaskID(op.Name), nil
}

// Encode serializes a graph into the wire expression format. Lambda bodies
// are stored as separate values and referenced by key.
func Encode(v Value) *earthengine.Expression {
	e := &encoder{values: map[string]earthengine.ValueNode{}}
	root := e.node(v.Node())
	key := e.put(root)
	return &earthengine.Expression{Result: key, Values: e.values}
}

type encoder struct {
	values map[string]earthengine.ValueNode
	next   int
}

func (e *encoder) put(v earthengine.ValueNode) string {
	key := strconv.Itoa(e.next)
	e.next++
	e.values[key] = v
	return key
}

func (e *encoder) node(n *Node) earthengine.ValueNode {
	switch {
	case n == nil:
		return earthengine.ValueNode{}
	case n.ArgRef != "":
		return earthengine.ValueNode{ArgumentReference: n.ArgRef}
	case n.Lambda != nil:
		body := e.put(e.node(n.Lambda.Body))
		return earthengine.ValueNode{FunctionDefinitionValue: &earthengine.FunctionDefinition{
			ArgumentNames: n.Lambda.Params,
			Body:          body,
		}}
	case n.Function != "":
		args := make(map[string]earthengine.ValueNode, len(n.Args))
		for name, arg := range n.Args {
			args[name] = e.node(arg)
		}
		return earthengine.ValueNode{FunctionInvocationValue: &earthengine.FunctionInvocation{
			FunctionName: n.Function,
			Arguments:    args,
		}}
	default:
		return earthengine.ValueNode{ConstantValue: n.Constant}
	}
}

var _ Client = (*RESTClient)(nil)

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/dump"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fixture-crawler/internal/orchestrator")

type Stage string

const (
	StageGateway   Stage = "gateway"
	StageAgent     Stage = "agent"
	StageMetrics   Stage = "metrics"
	StageScheduler Stage = "scheduler-api"
)

// tolerated reports whether err, raised by stage, lets the run go on with
// the next cluster. Only an unreachable scheduler API is tolerated.
func (s Stage) tolerated(err error) bool {
	var transportErr *dump.TransportError
	return s == StageScheduler && errors.As(err, &transportErr)
}

var ErrAborted = fmt.Errorf("crawl aborted")

type Cluster struct {
	Name    string
	Metrics bool
}

type Plan struct {
	Clusters []Cluster
}

// Crawlers runs the crawl of each source. The bearer credential returned
// by Gateway is handed to every Agent call.
type Crawlers interface {
	Gateway(ctx context.Context) (credential.Credential, error)
	Agent(ctx context.Context, cluster Cluster, bearer credential.Credential) error
	Metrics(ctx context.Context, cluster Cluster) error
	Scheduler(ctx context.Context, cluster Cluster) error
}

// ClusterResult is the outcome of one stage, Err is nil on success.
type ClusterResult struct {
	Cluster string
	Stage   Stage
	Err     error
}

type Report struct {
	Results []ClusterResult
}

// Failures returns the results that carry an error.
func (r Report) Failures() []ClusterResult {
	var out []ClusterResult
	for _, result := range r.Results {
		if result.Err != nil {
			out = append(out, result)
		}
	}
	return out
}

// fold records result and decides whether the run goes on.
func (r *Report) fold(result ClusterResult) error {
	r.Results = append(r.Results, result)
	if result.Err == nil {
		return nil
	}
	if result.Stage.tolerated(result.Err) {
		slog.Error(
			"crawl failed, continuing with next cluster",
			"cluster", result.Cluster,
			"stage", result.Stage,
			"err", result.Err,
		)
		return nil
	}
	return fmt.Errorf("%w: %s %s: %w", ErrAborted, result.Cluster, result.Stage, result.Err)
}

// Run crawls the gateway then every cluster of the plan in order, one call
// at a time. The report is returned even when the run is aborted.
func Run(ctx context.Context, plan Plan, crawlers Crawlers) (report Report, err error) {
	ctx, span := tracer.Start(ctx, "orchestrator:Run")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "crawl aborted")
		}
	}()

	bearer, gwErr := crawlers.Gateway(ctx)
	err = report.fold(ClusterResult{Stage: StageGateway, Err: gwErr})
	if err != nil {
		return report, err
	}

	for _, cluster := range plan.Clusters {
		err = runCluster(ctx, &report, cluster, bearer, crawlers)
		if err != nil {
			return report, err
		}
	}
	return report, nil
}

func runCluster(ctx context.Context, report *Report, cluster Cluster, bearer credential.Credential, crawlers Crawlers) error {
	ctx, span := tracer.Start(ctx, "orchestrator:cluster")
	defer span.End()
	span.SetAttributes(attribute.String("cluster", cluster.Name))

	stages := []struct {
		stage Stage
		skip  bool
		run   func(context.Context) error
	}{
		{
			stage: StageAgent,
			run: func(ctx context.Context) error {
				return crawlers.Agent(ctx, cluster, bearer)
			},
		},
		{
			stage: StageMetrics,
			skip:  !cluster.Metrics,
			run: func(ctx context.Context) error {
				return crawlers.Metrics(ctx, cluster)
			},
		},
		{
			stage: StageScheduler,
			run: func(ctx context.Context) error {
				return crawlers.Scheduler(ctx, cluster)
			},
		},
	}

	for _, s := range stages {
		if s.skip {
			continue
		}
		// interruption is only honored between crawls
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(ErrAborted, ctxErr)
		}
		slog.Info("crawling", "cluster", cluster.Name, "stage", s.stage)
		err := report.fold(ClusterResult{
			Cluster: cluster.Name,
			Stage:   s.stage,
			Err:     s.run(ctx),
		})
		if err != nil {
			return err
		}
	}
	return nil
}

package agent

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/crawlers"
	"fixture-crawler/internal/devenv"
	"fixture-crawler/internal/dump"
	"fixture-crawler/internal/sampler"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fixture-crawler/internal/crawlers/agent")

const (
	Category = "agent"

	report_no_busy_node = "nodes.no-busy"
	report_no_jobs      = "jobs.no-boundaries"

	unfoundNode = "unexisting-node"
)

type Config struct {
	URL     string
	Version int
	Bearer  credential.Credential
	Limit   int
	// MetricKinds and Ranges are captured when the cluster has metrics.
	Metrics     bool
	MetricKinds []string
	Ranges      []devenv.Range
	Rand        *rand.Rand
}

// Crawler captures the versioned API of the agent of one cluster.
type Crawler struct {
	env    crawlers.Env
	config Config
}

func New(env crawlers.Env, config Config) Crawler {
	if config.Rand == nil {
		config.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return Crawler{env: env.Scoped(Category), config: config}
}

type run struct {
	Crawler
	dumper dump.Dumper
}

func (r run) path(format string, args ...any) string {
	return fmt.Sprintf("/v%d", r.config.Version) + fmt.Sprintf(format, args...)
}

func (r run) get(ctx context.Context, path, name string, opts dump.Options) (dump.Response, error) {
	return r.dumper.Dump(ctx, dump.Get(path, r.config.Bearer.Header), assets.Single(name), opts)
}

func (c Crawler) Crawl(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "agent:Crawl")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "agent crawl failed")
		}
	}()

	client, err := c.env.NewClient(Category, c.config.URL)
	if err != nil {
		return err
	}
	dumper, err := c.env.OpenDumper(client, Category)
	if err != nil {
		return err
	}
	defer c.env.CloseDumper(dumper, &err)
	r := run{Crawler: c, dumper: dumper}

	_, err = dumper.Dump(ctx, dump.Get(r.path("/info"), nil), assets.Single("info"), dump.Options{})
	if err != nil {
		return err
	}
	for _, simple := range []string{"permissions", "stats"} {
		_, err = r.get(ctx, r.path("/%s", simple), simple, dump.Options{})
		if err != nil {
			return err
		}
	}

	nodes, err := r.nodes(ctx)
	if err != nil {
		return err
	}
	err = r.jobs(ctx, nodes)
	if err != nil {
		return err
	}

	for _, simple := range []string{"partitions", "qos", "accounts", "reservations"} {
		_, err = r.get(ctx, r.path("/%s", simple), simple, dump.Options{})
		if err != nil {
			return err
		}
	}
	_, err = r.get(ctx, r.path("/unknown/path"), "unknown-path", dump.Options{})
	if err != nil {
		return err
	}
	_, err = dumper.Dump(ctx, dump.Get(r.path("/jobs"), nil), assets.Single("jobs-unauthorized"), dump.Options{})
	if err != nil {
		return err
	}

	if c.config.Metrics {
		return r.metrics(ctx)
	}
	return nil
}

func (r run) nodes(ctx context.Context) ([]sampler.Entity, error) {
	res, err := r.get(ctx, r.path("/nodes"), "nodes", dump.Options{
		Refetch: true,
		Limit:   r.config.Limit,
	})
	if err != nil {
		return nil, err
	}
	nodes := sampler.NodeEntities(res.Document, "")

	err = sampler.ByState(ctx, r.env.Tel, "node", nodes, sampler.NodeStates, func(ctx context.Context, node sampler.Entity, name string) error {
		_, err := r.get(ctx, r.path("/node/%s", url.PathEscape(node.ID)), name, dump.Options{})
		return err
	})
	if err != nil {
		return nil, err
	}
	_, err = r.get(ctx, r.path("/node/%s", unfoundNode), "node-unfound", dump.Options{})
	return nodes, err
}

func (r run) jobs(ctx context.Context, nodes []sampler.Entity) error {
	res, err := r.get(ctx, r.path("/jobs"), "jobs", dump.Options{
		Refetch: true,
		Limit:   r.config.Limit,
	})
	if err != nil {
		return err
	}
	jobs := sampler.JobEntities(res.Document, "")

	busy, ok := sampler.PickBusy(nodes, r.config.Rand)
	if ok {
		_, err = r.get(ctx, r.path("/jobs?node=%s", url.QueryEscape(busy.ID)), "jobs-node", dump.Options{})
		if err != nil {
			return err
		}
	} else {
		r.env.Tel.ReportWarning(report_no_busy_node)
	}

	err = sampler.ByState(ctx, r.env.Tel, "job", jobs, sampler.JobStates, func(ctx context.Context, job sampler.Entity, name string) error {
		_, err := r.get(ctx, r.path("/job/%s", job.ID), name, dump.Options{})
		return err
	})
	if err != nil {
		return err
	}

	lowest, highest, ok := sampler.Bounds(jobs)
	if !ok {
		r.env.Tel.ReportWarning(report_no_jobs)
		return nil
	}
	probes := []struct {
		id     int64
		suffix string
	}{
		{id: lowest, suffix: "oldest"},
		{id: highest, suffix: "newest"},
		{id: sampler.ArchivedProbe(lowest), suffix: "archived"},
		{id: sampler.UnfoundProbe(highest), suffix: "unfound"},
	}
	for _, probe := range probes {
		_, err = r.get(ctx, r.path("/job/%d", probe.id), "job-"+probe.suffix, dump.Options{})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r run) metrics(ctx context.Context) error {
	for _, kind := range r.config.MetricKinds {
		for _, rng := range r.config.Ranges {
			_, err := r.get(
				ctx,
				r.path("/metrics/%s?range=%s", kind, url.QueryEscape(rng.Name)),
				fmt.Sprintf("metrics-%s-%s", kind, rng.Name),
				dump.Options{Compact: true},
			)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

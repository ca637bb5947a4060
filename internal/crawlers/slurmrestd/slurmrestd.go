package slurmrestd

import (
	"context"
	"fmt"
	"path"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/crawlers"
	"fixture-crawler/internal/dump"
	"fixture-crawler/internal/sampler"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fixture-crawler/internal/crawlers/slurmrestd")

const (
	CategoryPrefix = "scheduler-api"

	report_no_jobs = "jobs.no-boundaries"

	unfoundNode = "unexisting-node"
)

type Config struct {
	// URL is http(s)://host:port or unix://<socket path>.
	URL      string
	Versions []string
	Auth     credential.Settings
	Limit    int
}

// Crawler captures the scheduler REST API of one cluster, once per API
// version.
type Crawler struct {
	env    crawlers.Env
	config Config
}

func New(env crawlers.Env, config Config) Crawler {
	return Crawler{env: env.Scoped(CategoryPrefix), config: config}
}

func Category(version string) string {
	return path.Join(CategoryPrefix, version)
}

func (c Crawler) Crawl(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "slurmrestd:Crawl")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "scheduler api crawl failed")
		}
	}()

	client, err := c.env.NewClient(CategoryPrefix, c.config.URL)
	if err != nil {
		return err
	}
	for _, version := range c.config.Versions {
		dumper, err := c.env.OpenDumper(client, Category(version))
		if err != nil {
			return err
		}
		v := versionCrawl{
			env:     c.env,
			dumper:  dumper,
			version: version,
			limit:   c.config.Limit,
			auth:    c.config.Auth,
		}
		err = v.run(ctx)
		if err != nil {
			return fmt.Errorf("version %s: %w", version, err)
		}
	}
	return nil
}

type versionCrawl struct {
	env     crawlers.Env
	dumper  dump.Dumper
	version string
	limit   int
	auth    credential.Settings
	header  map[string]string
}

func (v versionCrawl) slurm(format string, args ...any) string {
	return fmt.Sprintf("/slurm/v%s", v.version) + fmt.Sprintf(format, args...)
}

func (v versionCrawl) slurmdb(format string, args ...any) string {
	return fmt.Sprintf("/slurmdb/v%s", v.version) + fmt.Sprintf(format, args...)
}

func (v versionCrawl) get(ctx context.Context, url, name string, opts dump.Options) (dump.Response, error) {
	return v.dumper.Dump(ctx, dump.Get(url, v.header), assets.Single(name), opts)
}

func (v versionCrawl) run(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "slurmrestd:version")
	defer span.End()
	span.SetAttributes(attribute.String("version", v.version))
	defer v.env.CloseDumper(v.dumper, &err)

	now := v.env.Clock.Now()
	valid, err := credential.Valid(v.auth, now)
	if err != nil {
		return err
	}
	v.header = valid.Header

	for _, simple := range []struct {
		url  string
		name string
	}{
		{url: v.slurm("/ping"), name: "slurm-ping"},
		{url: v.slurm("/diag"), name: "slurm-diag"},
	} {
		_, err = v.get(ctx, simple.url, simple.name, dump.Options{})
		if err != nil {
			return err
		}
	}

	err = v.jobs(ctx)
	if err != nil {
		return err
	}
	err = v.nodes(ctx)
	if err != nil {
		return err
	}

	for _, simple := range []struct {
		url  string
		name string
	}{
		{url: v.slurm("/partitions"), name: "slurm-partitions"},
		{url: v.slurmdb("/qos"), name: "slurm-qos"},
		{url: v.slurmdb("/accounts"), name: "slurm-accounts"},
		{url: v.slurm("/reservations"), name: "slurm-reservations"},
		{url: v.slurm("/unknown/path"), name: "slurm-unknown-path"},
	} {
		_, err = v.get(ctx, simple.url, simple.name, dump.Options{})
		if err != nil {
			return err
		}
	}

	return v.authScenarios(ctx)
}

func (v versionCrawl) jobs(ctx context.Context) error {
	res, err := v.get(ctx, v.slurm("/jobs"), "slurm-jobs", dump.Options{
		Refetch:  true,
		Limit:    v.limit,
		LimitKey: "jobs",
	})
	if err != nil {
		return err
	}
	jobs := sampler.JobEntities(res.Document, "jobs")

	err = sampler.ByState(ctx, v.env.Tel, "job", jobs, sampler.JobStates, func(ctx context.Context, job sampler.Entity, name string) error {
		_, err := v.get(ctx, v.slurm("/job/%s", job.ID), "slurm-"+name, dump.Options{})
		if err != nil {
			return err
		}
		_, err = v.get(ctx, v.slurmdb("/job/%s", job.ID), "slurmdb-"+name, dump.Options{})
		return err
	})
	if err != nil {
		return err
	}

	lowest, highest, ok := sampler.Bounds(jobs)
	if !ok {
		v.env.Tel.ReportWarning(report_no_jobs, v.version)
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
		_, err = v.get(ctx, v.slurm("/job/%d", probe.id), "slurm-job-"+probe.suffix, dump.Options{})
		if err != nil {
			return err
		}
		_, err = v.get(ctx, v.slurmdb("/job/%d", probe.id), "slurmdb-job-"+probe.suffix, dump.Options{})
		if err != nil {
			return err
		}
	}
	return nil
}

func (v versionCrawl) nodes(ctx context.Context) error {
	res, err := v.get(ctx, v.slurm("/nodes"), "slurm-nodes", dump.Options{
		Refetch:  true,
		Limit:    v.limit,
		LimitKey: "nodes",
	})
	if err != nil {
		return err
	}
	nodes := sampler.NodeEntities(res.Document, "nodes")

	err = sampler.ByState(ctx, v.env.Tel, "node", nodes, sampler.NodeStates, func(ctx context.Context, node sampler.Entity, name string) error {
		_, err := v.get(ctx, v.slurm("/node/%s", node.ID), "slurm-"+name, dump.Options{})
		return err
	})
	if err != nil {
		return err
	}

	_, err = v.get(ctx, v.slurm("/node/%s", unfoundNode), "slurm-node-unfound", dump.Options{})
	return err
}

// authScenarios captures the rejections of forged credentials, there are
// none in local mode.
func (v versionCrawl) authScenarios(ctx context.Context) error {
	scenarios, err := credential.Negative(v.auth, v.env.Clock.Now())
	if err != nil {
		return err
	}
	for _, scenario := range scenarios {
		_, err = v.dumper.Dump(
			ctx,
			dump.Get(v.slurm("/jobs"), scenario.Credential.Header),
			assets.Single(scenario.Name),
			dump.Options{},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

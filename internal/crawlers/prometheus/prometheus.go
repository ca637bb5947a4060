package prometheus

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/crawlers"
	"fixture-crawler/internal/devenv"
	"fixture-crawler/internal/dump"

	"github.com/prometheus/common/model"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("fixture-crawler/internal/crawlers/prometheus")

const (
	Category = "metrics"

	queryRangePath = "/api/v1/query_range"
	// points returned per series, bounded well below the server limit
	pointsPerRange = 240
	minStep        = 15 * time.Second
)

// queries of the metric kinds, %s is the scrape job of the cluster
var queries = map[string]string{
	"nodes":  `sum by (state) (slurm_nodes{job="%s"})`,
	"cores":  `sum by (state) (slurm_cores{job="%s"})`,
	"memory": `sum by (state) (slurm_memory_bytes{job="%s"})`,
	"jobs":   `sum by (state) (slurm_jobs{job="%s"})`,
	"cache":  `sum by (result) (slurmweb_cache_total{job="%s"})`,
}

const (
	unknownMetricQuery = `slurm_unknown_metric{job="%s"}`
	invalidQuery       = `sum by (state) (slurm_nodes{job="%s"}`
)

type Config struct {
	// Job is the scrape job of the cluster.
	Job    string
	Kinds  []string
	Ranges []devenv.Range
}

// Query returns the expression of a metric kind.
func Query(kind, job string) (string, error) {
	expr, ok := queries[kind]
	if !ok {
		return "", fmt.Errorf("unknown metric kind %q", kind)
	}
	return fmt.Sprintf(expr, job), nil
}

// Step is the resolution of a range query over d.
func Step(d time.Duration) time.Duration {
	step := (d / pointsPerRange).Truncate(time.Second)
	if step < minStep {
		return minStep
	}
	return step
}

// Crawler captures range queries of the metrics store.
type Crawler struct {
	env    crawlers.Env
	config Config
	url    string
}

func New(env crawlers.Env, baseURL string, config Config) Crawler {
	return Crawler{
		env:    env.Scoped(Category),
		config: config,
		url:    baseURL,
	}
}

func rangeQuery(expr string, end time.Time, d time.Duration) dump.Request {
	values := url.Values{}
	values.Set("query", expr)
	values.Set("start", strconv.FormatInt(end.Add(-d).Unix(), 10))
	values.Set("end", strconv.FormatInt(end.Unix(), 10))
	values.Set("step", model.Duration(Step(d)).String())
	return dump.Get(queryRangePath+"?"+values.Encode(), nil)
}

func (c Crawler) Crawl(ctx context.Context) (err error) {
	ctx, span := tracer.Start(ctx, "prometheus:Crawl")
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "metrics crawl failed")
		}
	}()

	client, err := c.env.NewClient(Category, c.url)
	if err != nil {
		return err
	}
	dumper, err := c.env.OpenDumper(client, Category)
	if err != nil {
		return err
	}
	defer c.env.CloseDumper(dumper, &err)

	now := c.env.Clock.Now()
	compact := dump.Options{Compact: true}

	for _, kind := range c.config.Kinds {
		expr, err := Query(kind, c.config.Job)
		if err != nil {
			return err
		}
		for _, r := range c.config.Ranges {
			_, err = dumper.Dump(
				ctx,
				rangeQuery(expr, now, r.Duration),
				assets.Single(fmt.Sprintf("%s-%s", kind, r.Name)),
				compact,
			)
			if err != nil {
				return err
			}
		}
	}

	hour := time.Hour
	if len(c.config.Ranges) > 0 {
		hour = c.config.Ranges[0].Duration
	}
	_, err = dumper.Dump(
		ctx,
		rangeQuery(fmt.Sprintf(unknownMetricQuery, c.config.Job), now, hour),
		assets.Single("unknown-metric"),
		compact,
	)
	if err != nil {
		return err
	}
	_, err = dumper.Dump(
		ctx,
		rangeQuery(fmt.Sprintf(invalidQuery, c.config.Job), now, hour),
		assets.Single("query-invalid"),
		dump.Options{},
	)
	return err
}

package orchestrator

import (
	"context"
	"fmt"
	"math/rand/v2"

	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/crawlers"
	"fixture-crawler/internal/crawlers/agent"
	"fixture-crawler/internal/crawlers/gateway"
	"fixture-crawler/internal/crawlers/prometheus"
	"fixture-crawler/internal/crawlers/slurmrestd"
	"fixture-crawler/internal/devenv"
)

// Deployment runs the crawlers against the collaborators described by the
// settings of one deployment work directory.
type Deployment struct {
	Env             crawlers.Env
	Settings        devenv.CrawlerSettings
	Ranges          []devenv.Range
	Workdir         string
	GatewaySettings devenv.GatewaySettings
	Clusters        []devenv.ClusterSettings
	// SchedulerAuth holds the resolved scheduler credentials by cluster
	// name, see ResolveSchedulerAuth.
	SchedulerAuth map[string]credential.Settings
	// Admin and Password log in on the gateway.
	Admin    string
	Password string
	Rand     *rand.Rand
}

// ResolveSchedulerAuth reads the scheduler credentials of every cluster so
// that invalid settings fail before anything is crawled.
func (d *Deployment) ResolveSchedulerAuth() error {
	d.SchedulerAuth = make(map[string]credential.Settings, len(d.Clusters))
	for _, c := range d.Clusters {
		auth, err := c.Scheduler.Auth.Credential(d.Workdir)
		if err != nil {
			return fmt.Errorf("cluster %s: scheduler auth: %w", c.Name, err)
		}
		d.SchedulerAuth[c.Name] = auth
	}
	return nil
}

func (d Deployment) Plan() Plan {
	var plan Plan
	for _, c := range d.Clusters {
		plan.Clusters = append(plan.Clusters, Cluster{Name: c.Name, Metrics: c.Metrics.Enabled})
	}
	return plan
}

func (d Deployment) cluster(name string) (devenv.ClusterSettings, error) {
	for _, c := range d.Clusters {
		if c.Name == name {
			return c, nil
		}
	}
	return devenv.ClusterSettings{}, fmt.Errorf("unknown cluster %q", name)
}

// drawTarget is the first cluster with a racksdb infrastructure.
func (d Deployment) drawTarget() *gateway.DrawTarget {
	for _, c := range d.Clusters {
		if c.RacksDB.Infrastructure != "" {
			return &gateway.DrawTarget{Cluster: c.Name, Infrastructure: c.RacksDB.Infrastructure}
		}
	}
	return nil
}

func (d Deployment) Gateway(ctx context.Context) (credential.Credential, error) {
	return gateway.New(d.Env, gateway.Config{
		URL:      d.GatewaySettings.URL,
		User:     d.Admin,
		Password: d.Password,
		Draw:     d.drawTarget(),
	}).Crawl(ctx)
}

func (d Deployment) Agent(ctx context.Context, cluster Cluster, bearer credential.Credential) error {
	settings, err := d.cluster(cluster.Name)
	if err != nil {
		return err
	}
	return agent.New(d.Env.Scoped(cluster.Name), agent.Config{
		URL:         settings.Agent.URL,
		Version:     settings.Agent.Version,
		Bearer:      bearer,
		Limit:       d.Settings.Limit,
		Metrics:     settings.Metrics.Enabled,
		MetricKinds: d.Settings.MetricKinds,
		Ranges:      d.Ranges,
		Rand:        d.Rand,
	}).Crawl(ctx)
}

func (d Deployment) Metrics(ctx context.Context, cluster Cluster) error {
	settings, err := d.cluster(cluster.Name)
	if err != nil {
		return err
	}
	return prometheus.New(d.Env.Scoped(cluster.Name), settings.Metrics.URL, prometheus.Config{
		Job:    settings.Metrics.Job,
		Kinds:  d.Settings.MetricKinds,
		Ranges: d.Ranges,
	}).Crawl(ctx)
}

func (d Deployment) Scheduler(ctx context.Context, cluster Cluster) error {
	settings, err := d.cluster(cluster.Name)
	if err != nil {
		return err
	}
	auth, ok := d.SchedulerAuth[cluster.Name]
	if !ok {
		return fmt.Errorf("cluster %s: scheduler auth not resolved", cluster.Name)
	}
	return slurmrestd.New(d.Env.Scoped(cluster.Name), slurmrestd.Config{
		URL:      settings.Scheduler.URL,
		Versions: settings.Scheduler.Versions,
		Auth:     auth,
		Limit:    d.Settings.Limit,
	}).Crawl(ctx)
}

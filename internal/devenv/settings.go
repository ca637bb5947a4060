package devenv

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"fixture-crawler/internal/credential"
	"fixture-crawler/lib/configutil"

	"dario.cat/mergo"
	"github.com/prometheus/common/model"
)

const (
	CrawlerConfigName = "crawler.json5"
	GatewayConfigName = "gateway.json5"
	clustersDir       = "clusters"
)

type CrawlerSettings struct {
	// AssetsRoot receives one directory per source category.
	AssetsRoot string `json:"assets_root"`
	// DeploymentsRoot must hold exactly one deployment work directory.
	DeploymentsRoot string `json:"deployments_root"`
	// TranscriptsDir receives every http exchange when debugging.
	TranscriptsDir string `json:"transcripts_dir"`
	Limit          int    `json:"limit"`
	// Ranges maps a fixture range name to a prometheus duration.
	Ranges      map[string]string `json:"ranges"`
	MetricKinds []string          `json:"metric_kinds"`
	// Seed makes the busy node pick reproducible, zero picks a random seed.
	Seed uint64 `json:"seed"`
}

var crawlerDefaults = CrawlerSettings{
	AssetsRoot:      "<workspace>/tests/assets",
	DeploymentsRoot: "<workspace>/dev/deployments",
	TranscriptsDir:  "<workspace>/dev/.transcripts",
	Limit:           100,
	Ranges: map[string]string{
		"hour": "1h",
		"day":  "1d",
		"week": "1w",
	},
	MetricKinds: []string{"nodes", "cores", "memory", "jobs", "cache"},
}

// Range is a metrics time range, Duration is parsed from the prometheus
// duration syntax.
type Range struct {
	Name     string
	Duration time.Duration
}

// ParsedRanges returns the ranges sorted by duration.
func (s CrawlerSettings) ParsedRanges() ([]Range, error) {
	var out []Range
	for name, value := range s.Ranges {
		d, err := model.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("range %s: %w", name, err)
		}
		out = append(out, Range{Name: name, Duration: time.Duration(d)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Duration == out[j].Duration {
			return out[i].Name < out[j].Name
		}
		return out[i].Duration < out[j].Duration
	})
	return out, nil
}

func mergeDefaults[T any](dst *T, defaults T) error {
	return mergo.Merge(dst, defaults)
}

func (s *CrawlerSettings) resolve() error {
	for _, path := range []*string{&s.AssetsRoot, &s.DeploymentsRoot, &s.TranscriptsDir} {
		resolved, err := ResolvePath(*path)
		if err != nil {
			return err
		}
		*path = resolved
	}
	return nil
}

// LoadCrawlerSettings reads crawler.json5 found from the cwd upwards, a
// missing file means defaults only.
func LoadCrawlerSettings() (CrawlerSettings, error) {
	settings, err := configutil.ReadRecursively[CrawlerSettings](CrawlerConfigName)
	if err != nil && !os.IsNotExist(err) {
		return CrawlerSettings{}, err
	}
	err = mergeDefaults(&settings, crawlerDefaults)
	if err != nil {
		return CrawlerSettings{}, err
	}
	err = settings.resolve()
	if err != nil {
		return CrawlerSettings{}, err
	}
	return settings, nil
}

type AdminSettings struct {
	// Host is the ssh address of a machine that knows the admin group,
	// host or host:port.
	Host string `json:"host"`
	// User is the ssh login, empty means the current user.
	User  string `json:"user"`
	Group string `json:"group"`
}

type GatewaySettings struct {
	URL   string        `json:"url"`
	Admin AdminSettings `json:"admin"`
}

var gatewayDefaults = GatewaySettings{
	URL: "http://localhost:5011",
	Admin: AdminSettings{
		Group: "admins",
	},
}

func LoadGatewaySettings(workdir string) (GatewaySettings, error) {
	return configutil.ReadWithDefaults(filepath.Join(workdir, GatewayConfigName), gatewayDefaults)
}

type AgentSettings struct {
	URL     string `json:"url"`
	Version int    `json:"version"`
}

type SchedulerAuthSettings struct {
	Mode    credential.Mode    `json:"mode"`
	JWTMode credential.JWTMode `json:"jwt_mode"`
	User    string             `json:"user"`
	// KeyFile holds the HS256 signing key when JWTMode is auto.
	KeyFile  string `json:"key_file"`
	Token    string `json:"token"`
	Lifespan string `json:"lifespan"`
}

type SchedulerSettings struct {
	// URL is http(s)://host:port or unix://<socket path>.
	URL      string                `json:"url"`
	Versions []string              `json:"versions"`
	Auth     SchedulerAuthSettings `json:"auth"`
}

type MetricsSettings struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	Job     string `json:"job"`
}

type RacksDBSettings struct {
	Infrastructure string `json:"infrastructure"`
}

type ClusterSettings struct {
	Name      string            `json:"-"`
	Agent     AgentSettings     `json:"agent"`
	Scheduler SchedulerSettings `json:"scheduler"`
	Metrics   MetricsSettings   `json:"metrics"`
	RacksDB   RacksDBSettings   `json:"racksdb"`
}

var clusterDefaults = ClusterSettings{
	Agent: AgentSettings{
		URL:     "http://localhost:5012",
		Version: 4,
	},
	Scheduler: SchedulerSettings{
		URL:      "unix:///run/slurmrestd/slurmrestd.socket",
		Versions: []string{"0.0.41"},
		Auth: SchedulerAuthSettings{
			Mode:     credential.ModeLocal,
			JWTMode:  credential.JWTAuto,
			User:     "slurm",
			Lifespan: "1h",
		},
	},
	Metrics: MetricsSettings{
		URL: "http://localhost:9090",
		Job: "slurm",
	},
}

// Credential turns the auth settings into credential settings, reading the
// signing key relative to workdir.
func (s SchedulerAuthSettings) Credential(workdir string) (credential.Settings, error) {
	out := credential.Settings{
		Mode:        s.Mode,
		JWTMode:     s.JWTMode,
		User:        s.User,
		StaticToken: s.Token,
	}
	if s.Lifespan != "" {
		d, err := model.ParseDuration(s.Lifespan)
		if err != nil {
			return credential.Settings{}, fmt.Errorf("lifespan: %w", err)
		}
		out.Lifespan = time.Duration(d)
	}
	if s.Mode == credential.ModeJWT && s.JWTMode == credential.JWTAuto && s.KeyFile != "" {
		path := s.KeyFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(workdir, path)
		}
		key, err := os.ReadFile(path)
		if err != nil {
			return credential.Settings{}, fmt.Errorf("jwt key: %w", err)
		}
		out.Key = key
	}
	return out, out.Validate()
}

// LoadClusters reads every <workdir>/clusters/<name>.json5, sorted by
// name. Local override files are merged, never loaded as clusters.
func LoadClusters(workdir string) ([]ClusterSettings, error) {
	dir := filepath.Join(workdir, clustersDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var out []ClusterSettings
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json5") || strings.HasSuffix(name, ".local.json5") {
			continue
		}
		settings, err := configutil.ReadWithDefaults(filepath.Join(dir, name), clusterDefaults)
		if err != nil {
			return nil, err
		}
		settings.Name = strings.TrimSuffix(name, ".json5")
		out = append(out, settings)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Name < out[j].Name
	})
	if len(out) == 0 {
		return nil, fmt.Errorf("no cluster defined in %s", dir)
	}
	return out, nil
}

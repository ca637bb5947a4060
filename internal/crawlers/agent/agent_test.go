package agent

import (
	"context"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"fixture-crawler/internal/assets"
	"fixture-crawler/internal/components/telemetry"
	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/devenv"
	"fixture-crawler/internal/testutil"

	"github.com/stretchr/testify/require"
)

const token = "agent-token"

type fakeAgent struct {
	mutex   sync.Mutex
	queries []string
	jobs    string
	nodes   string
}

func (f *fakeAgent) requested(uri string) bool {
	f.mutex.Lock()
	defer f.mutex.Unlock()
	for _, q := range f.queries {
		if q == uri {
			return true
		}
	}
	return false
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mutex.Lock()
	f.queries = append(f.queries, r.URL.RequestURI())
	f.mutex.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4")
	if path == "/info" {
		testutil.WriteJSON(w, http.StatusOK, `{"cluster":"foo","racksdb":{"enabled":true}}`)
		return
	}
	if r.Header.Get("Authorization") != "Bearer "+token {
		testutil.WriteJSON(w, http.StatusUnauthorized, `{"code":401,"description":"not allowed"}`)
		return
	}
	switch {
	case path == "/jobs" && r.URL.Query().Get("node") != "":
		testutil.WriteJSON(w, http.StatusOK, `[]`)
	case path == "/jobs":
		testutil.WriteJSON(w, http.StatusOK, f.jobs)
	case path == "/nodes":
		testutil.WriteJSON(w, http.StatusOK, f.nodes)
	case path == "/job/5", path == "/job/9", path == "/node/cn1", path == "/node/cn2":
		testutil.WriteJSON(w, http.StatusOK, `{}`)
	case strings.HasPrefix(path, "/job/"), strings.HasPrefix(path, "/node/"):
		testutil.WriteJSON(w, http.StatusNotFound, `{"code":404,"description":"not found"}`)
	case strings.HasPrefix(path, "/metrics/"):
		testutil.WriteJSON(w, http.StatusOK, `{"idle":[[1714564800,4]]}`)
	case path == "/permissions", path == "/stats", path == "/partitions",
		path == "/qos", path == "/accounts", path == "/reservations":
		testutil.WriteJSON(w, http.StatusOK, `{}`)
	default:
		testutil.WriteJSON(w, http.StatusNotFound, `{"code":404,"description":"not found"}`)
	}
}

func newCrawler(t *testing.T, url string, metrics bool) (Crawler, string, *telemetry.Recorder) {
	env, rec := testutil.SetupEnv(t)
	return New(env, Config{
		URL:         url,
		Version:     4,
		Bearer:      credential.Bearer(token),
		Limit:       100,
		Metrics:     metrics,
		MetricKinds: []string{"nodes"},
		Ranges:      []devenv.Range{{Name: "hour", Duration: time.Hour}},
		Rand:        rand.New(rand.NewPCG(1, 2)),
	}), env.AssetsRoot, rec
}

func TestCrawl(t *testing.T) {
	fake := &fakeAgent{
		jobs: `[
			{"job_id":5,"job_state":{"current":["COMPLETED"]}},
			{"job_id":9,"job_state":{"current":["RUNNING"]}}
		]`,
		nodes: `[
			{"name":"cn1","state":["IDLE"]},
			{"name":"cn2","state":["ALLOCATED"]}
		]`,
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	crawler, root, _ := newCrawler(t, server.URL, true)
	require.NoError(t, crawler.Crawl(context.Background()))

	dir := filepath.Join(root, Category)
	for _, name := range []string{
		"info", "permissions", "stats", "jobs", "jobs-node",
		"job-completed", "job-running", "job-oldest", "job-newest",
		"job-archived", "job-unfound",
		"nodes", "node-idle", "node-allocated", "node-unfound",
		"partitions", "qos", "accounts", "reservations", "unknown-path",
		"jobs-unauthorized", "metrics-nodes-hour",
	} {
		require.FileExists(t, filepath.Join(dir, name+".json"), name)
	}

	require.True(t, fake.requested("/v4/jobs?node=cn2"), "busy node")
	require.True(t, fake.requested("/v4/job/4"), "archived probe")
	require.True(t, fake.requested("/v4/job/18"), "unfound probe")

	ledger, err := assets.LoadLedger(dir)
	require.NoError(t, err)
	record, _ := ledger.Get("jobs-unauthorized")
	require.Equal(t, http.StatusUnauthorized, record.Status)
	record, _ = ledger.Get("job-archived")
	require.Equal(t, http.StatusNotFound, record.Status)
	record, _ = ledger.Get("job-oldest")
	require.Equal(t, http.StatusOK, record.Status)
	record, _ = ledger.Get("job-newest")
	require.Equal(t, http.StatusOK, record.Status)
}

func TestCrawlWithoutMetricsAndIdleCluster(t *testing.T) {
	fake := &fakeAgent{
		jobs:  `[]`,
		nodes: `[{"name":"cn1","state":["IDLE"]}]`,
	}
	server := httptest.NewServer(fake)
	defer server.Close()

	crawler, root, rec := newCrawler(t, server.URL, false)
	require.NoError(t, crawler.Crawl(context.Background()))

	dir := filepath.Join(root, Category)
	require.NoFileExists(t, filepath.Join(dir, "jobs-node.json"))
	require.NoFileExists(t, filepath.Join(dir, "metrics-nodes-hour.json"))
	require.NoFileExists(t, filepath.Join(dir, "job-archived.json"))
	require.NoFileExists(t, filepath.Join(dir, "job-oldest.json"))
	require.NotEmpty(t, rec.WarningsWithSuffix(report_no_busy_node))
	require.NotEmpty(t, rec.WarningsWithSuffix(report_no_jobs))
}

func TestCrawlKeepsSnapshots(t *testing.T) {
	fake := &fakeAgent{jobs: `[]`, nodes: `[]`}
	server := httptest.NewServer(fake)
	defer server.Close()

	crawler, root, rec := newCrawler(t, server.URL, false)
	dir := filepath.Join(root, Category)
	require.NoError(t, os.MkdirAll(dir, 0755))
	sentinel := filepath.Join(dir, "jobs.json")
	require.NoError(t, os.WriteFile(sentinel, []byte("sentinel"), 0644))

	require.NoError(t, crawler.Crawl(context.Background()))

	contents, err := os.ReadFile(sentinel)
	require.NoError(t, err)
	require.Equal(t, "sentinel", string(contents))
	require.NotEmpty(t, rec.WarningsWithSuffix("dumper.snapshot-exists"))
}

func TestCrawlUnreachable(t *testing.T) {
	url := testutil.UnreachableURL(t)

	crawler, _, _ := newCrawler(t, url, false)
	require.Error(t, crawler.Crawl(context.Background()))
}

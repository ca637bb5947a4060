package orchestrator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/dump"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type call struct {
	Stage   Stage
	Cluster string
}

type fakeCrawlers struct {
	calls      []call
	gatewayErr error
	failures   map[call]error
	bearer     credential.Credential
	seenBearer []credential.Credential
}

func (f *fakeCrawlers) record(stage Stage, cluster string) error {
	c := call{Stage: stage, Cluster: cluster}
	f.calls = append(f.calls, c)
	return f.failures[c]
}

func (f *fakeCrawlers) Gateway(context.Context) (credential.Credential, error) {
	f.calls = append(f.calls, call{Stage: StageGateway})
	return f.bearer, f.gatewayErr
}

func (f *fakeCrawlers) Agent(_ context.Context, cluster Cluster, bearer credential.Credential) error {
	f.seenBearer = append(f.seenBearer, bearer)
	return f.record(StageAgent, cluster.Name)
}

func (f *fakeCrawlers) Metrics(_ context.Context, cluster Cluster) error {
	return f.record(StageMetrics, cluster.Name)
}

func (f *fakeCrawlers) Scheduler(_ context.Context, cluster Cluster) error {
	return f.record(StageScheduler, cluster.Name)
}

var plan = Plan{Clusters: []Cluster{
	{Name: "a", Metrics: true},
	{Name: "b"},
}}

func TestRunSequence(t *testing.T) {
	fake := &fakeCrawlers{bearer: credential.Bearer("token")}
	report, err := Run(context.Background(), plan, fake)
	require.NoError(t, err)

	expected := []call{
		{Stage: StageGateway},
		{Stage: StageAgent, Cluster: "a"},
		{Stage: StageMetrics, Cluster: "a"},
		{Stage: StageScheduler, Cluster: "a"},
		{Stage: StageAgent, Cluster: "b"},
		{Stage: StageScheduler, Cluster: "b"},
	}
	if diff := cmp.Diff(expected, fake.calls); diff != "" {
		t.Fatal(diff)
	}
	require.Len(t, report.Results, 6)
	require.Empty(t, report.Failures())
	for _, bearer := range fake.seenBearer {
		require.Equal(t, credential.Bearer("token"), bearer)
	}
}

func TestSchedulerFailureIsIsolated(t *testing.T) {
	schedulerErr := &dump.TransportError{Method: "GET", URL: "http://a/slurm/v0.0.41/ping", Err: errors.New("connection refused")}
	fake := &fakeCrawlers{failures: map[call]error{
		{Stage: StageScheduler, Cluster: "a"}: schedulerErr,
	}}
	report, err := Run(context.Background(), plan, fake)
	require.NoError(t, err)

	require.Contains(t, fake.calls, call{Stage: StageAgent, Cluster: "b"})
	require.Contains(t, fake.calls, call{Stage: StageScheduler, Cluster: "b"})

	failures := report.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, "a", failures[0].Cluster)
	require.Equal(t, StageScheduler, failures[0].Stage)
	require.ErrorIs(t, failures[0].Err, schedulerErr)
}

func TestSchedulerNonTransportFailureAborts(t *testing.T) {
	configErr := fmt.Errorf("%w: auto jwt mode requires a signing key", credential.ErrInvalidSettings)
	fake := &fakeCrawlers{failures: map[call]error{
		{Stage: StageScheduler, Cluster: "a"}: configErr,
	}}
	report, err := Run(context.Background(), plan, fake)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, credential.ErrInvalidSettings)
	require.NotContains(t, fake.calls, call{Stage: StageAgent, Cluster: "b"})
	require.Len(t, report.Failures(), 1)
}

func TestAbortingFailures(t *testing.T) {
	for _, stage := range []Stage{StageAgent, StageMetrics} {
		fake := &fakeCrawlers{failures: map[call]error{
			{Stage: stage, Cluster: "a"}: errors.New("unreachable"),
		}}
		report, err := Run(context.Background(), plan, fake)
		require.ErrorIs(t, err, ErrAborted, stage)
		require.NotContains(t, fake.calls, call{Stage: StageAgent, Cluster: "b"}, stage)
		require.Len(t, report.Failures(), 1)
	}
}

func TestGatewayFailureAborts(t *testing.T) {
	gatewayErr := errors.New("invalid credentials")
	fake := &fakeCrawlers{gatewayErr: gatewayErr}
	_, err := Run(context.Background(), plan, fake)
	require.ErrorIs(t, err, ErrAborted)
	require.ErrorIs(t, err, gatewayErr)
	require.Len(t, fake.calls, 1)
}

func TestCanceledRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	fake := &fakeCrawlers{}
	_, err := Run(ctx, plan, fake)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, fake.calls, 1)
}

func TestRender(t *testing.T) {
	report := Report{Results: []ClusterResult{
		{Stage: StageGateway},
		{Cluster: "a", Stage: StageScheduler, Err: errors.New("connection refused")},
	}}
	var out bytes.Buffer
	report.Render(&out)
	require.Contains(t, out.String(), "connection refused")
	require.Contains(t, out.String(), "scheduler-api")
}

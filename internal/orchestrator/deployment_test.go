package orchestrator

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"fixture-crawler/internal/credential"
	"fixture-crawler/internal/devenv"
	"fixture-crawler/internal/dump"
	"fixture-crawler/internal/testutil"

	"github.com/stretchr/testify/require"
)

func newCollaborator(t *testing.T) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/login":
			testutil.WriteJSON(w, http.StatusOK, `{"token":"abc"}`)
		case "/v4/jobs", "/v4/nodes":
			testutil.WriteJSON(w, http.StatusOK, `[]`)
		default:
			testutil.WriteJSON(w, http.StatusOK, `{}`)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestDeploymentIsolatesSchedulerFailure(t *testing.T) {
	env, _ := testutil.SetupEnv(t)
	server := newCollaborator(t)

	cluster := func(name, scheduler string) devenv.ClusterSettings {
		return devenv.ClusterSettings{
			Name:  name,
			Agent: devenv.AgentSettings{URL: server.URL, Version: 4},
			Scheduler: devenv.SchedulerSettings{
				URL:      scheduler,
				Versions: []string{"0.0.41"},
				Auth:     devenv.SchedulerAuthSettings{Mode: credential.ModeLocal},
			},
		}
	}

	deployment := Deployment{
		Env:             env,
		Settings:        devenv.CrawlerSettings{Limit: 10},
		Ranges:          []devenv.Range{{Name: "hour", Duration: time.Hour}},
		Workdir:         t.TempDir(),
		GatewaySettings: devenv.GatewaySettings{URL: server.URL},
		Clusters: []devenv.ClusterSettings{
			cluster("a", testutil.UnreachableURL(t)),
			cluster("b", server.URL),
		},
		Admin:    "alice",
		Password: "secret",
		Rand:     rand.New(rand.NewPCG(1, 1)),
	}
	require.NoError(t, deployment.ResolveSchedulerAuth())

	report, err := Run(context.Background(), deployment.Plan(), deployment)
	require.NoError(t, err)

	failures := report.Failures()
	require.Len(t, failures, 1)
	require.Equal(t, "a", failures[0].Cluster)
	require.Equal(t, StageScheduler, failures[0].Stage)
	var transportErr *dump.TransportError
	require.ErrorAs(t, failures[0].Err, &transportErr)

	require.FileExists(t, filepath.Join(env.AssetsRoot, "gateway", "login.json"))
	require.FileExists(t, filepath.Join(env.AssetsRoot, "agent", "info.json"))
	require.FileExists(t, filepath.Join(env.AssetsRoot, "scheduler-api", "0.0.41", "slurm-ping.json"))
}

func TestResolveSchedulerAuthRejectsInvalidSettings(t *testing.T) {
	deployment := Deployment{
		Workdir: t.TempDir(),
		Clusters: []devenv.ClusterSettings{{
			Name: "a",
			Scheduler: devenv.SchedulerSettings{
				Auth: devenv.SchedulerAuthSettings{
					Mode:    credential.ModeJWT,
					JWTMode: credential.JWTAuto,
					KeyFile: "missing.key",
				},
			},
		}},
	}
	err := deployment.ResolveSchedulerAuth()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cluster a")
}

func TestDeploymentUnresolvedSchedulerAuth(t *testing.T) {
	env, _ := testutil.SetupEnv(t)
	deployment := Deployment{
		Env:      env,
		Clusters: []devenv.ClusterSettings{{Name: "a"}},
	}
	err := deployment.Scheduler(context.Background(), Cluster{Name: "a"})
	require.Error(t, err)
	var transportErr *dump.TransportError
	require.False(t, errors.As(err, &transportErr))
}

func TestDeploymentUnknownCluster(t *testing.T) {
	env, _ := testutil.SetupEnv(t)
	deployment := Deployment{Env: env}
	err := deployment.Scheduler(context.Background(), Cluster{Name: "missing"})
	require.Error(t, err)
}

package commands

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"fixture-crawler/internal/components/chrono"
	"fixture-crawler/internal/components/telemetry"
	"fixture-crawler/internal/crawlers"
	"fixture-crawler/internal/devenv"
	"fixture-crawler/internal/orchestrator"
	"fixture-crawler/lib/restyutil"
	"fixture-crawler/lib/serviceutil"
	libtelemetry "fixture-crawler/lib/telemetry"

	"github.com/spf13/cobra"
)

var debug bool

var rootCmd = &cobra.Command{
	Use:   "crawl-fixtures",
	Short: "crawl-fixtures captures responses of a live deployment into the test assets.",
	Long: `crawl-fixtures walks the gateway, then for every cluster of the deployment
the agent, the metrics store and the scheduler REST API, writing every new
response under the assets root. Existing snapshots are never overwritten,
delete one to capture it again.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		libtelemetry.InitSlog(debug)

		ctx, cancel := serviceutil.SignalContext()
		defer cancel()

		tel, err := libtelemetry.SetupFromEnv(ctx, "crawl-fixtures")
		if err != nil {
			serviceutil.Fatal("failed to setup telemetry", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			tel.Shutdown(shutdownCtx)
		}()
		if tel.MeterProvider != nil {
			libtelemetry.InstrumentPerfStats(ctx, 30*time.Second)
		}

		deployment, err := prepare(ctx)
		if err != nil {
			serviceutil.Fatal("failed to prepare crawl", err)
		}

		report, err := orchestrator.Run(ctx, deployment.Plan(), deployment)
		report.Render(os.Stdout)
		if err != nil {
			serviceutil.Fatal("crawl failed", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "log at debug level and keep transcripts of every http exchange")
}

func prepare(ctx context.Context) (orchestrator.Deployment, error) {
	settings, err := devenv.LoadCrawlerSettings()
	if err != nil {
		return orchestrator.Deployment{}, fmt.Errorf("crawler settings: %w", err)
	}
	ranges, err := settings.ParsedRanges()
	if err != nil {
		return orchestrator.Deployment{}, err
	}
	workdir, err := devenv.FindWorkDir(settings.DeploymentsRoot)
	if err != nil {
		return orchestrator.Deployment{}, err
	}
	gateway, err := devenv.LoadGatewaySettings(workdir)
	if err != nil {
		return orchestrator.Deployment{}, fmt.Errorf("gateway settings: %w", err)
	}
	clusters, err := devenv.LoadClusters(workdir)
	if err != nil {
		return orchestrator.Deployment{}, fmt.Errorf("cluster settings: %w", err)
	}

	admin, err := devenv.FindAdmin(ctx, devenv.NewSSHLookup(gateway.Admin), gateway.Admin.Group)
	if err != nil {
		return orchestrator.Deployment{}, err
	}
	password, err := devenv.AdminPassword(admin)
	if err != nil {
		return orchestrator.Deployment{}, err
	}

	env := crawlers.Env{
		Tel:        telemetry.SlogAPI{},
		Clock:      chrono.NewStandardImpl(),
		AssetsRoot: settings.AssetsRoot,
	}
	if debug {
		output, err := restyutil.NewFilesystemOutput(settings.TranscriptsDir)
		if err != nil {
			return orchestrator.Deployment{}, fmt.Errorf("transcripts: %w", err)
		}
		env.Transcripts = output
	}

	seed := settings.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	deployment := orchestrator.Deployment{
		Env:             env,
		Settings:        settings,
		Ranges:          ranges,
		Workdir:         workdir,
		GatewaySettings: gateway,
		Clusters:        clusters,
		Admin:           admin,
		Password:        password,
		Rand:            rand.New(rand.NewPCG(seed, seed)),
	}
	if err := deployment.ResolveSchedulerAuth(); err != nil {
		return orchestrator.Deployment{}, err
	}
	return deployment, nil
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

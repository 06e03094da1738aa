// odinscheduler is the CLI entrypoint for the pipeline scheduler core
// (spec §6): it loads the jobs-store credential file, opens the
// selected Jobs Store backend, wires the Cluster Client, Handler
// Registry and Executor, resumes any non-terminal PipelineRuns, and
// serves the Control Surface until terminated. Flags are bound with
// spf13/cobra, grounded on kubeopencode-kubeopencode's cmd/kubetask
// unified-binary pattern (SPEC_FULL §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/linlanniao/odinscheduler/internal/cluster"
	"github.com/linlanniao/odinscheduler/internal/config"
	"github.com/linlanniao/odinscheduler/internal/control"
	"github.com/linlanniao/odinscheduler/internal/executor"
	"github.com/linlanniao/odinscheduler/internal/handlers"
	"github.com/linlanniao/odinscheduler/internal/metrics"
	"github.com/linlanniao/odinscheduler/internal/pipeline"
	"github.com/linlanniao/odinscheduler/internal/store"
)

var (
	flagPipelinesRoot    string
	flagDataRoot         string
	flagCredentialsFile  string
	flagListenAddr       string
	flagMetricsAddr      string
	flagNamespace        string
	flagTickInterval     time.Duration
	flagBackoffCeiling   time.Duration
	flagConnectTimeout   time.Duration
	flagRedisAddr        string
)

var rootCmd = &cobra.Command{
	Use:   "odinscheduler",
	Short: "Pipeline scheduler core: DAG execution against a container cluster",
	RunE:  run,
	// Exit codes per spec §6: nonzero only for a startup
	// configuration failure; the scheduler never exits on a
	// per-pipeline failure.
	SilenceUsage: true,
}

func main() {
	rootCmd.Flags().StringVar(&flagPipelinesRoot, "pipelines-root", "", "Root directory of pipeline descriptors (required)")
	rootCmd.Flags().StringVar(&flagDataRoot, "data-root", "/var/lib/odinscheduler/runs", "Root directory for per-run workspaces (${RUN_PATH})")
	rootCmd.Flags().StringVar(&flagCredentialsFile, "credentials-file", "", "Path to the jobs-store credential file (required)")
	rootCmd.Flags().StringVar(&flagListenAddr, "listen-address", ":7654", "Control Surface listen address")
	rootCmd.Flags().StringVar(&flagMetricsAddr, "metrics-address", ":9090", "Prometheus /metrics listen address")
	rootCmd.Flags().StringVar(&flagNamespace, "namespace", "default", "Cluster namespace workloads are submitted into")
	rootCmd.Flags().DurationVar(&flagTickInterval, "tick-interval", 5*time.Second, "Reconciliation tick interval")
	rootCmd.Flags().DurationVar(&flagBackoffCeiling, "backoff-ceiling", 2*time.Minute, "Cluster Client retry ceiling")
	rootCmd.Flags().DurationVar(&flagConnectTimeout, "connect-timeout", 10*time.Second, "Jobs Store connect timeout")
	rootCmd.Flags().StringVar(&flagRedisAddr, "reconciliation-lock-addr", "", "Redis address for the cross-process reconciliation lock (optional, single-process deployments can omit it)")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "odinscheduler: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flagPipelinesRoot == "" || flagCredentialsFile == "" {
		return fmt.Errorf("--pipelines-root and --credentials-file are required")
	}

	creds, err := config.Load(flagCredentialsFile)
	if err != nil {
		return fmt.Errorf("loading credentials: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st, err := openStore(ctx, creds)
	if err != nil {
		return fmt.Errorf("opening jobs store: %w", err)
	}

	cc, err := cluster.Get(flagNamespace, flagBackoffCeiling)
	if err != nil {
		return fmt.Errorf("connecting to cluster: %w", err)
	}
	registry := handlers.NewRegistry(cc)
	loader := pipeline.NewLoader(flagPipelinesRoot)

	exec := executor.New(executor.Config{
		RootPath:     flagPipelinesRoot,
		DataRoot:     flagDataRoot,
		TickInterval: flagTickInterval,
	}, st, registry, loader.Load)
	if flagRedisAddr != "" {
		exec.WithReconciliationLock(store.NewReconciliationLock(flagRedisAddr))
	}

	if err := exec.Resume(ctx); err != nil {
		return fmt.Errorf("resuming non-terminal pipeline runs: %w", err)
	}

	metricsSrv := metrics.NewServer(flagMetricsAddr)
	metricsSrv.StartAsync()

	controlSrv := control.NewServer(flagListenAddr, exec, st, registry, flagDataRoot)
	klog.Infof("odinscheduler: control surface listening on %s", flagListenAddr)

	err = controlSrv.ListenAndServe(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = metricsSrv.Stop(shutdownCtx)

	if err != nil {
		return fmt.Errorf("control surface: %w", err)
	}
	klog.Info("odinscheduler: clean shutdown")
	return nil
}

// openStore selects the Jobs Store backend per jobs_db.backend (spec
// §6, §9 Design Notes).
func openStore(ctx context.Context, creds *config.Credentials) (store.Store, error) {
	cfg := creds.StoreConfig(flagConnectTimeout, flagDataRoot+"/.jobsdb")
	switch cfg.Backend {
	case store.BackendPostgres:
		pg, err := store.NewPostgresStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if err := store.Migrate(pg.DB()); err != nil {
			return nil, fmt.Errorf("running migrations: %w", err)
		}
		return pg, nil
	case store.BackendMongo:
		return store.NewDocumentStore(cfg.DocumentDir)
	default:
		return nil, fmt.Errorf("unsupported jobs_db.backend %q", cfg.Backend)
	}
}

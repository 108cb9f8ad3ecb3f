package cmd

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"rolloutctl/internal/config"
	"rolloutctl/internal/manifest"
	"rolloutctl/internal/orchestrator"
	"rolloutctl/internal/registry"
	"rolloutctl/internal/tui"
	"rolloutctl/pkg/logging"
)

var (
	rolloutEnvironment    string
	rolloutServices       string
	rolloutConcurrency    int
	rolloutDryRun         bool
	rolloutSkipValidation bool
	rolloutStrictAccess   bool
	rolloutNoRollback     bool
	rolloutSkipGateway    bool
	rolloutWatch          bool
	rolloutManifestDir    string
)

func newRolloutCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rollout",
		Short: "Deploy the selected services to an environment in phases",
		Long: `Deploys the selected services to the target environment, phase by
phase. Within a phase units run concurrently up to --concurrency; a new
phase only starts once every unit of the previous one has succeeded.
Each unit is rendered, submitted, awaited until ready, health checked
and granted its invoker bindings. A unit that fails after deployment is
rolled back to its previous revision unless --no-rollback is set, and
once every unit is up the environment's gateway is switched to the new
endpoints.

The process exit code is the number of failed units, so a clean run
exits 0. A dry run validates every unit, mutates nothing and always
exits 0. The run is recorded in a JSON manifest either way.`,
		Args: cobra.NoArgs,
		RunE: runRollout,
	}

	cmd.Flags().StringVar(&rolloutEnvironment, "environment", "", "Target environment (required)")
	cmd.Flags().StringVar(&rolloutServices, "services", "all", "Comma-separated services to deploy, or 'all'")
	cmd.Flags().IntVar(&rolloutConcurrency, "concurrency", 1, "Units deployed concurrently within one phase")
	cmd.Flags().BoolVar(&rolloutDryRun, "dry-run", false, "Render and validate only, deploy nothing")
	cmd.Flags().BoolVar(&rolloutSkipValidation, "skip-validation", false, "Skip schema validation of rendered configs")
	cmd.Flags().BoolVar(&rolloutStrictAccess, "strict-access", false, "Treat access binding failures as unit failures")
	cmd.Flags().BoolVar(&rolloutNoRollback, "no-rollback", false, "Leave failed deployments in place for inspection")
	cmd.Flags().BoolVar(&rolloutSkipGateway, "skip-gateway", false, "Skip the gateway promotion step")
	cmd.Flags().BoolVar(&rolloutWatch, "watch", false, "Follow the rollout in a live dashboard")
	cmd.Flags().StringVar(&rolloutManifestDir, "manifest-dir", "", "Directory for the run manifest (default: from config)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}

func runRollout(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	env, err := r.environment(rolloutEnvironment)
	if err != nil {
		return err
	}
	reg, err := r.selection(serviceList(rolloutServices))
	if err != nil {
		return err
	}

	opts := orchestrator.Options{
		Concurrency:    rolloutConcurrency,
		DryRun:         rolloutDryRun,
		SkipValidation: rolloutSkipValidation,
		StrictAccess:   rolloutStrictAccess,
		NoRollback:     rolloutNoRollback,
		SkipGateway:    rolloutSkipGateway,
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var m *manifest.Manifest
	var failed int
	var runErr error
	if rolloutWatch {
		m, failed, runErr = runWatched(ctx, r, env, reg, opts)
	} else {
		initLogging(r.cfg)
		m, failed, runErr = r.rollout(ctx, env, reg, manifest.NewRecorder(), opts)
	}

	if m != nil {
		if _, err := manifest.Write(*m, r.manifestDir(rolloutManifestDir)); err != nil {
			logging.Error("rollout", err, "Manifest could not be written")
		}
		manifest.WriteSummary(os.Stdout, *m)
	}

	if runErr != nil {
		if failed == 0 {
			return runErr
		}
		logging.Error("rollout", runErr, "Rollout follow-up failed")
	}
	if failed > 0 {
		return &failedUnitsError{count: failed}
	}
	return nil
}

// runWatched runs the rollout under the live dashboard. The run itself is
// decoupled from the UI: quitting the dashboard cancels the run, and the
// manifest still covers everything captured up to that point.
func runWatched(ctx context.Context, r *runner, env config.Environment, reg *registry.Registry, opts orchestrator.Options) (*manifest.Manifest, int, error) {
	logs := logging.InitForTUI(effectiveLogLevel(r.cfg))

	recorder := manifest.NewRecorder()
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	var m *manifest.Manifest
	var failed int
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		m, failed, runErr = r.rollout(runCtx, env, reg, recorder, opts)
	}()

	uiErr := tui.Run(tui.Config{
		Environment: env.Name,
		RunID:       recorder.RunID(),
		Recorder:    recorder,
		Logs:        logs,
		Start: func() (int, error) {
			<-done
			return failed, runErr
		},
		Cancel: cancelRun,
	})

	// A dashboard that could not start (or was force-quit) must not leave
	// the rollout running unobserved.
	cancelRun()
	<-done

	// The dashboard is gone; log to stderr again for the wrap-up.
	logging.InitForCLI(effectiveLogLevel(r.cfg), os.Stderr)
	if uiErr != nil {
		logging.Error("rollout", uiErr, "Watch dashboard failed, rollout was cancelled")
	}
	return m, failed, runErr
}

// serviceList parses the --services flag. Empty and "all" select the whole
// catalog.
func serviceList(flag string) []string {
	trimmed := strings.TrimSpace(flag)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		return nil
	}
	parts := strings.Split(trimmed, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if name := strings.TrimSpace(part); name != "" {
			out = append(out, name)
		}
	}
	return out
}

// commandContext returns the command's context, falling back to Background
// when cobra did not set one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

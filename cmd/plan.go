package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rolloutctl/internal/manifest"
	"rolloutctl/internal/orchestrator"
)

var (
	planEnvironment string
	planServices    string
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Render and validate a rollout without deploying",
		Long: `Renders every selected unit against the target environment and
validates the result, exactly as a rollout would, but submits nothing
and writes no manifest file. Valid units show up as DryRun in the
outcome table, invalid ones as Failed, and the exit code is the number
of invalid units, which makes plan usable as a CI gate.`,
		Args: cobra.NoArgs,
		RunE: runPlan,
	}

	cmd.Flags().StringVar(&planEnvironment, "environment", "", "Target environment (required)")
	cmd.Flags().StringVar(&planServices, "services", "all", "Comma-separated services to validate, or 'all'")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}

func runPlan(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	initLogging(r.cfg)

	env, err := r.environment(planEnvironment)
	if err != nil {
		return err
	}
	reg, err := r.selection(serviceList(planServices))
	if err != nil {
		return err
	}

	m, _, err := r.rollout(commandContext(cmd), env, reg, manifest.NewRecorder(), orchestrator.Options{DryRun: true})
	if err != nil {
		return err
	}

	manifest.WriteSummary(os.Stdout, *m)
	if invalid := m.FailedCount(); invalid > 0 {
		noun := "unit"
		if invalid != 1 {
			noun = "units"
		}
		return &failedUnitsError{
			count:   invalid,
			message: fmt.Sprintf("%d %s failed validation", invalid, noun),
		}
	}
	return nil
}

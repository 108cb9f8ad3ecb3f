package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var freezeEnvironment string

func newFreezeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "freeze <service>...",
		Short: "Emergency-freeze units: scale to zero and cut external traffic",
		Long: `Scales the named units to zero instances and restricts their ingress to
internal traffic. This is the operator's full stop for a misbehaving
unit, stronger than a rollback: nothing serves until the unit is
deployed again.

Units must be named explicitly; there is no freeze-everything shortcut.
Every named unit is attempted even when an earlier one fails.`,
		Args: cobra.MinimumNArgs(1),
		RunE: runFreeze,
	}

	cmd.Flags().StringVar(&freezeEnvironment, "environment", "", "Target environment (required)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}

func runFreeze(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	initLogging(r.cfg)

	frozen, err := r.Freeze(commandContext(cmd), freezeEnvironment, args)
	if len(frozen) > 0 {
		fmt.Printf("Froze %d unit(s) in %s: %s\n", len(frozen), freezeEnvironment, strings.Join(frozen, ", "))
	}
	if err != nil {
		return fmt.Errorf("freeze incomplete: %w", err)
	}
	return nil
}

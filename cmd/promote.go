package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var promoteEnvironment string

func newPromoteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promote",
		Short: "Point the environment's gateway at the currently serving units",
		Long: `Rebuilds the gateway routing table from the units that are ready right
now and switches the environment's gateway over to it. Units that are
not deployed or not ready are left out of the table.

The switch is compensated on failure: a route config that never made it
to the gateway is deleted again and the gateway keeps its previous
target. A rollout run does this step automatically; promote exists to
redo it on its own, for example after thawing a frozen unit.`,
		Args: cobra.NoArgs,
		RunE: runPromote,
	}

	cmd.Flags().StringVar(&promoteEnvironment, "environment", "", "Target environment (required)")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}

func runPromote(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	initLogging(r.cfg)

	routeConfig, err := r.Promote(commandContext(cmd), promoteEnvironment)
	if err != nil {
		return err
	}
	fmt.Printf("Gateway for %s now serves route config %s\n", promoteEnvironment, routeConfig)
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"rolloutctl/internal/agent"
)

var (
	statusEnvironment string
	statusServices    string
	statusOutput      string
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the live state of deployed units",
		Long: `Reads the current state of every selected unit straight from the
control plane: readiness, serving endpoint, revision and, for units
that are not ready, the reason. Units the control plane does not know
are listed as not deployed.`,
		Args: cobra.NoArgs,
		RunE: runStatus,
	}

	cmd.Flags().StringVar(&statusEnvironment, "environment", "", "Target environment (required)")
	cmd.Flags().StringVar(&statusServices, "services", "all", "Comma-separated services to inspect, or 'all'")
	cmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format: table or yaml")
	_ = cmd.MarkFlagRequired("environment")

	return cmd
}

func runStatus(cmd *cobra.Command, args []string) error {
	r, err := newRunner()
	if err != nil {
		return err
	}
	initLogging(r.cfg)

	units, err := r.Status(commandContext(cmd), statusEnvironment, serviceList(statusServices))
	if err != nil {
		return err
	}

	switch statusOutput {
	case "table", "":
		writeStatusTable(os.Stdout, statusEnvironment, units)
		return nil
	case "yaml":
		return writeStatusYAML(os.Stdout, statusEnvironment, units)
	default:
		return fmt.Errorf("unknown output format %q (want table or yaml)", statusOutput)
	}
}

var statusColumns = []string{"SERVICE", "READY", "REVISION", "URL", "REASON"}

func writeStatusTable(w io.Writer, environment string, units []agent.UnitStatus) {
	rows := make([][]string, 0, len(units))
	for _, unit := range units {
		ready := "no"
		if unit.Ready {
			ready = "yes"
		}
		rows = append(rows, []string{unit.Service, ready, unit.Revision, unit.URL, unit.Reason})
	}

	widths := make([]int, len(statusColumns))
	for i, col := range statusColumns {
		widths[i] = runewidth.StringWidth(col)
	}
	for _, row := range rows {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	fmt.Fprintf(w, "Units in %s\n", environment)
	header := ""
	for i, col := range statusColumns {
		header += runewidth.FillRight(col, widths[i]+2)
	}
	fmt.Fprintln(w, header)
	for _, row := range rows {
		line := ""
		for i, cell := range row {
			line += runewidth.FillRight(cell, widths[i]+2)
		}
		fmt.Fprintln(w, line)
	}
}

// statusDocument is the machine-readable status shape.
type statusDocument struct {
	Environment string             `yaml:"environment"`
	Units       []agent.UnitStatus `yaml:"units"`
}

func writeStatusYAML(w io.Writer, environment string, units []agent.UnitStatus) error {
	data, err := yaml.Marshal(statusDocument{Environment: environment, Units: units})
	if err != nil {
		return fmt.Errorf("encoding status: %w", err)
	}
	_, err = w.Write(data)
	return err
}

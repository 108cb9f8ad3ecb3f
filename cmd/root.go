package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rolloutctl/internal/config"
	"rolloutctl/pkg/logging"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "rolloutctl",
	Short: "Phased service rollouts with access reconciliation",
	Long: `rolloutctl deploys a catalog of services to an environment in ordered
phases, waits for each unit to become ready and healthy, reconciles
invoker access bindings, and flips the shared gateway to the new
endpoints once every unit is up. Failed units are rolled back to their
previous revision and the run is recorded in a deployment manifest.`,
	// SilenceUsage is set to true to prevent printing usage message on errors
	// handled by us (e.g. invalid flags, failed rollouts)
	SilenceUsage: true,
}

// Flags shared by every command.
var (
	configFile  string
	kubeContext string
	logLevel    string
)

// failedUnitsError carries a run's failure count out of RunE so Execute
// can turn it into the process exit code.
type failedUnitsError struct {
	count   int
	message string
}

func (e *failedUnitsError) Error() string {
	if e.message != "" {
		return e.message
	}
	noun := "unit"
	if e.count != 1 {
		noun = "units"
	}
	return fmt.Sprintf("rollout finished with %d failed %s", e.count, noun)
}

// effectiveLogLevel resolves the log level, the flag winning over the config.
func effectiveLogLevel(cfg config.Config) logging.LogLevel {
	level := logLevel
	if level == "" {
		level = cfg.GlobalSettings.LogLevel
	}
	return logging.ParseLevel(level)
}

// initLogging sets up plain CLI logging on stderr, keeping stdout for
// command output.
func initLogging(cfg config.Config) {
	logging.InitForCLI(effectiveLogLevel(cfg), os.Stderr)
}

// SetVersion sets the version for the root command
func SetVersion(v string) {
	rootCmd.Version = v // Set cobra's version field as well
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// The exit code of a failed rollout is its failed-unit count.
func Execute() {
	// Set up version template
	rootCmd.SetVersionTemplate(`{{printf "rolloutctl version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		var failed *failedUnitsError
		if errors.As(err, &failed) {
			os.Exit(failed.count)
		}
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Catalog file to use instead of the layered configuration")
	rootCmd.PersistentFlags().StringVar(&kubeContext, "kube-context", "", "Kubeconfig context to use (default: current context)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (default: from config)")

	rootCmd.AddCommand(newRolloutCmd())
	rootCmd.AddCommand(newPlanCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newFreezeCmd())
	rootCmd.AddCommand(newPromoteCmd())
	rootCmd.AddCommand(newAgentCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newSelfUpdateCmd())
}

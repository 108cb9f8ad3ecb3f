package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number of rolloutctl",
		Long:  `All software has versions. This is rolloutctl's.`,
		Run: func(cmd *cobra.Command, args []string) {
			// rootCmd.Version is set by main; --version goes through the
			// template in root.go, this prints the same line explicitly.
			fmt.Printf("rolloutctl version %s\n", rootCmd.Version)
		},
	}
}

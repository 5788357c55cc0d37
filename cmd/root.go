package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/credkeep/cli/internal/creds"
)

var (
	// Global state shared by the command tree
	manager *creds.Manager
	logger  *log.Logger

	// Command line flags
	credentialsFile string
	verbose         bool
	version         = "1.0.0" // This will be set during build
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "credkeep",
	Short: "Credkeep CLI - Manage Google service-account credentials",
	Long: `Credkeep CLI manages the single Google service-account credential file a
deployment relies on: locating it across the deployed and development
paths, validating it, saving new credentials, and handing its path or
fields to whatever client needs them.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = log.New(os.Stderr)
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}

		opts := []creds.Option{creds.WithLogger(logger)}
		if credentialsFile != "" {
			opts = append(opts, creds.WithPath(credentialsFile))
		}
		manager = creds.NewManager(opts...)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&credentialsFile, "credentials-file", "", "Override the resolved credential file path")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable debug logging")

	// Add version command
	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number of Credkeep CLI",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Credkeep CLI v%s\n", version)
		},
	}

	rootCmd.AddCommand(versionCmd)
}

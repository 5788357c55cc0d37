package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/credkeep/cli/internal/creds"
)

var (
	setFile      string
	checkFile    string
	outputFormat string
)

var (
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("2")).Bold(true)
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
)

// credsCmd represents the creds command
var credsCmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage the stored service-account credentials",
	Long: `Manage the Google service-account credential file.

Examples:
  # Store credentials from a downloaded key file
  credkeep creds set --file ~/Downloads/key.json

  # Show the current state
  credkeep creds status

  # Print the stored record as YAML
  credkeep creds show -o yaml

  # Validate a key file without storing it
  credkeep creds check --file key.json

  # Remove stored credentials
  credkeep creds clear`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredsStatus()
	},
}

var credsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store new service-account credentials",
	Long: `Store a service-account JSON record, replacing any previous one.

The record is read from --file, or from stdin when --file is "-". It is
validated before anything is written; an invalid record leaves both the
file and the stored state untouched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredsSet()
	},
}

var credsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the stored credential record",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredsShow()
	},
}

var credsStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current credential state",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCredsStatus()
	},
}

var credsPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the credential file path",
	Long: `Print the resolved credential file path.

The path is only disclosed while valid credentials are stored, so the
output is always safe to hand to a client as GOOGLE_APPLICATION_CREDENTIALS.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, ok := manager.FilePath()
		if !ok {
			return fmt.Errorf("no credentials stored. Run 'credkeep creds set' first")
		}
		fmt.Println(path)
		return nil
	},
}

var credsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove stored credentials",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !manager.Clear() {
			return fmt.Errorf("failed to remove the credential file")
		}
		fmt.Println("Credentials removed successfully")
		return nil
	},
}

var credsCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate a credential file without storing it",
	Long: `Validate that a file is a well-formed service-account key: valid JSON,
all required fields present, type equal to "service_account", and every
credential field a string. The stored state is not touched.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if checkFile == "" {
			return fmt.Errorf("--file is required")
		}
		if err := creds.CheckFile(checkFile); err != nil {
			return fmt.Errorf("validation failed: %w", err)
		}
		fmt.Printf("%s %s is a valid service-account key\n", okStyle.Render("OK"), checkFile)
		return nil
	},
}

func runCredsSet() error {
	if setFile == "" {
		return fmt.Errorf("--file is required (use - for stdin)")
	}

	var data []byte
	var err error
	if setFile == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(setFile)
	}
	if err != nil {
		return fmt.Errorf("failed to read credentials: %w", err)
	}

	var rec creds.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return fmt.Errorf("input is not valid JSON: %w", err)
	}

	if !manager.Save(rec) {
		return fmt.Errorf("credentials were not saved")
	}

	path, _ := manager.FilePath()
	fmt.Printf("Credentials saved to %s\n", path)
	return nil
}

func runCredsShow() error {
	rec := manager.Get()
	if rec == nil {
		return fmt.Errorf("no credentials stored")
	}

	switch outputFormat {
	case "json":
		data, err := json.MarshalIndent(rec, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode credentials: %w", err)
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(rec)
		if err != nil {
			return fmt.Errorf("failed to encode credentials: %w", err)
		}
		fmt.Print(string(data))
	default:
		return fmt.Errorf("invalid output format %q: must be 'json' or 'yaml'", outputFormat)
	}
	return nil
}

func runCredsStatus() error {
	if !manager.Has() {
		fmt.Printf("%s No credentials stored\n", failStyle.Render("--"))
		fmt.Println("Run 'credkeep creds set --file key.json' to store a service-account key.")
		return nil
	}

	path, _ := manager.FilePath()
	projectID, _ := manager.ProjectID()
	clientEmail, _ := manager.ClientEmail()

	fmt.Printf("%s Credentials stored\n", okStyle.Render("OK"))
	fmt.Printf("  File: %s\n", path)
	fmt.Printf("  Project: %s\n", projectID)
	fmt.Printf("  Client email: %s\n", clientEmail)

	if rec := manager.Get(); rec != nil {
		if keyID, ok := rec["private_key_id"].(string); ok {
			fmt.Printf("  Key ID: %s\n", mask(keyID))
		}
	}
	return nil
}

// mask shortens a secret identifier for display
func mask(s string) string {
	if len(s) > 8 {
		return s[:4] + "..." + s[len(s)-4:]
	}
	return s
}

func init() {
	credsSetCmd.Flags().StringVar(&setFile, "file", "", "JSON key file to store, or - for stdin")
	credsCheckCmd.Flags().StringVar(&checkFile, "file", "", "JSON key file to validate")
	credsShowCmd.Flags().StringVarP(&outputFormat, "output", "o", "json", "Output format: json, yaml")

	credsCmd.AddCommand(credsSetCmd, credsShowCmd, credsStatusCmd, credsPathCmd, credsClearCmd, credsCheckCmd)
	rootCmd.AddCommand(credsCmd)
}

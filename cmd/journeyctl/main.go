package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/dataproduct/journeys/internal/config"
	"github.com/dataproduct/journeys/internal/logging"
)

var (
	outputFormat  string
	inputFile     string
	dataProductID string
	crawlerChecks int
	failTargets   []string
	storeVersion  string
	useOutbox     bool
	logLevel      string

	cfg    config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:           "journeyctl",
	Short:         "Build, inspect and run data product journeys",
	Long:          "journeyctl exports the producer, consumer and visibility journeys, validates journey documents and runs journeys against simulated collaborators.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.LoadFromEnv()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			loaded.LogLevel = logLevel
			if err := loaded.Validate(); err != nil {
				return err
			}
		}
		cfg = loaded
		logger = logging.NewWithWriter(cfg.LogLevel, cfg.LogFormat, cmd.ErrOrStderr())
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <journey>",
	Short: "Print the document of a built-in journey",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportJourney(cmd.OutOrStdout(), args[0])
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <file>",
	Short: "Validate a JSON or YAML journey document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return validateFile(cmd.OutOrStdout(), args[0])
	},
}

var simulateCmd = &cobra.Command{
	Use:   "simulate <journey>",
	Short: "Run a journey against simulated collaborators",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return simulate(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage journey documents in the configured store",
}

var storePutCmd = &cobra.Command{
	Use:   "put <journey|file>",
	Short: "Save a built-in journey or a document file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storePut(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var storeGetCmd = &cobra.Command{
	Use:   "get <journey>",
	Short: "Print a stored journey document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeGet(cmd.Context(), cmd.OutOrStdout(), args[0])
	},
}

var storeListCmd = &cobra.Command{
	Use:   "list [journey]",
	Short: "List stored journeys, or the versions of one journey",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return storeList(cmd.Context(), cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(simulateCmd)
	rootCmd.AddCommand(storeCmd)

	storeCmd.AddCommand(storePutCmd)
	storeCmd.AddCommand(storeGetCmd)
	storeCmd.AddCommand(storeListCmd)

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override JOURNEYS_LOG_LEVEL (debug/info/warn/error)")

	exportCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json/yaml)")

	simulateCmd.Flags().StringVar(&dataProductID, "id", "", "Data product ID to run the journey for")
	simulateCmd.Flags().StringVarP(&inputFile, "input", "i", "", "JSON or YAML file with the journey input")
	simulateCmd.Flags().IntVar(&crawlerChecks, "crawler-checks", 0, "Status checks that report RUNNING before a crawler is ready")
	simulateCmd.Flags().BoolVar(&useOutbox, "outbox", false, "Publish consumer messages and completion events to an outbox on the configured store")
	simulateCmd.Flags().StringSliceVar(&failTargets, "fail", nil, "Make a target fail, as target=times (repeatable)")

	storeGetCmd.Flags().StringVar(&storeVersion, "version", "", "Version to fetch (default: latest)")
	storeGetCmd.Flags().StringVarP(&outputFormat, "format", "f", "json", "Output format (json/yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func writeFormatted(w io.Writer, v any, format string) error {
	switch format {
	case "json", "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}

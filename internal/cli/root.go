// Package cli implements the modelled-needs command line tool.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/modelled-needs-server/internal/app"
	"github.com/modelled-needs-server/internal/config"
	"github.com/modelled-needs-server/internal/database"
	"github.com/modelled-needs-server/internal/lookup"
)

type rootOptions struct {
	configFile string
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "modelled-needs",
		Short: "Compare expected and observed long-term condition prevalence by area",
		Long: `modelled-needs fits a logistic model of a long-term condition on patient
predictors, scores every patient and compares expected with observed case
counts per area.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a config file")

	root.AddCommand(newRunCommand(opts), newMigrateCommand(opts), newLookupsCommand())
	return root
}

func (o *rootOptions) load(stderr io.Writer) (*config.Manager, *logrus.Logger, error) {
	cm, err := config.NewManager(o.configFile)
	if err != nil {
		return nil, nil, err
	}
	if err := cm.Validate(); err != nil {
		return nil, nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cm, config.NewLogger(cm.GetConfig().Logging, stderr), nil
}

func newRunCommand(opts *rootOptions) *cobra.Command {
	var requestFile string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one modelled-needs request and print the JSON response",
		Long: `run reads a request body from --request (or stdin when it is "-") and
writes the response body to stdout. The exit status is non-zero when the
response status is not 200.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readRequest(cmd.InOrStdin(), requestFile)
			if err != nil {
				return err
			}

			cm, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			components, err := app.Build(cm, logger, nil)
			if err != nil {
				return err
			}

			resp := components.Pipeline.HandleJSON(cmd.Context(), body, uuid.New().String())
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(resp); err != nil {
				return err
			}
			if resp.Status != 200 {
				return fmt.Errorf("request failed with status %d", resp.Status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&requestFile, "request", "r", "-", "request JSON file, - for stdin")
	return cmd
}

func readRequest(stdin io.Reader, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading request: %w", err)
	}
	return body, nil
}

func newMigrateCommand(opts *rootOptions) *cobra.Command {
	var (
		path string
		down bool
	)

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the population schema to the configured database",
		RunE: func(cmd *cobra.Command, args []string) error {
			cm, logger, err := opts.load(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			runner, err := database.NewMigrationRunner(cm.GetDatabaseConnectionString(), path, logger)
			if err != nil {
				return err
			}
			defer func() {
				if err := runner.Close(); err != nil {
					logger.WithError(err).Warn("Failed to close migration runner")
				}
			}()

			if down {
				return runner.Down()
			}
			return runner.Up()
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "directory of migration files; the built-in schema when empty")
	cmd.Flags().BoolVar(&down, "down", false, "roll back one migration instead")
	return cmd
}

func newLookupsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lookups",
		Short: "Print the accepted condition, area level and predictor names",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(lookup.NewResolver().Tables())
		},
	}
}

package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect gptdisk configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long: `Print the configuration after merging defaults, the config file and
GPTDISK_* environment variables.`,

	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfigShow(cmd)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
}

func runConfigShow(cmd *cobra.Command) error {
	ctx, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Logger.Sync()

	cfg := *ctx.Config
	if backendName != "" {
		cfg.Backend = backendName
	}

	// Configuration reads best as YAML, so the table format falls back to it
	if ctx.OutputFormat == "table" {
		ctx.OutputFormat = "yaml"
	}
	return render(ctx, cfg, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%+v\n", cfg)
		return err
	})
}

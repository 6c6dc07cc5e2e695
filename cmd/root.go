package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

var (
	// Global output flags
	verbose      bool
	quiet        bool
	outputFormat string

	// Device access flags
	configPath  string
	backendName string
)

var rootCmd = &cobra.Command{
	Use:   "gptdisk",
	Short: "Cross-platform GPT partition table inspector and provisioning tool",
	Long: `gptdisk reads, verifies, repairs and writes GUID Partition Tables on raw
disks and disk images without mounting them or looking inside any filesystem.

Commands:
  inspect     Show device geometry, the GPT header and partitions
  init        Write a protective MBR and an empty GPT with its backup
  verify      Cross-check the primary and backup GPT
  repair      Rebuild a damaged GPT copy from the intact one
  snapshot    Copy a whole device into an optionally compressed image
  config      Show the effective configuration`,
	Version:       "0.1.0-dev",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format (table, json, yaml)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: gptdisk-config.yaml in ., ./config, $HOME/.gptdisk, /etc/gptdisk)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "raw I/O backend (file, mmap); overrides the config file")

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")
}

// GetVerbose returns the verbose flag value
func GetVerbose() bool {
	return verbose
}

// GetQuiet returns the quiet flag value
func GetQuiet() bool {
	return quiet
}

// GetOutputFormat returns the output format
func GetOutputFormat() string {
	return outputFormat
}

// newAppContext loads the configuration and builds the logger shared by every command
func newAppContext(cmd *cobra.Command) (*app.Context, error) {
	cfg, err := disk.LoadDiskConfig(configPath)
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "cannot load configuration", err)
	}

	level := cfg.LogLevel
	switch {
	case verbose:
		level = "debug"
	case quiet:
		level = "error"
	}
	logger, err := logging.NewLogger(logging.LoggerConfig{
		ServiceName: "gptdisk",
		Level:       level,
		Format:      cfg.LogFormat,
		Output:      cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, app.NewError(app.ErrCodeInvalidInput, "cannot build logger", err)
	}

	ctx := app.NewContext()
	if cmd.Context() != nil {
		ctx.Context = cmd.Context()
	}
	ctx.OutputFormat = GetOutputFormat()
	ctx.Verbose = GetVerbose()
	ctx.Quiet = GetQuiet()
	ctx.Out = cmd.OutOrStdout()
	ctx.Config = cfg
	ctx.Logger = logger
	return ctx, nil
}

// deviceTarget builds the device target for a positional device argument
func deviceTarget(path string) app.DeviceTarget {
	return app.DeviceTarget{Path: path, Backend: backendName}
}

package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-gptdisk/pkg/app/inspect"
)

var inspectSkipVerify bool

var inspectCmd = &cobra.Command{
	Use:   "inspect <device>",
	Short: "Show device geometry, the GPT header and partitions",
	Long: `Open a disk or image, discover its GPT partitions and cross-check the
primary and backup tables.

Examples:
  # Inspect a USB stick
  gptdisk inspect /dev/sdb

  # Inspect an image through a memory map and print JSON
  gptdisk inspect disk.img --backend mmap -o json`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInspect(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectSkipVerify, "skip-verify", false, "read only the primary header, skip the backup cross-check")
}

func runInspect(cmd *cobra.Command, path string) error {
	ctx, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Logger.Sync()

	request := &inspect.Request{
		Target:     deviceTarget(path),
		SkipVerify: inspectSkipVerify,
	}

	response, err := inspect.Handle(ctx, request)
	if err != nil {
		return err
	}
	ctx.Log(inspect.FormatSummary(response))

	return inspect.FormatOutput(ctx.Out, response, ctx.OutputFormat)
}

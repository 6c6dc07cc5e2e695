package cmd

import (
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-gptdisk/internal/layout"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

var (
	initDryRun   bool
	initDiskGUID string
)

var initCmd = &cobra.Command{
	Use:   "init <device>",
	Short: "Write a protective MBR and an empty GPT with its backup",
	Long: `Write a fresh default layout: a protective MBR at LBA 0, the primary GPT
header and a 128-entry partition array, and their backup copies at the end of
the device. Every existing partition entry is lost.

Examples:
  # Show what would be written without touching the device
  gptdisk init /dev/sdb --dry-run

  # Initialize an image with a fixed disk GUID
  gptdisk init disk.img --disk-guid 0A0B0C0D-1111-2222-3333-444455556666`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInit(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(initCmd)

	initCmd.Flags().BoolVar(&initDryRun, "dry-run", false, "validate and plan the writes without touching the device")
	initCmd.Flags().StringVar(&initDiskGUID, "disk-guid", "", "disk GUID for the new table (random when empty)")
}

func runInit(cmd *cobra.Command, path string) error {
	ctx, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Logger.Sync()

	opts := []layout.WriterOption{
		layout.WithDryRun(initDryRun || ctx.Config.DryRun),
		layout.WithWriterLogger(ctx.Logger),
	}
	if initDiskGUID != "" {
		id, err := uuid.Parse(initDiskGUID)
		if err != nil {
			return app.NewError(app.ErrCodeInvalidInput, "invalid disk GUID", err)
		}
		opts = append(opts, layout.WithDiskGUID(id))
	}
	writer := layout.NewWriter(opts...)

	d, err := ctx.OpenDevice(deviceTarget(path), nil, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	access := types.AccessReadWrite
	if writer.DryRun() {
		access = types.AccessRead
	}

	var result *layout.Result
	err = d.WithLock(func() error {
		s, err := d.CreateStream(access)
		if err != nil {
			return err
		}
		defer s.Close()

		result, err = writer.WriteDefaultLayout(s)
		return err
	})
	if err != nil {
		return app.WrapError("cannot write layout to "+path, err)
	}

	out := newLayoutOutput(path, result)
	return render(ctx, out, out.table)
}

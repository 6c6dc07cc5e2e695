package cmd

import (
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-gptdisk/internal/layout"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

var repairDryRun bool

var repairCmd = &cobra.Command{
	Use:   "repair <device>",
	Short: "Rebuild a damaged GPT copy from the intact one",
	Long: `Verify both GPT copies and rewrite the damaged one from the survivor. When
both copies are intact but disagree, the backup is rewritten from the primary.
A device whose copies are both damaged cannot be repaired.

Examples:
  gptdisk repair /dev/sdb --dry-run
  gptdisk repair disk.img`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRepair(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(repairCmd)

	repairCmd.Flags().BoolVar(&repairDryRun, "dry-run", false, "report the writes a repair would issue without touching the device")
}

func runRepair(cmd *cobra.Command, path string) error {
	ctx, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Logger.Sync()

	writer := layout.NewWriter(
		layout.WithDryRun(repairDryRun || ctx.Config.DryRun),
		layout.WithWriterLogger(ctx.Logger),
	)

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

		result, err = writer.Repair(ctx, s)
		return err
	})
	if err != nil {
		return app.WrapError("cannot repair "+path, err)
	}

	out := newLayoutOutput(path, result)
	return render(ctx, out, out.table)
}

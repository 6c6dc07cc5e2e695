package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-gptdisk/internal/layout"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <device>",
	Short: "Cross-check the primary and backup GPT",
	Long: `Read both GPT copies, check every CRC32 and confirm that the backup mirrors
the primary. Exits non-zero when either copy is damaged or they disagree.`,

	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVerify(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

// verifyOutput is the printable form of a verify report
type verifyOutput struct {
	Device     string   `json:"device" yaml:"device"`
	Healthy    bool     `json:"healthy" yaml:"healthy"`
	Primary    string   `json:"primary" yaml:"primary"`
	Backup     string   `json:"backup" yaml:"backup"`
	Mismatches []string `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
}

func copyStatus(c layout.CopyStatus) string {
	if c.OK() {
		return "ok"
	}
	return c.Err.Error()
}

func (o verifyOutput) table(out io.Writer) error {
	fmt.Fprintf(out, "Device: %s\n", o.Device)
	fmt.Fprintf(out, "Primary: %s\n", o.Primary)
	fmt.Fprintf(out, "Backup: %s\n", o.Backup)
	for _, m := range o.Mismatches {
		fmt.Fprintf(out, "Mismatch: %s\n", m)
	}
	if o.Healthy {
		fmt.Fprintln(out, "GPT is healthy.")
	}
	return nil
}

func runVerify(cmd *cobra.Command, path string) error {
	ctx, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Logger.Sync()

	d, err := ctx.OpenDevice(deviceTarget(path), nil, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	s, err := d.CreateStream(types.AccessRead)
	if err != nil {
		return app.WrapError("cannot open device stream", err)
	}
	defer s.Close()

	report, err := layout.NewReader(layout.WithReaderLogger(ctx.Logger)).Verify(ctx, s)
	if err != nil {
		return app.WrapError("verification interrupted", err)
	}

	out := verifyOutput{
		Device:     path,
		Healthy:    report.Healthy(),
		Primary:    copyStatus(report.Primary),
		Backup:     copyStatus(report.Backup),
		Mismatches: report.Mismatches,
	}
	if err := render(ctx, out, out.table); err != nil {
		return err
	}
	if err := report.Err(); err != nil {
		return app.WrapError("GPT verification failed", err)
	}
	return nil
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/deploymenttheory/go-gptdisk/internal/layout"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

// render writes v as JSON or YAML, or calls table for the table format
func render(ctx *app.Context, v any, table func(w io.Writer) error) error {
	switch ctx.OutputFormat {
	case "json":
		encoder := json.NewEncoder(ctx.Out)
		encoder.SetIndent("", "  ")
		return encoder.Encode(v)
	case "yaml":
		encoder := yaml.NewEncoder(ctx.Out)
		defer encoder.Close()
		encoder.SetIndent(2)
		return encoder.Encode(v)
	case "table", "":
		return table(ctx.Out)
	default:
		return fmt.Errorf("unsupported output format: %s", ctx.OutputFormat)
	}
}

// layoutOutput is the printable form of a layout write or repair
type layoutOutput struct {
	Device   string         `json:"device" yaml:"device"`
	DryRun   bool           `json:"dry_run" yaml:"dry_run"`
	State    string         `json:"state" yaml:"state"`
	DiskGUID string         `json:"disk_guid,omitempty" yaml:"disk_guid,omitempty"`
	Writes   []regionOutput `json:"writes" yaml:"writes"`
}

type regionOutput struct {
	Step    string `json:"step" yaml:"step"`
	LBA     uint64 `json:"lba" yaml:"lba"`
	Sectors uint64 `json:"sectors" yaml:"sectors"`
}

func newLayoutOutput(path string, result *layout.Result) layoutOutput {
	out := layoutOutput{
		Device: path,
		DryRun: result.DryRun,
		State:  result.State.String(),
		Writes: make([]regionOutput, 0, len(result.Regions)),
	}
	if result.Primary != nil {
		out.DiskGUID = strings.ToUpper(result.Primary.DiskGUID.String())
	}
	for _, r := range result.Regions {
		out.Writes = append(out.Writes, regionOutput{Step: string(r.Step), LBA: r.LBA, Sectors: r.Sectors})
	}
	return out
}

func (o layoutOutput) table(out io.Writer) error {
	verb := "Wrote"
	if o.DryRun {
		verb = "Would write"
	}
	fmt.Fprintf(out, "Device: %s\n", o.Device)
	if o.DiskGUID != "" {
		fmt.Fprintf(out, "Disk GUID: %s\n", o.DiskGUID)
	}
	if len(o.Writes) == 0 {
		fmt.Fprintln(out, "Nothing to write.")
		return nil
	}
	fmt.Fprintf(out, "%s %d regions:\n", verb, len(o.Writes))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "STEP\tLBA\tSECTORS\n")
	fmt.Fprintf(w, "----\t---\t-------\n")
	for _, r := range o.Writes {
		fmt.Fprintf(w, "%s\t%d\t%d\n", r.Step, r.LBA, r.Sectors)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if !o.DryRun {
		fmt.Fprintf(out, "Layout state: %s\n", o.State)
	}
	return nil
}

package inspect

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

// FormatOutput writes an inspection report in the requested output format
func FormatOutput(out io.Writer, response *Response, format string) error {
	switch format {
	case "json":
		return formatJSON(out, response)
	case "yaml":
		return formatYAML(out, response)
	case "table", "":
		return formatTable(out, response)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// formatTable formats the report as a table
func formatTable(out io.Writer, response *Response) error {
	dev := response.Device
	fmt.Fprintf(out, "Device: %s (%s)\n", dev.Path, dev.Kind)
	fmt.Fprintf(out, "Geometry: %d sectors of %d bytes (%s)\n", dev.SectorCount, dev.SectorSize, formatBytes(dev.Size))

	if h := response.Header; h != nil {
		fmt.Fprintf(out, "Disk GUID: %s (from %s header, revision %s)\n", h.DiskGUID, h.Source, h.Revision)
		fmt.Fprintf(out, "Usable LBAs: %d - %d\n", h.FirstUsableLBA, h.LastUsableLBA)
		fmt.Fprintf(out, "Entry array: %d x %d bytes at LBA %d\n", h.NumberOfEntries, h.SizeOfEntry, h.PartitionEntryLBA)
	} else {
		fmt.Fprintln(out, "No GPT found.")
	}

	if v := response.Verify; v != nil {
		fmt.Fprintf(out, "Integrity: %s\n", integrityLabel(v))
		if v.PrimaryError != "" {
			fmt.Fprintf(out, "  primary: %s\n", v.PrimaryError)
		}
		if v.BackupError != "" {
			fmt.Fprintf(out, "  backup: %s\n", v.BackupError)
		}
		for _, m := range v.Mismatches {
			fmt.Fprintf(out, "  mismatch: %s\n", m)
		}
	}
	if response.DiscoveryError != "" {
		fmt.Fprintf(out, "Discovery failed: %s\n", response.DiscoveryError)
	}
	fmt.Fprintln(out)

	if len(response.Partitions) == 0 {
		fmt.Fprintln(out, "No partitions found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	// Header
	fmt.Fprintf(w, "ID\tNAME\tTYPE\tSTART\tEND\tSIZE\tUNIQUE GUID\n")
	fmt.Fprintf(w, "--\t----\t----\t-----\t---\t----\t-----------\n")

	// Data rows, already in slot order
	for _, p := range response.Partitions {
		fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\t%s\n",
			p.ID, p.Name, p.TypeName, p.StartSector, p.EndSector, p.FormatSize(), p.UniqueGUID)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, p := range response.Partitions {
		for _, issue := range p.Issues {
			fmt.Fprintf(out, "Partition %d: %s\n", p.ID, issue)
		}
	}
	return nil
}

func integrityLabel(v *VerifySummary) string {
	switch {
	case v.Healthy:
		return "ok"
	case v.PrimaryOK && v.BackupOK:
		return "copies differ"
	case v.PrimaryOK:
		return "backup damaged"
	case v.BackupOK:
		return "primary damaged"
	default:
		return "both copies damaged"
	}
}

// formatJSON formats the report as JSON
func formatJSON(out io.Writer, response *Response) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(response)
}

// formatYAML formats the report as YAML
func formatYAML(out io.Writer, response *Response) error {
	encoder := yaml.NewEncoder(out)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(response)
}

// FormatSummary provides a brief summary for verbose output
func FormatSummary(response *Response) string {
	if !response.Device.HasGPT {
		return fmt.Sprintf("%s: no GPT", response.Device.Path)
	}

	summary := fmt.Sprintf("%s: %d partition", response.Device.Path, len(response.Partitions))
	if len(response.Partitions) != 1 {
		summary += "s"
	}

	var total uint64
	for _, p := range response.Partitions {
		total += p.Size
	}
	summary += fmt.Sprintf(" totaling %s", formatBytes(total))
	if response.Verify != nil {
		summary += ", integrity " + integrityLabel(response.Verify)
	}

	return summary
}

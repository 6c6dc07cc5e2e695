package inspect

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-gptdisk/internal/device"
	"github.com/deploymenttheory/go-gptdisk/internal/layout"
	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/internal/parsers/gpt"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

// Handle processes an inspection request
func Handle(ctx *app.Context, req *Request) (*Response, error) {
	startTime := time.Now()

	// 1. Validate request
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx.Log("inspecting device", logging.WithPath(req.Target.Path))
	ctx.Progress("Opening device...", 10)

	// 2. Open the device and discover partitions. A damaged primary GPT still
	// leaves geometry and the backup copy to report on.
	response := &Response{}
	d, err := ctx.OpenDevice(req.Target, req.Backend, device.DefaultRegistry())
	if d == nil {
		return nil, err
	}
	defer d.Close()
	if err != nil {
		response.DiscoveryError = err.Error()
		ctx.Log("partition discovery failed", zap.Error(err))
	}

	response.Device = DeviceInfo{
		Path:        d.Path(),
		Kind:        d.Kind().String(),
		SectorSize:  d.SectorSize(),
		SectorCount: d.SectorCount(),
		Size:        d.Size(),
	}

	// 3. Read the GPT structures
	ctx.Progress("Reading GPT headers...", 40)
	s, err := d.CreateStream(types.AccessRead)
	if err != nil {
		return nil, app.WrapError("cannot open device stream", err)
	}
	defer s.Close()

	reader := layout.NewReader(layout.WithReaderLogger(ctx.Logger))
	var table *layout.Table
	if req.SkipVerify {
		if header, ok, _ := reader.TryReadHeader(s, false); ok {
			response.Header = headerInfo(header, "primary")
			table, _ = reader.ReadLayout(s, false)
		}
	} else {
		report, err := reader.Verify(ctx, s)
		if err != nil {
			return nil, app.WrapError("verification interrupted", err)
		}
		response.Verify = verifySummary(report)
		switch {
		case report.Primary.OK():
			table = report.Primary.Table
			response.Header = headerInfo(table.Header, "primary")
		case report.Backup.OK():
			table = report.Backup.Table
			response.Header = headerInfo(table.Header, "backup")
		}
	}
	response.Device.HasGPT = response.Header != nil

	// 4. Collect partitions
	ctx.Progress("Collecting partitions...", 80)
	registry := req.Types
	if registry == nil {
		registry = types.NewTypeRegistry()
	}
	if response.DiscoveryError != "" && table != nil {
		// Discovery rejected the table, so list the verified copy's entries instead
		response.Partitions = tableResults(table, d.SectorSize(), registry)
	} else {
		response.Partitions = make([]PartitionResult, 0, len(d.Partitions()))
		for _, p := range d.Partitions() {
			response.Partitions = append(response.Partitions, partitionResult(p, registry))
		}
	}

	response.InspectTime = time.Since(startTime)
	ctx.Progress("Complete", 100)
	ctx.Log(fmt.Sprintf("inspection completed: found %d partitions in %v", len(response.Partitions), response.InspectTime))

	return response, nil
}

func headerInfo(h *types.GPTHeader, source string) *HeaderInfo {
	return &HeaderInfo{
		Source:            source,
		DiskGUID:          strings.ToUpper(h.DiskGUID.String()),
		Revision:          formatRevision(h.Revision),
		MyLBA:             h.MyLBA,
		AlternateLBA:      h.AlternateLBA,
		FirstUsableLBA:    h.FirstUsableLBA,
		LastUsableLBA:     h.LastUsableLBA,
		PartitionEntryLBA: h.PartitionEntryLBA,
		NumberOfEntries:   h.NumberOfEntries,
		SizeOfEntry:       h.SizeOfEntry,
		HeaderCRC32:       fmt.Sprintf("0x%08X", h.HeaderCRC32),
		EntryArrayCRC32:   fmt.Sprintf("0x%08X", h.EntryArrayCRC32),
	}
}

func verifySummary(report *layout.VerifyReport) *VerifySummary {
	summary := &VerifySummary{
		Healthy:    report.Healthy(),
		PrimaryOK:  report.Primary.OK(),
		BackupOK:   report.Backup.OK(),
		Mismatches: report.Mismatches,
	}
	if report.Primary.Err != nil {
		summary.PrimaryError = report.Primary.Err.Error()
	}
	if report.Backup.Err != nil {
		summary.BackupError = report.Backup.Err.Error()
	}
	return summary
}

func partitionResult(p *device.Partition, registry *types.TypeRegistry) PartitionResult {
	return PartitionResult{
		ID:          p.ID(),
		Name:        p.Name(),
		TypeGUID:    strings.ToUpper(p.TypeGUID().String()),
		TypeName:    p.TypeName(registry),
		UniqueGUID:  strings.ToUpper(p.UniqueGUID().String()),
		StartSector: p.StartSector(),
		EndSector:   p.EndSector(),
		SectorCount: p.SectorCount(),
		Size:        p.Size(),
		Attributes:  p.Attributes(),
	}
}

// tableResults lists the entries of a GPT copy and attaches the validation
// issues of every flagged slot. Ids follow slot order as discovery assigns them.
func tableResults(table *layout.Table, sectorSize uint32, registry *types.TypeRegistry) []PartitionResult {
	report := gpt.ValidateEntries(table.Entries, table.Header)

	results := make([]PartitionResult, 0, table.Entries.Len())
	for slot, e := range table.Entries.Entries {
		result := PartitionResult{
			ID:          uint64(slot + 1),
			Name:        e.Name,
			TypeGUID:    strings.ToUpper(e.TypeGUID.String()),
			TypeName:    registry.Describe(e.TypeGUID),
			UniqueGUID:  strings.ToUpper(e.UniqueGUID.String()),
			StartSector: e.FirstLBA,
			EndSector:   e.LastLBA,
			SectorCount: e.SectorCount(),
			Size:        e.SectorCount() * uint64(sectorSize),
			Attributes:  e.Attributes,
		}
		if report.Flagged(slot) {
			for _, issue := range report.Issues {
				if issue.Slot == slot {
					result.Issues = append(result.Issues, fmt.Sprintf("%s: %s", issue.Code, issue.Message))
				}
			}
		}
		results = append(results, result)
	}
	return results
}

package inspect

import (
	"fmt"
	"time"

	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

// Request represents a device inspection request
type Request struct {
	Target app.DeviceTarget

	// Skip the primary/backup cross-check and read only the primary header
	SkipVerify bool

	// Backend, when set, is used instead of the one named by Target
	Backend interfaces.Backend

	// Types resolves partition type names. The built-in registry is used when nil.
	Types *types.TypeRegistry
}

// Response represents the inspection report
type Response struct {
	Device         DeviceInfo        `json:"device" yaml:"device"`
	Header         *HeaderInfo       `json:"header,omitempty" yaml:"header,omitempty"`
	Partitions     []PartitionResult `json:"partitions" yaml:"partitions"`
	Verify         *VerifySummary    `json:"verify,omitempty" yaml:"verify,omitempty"`
	DiscoveryError string            `json:"discovery_error,omitempty" yaml:"discovery_error,omitempty"`
	InspectTime    time.Duration     `json:"inspect_time" yaml:"inspect_time"`
}

// DeviceInfo represents device geometry and classification
type DeviceInfo struct {
	Path        string `json:"path" yaml:"path"`
	Kind        string `json:"kind" yaml:"kind"`
	SectorSize  uint32 `json:"sector_size" yaml:"sector_size"`
	SectorCount uint64 `json:"sector_count" yaml:"sector_count"`
	Size        uint64 `json:"size" yaml:"size"`
	HasGPT      bool   `json:"has_gpt" yaml:"has_gpt"`
}

// HeaderInfo represents the GPT header the report was built from
type HeaderInfo struct {
	Source            string `json:"source" yaml:"source"`
	DiskGUID          string `json:"disk_guid" yaml:"disk_guid"`
	Revision          string `json:"revision" yaml:"revision"`
	MyLBA             uint64 `json:"my_lba" yaml:"my_lba"`
	AlternateLBA      uint64 `json:"alternate_lba" yaml:"alternate_lba"`
	FirstUsableLBA    uint64 `json:"first_usable_lba" yaml:"first_usable_lba"`
	LastUsableLBA     uint64 `json:"last_usable_lba" yaml:"last_usable_lba"`
	PartitionEntryLBA uint64 `json:"partition_entry_lba" yaml:"partition_entry_lba"`
	NumberOfEntries   uint32 `json:"number_of_entries" yaml:"number_of_entries"`
	SizeOfEntry       uint32 `json:"size_of_entry" yaml:"size_of_entry"`
	HeaderCRC32       string `json:"header_crc32" yaml:"header_crc32"`
	EntryArrayCRC32   string `json:"entry_array_crc32" yaml:"entry_array_crc32"`
}

// PartitionResult represents a discovered partition
type PartitionResult struct {
	ID          uint64 `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	TypeGUID    string `json:"type_guid" yaml:"type_guid"`
	TypeName    string `json:"type_name" yaml:"type_name"`
	UniqueGUID  string `json:"unique_guid" yaml:"unique_guid"`
	StartSector uint64 `json:"start_sector" yaml:"start_sector"`
	EndSector   uint64 `json:"end_sector" yaml:"end_sector"`
	SectorCount uint64 `json:"sector_count" yaml:"sector_count"`
	Size        uint64 `json:"size" yaml:"size"`
	Attributes  uint64 `json:"attributes" yaml:"attributes"`

	// Validation problems of an entry that discovery rejected
	Issues []string `json:"issues,omitempty" yaml:"issues,omitempty"`
}

// VerifySummary represents the primary/backup cross-check
type VerifySummary struct {
	Healthy      bool     `json:"healthy" yaml:"healthy"`
	PrimaryOK    bool     `json:"primary_ok" yaml:"primary_ok"`
	BackupOK     bool     `json:"backup_ok" yaml:"backup_ok"`
	PrimaryError string   `json:"primary_error,omitempty" yaml:"primary_error,omitempty"`
	BackupError  string   `json:"backup_error,omitempty" yaml:"backup_error,omitempty"`
	Mismatches   []string `json:"mismatches,omitempty" yaml:"mismatches,omitempty"`
}

// FormatSize returns a human-readable size string
func (p *PartitionResult) FormatSize() string {
	return formatBytes(p.Size)
}

// formatBytes formats byte count as human readable
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatRevision renders a GPT revision as major.minor
func formatRevision(rev uint32) string {
	return fmt.Sprintf("%d.%d", rev>>16, rev&0xFFFF)
}

package layout

import (
	"context"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/internal/parsers/gpt"
	"github.com/deploymenttheory/go-gptdisk/internal/stream"
)

// Repair verifies both GPT copies and rewrites the damaged one from the intact
// one. When both copies verify but disagree, the primary wins. A healthy
// layout is left untouched and returns a Result with no regions.
func (w *Writer) Repair(ctx context.Context, s *stream.Stream) (*Result, error) {
	const op = "repair layout"

	w.state = StateUnwritten
	if err := w.checkDevice(op, s); err != nil {
		return nil, err
	}

	report, err := NewReader(WithReaderLogger(w.logger)).Verify(ctx, s)
	if err != nil {
		return nil, err
	}

	switch {
	case report.Healthy():
		w.state = StateComplete
		return &Result{
			Primary: report.Primary.Table.Header,
			Backup:  report.Backup.Table.Header,
			Entries: report.Primary.Table.Entries,
			State:   w.state,
			DryRun:  w.dryRun,
		}, nil
	case report.Primary.OK():
		return w.repairBackup(op, s, report.Primary.Table)
	case report.Backup.OK():
		return w.repairPrimary(op, s, report.Backup.Table)
	default:
		return nil, report.Err()
	}
}

// repairBackup rewrites the backup entry array and header from the primary copy.
func (w *Writer) repairBackup(op string, s *stream.Stream, primary *Table) (*Result, error) {
	if err := checkGeometry(op, primary.Header, s.SectorCount(), s.SectorSize()); err != nil {
		return nil, err
	}
	// Slots are copied as read so the stored entry array CRC32 still holds
	array := primary.Raw

	backup := gpt.DeriveBackup(primary.Header, s.SectorSize())
	gpt.SealHeader(backup)

	w.logger.Warn("rebuilding backup GPT from primary",
		logging.WithPath(s.Target().Path),
		logging.WithLBA(backup.MyLBA),
	)

	// The primary copy is already on disk
	w.state = StateEntriesWritten
	plan := []planned{
		{StepBackupEntries, backup.PartitionEntryLBA, array, StateEntriesWritten},
		{StepBackupHeader, backup.MyLBA, gpt.EncodeHeaderSector(backup, s.SectorSize()), StateBackupWritten},
	}
	result := &Result{
		Primary: primary.Header,
		Backup:  backup,
		Entries: primary.Entries,
		DryRun:  w.dryRun,
	}
	if err := w.run(s, plan, result); err != nil {
		return result, err
	}
	return result, nil
}

// repairPrimary rewrites the primary header and entry array from the backup copy.
func (w *Writer) repairPrimary(op string, s *stream.Stream, backup *Table) (*Result, error) {
	primary := gpt.DeriveBackup(backup.Header, s.SectorSize())
	if err := checkGeometry(op, primary, s.SectorCount(), s.SectorSize()); err != nil {
		return nil, err
	}
	array := backup.Raw
	gpt.SealHeader(primary)

	w.logger.Warn("rebuilding primary GPT from backup",
		logging.WithPath(s.Target().Path),
		zap.Uint64("backup_lba", backup.Header.MyLBA),
	)

	plan := []planned{
		{StepPrimaryHeader, primary.MyLBA, gpt.EncodeHeaderSector(primary, s.SectorSize()), StatePrimaryWritten},
		{StepPrimaryEntries, primary.PartitionEntryLBA, array, StateBackupWritten},
	}
	result := &Result{
		Primary: primary,
		Backup:  backup.Header,
		Entries: backup.Entries,
		DryRun:  w.dryRun,
	}
	if err := w.run(s, plan, result); err != nil {
		return result, err
	}
	return result, nil
}

// RepairNeeded reports whether a verify report describes a layout Repair can fix
func RepairNeeded(report *VerifyReport) bool {
	return report != nil && !report.Healthy() && (report.Primary.OK() || report.Backup.OK())
}

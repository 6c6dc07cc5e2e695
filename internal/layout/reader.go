package layout

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/internal/parsers/gpt"
	"github.com/deploymenttheory/go-gptdisk/internal/stream"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Table is one decoded copy of the GPT: a header and its entry array
type Table struct {
	Header  *types.GPTHeader
	Entries *types.EntryArray
	// Raw holds the verified entry array bytes as read, unused slots included.
	// Entries drops unused and invalid slots, so only Raw reproduces the CRC32.
	Raw []byte
}

// Reader reads GPT structures through a whole-device stream. Reads are
// position independent, so a Reader may share a stream with other readers.
type Reader struct {
	logger *zap.Logger
}

// ReaderOption configures a Reader
type ReaderOption func(*Reader)

// WithReaderLogger attaches a logger
func WithReaderLogger(logger *zap.Logger) ReaderOption {
	return func(r *Reader) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReader creates a layout reader
func NewReader(opts ...ReaderOption) *Reader {
	r := &Reader{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func headerLBA(s *stream.Stream, backup bool) uint64 {
	if backup {
		return s.SectorCount() - 1
	}
	return 1
}

// TryReadHeader reads one sector at LBA 1, or at the last LBA when backup is
// set, and decodes it. ok is true exactly when err is nil, so scanning callers
// can treat "no valid GPT here" as an ordinary outcome.
func (r *Reader) TryReadHeader(s *stream.Stream, backup bool) (header *types.GPTHeader, ok bool, err error) {
	if s == nil {
		return nil, false, types.Errorf(types.KindInvalidState, "read header", "no stream")
	}
	if s.SectorCount() < 2 {
		return nil, false, types.Errorf(types.KindDeviceTooSmall, "read header", "device has %d sectors", s.SectorCount())
	}

	lba := headerLBA(s, backup)
	sector, err := s.ReadSectors(lba, 1)
	if err != nil {
		return nil, false, err
	}
	header, err = gpt.DecodeHeader(sector)
	if err != nil {
		r.logger.Debug("no valid GPT header",
			logging.WithPath(s.Target().Path),
			logging.WithLBA(lba),
			zap.Error(err),
		)
		return nil, false, err
	}
	if header.MyLBA != lba {
		return nil, false, types.Errorf(types.KindInvalidFormat, "read header", "header at LBA %d claims to be at LBA %d", lba, header.MyLBA)
	}
	return header, true, nil
}

// ReadLayout reads a header and its entry array and verifies the entry array CRC32
func (r *Reader) ReadLayout(s *stream.Stream, backup bool) (*Table, error) {
	const op = "read layout"

	header, _, err := r.TryReadHeader(s, backup)
	if err != nil {
		return nil, err
	}

	arraySectors := header.EntryArraySectors(s.SectorSize())
	if header.PartitionEntryLBA >= s.SectorCount() || arraySectors > s.SectorCount()-header.PartitionEntryLBA {
		return nil, types.Errorf(types.KindOutOfRange, op,
			"entry array at LBA %d (%d sectors) lies outside the device", header.PartitionEntryLBA, arraySectors)
	}
	data, err := s.ReadSectors(header.PartitionEntryLBA, arraySectors)
	if err != nil {
		return nil, err
	}
	if err := gpt.VerifyEntryArrayCRC(data, header); err != nil {
		return nil, err
	}
	raw := data[:header.EntryArrayBytes()]
	entries, err := gpt.DecodeEntryArray(raw, header.NumberOfEntries, header.SizeOfEntry)
	if err != nil {
		return nil, err
	}
	return &Table{Header: header, Entries: entries, Raw: raw}, nil
}

// CopyStatus is the outcome of reading one copy of the GPT
type CopyStatus struct {
	Table *Table
	Err   error
}

// OK reports whether the copy was read and verified
func (c CopyStatus) OK() bool {
	return c.Err == nil && c.Table != nil
}

// VerifyReport compares the primary and backup copies of a GPT
type VerifyReport struct {
	Primary    CopyStatus
	Backup     CopyStatus
	Mismatches []string
}

// Healthy reports whether both copies are intact and mirror each other
func (v *VerifyReport) Healthy() bool {
	return v.Primary.OK() && v.Backup.OK() && len(v.Mismatches) == 0
}

// Err summarises the report as an error, or nil when healthy
func (v *VerifyReport) Err() error {
	switch {
	case v.Healthy():
		return nil
	case !v.Primary.OK() && !v.Backup.OK():
		return types.NewError(types.KindIntegrityFailure, "verify", "both GPT copies are damaged", v.Primary.Err)
	case !v.Primary.OK():
		return types.NewError(types.KindIntegrityFailure, "verify", "primary GPT is damaged", v.Primary.Err)
	case !v.Backup.OK():
		return types.NewError(types.KindIntegrityFailure, "verify", "backup GPT is damaged", v.Backup.Err)
	default:
		return types.Errorf(types.KindIntegrityFailure, "verify", "copies differ: %v", v.Mismatches)
	}
}

// Verify reads both copies concurrently and cross-checks them. Damage is
// reported in the VerifyReport; the error is reserved for cancellation.
func (r *Reader) Verify(ctx context.Context, s *stream.Stream) (*VerifyReport, error) {
	report := &VerifyReport{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Primary.Table, report.Primary.Err = r.ReadLayout(s, false)
		return nil
	})
	g.Go(func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		report.Backup.Table, report.Backup.Err = r.ReadLayout(s, true)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("verify cancelled: %w", err)
	}

	if report.Primary.OK() && report.Backup.OK() {
		report.Mismatches = compareCopies(report.Primary.Table, report.Backup.Table, s.SectorSize())
	}

	r.logger.Info("verified GPT",
		logging.WithPath(s.Target().Path),
		zap.Bool("primary_ok", report.Primary.OK()),
		zap.Bool("backup_ok", report.Backup.OK()),
		zap.Int("mismatches", len(report.Mismatches)),
	)

	return report, nil
}

// compareCopies lists the fields in which backup differs from the mirror of primary.
func compareCopies(primary, backup *Table, sectorSize uint32) []string {
	want := gpt.DeriveBackup(primary.Header, sectorSize)
	got := backup.Header

	var diffs []string
	check := func(field string, a, b any) {
		if a != b {
			diffs = append(diffs, fmt.Sprintf("%s: expected %v, found %v", field, a, b))
		}
	}
	check("MyLBA", want.MyLBA, got.MyLBA)
	check("AlternateLBA", want.AlternateLBA, got.AlternateLBA)
	check("PartitionEntryLBA", want.PartitionEntryLBA, got.PartitionEntryLBA)
	check("FirstUsableLBA", want.FirstUsableLBA, got.FirstUsableLBA)
	check("LastUsableLBA", want.LastUsableLBA, got.LastUsableLBA)
	check("DiskGUID", want.DiskGUID, got.DiskGUID)
	check("NumberOfEntries", want.NumberOfEntries, got.NumberOfEntries)
	check("SizeOfEntry", want.SizeOfEntry, got.SizeOfEntry)
	check("EntryArrayCRC32", want.EntryArrayCRC32, got.EntryArrayCRC32)

	if primary.Entries.Len() != backup.Entries.Len() {
		diffs = append(diffs, fmt.Sprintf("entries: primary has %d, backup has %d", primary.Entries.Len(), backup.Entries.Len()))
	} else {
		for i := range primary.Entries.Entries {
			if primary.Entries.Entries[i] != backup.Entries.Entries[i] {
				diffs = append(diffs, fmt.Sprintf("entry %d differs", i))
			}
		}
	}
	return diffs
}

package layout

import (
	"io"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/internal/parsers/gpt"
	"github.com/deploymenttheory/go-gptdisk/internal/parsers/mbr"
	"github.com/deploymenttheory/go-gptdisk/internal/stream"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// Region is one contiguous write of a layout
type Region struct {
	Step    Step
	LBA     uint64
	Sectors uint64
}

// Result describes a layout write. In a dry run Regions lists the writes that
// would have been issued.
type Result struct {
	Primary *types.GPTHeader
	Backup  *types.GPTHeader
	Entries *types.EntryArray
	Regions []Region
	State   State
	DryRun  bool
}

// Writer writes redundant GPT layouts. A Writer is not safe for concurrent use.
type Writer struct {
	dryRun   bool
	diskGUID uuid.UUID
	logger   *zap.Logger
	state    State
}

// WriterOption configures a Writer
type WriterOption func(*Writer)

// WithDryRun makes the writer validate preconditions and plan the writes
// without touching the device
func WithDryRun(dryRun bool) WriterOption {
	return func(w *Writer) {
		w.dryRun = dryRun
	}
}

// WithDiskGUID fixes the disk GUID of default layouts. A random GUID is used otherwise.
func WithDiskGUID(id uuid.UUID) WriterOption {
	return func(w *Writer) {
		w.diskGUID = id
	}
}

// WithWriterLogger attaches a logger
func WithWriterLogger(logger *zap.Logger) WriterOption {
	return func(w *Writer) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWriter creates a layout writer
func NewWriter(opts ...WriterOption) *Writer {
	w := &Writer{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// DryRun reports whether the writer only simulates
func (w *Writer) DryRun() bool {
	return w.dryRun
}

// State returns the state reached by the last write
func (w *Writer) State() State {
	return w.state
}

// checkDevice validates the stream a layout is written through
func (w *Writer) checkDevice(op string, s *stream.Stream) error {
	if s == nil {
		return types.Errorf(types.KindInvalidState, op, "no stream")
	}
	if s.SectorSize() < types.MinSectorSize {
		return types.Errorf(types.KindInvalidFormat, op, "sector size %d is below %d", s.SectorSize(), types.MinSectorSize)
	}
	if minimum := gpt.MinimumSectors(s.SectorSize()); s.SectorCount() < minimum {
		return types.Errorf(types.KindDeviceTooSmall, op, "device has %d sectors, a GPT needs at least %d", s.SectorCount(), minimum)
	}
	if !w.dryRun && !s.CanWrite() {
		return types.Errorf(types.KindUnauthorizedAccess, op, "stream over %s is not writable", s.Target().Path)
	}
	return nil
}

// WriteDefaultLayout writes a protective MBR and an empty 128-entry GPT with
// its backup. Devices below the minimum size fail with DeviceTooSmall before
// anything is written.
func (w *Writer) WriteDefaultLayout(s *stream.Stream) (*Result, error) {
	const op = "write default layout"

	w.state = StateUnwritten
	if err := w.checkDevice(op, s); err != nil {
		return nil, err
	}

	diskGUID := w.diskGUID
	if diskGUID == uuid.Nil {
		diskGUID = uuid.New()
	}
	header, err := gpt.NewDefaultHeader(s.SectorCount(), s.SectorSize(), diskGUID)
	if err != nil {
		return nil, err
	}
	return w.WriteLayout(s, header, types.NewEntryArray())
}

// WriteLayout writes a protective MBR, the primary header, the primary entry
// array, the backup entry array and the backup header, in that order. The
// entry array CRC32 is computed before the header CRC32. Header geometry and
// entries are validated before the first write.
func (w *Writer) WriteLayout(s *stream.Stream, header *types.GPTHeader, entries *types.EntryArray) (*Result, error) {
	const op = "write layout"

	w.state = StateUnwritten
	if err := w.checkDevice(op, s); err != nil {
		return nil, err
	}
	if header == nil || entries == nil {
		return nil, types.Errorf(types.KindInvalidState, op, "header and entries are required")
	}

	primary := *header
	if err := checkGeometry(op, &primary, s.SectorCount(), s.SectorSize()); err != nil {
		return nil, err
	}
	if entries.Count != primary.NumberOfEntries || entries.EntrySize != primary.SizeOfEntry {
		return nil, types.Errorf(types.KindInvalidFormat, op,
			"entry array is %d x %d bytes, header declares %d x %d", entries.Count, entries.EntrySize, primary.NumberOfEntries, primary.SizeOfEntry)
	}
	if err := gpt.ValidateEntries(entries, &primary).Err(); err != nil {
		return nil, err
	}

	array, err := gpt.EncodeEntryArray(entries)
	if err != nil {
		return nil, err
	}
	primary.EntryArrayCRC32, err = gpt.ComputeEntryArrayCRC(entries)
	if err != nil {
		return nil, err
	}
	gpt.SealHeader(&primary)

	backup := gpt.DeriveBackup(&primary, s.SectorSize())
	gpt.SealHeader(backup)

	plan := []planned{
		{StepProtectiveMBR, 0, mbr.BuildProtectiveMBR(s.SectorSize(), s.SectorCount()), StateUnwritten},
		{StepPrimaryHeader, primary.MyLBA, gpt.EncodeHeaderSector(&primary, s.SectorSize()), StatePrimaryWritten},
		{StepPrimaryEntries, primary.PartitionEntryLBA, array, StateEntriesWritten},
		{StepBackupEntries, backup.PartitionEntryLBA, array, StateEntriesWritten},
		{StepBackupHeader, backup.MyLBA, gpt.EncodeHeaderSector(backup, s.SectorSize()), StateBackupWritten},
	}

	result := &Result{
		Primary: &primary,
		Backup:  backup,
		Entries: entries,
		DryRun:  w.dryRun,
	}
	if err := w.run(s, plan, result); err != nil {
		return result, err
	}
	return result, nil
}

// checkGeometry verifies that a primary header fits a device of sectorCount sectors.
func checkGeometry(op string, h *types.GPTHeader, sectorCount uint64, sectorSize uint32) error {
	arraySectors := h.EntryArraySectors(sectorSize)

	switch {
	case !h.HasSignature():
		return types.Errorf(types.KindInvalidFormat, op, "header signature is %q", h.Signature[:])
	case h.HeaderSize < types.GPTHeaderSize || h.HeaderSize > sectorSize:
		return types.Errorf(types.KindInvalidFormat, op, "header size %d out of range", h.HeaderSize)
	case h.MyLBA != 1:
		return types.Errorf(types.KindInvalidFormat, op, "primary header must sit at LBA 1, not %d", h.MyLBA)
	case h.AlternateLBA != sectorCount-1:
		return types.Errorf(types.KindOutOfRange, op, "alternate LBA %d is not the last sector %d", h.AlternateLBA, sectorCount-1)
	case h.SizeOfEntry < types.GPTEntrySize || h.NumberOfEntries == 0:
		return types.Errorf(types.KindInvalidFormat, op, "entry array of %d x %d bytes", h.NumberOfEntries, h.SizeOfEntry)
	case h.PartitionEntryLBA < 2 || h.PartitionEntryLBA+arraySectors > h.FirstUsableLBA:
		return types.Errorf(types.KindOutOfRange, op,
			"primary entry array [%d, %d) overlaps the header or the usable range starting at %d", h.PartitionEntryLBA, h.PartitionEntryLBA+arraySectors, h.FirstUsableLBA)
	case h.FirstUsableLBA > h.LastUsableLBA:
		return types.Errorf(types.KindOutOfRange, op, "first usable LBA %d is after last usable LBA %d", h.FirstUsableLBA, h.LastUsableLBA)
	case h.LastUsableLBA+arraySectors >= h.AlternateLBA:
		return types.Errorf(types.KindOutOfRange, op, "usable range ending at %d overlaps the backup entry array", h.LastUsableLBA)
	}
	return nil
}

type planned struct {
	step  Step
	lba   uint64
	data  []byte
	after State
}

// run issues the planned writes in order and advances the state machine.
func (w *Writer) run(s *stream.Stream, plan []planned, result *Result) error {
	ss := uint64(s.SectorSize())

	for _, p := range plan {
		result.Regions = append(result.Regions, Region{Step: p.step, LBA: p.lba, Sectors: types.SectorsFor(uint64(len(p.data)), s.SectorSize())})
	}

	if w.dryRun {
		w.logger.Info("dry run, no sectors written",
			logging.WithPath(s.Target().Path),
			zap.Int("writes", len(plan)),
		)
		result.State = w.state
		return nil
	}

	for _, p := range plan {
		if err := writeSectors(s, p.lba, padToSector(p.data, ss)); err != nil {
			result.State = w.state
			w.logger.Error("layout write failed",
				logging.WithPath(s.Target().Path),
				logging.WithLBA(p.lba),
				logging.WithState(w.state.String()),
				zap.String("step", string(p.step)),
				zap.Error(err),
			)
			return &StepError{Step: p.step, State: w.state, Err: err}
		}
		w.advance(s, p.after, p.lba)
	}

	if err := s.Flush(); err != nil {
		result.State = w.state
		return &StepError{Step: StepFlush, State: w.state, Err: err}
	}
	w.advance(s, StateComplete, 0)
	result.State = w.state
	return nil
}

func (w *Writer) advance(s *stream.Stream, next State, lba uint64) {
	if next == w.state {
		return
	}
	w.state = next
	w.logger.Debug("layout state advanced",
		logging.WithPath(s.Target().Path),
		logging.WithState(next.String()),
		logging.WithLBA(lba),
	)
}

// writeSectors seeks to lba and writes data. A seek that clamps short of lba
// is reported as OutOfRange rather than writing at the clamped position.
func writeSectors(s *stream.Stream, lba uint64, data []byte) error {
	off := int64(lba) * int64(s.SectorSize())
	pos, err := s.Seek(off, io.SeekStart)
	if err != nil {
		return err
	}
	if pos != off {
		return types.Errorf(types.KindOutOfRange, "write sectors", "LBA %d lies beyond the end of the stream", lba)
	}
	_, err = s.Write(data)
	return err
}

func padToSector(data []byte, sectorSize uint64) []byte {
	rem := uint64(len(data)) % sectorSize
	if rem == 0 {
		return data
	}
	out := make([]byte, uint64(len(data))+sectorSize-rem)
	copy(out, data)
	return out
}

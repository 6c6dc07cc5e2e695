package device

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/internal/logging"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// SnapshotProgress is reported after every copied chunk
type SnapshotProgress struct {
	BytesRead    int64
	BytesWritten int64
	TotalBytes   int64
	Elapsed      time.Duration
}

// SnapshotOptions configures Snapshot
type SnapshotOptions struct {
	// ChunkSize is rounded down to a whole number of sectors. Zero uses the default.
	ChunkSize   int
	Compression string
	Progress    func(SnapshotProgress)
}

// SnapshotResult summarises a finished snapshot
type SnapshotResult struct {
	BytesRead    int64
	BytesWritten int64
	Elapsed      time.Duration
}

// Ratio returns uncompressed over compressed size
func (r SnapshotResult) Ratio() float64 {
	if r.BytesWritten == 0 {
		return 0
	}
	return float64(r.BytesRead) / float64(r.BytesWritten)
}

// Snapshot copies every sector of the device to dst in fixed-size chunks,
// optionally compressing. ctx is checked between chunks.
func (d *Device) Snapshot(ctx context.Context, dst io.Writer, opts SnapshotOptions) (SnapshotResult, error) {
	const op = "snapshot"

	var result SnapshotResult

	s, err := d.CreateStream(types.AccessRead)
	if err != nil {
		return result, err
	}
	defer s.Close()

	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = disk.DefaultSnapshotChunkSize
	}
	ss := int(d.sectorSize)
	chunk -= chunk % ss
	if chunk == 0 {
		chunk = ss
	}

	counter := &disk.CountingWriter{W: dst}
	w, err := disk.NewCompressionWriter(opts.Compression, counter)
	if err != nil {
		return result, types.NewError(types.KindInvalidFormat, op, "", err)
	}

	total := s.Len()
	start := time.Now()
	buf := make([]byte, chunk)

	d.logger.Info("starting snapshot",
		logging.WithPath(d.path),
		zap.Int64("total_bytes", total),
		zap.Int("chunk_size", chunk),
		zap.String("compression", opts.Compression),
	)

	for result.BytesRead < total {
		if err := ctx.Err(); err != nil {
			w.Close()
			return result, fmt.Errorf("snapshot of %s cancelled after %d bytes: %w", d.path, result.BytesRead, err)
		}

		want := int(min(int64(chunk), total-result.BytesRead))
		n, err := s.Read(buf[:want])
		if err != nil {
			w.Close()
			return result, fmt.Errorf("error reading %s at offset %d: %w", d.path, result.BytesRead, err)
		}
		if _, err := w.Write(buf[:n]); err != nil {
			w.Close()
			return result, fmt.Errorf("error writing snapshot: %w", err)
		}
		result.BytesRead += int64(n)
		result.BytesWritten = counter.Count

		if opts.Progress != nil {
			opts.Progress(SnapshotProgress{
				BytesRead:    result.BytesRead,
				BytesWritten: counter.Count,
				TotalBytes:   total,
				Elapsed:      time.Since(start),
			})
		}
	}

	if err := w.Close(); err != nil {
		return result, fmt.Errorf("error closing compression writer: %w", err)
	}
	result.BytesWritten = counter.Count
	result.Elapsed = time.Since(start)

	d.logger.Info("snapshot complete",
		logging.WithPath(d.path),
		zap.Int64("bytes_read", result.BytesRead),
		zap.Int64("bytes_written", result.BytesWritten),
		zap.Duration("elapsed", result.Elapsed),
	)

	return result, nil
}

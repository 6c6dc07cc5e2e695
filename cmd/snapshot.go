package cmd

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/gosuri/uilive"
	"github.com/spf13/cobra"

	"github.com/deploymenttheory/go-gptdisk/internal/device"
	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/pkg/app"
)

var (
	snapshotCompression string
	snapshotChunkSize   int
	snapshotForce       bool
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <device> <image>",
	Short: "Copy a whole device into an optionally compressed image",
	Long: `Copy every sector of a device into an image file in fixed-size chunks,
with live progress. Interrupting the command stops the copy between chunks.

Examples:
  # Raw copy
  gptdisk snapshot /dev/sdb usb.img

  # zstd-compressed copy with 8 MiB chunks
  gptdisk snapshot /dev/sdb usb.img.zst --compression zstd --chunk-size 8388608`,

	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSnapshot(cmd, args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(snapshotCmd)

	snapshotCmd.Flags().StringVar(&snapshotCompression, "compression", "", "compression (none, gzip, zlib, bzip2, snappy, s2, zstd); defaults to the config value")
	snapshotCmd.Flags().IntVar(&snapshotChunkSize, "chunk-size", 0, "bytes copied per chunk; defaults to the config value")
	snapshotCmd.Flags().BoolVarP(&snapshotForce, "force", "f", false, "overwrite an existing image")
}

func runSnapshot(cmd *cobra.Command, path, imagePath string) error {
	ctx, err := newAppContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Logger.Sync()

	opts := device.SnapshotOptions{
		ChunkSize:   ctx.Config.SnapshotChunkSize,
		Compression: ctx.Config.Compression,
	}
	if snapshotCompression != "" {
		opts.Compression = snapshotCompression
	}
	if snapshotChunkSize > 0 {
		opts.ChunkSize = snapshotChunkSize
	}
	if _, err := disk.CompressionExtension(opts.Compression); err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "invalid compression", err)
	}

	d, err := ctx.OpenDevice(deviceTarget(path), nil, nil)
	if err != nil {
		return err
	}
	defer d.Close()

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if snapshotForce {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	output, err := os.OpenFile(imagePath, flags, 0o644)
	if err != nil {
		return app.NewError(app.ErrCodeInvalidInput, "cannot create image", err)
	}
	defer output.Close()

	if !ctx.Quiet {
		fmt.Fprintf(ctx.Out, "Writing to Image: %s\n", imagePath)
	}

	// Live progress, redrawn at most once per second
	var writer *uilive.Writer
	if !ctx.Quiet {
		writer = uilive.New()
		writer.Out = ctx.Out
		writer.Start()
	}
	lastUpdate := time.Time{}
	opts.Progress = func(p device.SnapshotProgress) {
		if writer == nil || (time.Since(lastUpdate) < time.Second && p.BytesRead < p.TotalBytes) {
			return
		}
		printSnapshotProgress(writer, p)
		_ = writer.Flush()
		lastUpdate = time.Now()
	}

	result, err := d.Snapshot(ctx, output, opts)
	if writer != nil {
		writer.Stop()
	}
	if err != nil {
		return app.WrapError("snapshot of "+path+" failed", err)
	}
	if err := output.Sync(); err != nil {
		return app.NewError(app.ErrCodeDeviceAccess, "cannot sync image", err)
	}

	if !ctx.Quiet {
		fmt.Fprintf(ctx.Out, "Copied %s in %s", formatBytes(result.BytesRead), result.Elapsed.Truncate(time.Millisecond))
		if opts.Compression != disk.CompressionNone && opts.Compression != "" {
			fmt.Fprintf(ctx.Out, ", wrote %s (ratio %.2f)", formatBytes(result.BytesWritten), result.Ratio())
		}
		fmt.Fprintln(ctx.Out)
	}
	return nil
}

func printSnapshotProgress(w io.Writer, p device.SnapshotProgress) {
	update := app.ProgressUpdate{
		Completed:   p.BytesRead,
		Total:       p.TotalBytes,
		ElapsedTime: p.Elapsed,
	}
	var readBps, writeBps float64
	if secs := p.Elapsed.Seconds(); secs > 0 {
		readBps = float64(p.BytesRead) / secs
		writeBps = float64(p.BytesWritten) / secs
	}

	_, _ = fmt.Fprintf(w, "Byte Count: Read: %s (%d bytes), Written: %s (%d bytes)\n",
		formatBytes(p.BytesRead), p.BytesRead, formatBytes(p.BytesWritten), p.BytesWritten)
	_, _ = fmt.Fprintf(w, "Progress: %d%%\n", update.Percent())
	_, _ = fmt.Fprintf(w, "Elapsed Time: %s\n", p.Elapsed.Truncate(time.Second))
	_, _ = fmt.Fprintf(w, "Estimated Time: %s\n", update.ETA().Truncate(time.Second))
	_, _ = fmt.Fprintf(w, "Read Speed: %s/s\n", formatBytes(int64(readBps)))
	_, _ = fmt.Fprintf(w, "Write Speed: %s/s\n", formatBytes(int64(writeBps)))
}

// formatBytes formats byte count as human readable
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

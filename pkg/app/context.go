package app

import (
	"context"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/deploymenttheory/go-gptdisk/internal/device"
	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/internal/interfaces"
)

// Context holds application-wide configuration and state
type Context struct {
	context.Context

	// Output preferences
	OutputFormat string
	Verbose      bool
	Quiet        bool
	Out          io.Writer

	// Effective disk configuration
	Config *disk.DiskConfig

	Logger *zap.Logger

	// Common timeouts
	DefaultTimeout time.Duration

	// Progress reporting
	ProgressCallback func(message string, percent int)
}

// NewContext creates a new application context
func NewContext() *Context {
	return &Context{
		Context:        context.Background(),
		OutputFormat:   "table",
		Out:            os.Stdout,
		Logger:         zap.NewNop(),
		DefaultTimeout: 30 * time.Second,
	}
}

// WithTimeout creates a context with timeout
func (c *Context) WithTimeout(timeout time.Duration) (*Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(c.Context, timeout)
	newCtx := *c
	newCtx.Context = ctx
	return &newCtx, cancel
}

// WithCancel creates a cancellable context
func (c *Context) WithCancel() (*Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Context)
	newCtx := *c
	newCtx.Context = ctx
	return &newCtx, cancel
}

// SetProgress sets the progress callback function
func (c *Context) SetProgress(callback func(string, int)) {
	c.ProgressCallback = callback
}

// Progress reports progress if callback is set
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(message, percent)
	}
}

// Log records a message when verbose output is on
func (c *Context) Log(message string, fields ...zap.Field) {
	if !c.Quiet && c.Verbose {
		c.logger().Info(message, fields...)
	}
}

// Error records an error message unless quiet
func (c *Context) Error(message string, err error) {
	if !c.Quiet {
		c.logger().Error(message, zap.Error(err))
	}
}

// DiskConfig returns the configured disk settings or the defaults
func (c *Context) DiskConfig() *disk.DiskConfig {
	if c.Config != nil {
		return c.Config
	}
	return &disk.DiskConfig{
		Backend:           disk.DefaultBackend,
		DefaultSectorSize: 512,
		EnforceAlignment:  true,
		ChunkSize:         disk.DefaultChunkSize,
		SnapshotChunkSize: disk.DefaultSnapshotChunkSize,
		Compression:       disk.CompressionNone,
	}
}

// OpenDevice initializes a device for target. A nil backend is built from the
// target's backend name or the configured default. When only partition
// discovery fails the initialized device is returned together with the error.
func (c *Context) OpenDevice(target DeviceTarget, backend interfaces.Backend, parser interfaces.PartitionParser) (*device.Device, error) {
	cfg := c.DiskConfig()
	if backend == nil {
		name := target.Backend
		if name == "" {
			name = cfg.Backend
		}
		b, err := disk.NewBackend(name, cfg)
		if err != nil {
			return nil, NewError(ErrCodeInvalidInput, "cannot create backend", err)
		}
		backend = b
	}

	d := device.New(target.Path, backend, parser,
		device.WithLogger(c.logger()),
		device.WithAlignment(cfg.EnforceAlignment),
	)
	if err := d.Initialize(); err != nil {
		if d.Initialized() {
			return d, WrapError("partition discovery failed", err)
		}
		return nil, WrapError("cannot open device "+target.Path, err)
	}
	return d, nil
}

func (c *Context) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

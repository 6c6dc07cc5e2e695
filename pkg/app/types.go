package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-gptdisk/internal/disk"
	"github.com/deploymenttheory/go-gptdisk/internal/types"
)

// DeviceTarget represents device selection across commands
type DeviceTarget struct {
	Path    string
	Backend string
}

// Validate ensures the device target is usable
func (dt *DeviceTarget) Validate() error {
	if dt.Path == "" {
		return errors.New("device path is required")
	}
	switch dt.Backend {
	case "", disk.BackendFile, disk.BackendMmap:
	default:
		return fmt.Errorf("unsupported backend %q", dt.Backend)
	}
	return nil
}

// String returns a string representation of the device target
func (dt *DeviceTarget) String() string {
	if dt.Backend != "" {
		return fmt.Sprintf("%s (%s backend)", dt.Path, dt.Backend)
	}
	return dt.Path
}

// ProgressUpdate represents progress information
type ProgressUpdate struct {
	Message     string
	Completed   int64
	Total       int64
	StartedAt   time.Time
	ElapsedTime time.Duration
}

// Percent calculates completion percentage
func (p *ProgressUpdate) Percent() int {
	if p.Total == 0 {
		return 0
	}
	return int((p.Completed * 100) / p.Total)
}

// Rate calculates bytes per second
func (p *ProgressUpdate) Rate() float64 {
	if p.ElapsedTime == 0 {
		return 0
	}
	return float64(p.Completed) / p.ElapsedTime.Seconds()
}

// ETA estimates time to completion
func (p *ProgressUpdate) ETA() time.Duration {
	if p.Completed == 0 || p.Total == 0 {
		return 0
	}
	rate := p.Rate()
	if rate == 0 {
		return 0
	}
	remaining := p.Total - p.Completed
	return time.Duration(float64(remaining) / rate * float64(time.Second))
}

// CommonError represents application-level errors
type CommonError struct {
	Code    string
	Message string
	Cause   error
}

func (e *CommonError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *CommonError) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrCodeInvalidInput   = "INVALID_INPUT"
	ErrCodeDeviceAccess   = "DEVICE_ACCESS"
	ErrCodeDeviceTooSmall = "DEVICE_TOO_SMALL"
	ErrCodeCorrupt        = "CORRUPT_LAYOUT"
	ErrCodePermission     = "PERMISSION_DENIED"
	ErrCodeTimeout        = "TIMEOUT"
	ErrCodeInternal       = "INTERNAL"
)

// NewError creates a new CommonError
func NewError(code, message string, cause error) *CommonError {
	return &CommonError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// WrapError maps a library error onto a CommonError code. Errors that are
// already CommonErrors are returned unchanged.
func WrapError(message string, err error) error {
	if err == nil {
		return nil
	}
	var ce *CommonError
	if errors.As(err, &ce) {
		return err
	}
	return NewError(codeFor(err), message, err)
}

func codeFor(err error) string {
	switch types.KindOf(err) {
	case types.KindInvalidFormat, types.KindIntegrityFailure:
		return ErrCodeCorrupt
	case types.KindDeviceTooSmall:
		return ErrCodeDeviceTooSmall
	case types.KindUnauthorizedAccess:
		return ErrCodePermission
	case types.KindBackendFailure, types.KindNotFound:
		return ErrCodeDeviceAccess
	case types.KindOutOfRange, types.KindMisaligned:
		return ErrCodeInvalidInput
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrCodeTimeout
	}
	return ErrCodeInternal
}

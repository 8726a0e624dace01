package utils

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Process exit statuses. ExitCodeUsage is reported by the shell as 255.
const (
	ExitCodeSuccess = 0
	ExitCodeFailure = 1
	ExitCodeUsage   = -1
)

// UsageMessage is printed for every rejected invocation.
const UsageMessage = "Command intended for internal use only"

// UsageError means the arguments were rejected before any device command ran.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return fmt.Sprintf("invalid usage: %s", e.Reason)
}

func NewUsageError(format string, args ...interface{}) error {
	return &UsageError{Reason: fmt.Sprintf(format, args...)}
}

// DeviceOperationError is returned when a mutating command or filesystem
// operation fails. Nothing done before it is rolled back.
type DeviceOperationError struct {
	Op       string
	Device   string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *DeviceOperationError) Error() string {
	msg := fmt.Sprintf("%s on %s failed", e.Op, e.Device)
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	msg = fmt.Sprintf("%s with exit code %d", msg, e.ExitCode)
	if stderr := strings.TrimSpace(e.Stderr); stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, strings.ReplaceAll(stderr, "\n", " "))
	}
	return msg
}

func (e *DeviceOperationError) Unwrap() error {
	return e.Err
}

// CheckResult turns a failed command result into a DeviceOperationError.
func CheckResult(op, device string, result *Result) error {
	if !result.Failed() {
		return nil
	}
	return &DeviceOperationError{
		Op:       op,
		Device:   device,
		ExitCode: result.ExitCode,
		Stderr:   result.Stderr,
	}
}

// NewDeviceOperationError wraps a filesystem error hit while mutating device.
func NewDeviceOperationError(op, device string, err error) error {
	return &DeviceOperationError{Op: op, Device: device, Err: err}
}

func IsUsageError(err error) bool {
	var usageErr *UsageError
	return errors.As(err, &usageErr)
}

func IsDeviceOperationError(err error) bool {
	var devErr *DeviceOperationError
	return errors.As(err, &devErr)
}

// ExitCode maps the outcome of a command to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitCodeSuccess
	case IsUsageError(err):
		return ExitCodeUsage
	default:
		return ExitCodeFailure
	}
}

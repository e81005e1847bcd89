package bootloader

import (
	"fmt"
	"time"

	"github.com/moffa90/go-dfuse/protocol"
)

// DeviceMismatchError indicates that the firmware file was built for a
// different USB vendor or product id.
type DeviceMismatchError struct {
	FileVendor    uint16
	FileProduct   uint16
	DeviceVendor  uint16
	DeviceProduct uint16
}

func (e *DeviceMismatchError) Error() string {
	return fmt.Sprintf("vendor/product id mismatch: file is for [%04x:%04x], device is [%04x:%04x]",
		e.FileVendor, e.FileProduct, e.DeviceVendor, e.DeviceProduct)
}

// NoMatchingTargetError indicates that no target in the firmware file uses
// the selected alternate setting.
type NoMatchingTargetError struct {
	Alternate int

	// Available lists the alternate settings present in the file
	Available []byte
}

func (e *NoMatchingTargetError) Error() string {
	return fmt.Sprintf("no file target matches alternate setting %d (file has %v)",
		e.Alternate, e.Available)
}

// PermissionError indicates that the memory layout forbids an operation.
type PermissionError struct {
	// Operation is the refused operation, e.g. "flash"
	Operation string

	// Memory is the memory name from the layout
	Memory string

	// Access is the missing permission: "readable", "writable" or "erasable"
	Access string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%s refused: memory %q is not %s", e.Operation, e.Memory, e.Access)
}

// DeviceTimeoutError indicates that the device stayed in a waited-on state
// longer than the configured poll ceiling.
type DeviceTimeoutError struct {
	Operation string
	Elapsed   time.Duration
	LastState protocol.DfuState
}

func (e *DeviceTimeoutError) Error() string {
	return fmt.Sprintf("%s: device still in %s after %s", e.Operation, e.LastState, e.Elapsed)
}

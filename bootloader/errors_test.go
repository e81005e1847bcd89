package bootloader

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/moffa90/go-dfuse/protocol"
)

func TestDeviceMismatchError(t *testing.T) {
	err := &DeviceMismatchError{
		FileVendor:    0x1234,
		FileProduct:   0x5678,
		DeviceVendor:  0x0483,
		DeviceProduct: 0xDF11,
	}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "mismatch") {
		t.Errorf("error message should contain 'mismatch', got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "[1234:5678]") {
		t.Errorf("error message should contain file ids, got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "[0483:df11]") {
		t.Errorf("error message should contain device ids, got: %s", errMsg)
	}
}

func TestNoMatchingTargetError(t *testing.T) {
	err := &NoMatchingTargetError{Alternate: 2, Available: []byte{0, 1}}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "alternate setting 2") {
		t.Errorf("error message should contain alternate, got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "[0 1]") {
		t.Errorf("error message should list available alternates, got: %s", errMsg)
	}
}

func TestPermissionError(t *testing.T) {
	err := &PermissionError{Operation: "flash", Memory: "Option Bytes", Access: "writable"}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "flash refused") {
		t.Errorf("error message should contain operation, got: %s", errMsg)
	}

	if !strings.Contains(errMsg, `"Option Bytes" is not writable`) {
		t.Errorf("error message should contain memory and access, got: %s", errMsg)
	}
}

func TestDeviceTimeoutError(t *testing.T) {
	err := &DeviceTimeoutError{
		Operation: "wait while dfuDNBUSY",
		Elapsed:   3 * time.Second,
		LastState: protocol.StateDnloadBusy,
	}

	errMsg := err.Error()

	if !strings.Contains(errMsg, "still in dfuDNBUSY") {
		t.Errorf("error message should contain state, got: %s", errMsg)
	}

	if !strings.Contains(errMsg, "3s") {
		t.Errorf("error message should contain elapsed time, got: %s", errMsg)
	}
}

func TestErrorsAsThroughWrapping(t *testing.T) {
	base := &PermissionError{Operation: "upload", Memory: "Flash", Access: "readable"}
	wrapped := fmt.Errorf("read: %w", base)

	var pe *PermissionError
	if !errors.As(wrapped, &pe) {
		t.Fatal("errors.As should find *PermissionError")
	}
	if pe.Access != "readable" {
		t.Errorf("Access = %q, want %q", pe.Access, "readable")
	}
}

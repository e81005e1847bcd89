package protocol

import (
	"errors"
	"fmt"
)

// ErrTimeout is returned (possibly wrapped) by a transport when the device
// did not answer a control transfer in time. Upload and status polling treat
// it as "no data" rather than a failure.
var ErrTimeout = errors.New("transport timeout")

// ProtocolError reports that the device ended a command in an unexpected
// state or with a non-zero status.
type ProtocolError struct {
	// Operation is the command that failed
	Operation string

	// Status is bStatus from the last GETSTATUS
	Status byte

	// State is bState from the last GETSTATUS
	State DfuState
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%02X), state %s (%d)",
		e.Operation, StatusName(e.Status), e.Status, e.State, uint8(e.State))
}

// IsProtocolError returns true if the error is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}

// TransportError wraps a control transfer failure.
type TransportError struct {
	// Request is the DFU request code that failed
	Request uint8

	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request: %v", RequestName(e.Request), e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is, or wraps, ErrTimeout.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}

var statusNames = [...]string{
	StatusOK:              "no error",
	StatusErrTarget:       "file is not for this target",
	StatusErrFile:         "file fails a vendor-specific verification test",
	StatusErrWrite:        "unable to write memory",
	StatusErrErase:        "memory erase function failed",
	StatusErrCheckErased:  "memory erase check failed",
	StatusErrProg:         "program memory function failed",
	StatusErrVerify:       "programmed memory failed verification",
	StatusErrAddress:      "memory address is out of range",
	StatusErrNotDone:      "premature DFU_DNLOAD with wLength = 0",
	StatusErrFirmware:     "firmware is corrupt",
	StatusErrVendor:       "vendor-specific error",
	StatusErrUSBReset:     "unexpected USB reset signaling",
	StatusErrPowerOnReset: "unexpected power on reset",
	StatusErrUnknown:      "unknown error",
	StatusErrStalledPkt:   "stalled an unexpected request",
}

// StatusName returns a human-readable description of a bStatus value.
func StatusName(code byte) string {
	if int(code) < len(statusNames) {
		return statusNames[code]
	}
	return fmt.Sprintf("unknown status code 0x%02X", code)
}

// RequestName returns the DFU name of a request code.
func RequestName(req uint8) string {
	switch req {
	case ReqDetach:
		return "DETACH"
	case ReqDnload:
		return "DNLOAD"
	case ReqUpload:
		return "UPLOAD"
	case ReqGetStatus:
		return "GETSTATUS"
	case ReqClrStatus:
		return "CLRSTATUS"
	case ReqGetState:
		return "GETSTATE"
	case ReqAbort:
		return "ABORT"
	default:
		return fmt.Sprintf("request 0x%02X", req)
	}
}

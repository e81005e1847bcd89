package protocol

import (
	"fmt"
	"time"
)

// ParseStatus decodes a GETSTATUS response.
//
// Data format (StatusResponseSize bytes):
//
//	[bStatus][bwPollTimeout(3, little-endian, ms)][bState][iString]
func ParseStatus(data []byte) (DeviceStatus, error) {
	if len(data) != StatusResponseSize {
		return DeviceStatus{}, fmt.Errorf("invalid status response length: got %d bytes, expected %d",
			len(data), StatusResponseSize)
	}

	pollMs := uint32(data[1]) | uint32(data[2])<<8 | uint32(data[3])<<16

	return DeviceStatus{
		Status:      data[0],
		PollTimeout: time.Duration(pollMs) * time.Millisecond,
		State:       DfuState(data[4]),
		Extra:       data[5],
	}, nil
}

// EncodeStatus is the inverse of ParseStatus. Poll timeouts are truncated to
// whole milliseconds and clamped to 24 bits.
func EncodeStatus(s DeviceStatus) []byte {
	ms := s.PollTimeout.Milliseconds()
	if ms < 0 {
		ms = 0
	}
	if ms > 0xFFFFFF {
		ms = 0xFFFFFF
	}
	return []byte{s.Status, byte(ms), byte(ms >> 8), byte(ms >> 16), byte(s.State), s.Extra}
}

// ParseState decodes a GETSTATE response.
func ParseState(data []byte) (DfuState, error) {
	if len(data) != StateResponseSize {
		return 0, fmt.Errorf("invalid state response length: got %d bytes, expected %d",
			len(data), StateResponseSize)
	}
	return DfuState(data[0]), nil
}

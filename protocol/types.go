package protocol

import (
	"fmt"
	"math"
	"time"
)

// DfuState is the device state reported in byte 4 of GETSTATUS.
type DfuState uint8

// DFU states per DFU 1.1 section 6.1.2.
const (
	StateAppIdle           DfuState = 0
	StateAppDetach         DfuState = 1
	StateDfuIdle           DfuState = 2
	StateDnloadSync        DfuState = 3
	StateDnloadBusy        DfuState = 4
	StateDnloadIdle        DfuState = 5
	StateManifestSync      DfuState = 6
	StateManifest          DfuState = 7
	StateManifestWaitReset DfuState = 8
	StateUploadIdle        DfuState = 9
	StateDfuError          DfuState = 10
)

var stateNames = [...]string{
	StateAppIdle:           "appIDLE",
	StateAppDetach:         "appDETACH",
	StateDfuIdle:           "dfuIDLE",
	StateDnloadSync:        "dfuDNLOAD-SYNC",
	StateDnloadBusy:        "dfuDNBUSY",
	StateDnloadIdle:        "dfuDNLOAD-IDLE",
	StateManifestSync:      "dfuMANIFEST-SYNC",
	StateManifest:          "dfuMANIFEST",
	StateManifestWaitReset: "dfuMANIFEST-WAIT-RESET",
	StateUploadIdle:        "dfuUPLOAD-IDLE",
	StateDfuError:          "dfuERROR",
}

func (s DfuState) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// DeviceStatus is a decoded GETSTATUS response.
type DeviceStatus struct {
	// Status is bStatus; StatusOK or an error class
	Status byte

	// State is bState
	State DfuState

	// PollTimeout is the minimum time the host should wait before the next GETSTATUS
	PollTimeout time.Duration

	// Extra is iString, the index of a vendor status description
	Extra byte
}

// OK reports whether the device reported no error.
func (s DeviceStatus) OK() bool {
	return s.Status == StatusOK
}

func (s DeviceStatus) String() string {
	return fmt.Sprintf("status=%s state=%s poll=%s", StatusName(s.Status), s.State, s.PollTimeout)
}

// MemoryLayout describes the memory behind a DfuSe alternate setting,
// decoded from its interface string descriptor.
type MemoryLayout struct {
	// Name is the memory name, e.g. "Internal Flash"
	Name string

	// Address is the base address of the first page
	Address uint32

	// PageCount is the number of pages (always > 0)
	PageCount int

	// PageSize is the page size in bytes (always > 0)
	PageSize int

	Readable bool
	Writable bool
	Erasable bool
}

// Size returns the total memory size in bytes.
// It is zero for a layout with no pages and saturates at math.MaxInt.
func (m *MemoryLayout) Size() int {
	if m.PageCount <= 0 || m.PageSize <= 0 {
		return 0
	}
	if m.PageSize > math.MaxInt/m.PageCount {
		return math.MaxInt
	}
	return m.PageCount * m.PageSize
}

// End returns the first address past the memory.
func (m *MemoryLayout) End() uint32 {
	return m.Address + uint32(m.Size())
}

// PageAddress returns the start of the page containing addr.
func (m *MemoryLayout) PageAddress(addr uint32) uint32 {
	return PageStart(addr, m.PageSize)
}

// PageStart aligns addr down to a multiple of pageSize relative to zero.
func PageStart(addr uint32, pageSize int) uint32 {
	if pageSize <= 0 {
		return addr
	}
	return addr - addr%uint32(pageSize)
}

// Package dfusim simulates a DfuSe device behind the control-transfer
// interface used by bootloader.Device.
//
// The simulator follows the state machine of an STM32 system bootloader:
// a DNLOAD moves the device to dfuDNLOAD-SYNC, the next GETSTATUS executes
// the request and reports dfuDNBUSY, and later polls report dfuDNLOAD-IDLE
// or dfuERROR. Uploads are served from a flat memory image.
package dfusim

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-dfuse/protocol"
)

// ErrStall is returned for requests the device does not accept in its
// current state. Real hardware answers them with a STALL handshake.
var ErrStall = errors.New("pipe stalled")

// ErrDisconnected is returned after the device left DFU mode.
var ErrDisconnected = errors.New("device disconnected")

// Commands is the answer to an upload of block 0.
var Commands = []byte{
	protocol.CmdGetCommands,
	protocol.CmdSetAddressPointer,
	protocol.CmdErase,
	protocol.CmdReadUnprotect,
}

// Op is one control request received by the simulator.
type Op struct {
	Request uint8
	Block   uint16

	// Command and Address are set for block 0 downloads
	Command byte
	Address uint32
	HasAddr bool

	// Length is the payload length, or the requested length for uploads
	Length int
}

func (o Op) String() string {
	switch o.Request {
	case protocol.ReqDnload:
		switch {
		case o.Block != protocol.CommandBlock:
			return fmt.Sprintf("WRITE %d %d", o.Block-protocol.FirstDataBlock, o.Length)
		case o.Length == 0:
			return "LEAVE"
		case o.Command == protocol.CmdSetAddressPointer:
			return fmt.Sprintf("SET_ADDRESS 0x%08X", o.Address)
		case o.Command == protocol.CmdErase && o.HasAddr:
			return fmt.Sprintf("ERASE 0x%08X", o.Address)
		case o.Command == protocol.CmdErase:
			return "MASS_ERASE"
		default:
			return fmt.Sprintf("COMMAND 0x%02X", o.Command)
		}
	case protocol.ReqUpload:
		return fmt.Sprintf("UPLOAD %d %d", o.Block, o.Length)
	default:
		return protocol.RequestName(o.Request)
	}
}

// Device is a simulated DfuSe device. Configure the exported fields before
// the first request. It is not safe for concurrent use.
type Device struct {
	// Layout is the memory behind the simulated alternate setting
	Layout protocol.MemoryLayout

	// TransferSize is wTransferSize, used to compute block addresses
	TransferSize int

	// PollTimeout is reported in every status response
	PollTimeout time.Duration

	// BusyPolls is the number of extra dfuDNBUSY responses before a
	// download completes
	BusyPolls int

	// RequireErased fails writes to bytes that are not 0xFF
	RequireErased bool

	// Fault returns a non-zero bStatus to make the given download fail
	// when it executes
	Fault func(op Op) byte

	// UploadTimeout returns true to make an upload of the given block
	// time out
	UploadTimeout func(block uint16) bool

	// Ops records every request in arrival order
	Ops []Op

	memory   []byte
	pointer  uint32
	state    protocol.DfuState
	status   byte
	pending  *Op
	payload  []byte
	busyLeft int
	left     bool
}

// New returns a simulated device in dfuIDLE whose memory is erased (0xFF).
// The transfer size defaults to the layout page size.
func New(layout protocol.MemoryLayout) *Device {
	mem := bytes.Repeat([]byte{0xFF}, layout.Size())
	return &Device{
		Layout:        layout,
		TransferSize:  layout.PageSize,
		RequireErased: true,
		memory:        mem,
		pointer:       layout.Address,
		state:         protocol.StateDfuIdle,
	}
}

// Descriptor returns the interface string of the simulated alternate setting.
func (d *Device) Descriptor() string {
	l := d.Layout
	perm := byte('g')
	switch {
	case l.Readable && l.Writable && l.Erasable:
		perm = 'g'
	case l.Writable && l.Erasable:
		perm = 'e'
	case l.Readable && l.Erasable:
		perm = 'c'
	case l.Writable:
		perm = 'd'
	case l.Erasable:
		perm = 'b'
	case l.Readable:
		perm = 'a'
	}
	return fmt.Sprintf("@%s/0x%08X/%d*%03d %c", l.Name, l.Address, l.PageCount, l.PageSize, perm)
}

// State returns the current device state.
func (d *Device) State() protocol.DfuState {
	return d.state
}

// SetState forces the device into state s with status code status.
func (d *Device) SetState(s protocol.DfuState, status byte) {
	d.state = s
	d.status = status
}

// Left reports whether the device accepted a leave request.
func (d *Device) Left() bool {
	return d.left
}

// Memory returns a copy of n bytes of memory starting at addr.
func (d *Device) Memory(addr uint32, n int) []byte {
	off := int(addr - d.Layout.Address)
	return append([]byte(nil), d.memory[off:off+n]...)
}

// Load writes data into memory at addr without going through the protocol.
func (d *Device) Load(addr uint32, data []byte) {
	copy(d.memory[addr-d.Layout.Address:], data)
}

// Commands returns the string form of every recorded request except
// status polls, in arrival order.
func (d *Device) Commands() []string {
	var out []string
	for _, op := range d.Ops {
		if op.Request == protocol.ReqGetStatus || op.Request == protocol.ReqGetState {
			continue
		}
		out = append(out, op.String())
	}
	return out
}

// Control implements bootloader.Transport.
func (d *Device) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	if d.left {
		return 0, ErrDisconnected
	}

	op := Op{Request: request, Block: val, Length: len(data)}
	if request == protocol.ReqDnload && val == protocol.CommandBlock && len(data) > 0 {
		cmd, addr, hasAddr, err := protocol.ParseCommand(data)
		if err == nil {
			op.Command, op.Address, op.HasAddr = cmd, addr, hasAddr
		} else {
			op.Command = data[0]
		}
	}
	d.Ops = append(d.Ops, op)

	wantType := uint8(protocol.RequestOut)
	if request == protocol.ReqUpload || request == protocol.ReqGetStatus || request == protocol.ReqGetState {
		wantType = protocol.RequestIn
	}
	if rType != wantType {
		return 0, ErrStall
	}

	switch request {
	case protocol.ReqDnload:
		return d.download(op, data)
	case protocol.ReqUpload:
		return d.upload(val, data)
	case protocol.ReqGetStatus:
		return d.getStatus(data)
	case protocol.ReqGetState:
		if len(data) < 1 {
			return 0, ErrStall
		}
		data[0] = byte(d.state)
		return 1, nil
	case protocol.ReqClrStatus:
		d.status = protocol.StatusOK
		d.state = protocol.StateDfuIdle
		return 0, nil
	case protocol.ReqAbort:
		if d.state == protocol.StateDfuError {
			return 0, ErrStall
		}
		d.state = protocol.StateDfuIdle
		return 0, nil
	case protocol.ReqDetach:
		return 0, nil
	default:
		return d.stall(protocol.StatusErrStalledPkt)
	}
}

func (d *Device) stall(status byte) (int, error) {
	d.state = protocol.StateDfuError
	d.status = status
	return 0, ErrStall
}

func (d *Device) download(op Op, data []byte) (int, error) {
	if d.state != protocol.StateDfuIdle && d.state != protocol.StateDnloadIdle {
		return d.stall(protocol.StatusErrStalledPkt)
	}
	if op.Block == 1 {
		return d.stall(protocol.StatusErrStalledPkt)
	}

	d.pending = &op
	d.payload = append(d.payload[:0], data...)
	if op.Block == protocol.CommandBlock && len(data) == 0 {
		d.state = protocol.StateManifestSync
	} else {
		d.state = protocol.StateDnloadSync
	}
	return len(data), nil
}

func (d *Device) getStatus(data []byte) (int, error) {
	if len(data) < protocol.StatusResponseSize {
		return 0, ErrStall
	}

	switch d.state {
	case protocol.StateDnloadSync:
		if code := d.execute(); code != protocol.StatusOK {
			d.state, d.status = protocol.StateDfuError, code
		} else {
			d.state = protocol.StateDnloadBusy
			d.busyLeft = d.BusyPolls
		}
	case protocol.StateDnloadBusy:
		if d.busyLeft > 0 {
			d.busyLeft--
		} else {
			d.state = protocol.StateDnloadIdle
		}
	case protocol.StateManifestSync:
		d.state = protocol.StateManifest
		d.left = true
	}

	resp := protocol.EncodeStatus(protocol.DeviceStatus{
		Status:      d.status,
		State:       d.state,
		PollTimeout: d.PollTimeout,
	})
	return copy(data, resp), nil
}

// execute runs the pending download and returns its bStatus.
func (d *Device) execute() byte {
	op := *d.pending
	d.pending = nil

	if d.Fault != nil {
		if code := d.Fault(op); code != protocol.StatusOK {
			return code
		}
	}

	if op.Block != protocol.CommandBlock {
		return d.write(op.Block, d.payload)
	}

	switch {
	case op.Command == protocol.CmdSetAddressPointer && op.HasAddr:
		if !d.contains(op.Address, 0) {
			return protocol.StatusErrTarget
		}
		d.pointer = op.Address
	case op.Command == protocol.CmdErase && op.HasAddr:
		if !d.contains(op.Address, 0) || !d.Layout.Erasable {
			return protocol.StatusErrTarget
		}
		page := d.Layout.PageAddress(op.Address)
		off := int(page - d.Layout.Address)
		end := min(off+d.Layout.PageSize, len(d.memory))
		for i := off; i < end; i++ {
			d.memory[i] = 0xFF
		}
	case op.Command == protocol.CmdErase:
		if !d.Layout.Erasable {
			return protocol.StatusErrTarget
		}
		for i := range d.memory {
			d.memory[i] = 0xFF
		}
	default:
		return protocol.StatusErrStalledPkt
	}
	return protocol.StatusOK
}

func (d *Device) write(block uint16, data []byte) byte {
	addr := d.pointer + uint32(int(block-protocol.FirstDataBlock)*d.TransferSize)
	if !d.Layout.Writable {
		return protocol.StatusErrWrite
	}
	if !d.contains(addr, len(data)) {
		return protocol.StatusErrAddress
	}

	off := int(addr - d.Layout.Address)
	if d.RequireErased {
		for _, b := range d.memory[off : off+len(data)] {
			if b != 0xFF {
				return protocol.StatusErrCheckErased
			}
		}
	}
	copy(d.memory[off:], data)
	return protocol.StatusOK
}

func (d *Device) upload(block uint16, data []byte) (int, error) {
	if d.state != protocol.StateDfuIdle && d.state != protocol.StateUploadIdle {
		return d.stall(protocol.StatusErrStalledPkt)
	}
	if d.UploadTimeout != nil && d.UploadTimeout(block) {
		return 0, protocol.ErrTimeout
	}

	switch {
	case block == protocol.CommandBlock:
		d.state = protocol.StateUploadIdle
		return copy(data, Commands), nil
	case block == 1 || !d.Layout.Readable:
		return d.stall(protocol.StatusErrStalledPkt)
	}

	d.state = protocol.StateUploadIdle
	addr := uint64(d.pointer) + uint64(block-protocol.FirstDataBlock)*uint64(d.TransferSize)
	if addr >= uint64(d.Layout.End()) {
		return 0, nil
	}
	off := int(addr - uint64(d.Layout.Address))
	return copy(data, d.memory[off:]), nil
}

// contains reports whether [addr, addr+n) lies in memory; n == 0 checks addr alone.
func (d *Device) contains(addr uint32, n int) bool {
	start := uint64(d.Layout.Address)
	end := uint64(d.Layout.End())
	a := uint64(addr)
	if n == 0 {
		return a >= start && a < end
	}
	return a >= start && a+uint64(n) <= end
}

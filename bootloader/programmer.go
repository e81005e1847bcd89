package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-dfuse/dfuse"
	"github.com/moffa90/go-dfuse/protocol"
)

// Profile describes the selected alternate setting of the device.
type Profile struct {
	// Alternate is the selected alternate setting
	Alternate int

	// Layout is the decoded memory layout, or nil when the interface string
	// could not be decoded. With a nil layout every operation is permitted
	// and the transfer size defaults to protocol.DefaultTransferSize.
	Layout *protocol.MemoryLayout
}

// Programmer orchestrates erase, program and upload sequences on top of a
// Device. Every step follows the same cycle: issue the request, poll while
// the device is busy, and require the expected idle state.
//
// A Programmer is not safe for concurrent use.
type Programmer struct {
	dev     *Device
	profile Profile
	config  Config
}

// New creates a new Programmer for the alternate setting described by profile.
// It starts from the configuration of dev. WithLogger and WithPollTimeout
// are also applied to dev, since polling and request logging happen there.
//
// Example:
//
//	layout, ok := protocol.ParseMemoryLayout(conn.InterfaceName())
//	if !ok {
//	    layout = nil
//	}
//	prog := bootloader.New(dev, bootloader.Profile{Alternate: 0, Layout: layout},
//	    bootloader.WithProgressCallback(progressFunc),
//	)
func New(dev *Device, profile Profile, opts ...Option) *Programmer {
	if dev == nil {
		panic("device cannot be nil")
	}

	cfg := dev.config
	for _, opt := range opts {
		opt(&cfg)
	}
	dev.config.Logger = cfg.Logger
	dev.config.PollTimeout = cfg.PollTimeout

	return &Programmer{
		dev:     dev,
		profile: profile,
		config:  cfg,
	}
}

// Device returns the underlying protocol engine.
func (p *Programmer) Device() *Device {
	return p.dev
}

// TransferSize returns the block size used for downloads and uploads.
func (p *Programmer) TransferSize() int {
	if p.config.TransferSize > 0 {
		return p.config.TransferSize
	}
	if p.profile.Layout != nil {
		return p.profile.Layout.PageSize
	}
	return protocol.DefaultTransferSize
}

// pageSize returns the erase granularity.
func (p *Programmer) pageSize() int {
	if p.profile.Layout != nil {
		return p.profile.Layout.PageSize
	}
	return protocol.DefaultTransferSize
}

// CheckDevice verifies that fw was built for the given vendor and product id.
// 0xFFFF in the file matches any device.
func CheckDevice(fw *dfuse.File, vendor, product uint16) error {
	if fw.DeviceInfo.Matches(vendor, product) {
		return nil
	}
	return &DeviceMismatchError{
		FileVendor:    fw.DeviceInfo.Vendor,
		FileProduct:   fw.DeviceInfo.Product,
		DeviceVendor:  vendor,
		DeviceProduct: product,
	}
}

// Flash programs every element of the targets matching the selected
// alternate setting:
//  1. Erase the page holding the element start (every spanned page with WithSpanErase)
//  2. Set the address pointer to the element address
//  3. Download the data in transfer-size blocks
//  4. Clear the status
//
// Any step that does not end in dfuDNLOAD-IDLE aborts the run with a
// *protocol.ProtocolError.
//
// Example:
//
//	fw, _ := dfuse.Parse("firmware.dfu")
//	err := prog.Flash(context.Background(), fw)
func (p *Programmer) Flash(ctx context.Context, fw *dfuse.File) error {
	if fw == nil {
		return fmt.Errorf("firmware cannot be nil")
	}
	if err := p.requireAccess("flash", writable); err != nil {
		return err
	}

	targets := fw.TargetsFor(byte(p.profile.Alternate))
	if p.profile.Alternate < 0 || p.profile.Alternate > 0xFF || len(targets) == 0 {
		available := make([]byte, 0, len(fw.Targets))
		for _, t := range fw.Targets {
			available = append(available, t.AlternateSetting)
		}
		return &NoMatchingTargetError{Alternate: p.profile.Alternate, Available: available}
	}

	run := p.newRun()
	for _, t := range targets {
		run.totalBytes += t.Size()
	}

	for _, t := range targets {
		p.logInfo("flashing target", "name", t.Name, "alternate", t.AlternateSetting, "elements", len(t.Elements))

		for i, e := range t.Elements {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("cancelled: %w", err)
			}

			p.logInfo("flashing element",
				"index", i,
				"address", fmt.Sprintf("0x%08X", e.Address),
				"size", len(e.Data),
			)

			if err := p.erasePages(ctx, e.Address, p.eraseEnd(e.Address, e.End()), run); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
			if err := p.write(ctx, e.Address, e.Data, run); err != nil {
				return fmt.Errorf("element %d: %w", i, err)
			}
		}
	}

	run.complete()
	p.logInfo("flash complete",
		"bytes", run.bytes,
		"elapsed", run.elapsed().String(),
	)
	return nil
}

// FlashBinary programs a raw image at address using the same
// erase / set address / download cycle as Flash.
func (p *Programmer) FlashBinary(ctx context.Context, address uint32, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("data cannot be empty")
	}
	if err := p.requireAccess("flash", writable); err != nil {
		return err
	}

	run := p.newRun()
	run.totalBytes = len(data)

	if err := p.erasePages(ctx, address, p.eraseEnd(address, address+uint32(len(data))), run); err != nil {
		return err
	}
	if err := p.write(ctx, address, data, run); err != nil {
		return err
	}

	run.complete()
	p.logInfo("flash complete",
		"address", fmt.Sprintf("0x%08X", address),
		"bytes", run.bytes,
		"elapsed", run.elapsed().String(),
	)
	return nil
}

// Erase erases every page whose start address lies in [start, end).
// start is aligned down to a page boundary.
func (p *Programmer) Erase(ctx context.Context, start, end uint32) error {
	if err := p.requireAccess("erase", erasable); err != nil {
		return err
	}
	if end <= start {
		return fmt.Errorf("invalid erase range: 0x%08X-0x%08X", start, end)
	}

	size := p.pageSize()
	first := protocol.PageStart(start, size)
	total := pageCount(first, end, size)
	run := p.newRun()

	page := 0
	for addr := first; addr < end; addr += uint32(size) {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}
		if err := p.dev.ErasePage(ctx, addr); err != nil {
			return fmt.Errorf("erase page 0x%08X: %w", addr, err)
		}
		if _, err := p.dev.WaitWhileState(ctx, protocol.StateDnloadBusy); err != nil {
			return fmt.Errorf("erase page 0x%08X: %w", addr, err)
		}

		page++
		run.report(PhaseErasing, page, total)

		if addr+uint32(size) < addr {
			break
		}
	}

	status, err := p.dev.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("erase: %w", err)
	}
	if err := p.expect(ctx, "erase", status, protocol.StateDnloadIdle); err != nil {
		return err
	}
	if err := p.dev.ClearStatus(ctx); err != nil {
		return fmt.Errorf("erase: %w", err)
	}

	run.complete()
	p.logInfo("erase complete", "pages", page, "elapsed", run.elapsed().String())
	return nil
}

// MassErase erases the whole memory of the selected alternate setting.
func (p *Programmer) MassErase(ctx context.Context) error {
	if err := p.requireAccess("mass erase", erasable); err != nil {
		return err
	}

	run := p.newRun()
	if err := p.dev.MassErase(ctx); err != nil {
		return fmt.Errorf("mass erase: %w", err)
	}
	status, err := p.dev.WaitWhileState(ctx, protocol.StateDnloadBusy)
	if err != nil {
		return fmt.Errorf("mass erase: %w", err)
	}
	if err := p.expect(ctx, "mass erase", status, protocol.StateDnloadIdle); err != nil {
		return err
	}
	if err := p.dev.ClearStatus(ctx); err != nil {
		return fmt.Errorf("mass erase: %w", err)
	}

	run.complete()
	p.logInfo("mass erase complete", "elapsed", run.elapsed().String())
	return nil
}

// Upload reads up to maxBytes of memory in transfer-size blocks.
//
// Block 0 is a priming read whose payload is discarded and block 1 carries
// no data, so reading starts at block 2. Reading stops after maxBytes, on an
// empty block or on a short block (which is kept). The device must then be
// in dfuIDLE or dfuUPLOAD-IDLE; otherwise the data read so far is returned
// together with a *protocol.ProtocolError.
func (p *Programmer) Upload(ctx context.Context, maxBytes int) ([]byte, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("maxBytes must be positive, got %d", maxBytes)
	}
	if err := p.requireAccess("upload", readable); err != nil {
		return nil, err
	}

	size := p.TransferSize()
	run := p.newRun()
	run.totalBytes = maxBytes
	total := (maxBytes + size - 1) / size

	if p.config.UploadAddress && p.profile.Layout != nil {
		if err := p.setAddress(ctx, p.profile.Layout.Address); err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
		if err := p.dev.Abort(ctx); err != nil {
			return nil, fmt.Errorf("upload: %w", err)
		}
	}

	prime, err := p.dev.Upload(ctx, protocol.CommandBlock, size)
	if err != nil {
		return nil, fmt.Errorf("upload block %d: %w", protocol.CommandBlock, err)
	}

	// an empty block 0 ends the read like any other empty block
	data := make([]byte, 0, maxBytes)
	for block := protocol.FirstDataBlock; len(prime) > 0 && len(data) < maxBytes && block <= 0xFFFF; block++ {
		if err := ctx.Err(); err != nil {
			return data, fmt.Errorf("cancelled: %w", err)
		}

		chunk, err := p.dev.Upload(ctx, uint16(block), size)
		if err != nil {
			return data, fmt.Errorf("upload block %d: %w", block, err)
		}
		if len(chunk) == 0 {
			break
		}

		data = append(data, chunk...)
		run.bytes = len(data)
		run.report(PhaseReading, block-protocol.FirstDataBlock+1, total)
		p.logDebug("read block", "block", block, "bytes", len(chunk))

		if len(chunk) < size {
			break
		}
	}
	if len(data) > maxBytes {
		data = data[:maxBytes]
	}

	status, err := p.dev.GetStatus(ctx)
	if err != nil {
		return data, fmt.Errorf("upload: %w", err)
	}
	switch status.State {
	case protocol.StateUploadIdle:
		if err := p.dev.Abort(ctx); err != nil {
			return data, fmt.Errorf("upload: %w", err)
		}
	case protocol.StateDfuIdle:
	default:
		return data, p.fail(ctx, "upload", status)
	}

	run.complete()
	p.logInfo("upload complete", "bytes", len(data), "elapsed", run.elapsed().String())
	return data, nil
}

// Leave requests the device to leave DFU mode and checks that it accepted.
func (p *Programmer) Leave(ctx context.Context) error {
	if err := p.dev.Leave(ctx); err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	status, err := p.dev.GetStatus(ctx)
	if err != nil {
		return fmt.Errorf("leave: %w", err)
	}
	if !status.OK() {
		return &protocol.ProtocolError{Operation: "leave", Status: status.Status, State: status.State}
	}
	return nil
}

// eraseEnd returns the end of the area erased before programming
// [start, end): the whole range with SpanErase, else the first page only.
func (p *Programmer) eraseEnd(start, end uint32) uint32 {
	if p.config.SpanErase {
		return end
	}
	return protocol.PageStart(start, p.pageSize()) + 1
}

// erasePages erases the pages spanned by [start, end), waiting for each
// page to complete.
func (p *Programmer) erasePages(ctx context.Context, start, end uint32, run *run) error {
	size := p.pageSize()
	first := protocol.PageStart(start, size)
	total := pageCount(first, end, size)

	page := 0
	for addr := first; addr < end; addr += uint32(size) {
		if err := p.dev.ErasePage(ctx, addr); err != nil {
			return fmt.Errorf("erase page 0x%08X: %w", addr, err)
		}
		status, err := p.dev.WaitWhileState(ctx, protocol.StateDnloadBusy)
		if err != nil {
			return fmt.Errorf("erase page 0x%08X: %w", addr, err)
		}
		if err := p.expect(ctx, fmt.Sprintf("erase page 0x%08X", addr), status, protocol.StateDnloadIdle); err != nil {
			return err
		}

		page++
		run.report(PhaseErasing, page, total)

		if addr+uint32(size) < addr {
			break
		}
	}
	return nil
}

// write sets the address pointer to addr and downloads data in
// transfer-size blocks numbered from 0, then clears the status.
func (p *Programmer) write(ctx context.Context, addr uint32, data []byte, run *run) error {
	if err := p.setAddress(ctx, addr); err != nil {
		return err
	}

	size := p.TransferSize()
	total := (len(data) + size - 1) / size
	if total > 0xFFFF-protocol.FirstDataBlock+1 {
		return fmt.Errorf("%d bytes need %d blocks of %d bytes, too many for one address", len(data), total, size)
	}

	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		chunk := data[i*size : min((i+1)*size, len(data))]
		if err := p.dev.WriteBlock(ctx, uint16(i), chunk); err != nil {
			return fmt.Errorf("write block %d: %w", i, err)
		}
		status, err := p.dev.WaitWhileState(ctx, protocol.StateDnloadBusy)
		if err != nil {
			return fmt.Errorf("write block %d: %w", i, err)
		}
		if err := p.expect(ctx, fmt.Sprintf("write block %d", i), status, protocol.StateDnloadIdle); err != nil {
			return err
		}

		run.bytes += len(chunk)
		run.report(PhaseProgramming, i+1, total)
	}

	if err := p.dev.ClearStatus(ctx); err != nil {
		return fmt.Errorf("clear status: %w", err)
	}
	return nil
}

func (p *Programmer) setAddress(ctx context.Context, addr uint32) error {
	op := fmt.Sprintf("set address 0x%08X", addr)
	if err := p.dev.SetAddress(ctx, addr); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	status, err := p.dev.WaitWhileState(ctx, protocol.StateDnloadBusy)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return p.expect(ctx, op, status, protocol.StateDnloadIdle)
}

// expect returns nil when status is in the wanted state, and otherwise
// clears the device error and returns a *protocol.ProtocolError.
func (p *Programmer) expect(ctx context.Context, op string, status protocol.DeviceStatus, want protocol.DfuState) error {
	if status.State == want {
		return nil
	}
	return p.fail(ctx, op, status)
}

func (p *Programmer) fail(ctx context.Context, op string, status protocol.DeviceStatus) error {
	p.logError("unexpected device state",
		"operation", op,
		"status", protocol.StatusName(status.Status),
		"state", status.State.String(),
	)
	if status.State == protocol.StateDfuError {
		if err := p.dev.ClearStatus(ctx); err != nil {
			p.logError("clear status failed", "error", err)
		}
	}
	return &protocol.ProtocolError{Operation: op, Status: status.Status, State: status.State}
}

type access int

const (
	readable access = iota
	writable
	erasable
)

// requireAccess refuses op when a known layout lacks the permission.
func (p *Programmer) requireAccess(op string, a access) error {
	l := p.profile.Layout
	if l == nil {
		return nil
	}

	var ok bool
	var name string
	switch a {
	case readable:
		ok, name = l.Readable, "readable"
	case writable:
		ok, name = l.Writable, "writable"
	case erasable:
		ok, name = l.Erasable, "erasable"
	}
	if ok {
		return nil
	}
	return &PermissionError{Operation: op, Memory: l.Name, Access: name}
}

func pageCount(first, end uint32, size int) int {
	if end <= first {
		return 0
	}
	span := uint64(end) - uint64(first)
	return int((span + uint64(size) - 1) / uint64(size))
}

// run tracks progress of one programmer operation.
type run struct {
	p          *Programmer
	start      time.Time
	bytes      int
	totalBytes int
}

func (p *Programmer) newRun() *run {
	return &run{p: p, start: p.dev.now()}
}

func (r *run) elapsed() time.Duration {
	return r.p.dev.now().Sub(r.start)
}

func (r *run) report(phase string, current, total int) {
	r.p.reportProgress(Progress{
		Phase:       phase,
		Current:     current,
		Total:       total,
		Percentage:  percent(current, total),
		Bytes:       r.bytes,
		ElapsedTime: r.elapsed(),
	})
}

func (r *run) complete() {
	r.p.reportProgress(Progress{
		Phase:       PhaseComplete,
		Percentage:  100,
		Bytes:       r.bytes,
		ElapsedTime: r.elapsed(),
	})
}

// reportProgress calls the progress callback if configured.
func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}

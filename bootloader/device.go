package bootloader

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/moffa90/go-dfuse/protocol"
)

// Transport carries class-specific control transfers to the device.
// *gousb.Device and *transport.Conn satisfy it.
type Transport interface {
	Control(rType, request uint8, val, idx uint16, data []byte) (int, error)
}

// Device issues DFU 1.1 and DfuSe requests to one interface of a device.
// It keeps no protocol state of its own; the device's state machine is
// authoritative and is observed through GetStatus.
//
// A Device is not safe for concurrent use.
type Device struct {
	transport Transport
	iface     uint16
	config    Config

	// sleep and now are replaced in tests
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

// NewDevice creates a Device that addresses interface number iface through t.
//
// Example:
//
//	conn, _ := transport.Open(transport.Options{Vendor: 0x0483, Product: 0xDF11})
//	dev := bootloader.NewDevice(conn, conn.InterfaceNumber(),
//	    bootloader.WithPollTimeout(time.Minute),
//	)
func NewDevice(t Transport, iface uint16, opts ...Option) *Device {
	if t == nil {
		panic("transport cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Device{
		transport: t,
		iface:     iface,
		config:    cfg,
		sleep:     sleepContext,
		now:       time.Now,
	}
}

// Detach asks an application-mode device to switch to DFU mode within
// timeoutMs milliseconds.
func (d *Device) Detach(ctx context.Context, timeoutMs uint16) error {
	_, err := d.control(ctx, protocol.RequestOut, protocol.ReqDetach, timeoutMs, nil)
	return err
}

// Download sends payload as block number block. An empty payload on block 0
// requests the leave / manifestation sequence.
func (d *Device) Download(ctx context.Context, block uint16, payload []byte) error {
	d.logDebug("dfu_download", "block", block, "length", len(payload))
	_, err := d.control(ctx, protocol.RequestOut, protocol.ReqDnload, block, payload)
	return err
}

// Upload reads up to maxLen bytes from block number block. A transport
// timeout is not an error: the result is then empty.
func (d *Device) Upload(ctx context.Context, block uint16, maxLen int) ([]byte, error) {
	buf := make([]byte, maxLen)
	n, err := d.control(ctx, protocol.RequestIn, protocol.ReqUpload, block, buf)
	if err != nil {
		if protocol.IsTimeout(err) {
			d.logDebug("dfu_upload_timeout", "block", block)
			return []byte{}, nil
		}
		return nil, err
	}
	return buf[:n], nil
}

// GetStatus reads and decodes the 6-byte status response.
func (d *Device) GetStatus(ctx context.Context) (protocol.DeviceStatus, error) {
	buf := make([]byte, protocol.StatusResponseSize)
	n, err := d.control(ctx, protocol.RequestIn, protocol.ReqGetStatus, 0, buf)
	if err != nil {
		return protocol.DeviceStatus{}, err
	}

	status, err := protocol.ParseStatus(buf[:n])
	if err != nil {
		return protocol.DeviceStatus{}, &protocol.TransportError{Request: protocol.ReqGetStatus, Err: err}
	}
	return status, nil
}

// ClearStatus resets bStatus and leaves the dfuERROR state.
func (d *Device) ClearStatus(ctx context.Context) error {
	_, err := d.control(ctx, protocol.RequestOut, protocol.ReqClrStatus, 0, nil)
	return err
}

// GetState reads the current state without side effects on the device.
func (d *Device) GetState(ctx context.Context) (protocol.DfuState, error) {
	buf := make([]byte, protocol.StateResponseSize)
	n, err := d.control(ctx, protocol.RequestIn, protocol.ReqGetState, 0, buf)
	if err != nil {
		return 0, err
	}

	state, err := protocol.ParseState(buf[:n])
	if err != nil {
		return 0, &protocol.TransportError{Request: protocol.ReqGetState, Err: err}
	}
	return state, nil
}

// Abort returns the device to dfuIDLE.
func (d *Device) Abort(ctx context.Context) error {
	_, err := d.control(ctx, protocol.RequestOut, protocol.ReqAbort, 0, nil)
	return err
}

// WaitWhileState polls GETSTATUS until the device reports a state that is
// not in states, and returns that status.
//
// Between polls it sleeps for the poll timeout the device reported, capped
// at the time left under Config.PollTimeout. A transport timeout on a poll is retried immediately. The wait ends with a
// *DeviceTimeoutError once Config.PollTimeout has elapsed, or with the
// context error when ctx is done.
func (d *Device) WaitWhileState(ctx context.Context, states ...protocol.DfuState) (protocol.DeviceStatus, error) {
	start := d.now()
	var last protocol.DeviceStatus

	for {
		status, err := d.GetStatus(ctx)
		switch {
		case err == nil:
			last = status
			if !containsState(states, status.State) {
				return status, nil
			}
		case protocol.IsTimeout(err):
			d.logDebug("dfu_status_timeout")
		default:
			return last, err
		}

		elapsed := d.now().Sub(start)
		if d.config.PollTimeout > 0 && elapsed >= d.config.PollTimeout {
			return last, &DeviceTimeoutError{
				Operation: "wait while " + stateList(states),
				Elapsed:   elapsed,
				LastState: last.State,
			}
		}

		if err == nil {
			wait := status.PollTimeout
			if left := d.config.PollTimeout - elapsed; d.config.PollTimeout > 0 && wait > left {
				wait = left
			}
			if err := d.sleep(ctx, wait); err != nil {
				return last, err
			}
		}
	}
}

// SetAddress sets the address pointer used by subsequent block transfers.
func (d *Device) SetAddress(ctx context.Context, addr uint32) error {
	d.logDebug("dfu_set_address", "address", fmt.Sprintf("0x%08X", addr))
	return d.Download(ctx, protocol.CommandBlock, protocol.BuildSetAddressCmd(addr))
}

// ErasePage erases the page containing addr.
func (d *Device) ErasePage(ctx context.Context, addr uint32) error {
	d.logDebug("dfu_erase_page", "address", fmt.Sprintf("0x%08X", addr))
	return d.Download(ctx, protocol.CommandBlock, protocol.BuildEraseCmd(addr))
}

// MassErase erases the whole memory behind the selected alternate setting.
func (d *Device) MassErase(ctx context.Context) error {
	d.logDebug("dfu_mass_erase")
	return d.Download(ctx, protocol.CommandBlock, protocol.BuildMassEraseCmd())
}

// Leave requests the device to leave DFU mode and start the application.
// The request takes effect on the next GetStatus.
func (d *Device) Leave(ctx context.Context) error {
	d.logDebug("dfu_leave")
	return d.Download(ctx, protocol.CommandBlock, nil)
}

// WriteBlock downloads data block n, which the device stores at
// address pointer + n * transfer size.
func (d *Device) WriteBlock(ctx context.Context, n uint16, data []byte) error {
	if int(n) > 0xFFFF-protocol.FirstDataBlock {
		return fmt.Errorf("block %d exceeds the block number range", n)
	}
	return d.Download(ctx, n+protocol.FirstDataBlock, data)
}

func (d *Device) control(ctx context.Context, rType, request uint8, val uint16, data []byte) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	n, err := d.transport.Control(rType, request, val, d.iface, data)
	if err != nil {
		return n, &protocol.TransportError{Request: request, Err: err}
	}
	return n, nil
}

func (d *Device) logDebug(msg string, keysAndValues ...interface{}) {
	if d.config.Logger != nil {
		d.config.Logger.Debug(msg, keysAndValues...)
	}
}

func containsState(states []protocol.DfuState, s protocol.DfuState) bool {
	for _, st := range states {
		if st == s {
			return true
		}
	}
	return false
}

func stateList(states []protocol.DfuState) string {
	names := make([]string, len(states))
	for i, s := range states {
		names[i] = s.String()
	}
	return strings.Join(names, ", ")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

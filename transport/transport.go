// Package transport opens a DfuSe device with gousb and exposes the control
// pipe and interface strings the bootloader package needs.
package transport

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/gousb"

	"github.com/moffa90/go-dfuse/protocol"
)

// DefaultControlTimeout is used when Options.ControlTimeout is zero.
const DefaultControlTimeout = 5 * time.Second

// Options selects the device and the alternate setting to claim.
type Options struct {
	Vendor  uint16
	Product uint16

	// Config is the zero-based index of the configuration, in ascending
	// order of configuration value
	Config int

	Interface int
	Alternate int

	// ControlTimeout bounds each control transfer
	ControlTimeout time.Duration
}

// Alternate describes one alternate setting of the selected configuration.
type Alternate struct {
	Config    int
	Interface int
	Alternate int

	// Name is the interface string descriptor; for DfuSe devices it holds
	// the memory layout
	Name string
}

func (a Alternate) String() string {
	return fmt.Sprintf("Cfg: %d Intf: %d Alt: %d '%s'", a.Config, a.Interface, a.Alternate, a.Name)
}

// Conn is an open device with one alternate setting claimed.
// It satisfies bootloader.Transport.
type Conn struct {
	ctx  *gousb.Context
	dev  *gousb.Device
	cfg  *gousb.Config
	intf *gousb.Interface

	opts      Options
	cfgNumber int
	name      string
}

// Open finds the first device matching opts.Vendor and opts.Product,
// selects the configuration and claims the requested alternate setting.
//
// Example:
//
//	conn, err := transport.Open(transport.Options{Vendor: 0x0483, Product: 0xDF11})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
func Open(opts Options) (conn *Conn, err error) {
	if opts.ControlTimeout <= 0 {
		opts.ControlTimeout = DefaultControlTimeout
	}

	ctx := gousb.NewContext()
	defer func() {
		if err != nil {
			_ = ctx.Close()
		}
	}()

	dev, err := ctx.OpenDeviceWithVIDPID(gousb.ID(opts.Vendor), gousb.ID(opts.Product))
	if err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	if dev == nil {
		return nil, &DeviceNotFoundError{Vendor: opts.Vendor, Product: opts.Product, Reason: "no device"}
	}
	defer func() {
		if err != nil {
			_ = dev.Close()
		}
	}()
	dev.ControlTimeout = opts.ControlTimeout

	if err := dev.SetAutoDetach(true); err != nil {
		return nil, fmt.Errorf("enable kernel driver auto detach: %w", err)
	}

	cfgNumber, err := configNumber(dev.Desc, opts.Config)
	if err != nil {
		return nil, &DeviceNotFoundError{Vendor: opts.Vendor, Product: opts.Product, Reason: err.Error()}
	}
	if !hasSetting(dev.Desc, cfgNumber, opts.Interface, opts.Alternate) {
		return nil, &DeviceNotFoundError{
			Vendor:  opts.Vendor,
			Product: opts.Product,
			Reason:  fmt.Sprintf("no interface %d alternate %d in configuration %d", opts.Interface, opts.Alternate, opts.Config),
		}
	}

	cfg, err := dev.Config(cfgNumber)
	if err != nil {
		return nil, fmt.Errorf("select configuration %d: %w", cfgNumber, err)
	}
	intf, err := cfg.Interface(opts.Interface, opts.Alternate)
	if err != nil {
		_ = cfg.Close()
		return nil, fmt.Errorf("claim interface %d alternate %d: %w", opts.Interface, opts.Alternate, err)
	}

	name, err := dev.InterfaceDescription(cfgNumber, opts.Interface, opts.Alternate)
	if err != nil {
		// A missing string leaves the memory layout unknown.
		name = ""
	}

	return &Conn{
		ctx:       ctx,
		dev:       dev,
		cfg:       cfg,
		intf:      intf,
		opts:      opts,
		cfgNumber: cfgNumber,
		name:      name,
	}, nil
}

// Control performs a control transfer on the default pipe. Transfer
// timeouts are reported as protocol.ErrTimeout.
func (c *Conn) Control(rType, request uint8, val, idx uint16, data []byte) (int, error) {
	n, err := c.dev.Control(rType, request, val, idx, data)
	return n, mapError(err)
}

// InterfaceName returns the string descriptor of the claimed alternate setting.
func (c *Conn) InterfaceName() string {
	return c.name
}

// InterfaceNumber returns the claimed interface number, used as wIndex.
func (c *Conn) InterfaceNumber() uint16 {
	return uint16(c.opts.Interface)
}

// Alternate returns the claimed alternate setting.
func (c *Conn) Alternate() int {
	return c.opts.Alternate
}

// Vendor returns the USB vendor id of the device.
func (c *Conn) Vendor() uint16 {
	return uint16(c.dev.Desc.Vendor)
}

// Product returns the USB product id of the device.
func (c *Conn) Product() uint16 {
	return uint16(c.dev.Desc.Product)
}

// Alternates lists every alternate setting of the selected configuration
// with its interface string.
func (c *Conn) Alternates() ([]Alternate, error) {
	var out []Alternate
	for _, s := range settings(c.dev.Desc, c.cfgNumber) {
		name, err := c.dev.InterfaceDescription(c.cfgNumber, s.Interface, s.Alternate)
		if err != nil {
			return nil, fmt.Errorf("read interface %d alternate %d string: %w", s.Interface, s.Alternate, err)
		}
		s.Config = c.opts.Config
		s.Name = name
		out = append(out, s)
	}
	return out, nil
}

// Close releases the interface and the device.
func (c *Conn) Close() error {
	c.intf.Close()
	errs := []error{c.cfg.Close(), c.dev.Close(), c.ctx.Close()}
	return errors.Join(errs...)
}

func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gousb.ErrorTimeout) {
		return fmt.Errorf("%w: %v", protocol.ErrTimeout, err)
	}
	return err
}

// configNumber maps a zero-based configuration index to its bConfigurationValue.
func configNumber(desc *gousb.DeviceDesc, index int) (int, error) {
	nums := make([]int, 0, len(desc.Configs))
	for n := range desc.Configs {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	if index < 0 || index >= len(nums) {
		return 0, fmt.Errorf("no configuration %d (device has %d)", index, len(nums))
	}
	return nums[index], nil
}

func hasSetting(desc *gousb.DeviceDesc, cfgNumber, intf, alt int) bool {
	for _, s := range settings(desc, cfgNumber) {
		if s.Interface == intf && s.Alternate == alt {
			return true
		}
	}
	return false
}

// settings returns the alternate settings of a configuration ordered by
// interface and alternate number. Names are left empty.
func settings(desc *gousb.DeviceDesc, cfgNumber int) []Alternate {
	cfg, ok := desc.Configs[cfgNumber]
	if !ok {
		return nil
	}

	var out []Alternate
	for _, intf := range cfg.Interfaces {
		for _, s := range intf.AltSettings {
			out = append(out, Alternate{Config: cfgNumber, Interface: s.Number, Alternate: s.Alternate})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Interface != out[j].Interface {
			return out[i].Interface < out[j].Interface
		}
		return out[i].Alternate < out[j].Alternate
	})
	return out
}

package transport

import "fmt"

// DeviceNotFoundError indicates that no device, configuration or alternate
// setting matched the requested options.
type DeviceNotFoundError struct {
	Vendor  uint16
	Product uint16
	Reason  string
}

func (e *DeviceNotFoundError) Error() string {
	return fmt.Sprintf("no DfuSe compatible device found [%04x:%04x]: %s, check the device selection options",
		e.Vendor, e.Product, e.Reason)
}

package dfuse

// File represents a complete parsed DfuSe firmware container.
type File struct {
	// DeviceInfo identifies the device the file was built for (DFU suffix)
	DeviceInfo DeviceInfo

	// Targets contains the images, one per alternate setting, in file order
	Targets []*Target
}

// DeviceInfo holds the identification fields of the DFU suffix.
type DeviceInfo struct {
	// Device is bcdDevice, the firmware release number (0xFFFF = any)
	Device uint16

	// Product is idProduct (0xFFFF = any)
	Product uint16

	// Vendor is idVendor (0xFFFF = any)
	Vendor uint16
}

// Matches reports whether the file may be flashed on a device with the given
// vendor and product id. 0xFFFF in the file acts as a wildcard.
func (d DeviceInfo) Matches(vendor, product uint16) bool {
	return (d.Vendor == AnyID || d.Vendor == vendor) &&
		(d.Product == AnyID || d.Product == product)
}

// Target is a firmware image for one alternate setting of the device.
type Target struct {
	// AlternateSetting selects the memory the image is written to
	AlternateSetting byte

	// Name is the target name, empty when the target is unnamed
	Name string

	// Elements are the independently addressed byte ranges of the image
	Elements []*Element
}

// Size returns the number of data bytes in the target.
func (t *Target) Size() int {
	n := 0
	for _, e := range t.Elements {
		n += len(e.Data)
	}
	return n
}

// Element is a contiguous byte range at an absolute device address.
type Element struct {
	// Address is the absolute device address of the first byte
	Address uint32

	// Data is the raw bytes to program (never empty)
	Data []byte
}

// End returns the first address past the element.
func (e *Element) End() uint32 {
	return e.Address + uint32(len(e.Data))
}

// TargetsFor returns the targets whose alternate setting equals alt, in file order.
func (f *File) TargetsFor(alt byte) []*Target {
	var out []*Target
	for _, t := range f.Targets {
		if t.AlternateSetting == alt {
			out = append(out, t)
		}
	}
	return out
}

// Package protocol implements the wire-level pieces of USB DFU 1.1 with the
// ST DfuSe extension (AN3156).
//
// The package has no I/O. It provides the constant table shared by the rest
// of the module, encoders for the DfuSe vendor commands, the GETSTATUS
// decoder and the memory layout decoder.
//
// # Requests
//
// All DFU requests are class requests addressed to the DFU interface:
//
//	DNLOAD    bmRequestType=0x21 wValue=block   data=payload
//	UPLOAD    bmRequestType=0xA1 wValue=block   wLength=max
//	GETSTATUS bmRequestType=0xA1 wValue=0       wLength=6
//
// # DfuSe Vendor Commands
//
// DfuSe multiplexes commands over DNLOAD block 0:
//
//	cmd := protocol.BuildSetAddressCmd(0x08000000) // [0x21 0x00 0x00 0x00 0x08]
//	cmd := protocol.BuildEraseCmd(0x08000800)      // [0x41 0x00 0x08 0x00 0x08]
//
// Data blocks start at wBlockNum 2 (FirstDataBlock). The address of data
// block N is ((N - 2) * transferSize) + addressPointer.
//
// # Status
//
//	status, err := protocol.ParseStatus(resp)
//	if status.State == protocol.StateDnloadBusy {
//	    time.Sleep(status.PollTimeout)
//	}
//
// # Memory Layout
//
// The interface string descriptor of each alternate setting describes its
// memory:
//
//	layout, ok := protocol.ParseMemoryLayout("@Internal Flash  /0x08000000/064*0001Kg")
//	// layout.PageCount == 64, layout.PageSize == 1024, all permissions set
//
// # Reference
//
// USB Device Firmware Upgrade Specification, Revision 1.1, and
// ST AN3156 "USB DFU protocol used in the STM32 bootloader".
package protocol

package protocol

// DFUVersion is the USB DFU class revision implemented by this library (bcdDFU 0x011A).
const DFUVersion = 0x011A

// Request types for class-specific interface requests.
const (
	// RequestOut is bmRequestType for host-to-device class requests (0x21)
	RequestOut = 0x21

	// RequestIn is bmRequestType for device-to-host class requests (0xA1)
	RequestIn = 0xA1
)

// DFU class request codes per DFU 1.1 section 3.
const (
	// ReqDetach asks an application-mode device to enter DFU mode
	ReqDetach = 0x00

	// ReqDnload sends a block of data (or a DfuSe vendor command in block 0)
	ReqDnload = 0x01

	// ReqUpload reads a block of data from the device
	ReqUpload = 0x02

	// ReqGetStatus returns the 6-byte status response
	ReqGetStatus = 0x03

	// ReqClrStatus clears the dfuERROR state
	ReqClrStatus = 0x04

	// ReqGetState returns the current state as a single byte
	ReqGetState = 0x05

	// ReqAbort returns the device to dfuIDLE
	ReqAbort = 0x06
)

// DfuSe vendor commands sent as the first byte of a block 0 download.
const (
	// CmdGetCommands is the implicit command answered by an upload of block 0
	CmdGetCommands = 0x00

	// CmdSetAddressPointer sets the address used by subsequent block transfers
	CmdSetAddressPointer = 0x21

	// CmdErase erases the page containing the given address,
	// or the whole memory when sent without an address
	CmdErase = 0x41

	// CmdReadUnprotect removes read protection (triggers a mass erase)
	CmdReadUnprotect = 0x92
)

// Block numbering per ST AN3156.
const (
	// CommandBlock is the wBlockNum carrying vendor commands
	CommandBlock = 0

	// FirstDataBlock is the wBlockNum of the first data block;
	// data block N is transferred as wBlockNum N+FirstDataBlock
	FirstDataBlock = 2
)

// Status codes (bStatus) per DFU 1.1 section 6.1.2.
const (
	StatusOK              = 0x00
	StatusErrTarget       = 0x01
	StatusErrFile         = 0x02
	StatusErrWrite        = 0x03
	StatusErrErase        = 0x04
	StatusErrCheckErased  = 0x05
	StatusErrProg         = 0x06
	StatusErrVerify       = 0x07
	StatusErrAddress      = 0x08
	StatusErrNotDone      = 0x09
	StatusErrFirmware     = 0x0A
	StatusErrVendor       = 0x0B
	StatusErrUSBReset     = 0x0C
	StatusErrPowerOnReset = 0x0D
	StatusErrUnknown      = 0x0E
	StatusErrStalledPkt   = 0x0F
)

// Sizes of fixed protocol structures.
const (
	// StatusResponseSize is the length of a GETSTATUS response
	StatusResponseSize = 6

	// StateResponseSize is the length of a GETSTATE response
	StateResponseSize = 1

	// AddressCommandSize is the length of a vendor command carrying an address
	AddressCommandSize = 5

	// DefaultTransferSize is the transfer unit used when the device
	// memory layout is unknown
	DefaultTransferSize = 1024
)

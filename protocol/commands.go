package protocol

import (
	"encoding/binary"
	"fmt"
)

// EncodeAddress returns addr as 4 little-endian bytes, LSB first.
func EncodeAddress(addr uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, addr)
	return b
}

// DecodeAddress is the inverse of EncodeAddress.
func DecodeAddress(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, fmt.Errorf("address must be exactly 4 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint32(b), nil
}

// BuildSetAddressCmd constructs the Set Address Pointer vendor command.
//
// Payload structure:
//
//	[0x21][ADDR_0][ADDR_1][ADDR_2][ADDR_3]
func BuildSetAddressCmd(addr uint32) []byte {
	return buildAddressCmd(CmdSetAddressPointer, addr)
}

// BuildEraseCmd constructs the Erase Page vendor command for the page
// containing addr.
//
// Payload structure:
//
//	[0x41][ADDR_0][ADDR_1][ADDR_2][ADDR_3]
func BuildEraseCmd(addr uint32) []byte {
	return buildAddressCmd(CmdErase, addr)
}

// BuildMassEraseCmd constructs the Erase command without an address,
// which erases the whole memory of the selected alternate setting.
func BuildMassEraseCmd() []byte {
	return []byte{CmdErase}
}

func buildAddressCmd(cmd byte, addr uint32) []byte {
	payload := make([]byte, 0, AddressCommandSize)
	payload = append(payload, cmd)
	payload = append(payload, EncodeAddress(addr)...)
	return payload
}

// ParseCommand decodes a vendor command payload built by BuildSetAddressCmd,
// BuildEraseCmd or BuildMassEraseCmd. hasAddr is false for the mass erase form.
func ParseCommand(payload []byte) (cmd byte, addr uint32, hasAddr bool, err error) {
	switch len(payload) {
	case 1:
		return payload[0], 0, false, nil
	case AddressCommandSize:
		addr, err = DecodeAddress(payload[1:])
		return payload[0], addr, true, err
	default:
		return 0, 0, false, fmt.Errorf("invalid command length %d", len(payload))
	}
}

package protocol

import "hash/crc32"

// CalculateSuffixCRC computes dwCRC of the DFU file suffix: the CRC-32
// (IEEE polynomial, reflected) of every byte preceding the field, without
// the final XOR. This equals the bitwise NOT of the standard CRC-32.
func CalculateSuffixCRC(data []byte) uint32 {
	return ^crc32.ChecksumIEEE(data)
}

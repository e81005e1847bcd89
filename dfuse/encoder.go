package dfuse

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/moffa90/go-dfuse/protocol"
)

// Encode serializes fw into the DfuSe file format, computing every length
// field and the suffix CRC. It is the inverse of ParseBytes.
func Encode(fw *File) ([]byte, error) {
	if fw == nil {
		return nil, fmt.Errorf("firmware cannot be nil")
	}
	if len(fw.Targets) == 0 {
		return nil, fmt.Errorf("firmware has no targets")
	}
	if len(fw.Targets) > 0xFF {
		return nil, fmt.Errorf("too many targets: %d, maximum is 255", len(fw.Targets))
	}

	out := make([]byte, PrefixSize, PrefixSize+fw.encodedTargetsSize()+SuffixSize)
	copy(out[0:5], prefixSignature)
	out[5] = FormatVersion
	out[10] = byte(len(fw.Targets))

	for i, t := range fw.Targets {
		enc, err := encodeTarget(t)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		out = append(out, enc...)
	}
	binary.LittleEndian.PutUint32(out[6:10], uint32(len(out)))

	suffix := make([]byte, SuffixSize)
	binary.LittleEndian.PutUint16(suffix[0:2], fw.DeviceInfo.Device)
	binary.LittleEndian.PutUint16(suffix[2:4], fw.DeviceInfo.Product)
	binary.LittleEndian.PutUint16(suffix[4:6], fw.DeviceInfo.Vendor)
	binary.LittleEndian.PutUint16(suffix[6:8], protocol.DFUVersion)
	copy(suffix[8:11], suffixSignature)
	suffix[11] = SuffixSize
	out = append(out, suffix...)

	crc := protocol.CalculateSuffixCRC(out[:len(out)-4])
	binary.LittleEndian.PutUint32(out[len(out)-4:], crc)

	return out, nil
}

// WriteFile encodes fw and writes it to path.
func WriteFile(path string, fw *File) error {
	data, err := Encode(fw)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

func encodeTarget(t *Target) ([]byte, error) {
	if len(t.Elements) == 0 {
		return nil, fmt.Errorf("target has no elements")
	}
	if len(t.Name) > TargetNameSize {
		return nil, fmt.Errorf("target name is %d bytes, maximum is %d", len(t.Name), TargetNameSize)
	}

	out := make([]byte, TargetPrefixSize)
	copy(out[0:6], targetSignature)
	out[6] = t.AlternateSetting
	if t.Name != "" {
		binary.LittleEndian.PutUint32(out[7:11], 1)
		copy(out[11:11+TargetNameSize], t.Name)
	}

	for i, e := range t.Elements {
		if len(e.Data) == 0 {
			return nil, fmt.Errorf("element %d is empty", i)
		}
		hdr := make([]byte, ElementHeaderSize)
		binary.LittleEndian.PutUint32(hdr[0:4], e.Address)
		binary.LittleEndian.PutUint32(hdr[4:8], uint32(len(e.Data)))
		out = append(out, hdr...)
		out = append(out, e.Data...)
	}

	binary.LittleEndian.PutUint32(out[266:270], uint32(len(out)-TargetPrefixSize))
	binary.LittleEndian.PutUint32(out[270:274], uint32(len(t.Elements)))

	return out, nil
}

func (f *File) encodedTargetsSize() int {
	n := 0
	for _, t := range f.Targets {
		n += TargetPrefixSize
		for _, e := range t.Elements {
			n += ElementHeaderSize + len(e.Data)
		}
	}
	return n
}

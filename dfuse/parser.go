package dfuse

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/moffa90/go-dfuse/protocol"
)

// Constants for the DfuSe file format (UM0391).
const (
	// PrefixSize is the size of the file prefix
	PrefixSize = 11

	// TargetPrefixSize is the size of each target prefix
	TargetPrefixSize = 274

	// ElementHeaderSize is the size of an element header (address + size)
	ElementHeaderSize = 8

	// SuffixSize is the size of the DFU suffix
	SuffixSize = 16

	// TargetNameSize is the size of the NUL padded target name field
	TargetNameSize = 255

	// FormatVersion is the only supported bVersion
	FormatVersion = 0x01

	// AnyID is the suffix wildcard for vendor, product and device
	AnyID = 0xFFFF
)

// Signatures embedded in the file.
var (
	prefixSignature = []byte("DfuSe")
	targetSignature = []byte("Target")
	suffixSignature = []byte("UFD")
)

// Parse parses a DfuSe file from the given file path.
//
// Example:
//
//	fw, err := dfuse.Parse("firmware.dfu")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Device: %04x:%04x\n", fw.DeviceInfo.Vendor, fw.DeviceInfo.Product)
func Parse(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseReader(f)
}

// ParseReader reads r to the end and parses the result.
func ParseReader(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseBytes(data)
}

// ParseBytes parses a complete DfuSe file held in memory.
// Every structural field and the suffix CRC are validated; any mismatch is
// reported as a *FormatError.
func ParseBytes(data []byte) (*File, error) {
	if len(data) < PrefixSize+SuffixSize {
		return nil, formatErr("file", 0, "too short: got %d bytes, minimum is %d", len(data), PrefixSize+SuffixSize)
	}

	info, err := parseSuffix(data)
	if err != nil {
		return nil, err
	}

	body := data[:len(data)-SuffixSize]
	numTargets, err := parsePrefix(body)
	if err != nil {
		return nil, err
	}

	fw := &File{
		DeviceInfo: info,
		Targets:    make([]*Target, 0, numTargets),
	}

	offset := PrefixSize
	for i := 0; i < numTargets; i++ {
		target, n, err := parseTarget(body, offset)
		if err != nil {
			return nil, fmt.Errorf("target %d: %w", i, err)
		}
		fw.Targets = append(fw.Targets, target)
		offset += n
	}

	if offset != len(body) {
		return nil, formatErr("file", offset, "%d unexpected bytes after last target", len(body)-offset)
	}

	return fw, nil
}

// parseSuffix validates the DFU suffix, including the CRC over the rest of the file.
//
// Suffix format (SuffixSize bytes):
//
//	[bcdDevice(2)][idProduct(2)][idVendor(2)][bcdDFU(2)]["UFD"][bLength][dwCRC(4)]
func parseSuffix(data []byte) (DeviceInfo, error) {
	start := len(data) - SuffixSize
	suffix := data[start:]

	if !bytes.Equal(suffix[8:11], suffixSignature) {
		return DeviceInfo{}, formatErr("suffix signature", start+8, "got %q, expected %q", suffix[8:11], suffixSignature)
	}
	if suffix[11] != SuffixSize {
		return DeviceInfo{}, formatErr("suffix length", start+11, "got %d, expected %d", suffix[11], SuffixSize)
	}
	if v := binary.LittleEndian.Uint16(suffix[6:8]); v != protocol.DFUVersion {
		return DeviceInfo{}, formatErr("bcdDFU", start+6, "got 0x%04X, expected 0x%04X", v, protocol.DFUVersion)
	}

	want := binary.LittleEndian.Uint32(suffix[12:16])
	got := protocol.CalculateSuffixCRC(data[:len(data)-4])
	if got != want {
		return DeviceInfo{}, formatErr("dwCRC", start+12, "checksum mismatch: got 0x%08X, expected 0x%08X", got, want)
	}

	return DeviceInfo{
		Device:  binary.LittleEndian.Uint16(suffix[0:2]),
		Product: binary.LittleEndian.Uint16(suffix[2:4]),
		Vendor:  binary.LittleEndian.Uint16(suffix[4:6]),
	}, nil
}

// parsePrefix validates the file prefix and returns the number of targets.
//
// Prefix format (PrefixSize bytes):
//
//	["DfuSe"][bVersion][DFUImageSize(4)][bTargets]
func parsePrefix(body []byte) (int, error) {
	if !bytes.Equal(body[0:5], prefixSignature) {
		return 0, formatErr("prefix signature", 0, "got %q, expected %q", body[0:5], prefixSignature)
	}
	if body[5] != FormatVersion {
		return 0, formatErr("bVersion", 5, "got 0x%02X, expected 0x%02X", body[5], FormatVersion)
	}
	if size := binary.LittleEndian.Uint32(body[6:10]); int64(size) != int64(len(body)) {
		return 0, formatErr("DFUImageSize", 6, "got %d, expected %d", size, len(body))
	}
	if body[10] == 0 {
		return 0, formatErr("bTargets", 10, "file contains no targets")
	}
	return int(body[10]), nil
}

// parseTarget parses the target starting at offset and returns it with its
// total encoded length.
//
// Target format:
//
//	["Target"][bAlternateSetting][bTargetNamed(4)][szTargetName(255)][dwTargetSize(4)][dwNbElements(4)]
//	followed by dwNbElements times [dwElementAddress(4)][dwElementSize(4)][Data...]
func parseTarget(body []byte, offset int) (*Target, int, error) {
	if len(body)-offset < TargetPrefixSize {
		return nil, 0, formatErr("target prefix", offset, "truncated: %d bytes left, need %d", len(body)-offset, TargetPrefixSize)
	}
	prefix := body[offset : offset+TargetPrefixSize]

	if !bytes.Equal(prefix[0:6], targetSignature) {
		return nil, 0, formatErr("target signature", offset, "got %q, expected %q", prefix[0:6], targetSignature)
	}

	target := &Target{AlternateSetting: prefix[6]}
	if binary.LittleEndian.Uint32(prefix[7:11]) != 0 {
		name := prefix[11 : 11+TargetNameSize]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		target.Name = string(name)
	}

	targetSize := binary.LittleEndian.Uint32(prefix[266:270])
	numElements := binary.LittleEndian.Uint32(prefix[270:274])
	if numElements == 0 {
		return nil, 0, formatErr("dwNbElements", offset+270, "target contains no elements")
	}

	pos := offset + TargetPrefixSize
	if int64(targetSize) > int64(len(body)-pos) {
		return nil, 0, formatErr("dwTargetSize", offset+266, "got %d, only %d bytes left", targetSize, len(body)-pos)
	}
	end := pos + int(targetSize)
	if numElements > targetSize/ElementHeaderSize {
		return nil, 0, formatErr("dwNbElements", offset+270, "got %d, dwTargetSize %d holds at most %d", numElements, targetSize, targetSize/ElementHeaderSize)
	}

	target.Elements = make([]*Element, 0, numElements)
	for i := uint32(0); i < numElements; i++ {
		if end-pos < ElementHeaderSize {
			return nil, 0, formatErr("element header", pos, "element %d exceeds dwTargetSize", i)
		}
		addr := binary.LittleEndian.Uint32(body[pos : pos+4])
		size := binary.LittleEndian.Uint32(body[pos+4 : pos+8])
		pos += ElementHeaderSize

		if size == 0 {
			return nil, 0, formatErr("dwElementSize", pos-4, "element %d is empty", i)
		}
		if int64(size) > int64(end-pos) {
			return nil, 0, formatErr("dwElementSize", pos-4, "element %d size %d exceeds dwTargetSize", i, size)
		}

		elem := &Element{
			Address: addr,
			Data:    make([]byte, size),
		}
		copy(elem.Data, body[pos:pos+int(size)])
		target.Elements = append(target.Elements, elem)
		pos += int(size)
	}

	if pos != end {
		return nil, 0, formatErr("dwTargetSize", offset+266, "got %d, elements occupy %d", targetSize, pos-offset-TargetPrefixSize)
	}

	return target, pos - offset, nil
}

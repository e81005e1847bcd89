package dfuse

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/moffa90/go-dfuse/protocol"
)

func sampleFile() *File {
	b := make([]byte, 2050)
	for i := range b {
		b[i] = byte(i * 7)
	}
	return &File{
		DeviceInfo: DeviceInfo{Device: 0x2200, Product: 0xDF11, Vendor: 0x0483},
		Targets: []*Target{
			{
				AlternateSetting: 0,
				Name:             "ST...",
				Elements: []*Element{
					{Address: 0x08000000, Data: []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}},
					{Address: 0x08000800, Data: b},
				},
			},
			{
				AlternateSetting: 1,
				Elements: []*Element{
					{Address: 0x1FFFC000, Data: []byte{0xAA, 0x55}},
				},
			},
		},
	}
}

func mustEncode(t *testing.T, fw *File) []byte {
	t.Helper()
	data, err := Encode(fw)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

// resign recomputes the suffix CRC after a test mutated the buffer.
func resign(data []byte) []byte {
	crc := protocol.CalculateSuffixCRC(data[:len(data)-4])
	binary.LittleEndian.PutUint32(data[len(data)-4:], crc)
	return data
}

func TestParseBytesRoundTrip(t *testing.T) {
	want := sampleFile()
	got, err := ParseBytes(mustEncode(t, want))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got.DeviceInfo != want.DeviceInfo {
		t.Errorf("DeviceInfo = %+v, want %+v", got.DeviceInfo, want.DeviceInfo)
	}
	if len(got.Targets) != len(want.Targets) {
		t.Fatalf("Targets count = %d, want %d", len(got.Targets), len(want.Targets))
	}
	for i, tgt := range got.Targets {
		wantTgt := want.Targets[i]
		if tgt.AlternateSetting != wantTgt.AlternateSetting {
			t.Errorf("Target[%d].AlternateSetting = %d, want %d", i, tgt.AlternateSetting, wantTgt.AlternateSetting)
		}
		if tgt.Name != wantTgt.Name {
			t.Errorf("Target[%d].Name = %q, want %q", i, tgt.Name, wantTgt.Name)
		}
		if len(tgt.Elements) != len(wantTgt.Elements) {
			t.Fatalf("Target[%d] elements = %d, want %d", i, len(tgt.Elements), len(wantTgt.Elements))
		}
		for j, e := range tgt.Elements {
			if e.Address != wantTgt.Elements[j].Address {
				t.Errorf("Target[%d].Element[%d].Address = 0x%08X, want 0x%08X", i, j, e.Address, wantTgt.Elements[j].Address)
			}
			if !bytes.Equal(e.Data, wantTgt.Elements[j].Data) {
				t.Errorf("Target[%d].Element[%d].Data mismatch", i, j)
			}
		}
	}
}

func TestEncodeLayout(t *testing.T) {
	fw := &File{
		DeviceInfo: DeviceInfo{Device: 0xFFFF, Product: 0xDF11, Vendor: 0x0483},
		Targets: []*Target{{
			Elements: []*Element{{Address: 0x08000000, Data: []byte{1, 2, 3, 4}}},
		}},
	}
	data := mustEncode(t, fw)

	wantLen := PrefixSize + TargetPrefixSize + ElementHeaderSize + 4 + SuffixSize
	if len(data) != wantLen {
		t.Fatalf("encoded length = %d, want %d", len(data), wantLen)
	}
	if !bytes.HasPrefix(data, []byte("DfuSe\x01")) {
		t.Errorf("prefix = % X", data[:6])
	}
	if got := binary.LittleEndian.Uint32(data[6:10]); int(got) != wantLen-SuffixSize {
		t.Errorf("DFUImageSize = %d, want %d", got, wantLen-SuffixSize)
	}
	if string(data[PrefixSize:PrefixSize+6]) != "Target" {
		t.Errorf("target signature = %q", data[PrefixSize:PrefixSize+6])
	}
	if got := binary.LittleEndian.Uint32(data[PrefixSize+7 : PrefixSize+11]); got != 0 {
		t.Errorf("bTargetNamed = %d, want 0 for unnamed target", got)
	}
	suffix := data[len(data)-SuffixSize:]
	if !bytes.Equal(suffix[:8], []byte{0xFF, 0xFF, 0x11, 0xDF, 0x83, 0x04, 0x1A, 0x01}) {
		t.Errorf("suffix ids = % X", suffix[:8])
	}
	if string(suffix[8:11]) != "UFD" || suffix[11] != 16 {
		t.Errorf("suffix signature = % X", suffix[8:12])
	}
}

func TestParseBytesErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]byte) []byte
		field  string
	}{
		{
			name:   "corrupted data byte",
			mutate: func(b []byte) []byte { b[PrefixSize+TargetPrefixSize+ElementHeaderSize] ^= 0xFF; return b },
			field:  "dwCRC",
		},
		{
			name:   "corrupted crc",
			mutate: func(b []byte) []byte { b[len(b)-1] ^= 0x01; return b },
			field:  "dwCRC",
		},
		{
			name:   "bad prefix signature",
			mutate: func(b []byte) []byte { b[0] = 'X'; return resign(b) },
			field:  "prefix signature",
		},
		{
			name:   "bad version",
			mutate: func(b []byte) []byte { b[5] = 0x02; return resign(b) },
			field:  "bVersion",
		},
		{
			name:   "bad image size",
			mutate: func(b []byte) []byte { b[6]++; return resign(b) },
			field:  "DFUImageSize",
		},
		{
			name:   "zero targets",
			mutate: func(b []byte) []byte { b[10] = 0; return resign(b) },
			field:  "bTargets",
		},
		{
			name:   "too many targets",
			mutate: func(b []byte) []byte { b[10] = 3; return resign(b) },
			field:  "target prefix",
		},
		{
			name:   "bad target signature",
			mutate: func(b []byte) []byte { b[PrefixSize] = 't'; return resign(b) },
			field:  "target signature",
		},
		{
			name:   "target size too large",
			mutate: func(b []byte) []byte { b[PrefixSize+266]++; return resign(b) },
			field:  "dwTargetSize",
		},
		{
			name: "element count beyond target size",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[PrefixSize+270:], 0x7FFFFFFF)
				return resign(b)
			},
			field: "dwNbElements",
		},
		{
			name:   "bad suffix signature",
			mutate: func(b []byte) []byte { b[len(b)-8] = 'X'; return resign(b) },
			field:  "suffix signature",
		},
		{
			name:   "bad suffix length",
			mutate: func(b []byte) []byte { b[len(b)-5] = 17; return resign(b) },
			field:  "suffix length",
		},
		{
			name:   "bad bcdDFU",
			mutate: func(b []byte) []byte { b[len(b)-10] = 0x00; return resign(b) },
			field:  "bcdDFU",
		},
		{
			name:   "truncated",
			mutate: func(b []byte) []byte { return b[:40] },
			field:  "suffix signature",
		},
		{
			name:   "too short",
			mutate: func(b []byte) []byte { return b[:10] },
			field:  "file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := tt.mutate(mustEncode(t, sampleFile()))
			_, err := ParseBytes(data)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			var fe *FormatError
			if !errors.As(err, &fe) {
				t.Fatalf("error = %v (%T), want *FormatError", err, err)
			}
			if fe.Field != tt.field {
				t.Errorf("FormatError.Field = %q, want %q (%v)", fe.Field, tt.field, err)
			}
		})
	}
}

func TestParseBytesEmptyElement(t *testing.T) {
	fw := &File{
		Targets: []*Target{{
			Elements: []*Element{{Address: 0x08000000, Data: []byte{1}}},
		}},
	}
	data := mustEncode(t, fw)

	// Shrink the element to zero bytes and fix every length that covers it.
	elemSize := PrefixSize + TargetPrefixSize + 4
	binary.LittleEndian.PutUint32(data[elemSize:], 0)
	data = append(data[:elemSize+4], data[elemSize+5:]...)
	binary.LittleEndian.PutUint32(data[PrefixSize+266:], ElementHeaderSize)
	binary.LittleEndian.PutUint32(data[6:10], uint32(len(data)-SuffixSize))
	resign(data)

	_, err := ParseBytes(data)
	if err == nil || !strings.Contains(err.Error(), "is empty") {
		t.Fatalf("error = %v, want empty element error", err)
	}
}

func TestParseBytesTrailingData(t *testing.T) {
	data := mustEncode(t, sampleFile())
	body := append([]byte{}, data[:len(data)-SuffixSize]...)
	body = append(body, 0xEE)
	binary.LittleEndian.PutUint32(body[6:10], uint32(len(body)))
	data = resign(append(body, data[len(data)-SuffixSize:]...))

	_, err := ParseBytes(data)
	if err == nil || !strings.Contains(err.Error(), "unexpected bytes after last target") {
		t.Fatalf("error = %v, want trailing data error", err)
	}
}

func TestEncodeErrors(t *testing.T) {
	tests := []struct {
		name   string
		fw     *File
		errMsg string
	}{
		{name: "nil", fw: nil, errMsg: "cannot be nil"},
		{name: "no targets", fw: &File{}, errMsg: "no targets"},
		{name: "no elements", fw: &File{Targets: []*Target{{}}}, errMsg: "no elements"},
		{
			name:   "empty element",
			fw:     &File{Targets: []*Target{{Elements: []*Element{{Address: 1}}}}},
			errMsg: "element 0 is empty",
		},
		{
			name: "long name",
			fw: &File{Targets: []*Target{{
				Name:     strings.Repeat("x", 256),
				Elements: []*Element{{Data: []byte{1}}},
			}}},
			errMsg: "target name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.fw)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.errMsg)
			}
			if !strings.Contains(err.Error(), tt.errMsg) {
				t.Errorf("error = %v, want substring %q", err, tt.errMsg)
			}
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fw.dfu")
	if err := WriteFile(path, sampleFile()); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	fw, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(fw.Targets) != 2 {
		t.Errorf("Targets count = %d, want 2", len(fw.Targets))
	}

	if _, err := Parse(filepath.Join(t.TempDir(), "missing.dfu")); err == nil {
		t.Error("expected error for missing file")
	}

	raw, _ := os.ReadFile(path)
	if _, err := ParseReader(bytes.NewReader(raw)); err != nil {
		t.Errorf("ParseReader: %v", err)
	}
}

func TestTargetsFor(t *testing.T) {
	fw := sampleFile()

	if got := fw.TargetsFor(0); len(got) != 1 || got[0].Name != "ST..." {
		t.Errorf("TargetsFor(0) = %v", got)
	}
	if got := fw.TargetsFor(1); len(got) != 1 || got[0].Size() != 2 {
		t.Errorf("TargetsFor(1) = %v", got)
	}
	if got := fw.TargetsFor(5); len(got) != 0 {
		t.Errorf("TargetsFor(5) = %v, want none", got)
	}
}

func TestDeviceInfoMatches(t *testing.T) {
	tests := []struct {
		info DeviceInfo
		vid  uint16
		pid  uint16
		want bool
	}{
		{DeviceInfo{Vendor: 0x0483, Product: 0xDF11}, 0x0483, 0xDF11, true},
		{DeviceInfo{Vendor: 0x0483, Product: 0xDF11}, 0x0483, 0xDF12, false},
		{DeviceInfo{Vendor: 0x1234, Product: 0xDF11}, 0x0483, 0xDF11, false},
		{DeviceInfo{Vendor: AnyID, Product: AnyID}, 0x0483, 0xDF11, true},
		{DeviceInfo{Vendor: 0x0483, Product: AnyID}, 0x0483, 0x0001, true},
	}

	for _, tt := range tests {
		if got := tt.info.Matches(tt.vid, tt.pid); got != tt.want {
			t.Errorf("%+v.Matches(%04x, %04x) = %v, want %v", tt.info, tt.vid, tt.pid, got, tt.want)
		}
	}
}

package protocol

import (
	"math"
	"strconv"
	"testing"
)

func TestParseMemoryLayout(t *testing.T) {
	tests := []struct {
		name   string
		desc   string
		want   *MemoryLayout
		wantOK bool
	}{
		{
			name: "internal flash in KiB",
			desc: "@Internal Flash  /0x08000000/064*0001Kg",
			want: &MemoryLayout{
				Name: "Internal Flash", Address: 0x08000000, PageCount: 64, PageSize: 1024,
				Readable: true, Writable: true, Erasable: true,
			},
			wantOK: true,
		},
		{
			name: "lower case unit and x separator",
			desc: "@Flash/08000000/4x2kg",
			want: &MemoryLayout{
				Name: "Flash", Address: 0x08000000, PageCount: 4, PageSize: 2048,
				Readable: true, Writable: true, Erasable: true,
			},
			wantOK: true,
		},
		{
			name: "MiB unit",
			desc: "@QSPI/0x90000000/16*1Mg",
			want: &MemoryLayout{
				Name: "QSPI", Address: 0x90000000, PageCount: 16, PageSize: 1024 * 1024,
				Readable: true, Writable: true, Erasable: true,
			},
			wantOK: true,
		},
		{
			name: "bytes with space unit",
			desc: "@Option Bytes  /0x1FFFF800/01*016 e",
			want: &MemoryLayout{
				Name: "Option Bytes", Address: 0x1FFFF800, PageCount: 1, PageSize: 16,
				Writable: true, Erasable: true,
			},
			wantOK: true,
		},
		{
			name: "no unit",
			desc: "@OTP/0x1FFF7800/01*512a",
			want: &MemoryLayout{
				Name: "OTP", Address: 0x1FFF7800, PageCount: 1, PageSize: 512,
				Readable: true,
			},
			wantOK: true,
		},
		{
			name: "trailing whitespace",
			desc: "@Flash/0x08000000/2*1Kg \r\n",
			want: &MemoryLayout{
				Name: "Flash", Address: 0x08000000, PageCount: 2, PageSize: 1024,
				Readable: true, Writable: true, Erasable: true,
			},
			wantOK: true,
		},
		{
			name: "whole address space",
			desc: "@Flash/0x00000000/4096*1Mg",
			want: &MemoryLayout{
				Name: "Flash", Address: 0, PageCount: 4096, PageSize: 1024 * 1024,
				Readable: true, Writable: true, Erasable: true,
			},
			wantOK: true,
		},
		{name: "empty", desc: ""},
		{name: "missing at sign", desc: "Internal Flash/0x08000000/064*0001Kg"},
		{name: "bad permission", desc: "@Flash/0x08000000/064*0001Kz"},
		{name: "missing permission", desc: "@Flash/0x08000000/064*0001K"},
		{name: "zero pages", desc: "@Flash/0x08000000/0*1Kg"},
		{name: "zero page size", desc: "@Flash/0x08000000/4*0Kg"},
		{name: "address too wide", desc: "@Flash/0x108000000/4*1Kg"},
		{name: "multi segment", desc: "@Internal Flash  /0x08000000/04*016Kg,01*064Kg"},
		{name: "bad separator", desc: "@Flash/0x08000000/4-1Kg"},
		{name: "non hex address", desc: "@Flash/0xZZ/4*1Kg"},
		{name: "leading garbage", desc: " @Flash/0x08000000/4*1Kg"},
		{name: "page size overflows", desc: "@Flash/08000000/4*17592186044416Mg"},
		{name: "page size beyond address space", desc: "@Flash/08000000/1*4097Mg"},
		{name: "memory beyond address space", desc: "@Flash/0x08000000/8192*1Mg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseMemoryLayout(tt.desc)
			if ok != tt.wantOK {
				t.Fatalf("ParseMemoryLayout(%q) ok = %v, want %v", tt.desc, ok, tt.wantOK)
			}
			if !ok {
				if got != nil {
					t.Errorf("ParseMemoryLayout(%q) = %+v, want nil", tt.desc, got)
				}
				return
			}
			if *got != *tt.want {
				t.Errorf("ParseMemoryLayout(%q) = %+v, want %+v", tt.desc, got, tt.want)
			}
		})
	}
}

func TestMemoryLayoutPermissionTable(t *testing.T) {
	tests := []struct {
		perm                          byte
		readable, writable, erasable bool
	}{
		{'a', true, false, false},
		{'b', false, false, true},
		{'c', true, false, true},
		{'d', false, true, false},
		{'e', false, true, true},
		{'f', false, true, true},
		{'g', true, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.perm), func(t *testing.T) {
			got, ok := ParseMemoryLayout("@Flash/0x08000000/8*1K" + string(tt.perm))
			if !ok {
				t.Fatalf("permission %c did not parse", tt.perm)
			}
			if got.Readable != tt.readable || got.Writable != tt.writable || got.Erasable != tt.erasable {
				t.Errorf("permission %c = (r=%v w=%v e=%v), want (r=%v w=%v e=%v)", tt.perm,
					got.Readable, got.Writable, got.Erasable, tt.readable, tt.writable, tt.erasable)
			}
		})
	}
}

func TestMemoryLayoutPageSizeMultiplier(t *testing.T) {
	units := []struct {
		unit string
		mult int
	}{
		{"", 1}, {" ", 1}, {"K", KiB}, {"k", KiB}, {"M", MiB}, {"m", MiB},
	}

	for _, u := range units {
		for _, size := range []int{1, 2, 16, 128, 1000} {
			desc := "@Flash/0x08000000/3*" + strconv.Itoa(size) + u.unit + "g"
			got, ok := ParseMemoryLayout(desc)
			if !ok {
				t.Fatalf("%q did not parse", desc)
			}
			if got.PageSize != size*u.mult {
				t.Errorf("%q page size = %d, want %d", desc, got.PageSize, size*u.mult)
			}
		}
	}
}

func TestMemoryLayoutHelpers(t *testing.T) {
	m := &MemoryLayout{Address: 0x08000000, PageCount: 4, PageSize: 1024}

	if m.Size() != 4096 {
		t.Errorf("Size() = %d, want 4096", m.Size())
	}
	if m.End() != 0x08001000 {
		t.Errorf("End() = 0x%08X, want 0x08001000", m.End())
	}
	if got := m.PageAddress(0x080007FF); got != 0x08000400 {
		t.Errorf("PageAddress(0x080007FF) = 0x%08X, want 0x08000400", got)
	}
	if got := PageStart(0x1234, 0); got != 0x1234 {
		t.Errorf("PageStart with zero page size = 0x%X, want 0x1234", got)
	}

	if got := (&MemoryLayout{PageCount: math.MaxInt / 2, PageSize: 4}).Size(); got != math.MaxInt {
		t.Errorf("Size() of oversized layout = %d, want math.MaxInt", got)
	}
	if got := (&MemoryLayout{PageCount: 4}).Size(); got != 0 {
		t.Errorf("Size() without page size = %d, want 0", got)
	}
}

package transport

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/google/gousb"

	"github.com/moffa90/go-dfuse/protocol"
)

func testDesc() *gousb.DeviceDesc {
	return &gousb.DeviceDesc{
		Vendor:  0x0483,
		Product: 0xDF11,
		Configs: map[int]gousb.ConfigDesc{
			2: {
				Number: 2,
				Interfaces: []gousb.InterfaceDesc{{
					Number: 0,
					AltSettings: []gousb.InterfaceSetting{{Number: 0, Alternate: 0}},
				}},
			},
			1: {
				Number: 1,
				Interfaces: []gousb.InterfaceDesc{
					{
						Number: 1,
						AltSettings: []gousb.InterfaceSetting{{Number: 1, Alternate: 0}},
					},
					{
						Number: 0,
						AltSettings: []gousb.InterfaceSetting{
							{Number: 0, Alternate: 1},
							{Number: 0, Alternate: 0},
						},
					},
				},
			},
		},
	}
}

func TestConfigNumber(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		want    int
		wantErr bool
	}{
		{"first", 0, 1, false},
		{"second", 1, 2, false},
		{"out of range", 2, 0, true},
		{"negative", -1, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := configNumber(testDesc(), tt.index)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("configNumber(%d) = %d, want %d", tt.index, got, tt.want)
			}
		})
	}
}

func TestSettingsOrder(t *testing.T) {
	got := settings(testDesc(), 1)
	want := []Alternate{
		{Config: 1, Interface: 0, Alternate: 0},
		{Config: 1, Interface: 0, Alternate: 1},
		{Config: 1, Interface: 1, Alternate: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("settings = %+v, want %+v", got, want)
	}

	if s := settings(testDesc(), 9); s != nil {
		t.Errorf("settings of missing configuration = %+v, want nil", s)
	}
}

func TestHasSetting(t *testing.T) {
	desc := testDesc()
	if !hasSetting(desc, 1, 0, 1) {
		t.Error("interface 0 alternate 1 should exist")
	}
	if hasSetting(desc, 1, 1, 1) {
		t.Error("interface 1 alternate 1 should not exist")
	}
	if hasSetting(desc, 2, 1, 0) {
		t.Error("configuration 2 has no interface 1")
	}
}

func TestMapError(t *testing.T) {
	if mapError(nil) != nil {
		t.Error("mapError(nil) should be nil")
	}

	err := mapError(gousb.ErrorTimeout)
	if !errors.Is(err, protocol.ErrTimeout) {
		t.Errorf("timeout error = %v, want protocol.ErrTimeout", err)
	}

	other := mapError(gousb.ErrorPipe)
	if errors.Is(other, protocol.ErrTimeout) {
		t.Error("pipe error must not map to a timeout")
	}
	if !errors.Is(other, gousb.ErrorPipe) {
		t.Error("other errors should pass through")
	}
}

func TestAlternateString(t *testing.T) {
	a := Alternate{Config: 0, Interface: 0, Alternate: 1, Name: "@Option Bytes  /0x1FFFF800/01*016 e"}
	want := "Cfg: 0 Intf: 0 Alt: 1 '@Option Bytes  /0x1FFFF800/01*016 e'"
	if got := a.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestDeviceNotFoundError(t *testing.T) {
	err := &DeviceNotFoundError{Vendor: 0x0483, Product: 0xDF11, Reason: "no device"}
	if !strings.Contains(err.Error(), "[0483:df11]") {
		t.Errorf("error message should contain ids, got: %s", err.Error())
	}
}

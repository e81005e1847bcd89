// Package dfuse provides parsing and encoding of ST DfuSe firmware files (.dfu).
//
// # DfuSe File Format
//
// A DfuSe file is a prefix, one or more targets and a DFU suffix. All
// multi-byte integers are little-endian.
//
// Prefix (11 bytes):
//
//	["DfuSe"][bVersion=0x01][DFUImageSize(4)][bTargets(1)]
//
// Target (274-byte prefix followed by its elements):
//
//	["Target"][bAlternateSetting][bTargetNamed(4)][szTargetName(255)]
//	[dwTargetSize(4)][dwNbElements(4)]
//	[dwElementAddress(4)][dwElementSize(4)][Data...] ...
//
// Suffix (16 bytes):
//
//	[bcdDevice(2)][idProduct(2)][idVendor(2)][bcdDFU=0x011A(2)]["UFD"][bLength=16][dwCRC(4)]
//
// dwCRC is the CRC-32 of every preceding byte without the final inversion.
//
// # Usage
//
// Parse a .dfu file from disk:
//
//	fw, err := dfuse.Parse("firmware.dfu")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, t := range fw.Targets {
//	    fmt.Printf("Target %q alt=%d\n", t.Name, t.AlternateSetting)
//	    for _, e := range t.Elements {
//	        fmt.Printf("  0x%08X %d bytes\n", e.Address, len(e.Data))
//	    }
//	}
//
// Build a file from a raw image:
//
//	data, err := dfuse.Encode(&dfuse.File{
//	    DeviceInfo: dfuse.DeviceInfo{Vendor: 0x0483, Product: 0xDF11, Device: 0xFFFF},
//	    Targets: []*dfuse.Target{{
//	        Name:     "ST...",
//	        Elements: []*dfuse.Element{{Address: 0x08000000, Data: image}},
//	    }},
//	})
//
// # Error Handling
//
// Every decoding failure is a *FormatError naming the field and byte offset:
//   - Bad prefix, target or suffix signature
//   - Unsupported version or bcdDFU
//   - Length fields that disagree with the data
//   - Empty targets or elements
//   - Suffix CRC mismatch
package dfuse

// Package bootloader drives the DFU 1.1 state machine of STM32 DfuSe devices.
//
// # Overview
//
// The package has two layers:
//   - Device is the protocol engine. It issues single DFU requests
//     (DNLOAD, UPLOAD, GETSTATUS, CLRSTATUS, GETSTATE, ABORT, DETACH) and the
//     DfuSe vendor commands carried in block 0 (set address, erase, leave),
//     and polls the device while it is busy.
//   - Programmer runs complete sequences on top of a Device: flashing a
//     DfuSe file or a raw image, erasing a range of pages and reading memory.
//
// The USB transport is supplied by the caller through the Transport
// interface, which *gousb.Device and *transport.Conn both satisfy.
//
// # Basic Usage
//
// Flash a DfuSe file:
//
//	conn, err := transport.Open(transport.Options{Vendor: 0x0483, Product: 0xDF11})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer conn.Close()
//
//	fw, err := dfuse.Parse("firmware.dfu")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	layout, _ := protocol.ParseMemoryLayout(conn.InterfaceName())
//	dev := bootloader.NewDevice(conn, conn.InterfaceNumber())
//	prog := bootloader.New(dev, bootloader.Profile{Alternate: 0, Layout: layout})
//
//	if err := prog.Flash(context.Background(), fw); err != nil {
//	    log.Fatal(err)
//	}
//
// # Flash Sequence
//
// For each element of every target matching the selected alternate setting:
//  1. Erase the page holding the element start, or every page it spans
//  2. Set the address pointer to the element address
//  3. Download the data in transfer-size blocks; block i is sent as wBlockNum i+2
//  4. Clear the status
//
// After every request the device is polled while it reports dfuDNBUSY, and
// the run stops unless it then reports dfuDNLOAD-IDLE.
//
// # Reading Memory
//
// Upload reads from the current address pointer. The first upload (block 0)
// only primes the transfer and its payload is dropped; data starts at block 2:
//
//	data, err := prog.Upload(ctx, layout.Size())
//	if err != nil {
//	    // data still holds everything read before the failure
//	}
//
// # Progress Tracking
//
//	prog := bootloader.New(dev, profile,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%%\n", p.Phase, p.Percentage)
//	    }),
//	)
//
// # Configuration Options
//
//	dev := bootloader.NewDevice(conn, 0,
//	    bootloader.WithPollTimeout(time.Minute), // ceiling for busy polling
//	    bootloader.WithLogger(slog.Default()),
//	)
//	prog := bootloader.New(dev, profile,
//	    bootloader.WithTransferSize(2048),  // override the layout page size
//	    bootloader.WithUploadAddress(true), // read from the start of memory
//	    bootloader.WithSpanErase(true),     // erase every page an image covers
//	)
//
// # Error Handling
//
// The package returns typed errors that can be inspected with errors.As:
//   - *protocol.ProtocolError: the device ended a step in an unexpected state
//   - *protocol.TransportError: a control transfer failed
//   - *DeviceTimeoutError: the device stayed busy past the poll ceiling
//   - *NoMatchingTargetError: no file target for the selected alternate setting
//   - *PermissionError: the memory layout forbids the operation
//   - *DeviceMismatchError: the file was built for another vendor/product id
//
// # Thread Safety
//
// Device and Programmer are not safe for concurrent use. A device accepts
// one request sequence at a time.
package bootloader

package bootloader

import "time"

// DefaultPollTimeout bounds WaitWhileState when no other ceiling is configured.
const DefaultPollTimeout = 30 * time.Second

// Config holds the device and programmer configuration.
type Config struct {
	// ProgressCallback is called during transfers to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// PollTimeout is the longest WaitWhileState keeps polling a device
	// that stays in a waited-on state. Zero disables the ceiling.
	PollTimeout time.Duration

	// TransferSize overrides the block size used for downloads and uploads.
	// Zero selects the page size of the memory layout, or
	// protocol.DefaultTransferSize when the layout is unknown.
	TransferSize int

	// UploadAddress makes Upload set the address pointer to the base of
	// the memory layout before reading.
	UploadAddress bool

	// SpanErase makes Flash and FlashBinary erase every page an image
	// covers instead of only the page holding its first byte.
	SpanErase bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		PollTimeout: DefaultPollTimeout,
	}
}

// Option is a functional option for configuring a Device or Programmer.
type Option func(*Config)

// WithProgressCallback sets a callback function to track transfer progress.
//
// Example:
//
//	prog := bootloader.New(dev, profile,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for device and programmer operations.
//
// Example:
//
//	dev := bootloader.NewDevice(conn, 0, bootloader.WithLogger(slog.Default()))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithPollTimeout sets the ceiling for status polling. A negative value is
// ignored; zero polls for as long as the device asks.
//
// Example:
//
//	dev := bootloader.NewDevice(conn, 0, bootloader.WithPollTimeout(time.Minute))
func WithPollTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		if timeout >= 0 {
			c.PollTimeout = timeout
		}
	}
}

// WithTransferSize overrides the transfer block size.
// Sizes outside 1..65535 are ignored.
//
// Example:
//
//	prog := bootloader.New(dev, profile, bootloader.WithTransferSize(2048))
func WithTransferSize(size int) Option {
	return func(c *Config) {
		if size > 0 && size <= 0xFFFF {
			c.TransferSize = size
		}
	}
}

// WithUploadAddress enables or disables positioning the address pointer
// at the start of memory before an upload. Default is false, which reads
// from wherever the device's pointer currently is.
//
// Example:
//
//	prog := bootloader.New(dev, profile, bootloader.WithUploadAddress(true))
func WithUploadAddress(enabled bool) Option {
	return func(c *Config) {
		c.UploadAddress = enabled
	}
}

// WithSpanErase enables or disables erasing every page covered by an image
// before programming it. Default is false, which erases only the page
// containing the start address and relies on the device to have the rest
// of the image area erased.
//
// Example:
//
//	prog := bootloader.New(dev, profile, bootloader.WithSpanErase(true))
func WithSpanErase(enabled bool) Option {
	return func(c *Config) {
		c.SpanErase = enabled
	}
}

package bootloader

import "time"

// Progress phases reported through ProgressCallback.
const (
	PhaseErasing     = "erasing"
	PhaseProgramming = "programming"
	PhaseReading     = "reading"
	PhaseComplete    = "complete"
)

// Progress contains information about a running transfer.
// Passed to ProgressCallback during erase, program and upload operations.
type Progress struct {
	// Phase describes the current operation phase:
	//   "erasing"     - Erasing flash pages
	//   "programming" - Writing transfer blocks
	//   "reading"     - Uploading memory contents
	//   "complete"    - Operation completed successfully
	Phase string

	// Current is the number of pages or blocks finished in this phase
	Current int

	// Total is the number of pages or blocks in this phase (0 when unknown)
	Total int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// Bytes is the number of bytes written or read so far
	Bytes int

	// ElapsedTime is the time elapsed since the operation started
	ElapsedTime time.Duration
}

// ProgressCallback is called periodically to report progress.
// Implementations should return quickly to avoid stalling the device.
//
// Example:
//
//	prog := bootloader.New(dev, profile,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%% - %d/%d\n",
//	            p.Phase, p.Percentage, p.Current, p.Total)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the
// device and programmer. *slog.Logger satisfies it.
//
// Example with log/slog:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
//	prog := bootloader.New(dev, profile, bootloader.WithLogger(logger))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// percent returns done/total scaled to [0,100], or 0 when total is unknown.
func percent(done, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(done) / float64(total) * 100
}

// Package history keeps a SQLite journal of device operations run by
// dfuse-tool: what was flashed, erased or read, on which device, and how
// it ended.
package history

// Schema defines the SQLite database schema for the operation journal.
const Schema = `
CREATE TABLE IF NOT EXISTS operations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    command TEXT NOT NULL,
    vendor INTEGER NOT NULL,
    product INTEGER NOT NULL,
    alternate INTEGER NOT NULL,
    location TEXT,
    address INTEGER,
    bytes INTEGER NOT NULL DEFAULT 0,
    sha256 TEXT,
    status TEXT NOT NULL CHECK(status IN ('running', 'succeeded', 'failed')),
    error_message TEXT,
    started_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    finished_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_operations_started_at ON operations(started_at);
CREATE INDEX IF NOT EXISTS idx_operations_status ON operations(status);
`

// Status constants
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Operation is one journal record.
type Operation struct {
	ID        int64
	Command   string
	Vendor    uint16
	Product   uint16
	Alternate int

	// Location is the file or S3 object read or written, if any
	Location string
	Address  uint32

	// Bytes is the number of bytes programmed or read
	Bytes int

	// SHA256 is the hex digest of the image, if any
	SHA256 string

	Status       string
	ErrorMessage string
	StartedAt    string
	FinishedAt   string
}

package dfuse

import "fmt"

// FormatError indicates that a DfuSe file does not follow the container format.
type FormatError struct {
	// Field names the structure or field that failed validation
	Field string

	// Offset is the byte offset of the field in the file
	Offset int

	// Reason describes the mismatch
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("invalid DfuSe file: %s at offset %d: %s", e.Field, e.Offset, e.Reason)
}

func formatErr(field string, offset int, format string, args ...interface{}) *FormatError {
	return &FormatError{
		Field:  field,
		Offset: offset,
		Reason: fmt.Sprintf(format, args...),
	}
}

package upload

import (
	"errors"
	"fmt"
)

// ErrTooManyFiles is returned when a batch exceeds Policy.MaxFiles.
var ErrTooManyFiles = errors.New("too many files in upload")

// ValidationError reports a file whose type or extension is not allowed.
type ValidationError struct {
	Filename    string
	ContentType string
	Message     string
}

func (e *ValidationError) Error() string {
	if e.Filename == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Filename, e.Message)
}

// SizeLimitError reports a file larger than the configured ceiling.
type SizeLimitError struct {
	Filename string
	Limit    int64
	Size     int64 // bytes seen before giving up, at least Limit+1
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("%s: file too large (limit %d bytes)", e.Filename, e.Limit)
}

// IsValidation reports whether err carries a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsSizeLimit reports whether err carries a *SizeLimitError.
func IsSizeLimit(err error) bool {
	var se *SizeLimitError
	return errors.As(err, &se)
}

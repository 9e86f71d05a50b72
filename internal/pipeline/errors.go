package pipeline

import (
	"errors"
	"fmt"
)

// ErrTooLarge is wrapped by a FetchError when a download exceeds the
// configured size limit.
var ErrTooLarge = errors.New("document exceeds size limit")

// FetchError reports a failed document download. StatusCode is 0 when the
// request never produced a response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error

	transport bool
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ExtractionError reports that the document could not be parsed.
type ExtractionError struct {
	Source string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Source, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

package feed

import "fmt"

// FetchError reports a failed feed download: transport failure, timeout or
// a non-2xx response.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: HTTP %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// FormatError reports a document that could not be parsed as a supported
// feed format.
type FormatError struct {
	Format Format
	Err    error
}

func (e *FormatError) Error() string {
	if e.Format == "" {
		return fmt.Sprintf("malformed feed document: %v", e.Err)
	}
	return fmt.Sprintf("malformed %s document: %v", e.Format, e.Err)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

package source

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is matched by errors for files or repositories the host reports as missing.
	ErrNotFound = errors.New("source: not found")

	// ErrStartupUnresolvable is returned when no revision can be pinned.
	ErrStartupUnresolvable = errors.New("source: no revision could be resolved")

	// ErrMalformedRefs is returned when a reference advertisement cannot be parsed.
	ErrMalformedRefs = errors.New("source: malformed reference advertisement")
)

// StatusError reports a non-2xx answer from the content host.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("source: %s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Is lets errors.Is(err, ErrNotFound) match a 404 answer.
func (e *StatusError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// backend/scraper/errors.go
package scraper

import (
	"errors"
	"fmt"
	"time"
)

// ErrAuthStepRequired means the portal demanded a second authentication
// factor after login. Terminal for the store's attempt: retrying cannot win,
// the store has to be excluded upstream.
var ErrAuthStepRequired = errors.New("portal requires an additional authentication step")

// NavigationTimeoutError reports a waited-for page element that never
// appeared within its step deadline. Retriable.
type NavigationTimeoutError struct {
	Step    string
	Timeout time.Duration
}

func (e *NavigationTimeoutError) Error() string {
	return fmt.Sprintf("navigation timeout at step %q after %s", e.Step, e.Timeout)
}

// DownloadNotFoundError reports that no CSV materialized in the download
// directory within the wait window after triggering the export. Retriable.
type DownloadNotFoundError struct {
	Dir     string
	Timeout time.Duration
}

func (e *DownloadNotFoundError) Error() string {
	return fmt.Sprintf("no downloaded CSV appeared in %s within %s", e.Dir, e.Timeout)
}

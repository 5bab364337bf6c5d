// Package sheets fetches spreadsheet tabs through the public CSV export endpoint.
//
// Exports are opaque: the body is returned exactly as the endpoint served it and is
// never parsed, re-encoded, or validated as CSV.
package sheets

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// DefaultExportBaseURL is the document root of the export endpoint.
const DefaultExportBaseURL = "https://docs.google.com/spreadsheets/d"

// Ref points at one tab inside the configured spreadsheet.
type Ref struct {
	Name string
	GID  string
}

// Export is the raw result of one successful fetch.
type Export struct {
	Ref         Ref
	URL         string
	StatusCode  int
	// ContentType is the header as served; the body is never converted to match it.
	ContentType string
	Body        []byte
	FetchedAt   time.Time
	Duration    time.Duration
}

// Size returns the body length in bytes.
func (e Export) Size() int {
	return len(e.Body)
}

// StatusError reports a non-2xx answer from the export endpoint.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("export %s returned HTTP %d", e.URL, e.StatusCode)
}

// TooLargeError reports an export bigger than the configured body limit.
type TooLargeError struct {
	URL   string
	Limit int
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("export %s exceeds %d bytes", e.URL, e.Limit)
}

// ExportURL builds the CSV export URL for one tab.
func ExportURL(baseURL, spreadsheetID, gid string) string {
	if baseURL == "" {
		baseURL = DefaultExportBaseURL
	}
	q := url.Values{}
	q.Set("format", "csv")
	q.Set("gid", gid)
	return fmt.Sprintf("%s/%s/export?%s", strings.TrimRight(baseURL, "/"), url.PathEscape(spreadsheetID), q.Encode())
}

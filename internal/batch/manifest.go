// Package batch implements the scheduled download and send steps.
//
// The two steps run as separate processes and share nothing but the archive store:
// download writes one file per sheet plus a manifest, send reads the manifest back
// (or rebuilds the expected filenames when an archive predates manifests).
package batch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/sheets-relay/internal/sheets"
)

// DateLayout is the date stamp used in archive filenames.
const DateLayout = "20060102"

// Event kinds published after each step.
const (
	EventDownload = "batch.download"
	EventSend     = "batch.send"
)

// Manifest lists the files produced by one download run.
type Manifest struct {
	RunID   string    `json:"run_id"`
	Date    string    `json:"date"`
	Entries []Entry   `json:"entries"`
	Created time.Time `json:"created"`
}

// Entry describes one archived export.
type Entry struct {
	Sheet     string    `json:"sheet"`
	GID       string    `json:"gid"`
	Filename  string    `json:"filename"`
	URI       string    `json:"uri"`
	Bytes     int       `json:"bytes"`
	SHA256    string    `json:"sha256"`
	FetchedAt time.Time `json:"fetched_at"`
}

// Stamp formats date for filenames.
func Stamp(date time.Time) string {
	return date.Format(DateLayout)
}

// FileName is the archive name of ref for date.
func FileName(ref sheets.Ref, date time.Time) string {
	return fmt.Sprintf("%s_%s.csv", ref.Name, Stamp(date))
}

// ManifestName is the archive name of the manifest for date.
func ManifestName(date time.Time) string {
	return fmt.Sprintf("manifest_%s.json", Stamp(date))
}

// EntriesFromRefs rebuilds the expected entries when no manifest exists.
func EntriesFromRefs(refs []sheets.Ref, date time.Time) []Entry {
	out := make([]Entry, 0, len(refs))
	for _, ref := range refs {
		out = append(out, Entry{Sheet: ref.Name, GID: ref.GID, Filename: FileName(ref, date)})
	}
	return out
}

func encodeManifest(m Manifest) ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode manifest: %w", err)
	}
	return data, nil
}

func decodeManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}
	return m, nil
}

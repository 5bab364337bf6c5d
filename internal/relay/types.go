package relay

import (
	"context"
	"time"

	"github.com/JakeFAU/sheets-relay/internal/sheets"
)

// EventRun is the publish kind for completed relay runs.
const EventRun = "relay.run"

// Request describes one fetch-then-deliver pass.
type Request struct {
	// ChatID is the delivery target.
	ChatID int64
	// Source labels the trigger in records and events, e.g. "bot".
	Source string
	// Stamp is appended to each sheet name to form the filename.
	Stamp string
	// OnOutcome, when set, is called after every sheet in order.
	OnOutcome func(ctx context.Context, out Outcome)
}

// Outcome is the result for one sheet.
type Outcome struct {
	Ref      sheets.Ref
	Filename string
	Bytes    int
	SHA256   string
	Err      error
}

// OK reports whether the sheet was delivered.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Report summarizes a run.
type Report struct {
	RunID    string
	Stamp    string
	Sent     int
	Failed   int
	Outcomes []Outcome
}

// RunEvent is published after each run.
type RunEvent struct {
	RunID  string    `json:"run_id"`
	Source string    `json:"source"`
	ChatID int64     `json:"chat_id"`
	Sent   int       `json:"sent"`
	Failed int       `json:"failed"`
	Sheets []string  `json:"sheets"`
	At     time.Time `json:"at"`
}

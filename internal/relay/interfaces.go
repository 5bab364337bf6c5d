package relay

import (
	"context"
	"time"

	"github.com/JakeFAU/sheets-relay/internal/delivery"
	"github.com/JakeFAU/sheets-relay/internal/sheets"
)

// Fetcher downloads one tab export.
type Fetcher interface {
	Fetch(ctx context.Context, ref sheets.Ref) (sheets.Export, error)
}

// Deliverer uploads one document to a chat.
type Deliverer interface {
	SendDocument(ctx context.Context, doc delivery.Document) error
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, kind string, payload any) (string, error)
}

// Hasher computes digests for integrity records.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run and record IDs.
type IDGenerator interface {
	NewID() (string, error)
}

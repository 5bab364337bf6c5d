// Package audit describes the per-document delivery log.
package audit

import (
	"context"
	"time"
)

// Delivery statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Record is one attempted document delivery.
type Record struct {
	ID        string
	RunID     string
	Source    string
	Sheet     string
	GID       string
	ChatID    int64
	Filename  string
	Bytes     int
	SHA256    string
	Status    string
	Error     string
	CreatedAt time.Time
}

// Store persists delivery records.
type Store interface {
	RecordDelivery(ctx context.Context, rec Record) error
}

// Nop discards records; used when no database is configured.
type Nop struct{}

// RecordDelivery implements Store.
func (Nop) RecordDelivery(context.Context, Record) error { return nil }

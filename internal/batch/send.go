package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/audit"
	"github.com/JakeFAU/sheets-relay/internal/config"
	"github.com/JakeFAU/sheets-relay/internal/delivery"
	"github.com/JakeFAU/sheets-relay/internal/metrics"
	"github.com/JakeFAU/sheets-relay/internal/relay"
	"github.com/JakeFAU/sheets-relay/internal/sheets"
	"github.com/JakeFAU/sheets-relay/internal/storage"
)

// ErrNoFiles is returned when none of the expected files exist in the archive.
var ErrNoFiles = errors.New("no archived files found")

// File statuses in a SendReport.
const (
	FileSent    = "sent"
	FileSkipped = "skipped"
	FileFailed  = "failed"
)

// SenderDeps bundles the collaborators of a Sender. Publisher and Audit are optional.
type SenderDeps struct {
	Deliverer relay.Deliverer
	Store     storage.BlobStore
	Hasher    relay.Hasher
	Clock     relay.Clock
	IDs       relay.IDGenerator
	Publisher relay.Publisher
	Audit     audit.Store
	Logger    *zap.Logger
}

// Sender uploads a day's archived files to one chat.
type Sender struct {
	deps  SenderDeps
	refs  []sheets.Ref
	log   *zap.Logger
	audit audit.Store
}

// FileResult is the outcome for one archived file.
type FileResult struct {
	Filename string `json:"filename"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

// SendReport summarizes a send run.
type SendReport struct {
	RunID        string       `json:"run_id"`
	Date         string       `json:"date"`
	FromManifest bool         `json:"from_manifest"`
	Sent         int          `json:"sent"`
	Skipped      int          `json:"skipped"`
	Failed       int          `json:"failed"`
	Files        []FileResult `json:"files"`
}

// NewSender validates deps and returns a Sender. refs are used when no manifest exists.
func NewSender(deps SenderDeps, refs []sheets.Ref) (*Sender, error) {
	switch {
	case deps.Deliverer == nil:
		return nil, fmt.Errorf("deliverer is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("blob store is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := deps.Audit
	if store == nil {
		store = audit.Nop{}
	}
	return &Sender{deps: deps, refs: append([]sheets.Ref(nil), refs...), log: logger, audit: store}, nil
}

// Run sends every file archived for date. Missing files are skipped with a warning and
// failed uploads are logged; neither stops the loop.
func (s *Sender) Run(ctx context.Context, chatID int64, date time.Time) (SendReport, error) {
	if chatID == 0 {
		return SendReport{}, config.ErrMissingChatID
	}
	runID, err := s.deps.IDs.NewID()
	if err != nil {
		return SendReport{}, fmt.Errorf("generate run id: %w", err)
	}
	entries, fromManifest, err := s.entries(ctx, date)
	if err != nil {
		return SendReport{}, err
	}
	report := SendReport{RunID: runID, Date: Stamp(date), FromManifest: fromManifest}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("send canceled: %w", err)
		}
		res := s.sendOne(ctx, chatID, entry)
		switch res.Status {
		case FileSent:
			report.Sent++
		case FileSkipped:
			report.Skipped++
		default:
			report.Failed++
		}
		report.Files = append(report.Files, res)
		if res.Status != FileSkipped {
			s.record(ctx, runID, chatID, entry, res)
		}
	}

	s.log.Info("send complete",
		zap.String("run_id", runID),
		zap.Int("sent", report.Sent),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	if s.deps.Publisher != nil {
		if _, err := s.deps.Publisher.Publish(ctx, EventSend, report); err != nil {
			s.log.Warn("publish send event failed", zap.Error(err))
		}
	}
	if report.Sent == 0 && report.Failed == 0 {
		return report, ErrNoFiles
	}
	return report, nil
}

func (s *Sender) entries(ctx context.Context, date time.Time) ([]Entry, bool, error) {
	data, err := s.deps.Store.GetObject(ctx, ManifestName(date))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		s.log.Info("no manifest, using configured sheet names", zap.String("date", Stamp(date)))
		return EntriesFromRefs(s.refs, date), false, nil
	case err != nil:
		return nil, false, fmt.Errorf("load manifest: %w", err)
	}
	m, err := decodeManifest(data)
	if err != nil {
		return nil, false, err
	}
	return m.Entries, true, nil
}

func (s *Sender) sendOne(ctx context.Context, chatID int64, entry Entry) FileResult {
	res := FileResult{Filename: entry.Filename}
	body, err := s.deps.Store.GetObject(ctx, entry.Filename)
	if errors.Is(err, storage.ErrNotFound) {
		s.log.Warn("file not found, skipping", zap.String("filename", entry.Filename))
		metrics.ObserveDelivery(metrics.StatusSkipped)
		res.Status = FileSkipped
		return res
	}
	if err != nil {
		return s.fail(res, fmt.Errorf("read %s: %w", entry.Filename, err))
	}
	if entry.SHA256 != "" {
		if digest, _ := s.deps.Hasher.Hash(body); digest != entry.SHA256 {
			return s.fail(res, fmt.Errorf("%s: checksum mismatch", entry.Filename))
		}
	}
	err = s.deps.Deliverer.SendDocument(ctx, delivery.Document{
		ChatID:   chatID,
		Filename: entry.Filename,
		Caption:  "📊 " + entry.Filename,
		Body:     body,
	})
	if err != nil {
		return s.fail(res, err)
	}
	metrics.ObserveDelivery(metrics.StatusSuccess)
	s.log.Info("file sent", zap.String("filename", entry.Filename), zap.Int("bytes", len(body)))
	res.Status = FileSent
	return res
}

func (s *Sender) fail(res FileResult, err error) FileResult {
	s.log.Error("file not sent", zap.String("filename", res.Filename), zap.Error(err))
	metrics.ObserveDelivery(metrics.StatusError)
	res.Status = FileFailed
	res.Error = err.Error()
	return res
}

func (s *Sender) record(ctx context.Context, runID string, chatID int64, entry Entry, res FileResult) {
	id, err := s.deps.IDs.NewID()
	if err != nil {
		s.log.Warn("skip delivery record", zap.Error(err))
		return
	}
	rec := audit.Record{
		ID:        id,
		RunID:     runID,
		Source:    "send",
		Sheet:     entry.Sheet,
		GID:       entry.GID,
		ChatID:    chatID,
		Filename:  entry.Filename,
		Bytes:     entry.Bytes,
		SHA256:    entry.SHA256,
		Status:    audit.StatusSent,
		Error:     res.Error,
		CreatedAt: s.deps.Clock.Now(),
	}
	if res.Status == FileFailed {
		rec.Status = audit.StatusFailed
	}
	if err := s.audit.RecordDelivery(ctx, rec); err != nil {
		s.log.Warn("record delivery failed", zap.String("filename", entry.Filename), zap.Error(err))
	}
}

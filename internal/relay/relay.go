// Package relay runs the fetch-then-deliver loop shared by the interactive bot.
package relay

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/audit"
	"github.com/JakeFAU/sheets-relay/internal/delivery"
	"github.com/JakeFAU/sheets-relay/internal/metrics"
	"github.com/JakeFAU/sheets-relay/internal/sheets"
)

// Deps bundles the collaborators of a Relay. Publisher and Audit are optional.
type Deps struct {
	Fetcher   Fetcher
	Deliverer Deliverer
	Publisher Publisher
	Audit     audit.Store
	Hasher    Hasher
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// Relay fetches every configured sheet and delivers each one to a chat.
type Relay struct {
	deps  Deps
	refs  []sheets.Ref
	log   *zap.Logger
	audit audit.Store
}

// New validates deps and returns a Relay over refs.
func New(deps Deps, refs []sheets.Ref) (*Relay, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Deliverer == nil:
		return nil, fmt.Errorf("deliverer is required")
	case deps.Hasher == nil:
		return nil, fmt.Errorf("hasher is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case len(refs) == 0:
		return nil, fmt.Errorf("at least one sheet is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := deps.Audit
	if store == nil {
		store = audit.Nop{}
	}
	return &Relay{
		deps:  deps,
		refs:  append([]sheets.Ref(nil), refs...),
		log:   logger,
		audit: store,
	}, nil
}

// Refs returns the sheets this relay delivers, in order.
func (r *Relay) Refs() []sheets.Ref {
	return append([]sheets.Ref(nil), r.refs...)
}

// Filename is the delivered name for ref under stamp.
func Filename(ref sheets.Ref, stamp string) string {
	return fmt.Sprintf("%s_%s.csv", ref.Name, stamp)
}

// Caption is the document caption for ref.
func Caption(ref sheets.Ref) string {
	return "📊 " + ref.Name
}

// Run processes every sheet sequentially. A failing sheet is recorded in the report and
// the loop moves on; only context cancellation stops it early.
func (r *Relay) Run(ctx context.Context, req Request) (Report, error) {
	runID, err := r.deps.IDs.NewID()
	if err != nil {
		return Report{}, fmt.Errorf("generate run id: %w", err)
	}
	log := r.log.With(zap.String("run_id", runID), zap.Int64("chat_id", req.ChatID), zap.String("source", req.Source))
	report := Report{RunID: runID, Stamp: req.Stamp}

	for _, ref := range r.refs {
		if err := ctx.Err(); err != nil {
			log.Warn("relay run canceled", zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
			return report, fmt.Errorf("relay run canceled: %w", err)
		}
		out := r.relayOne(ctx, req, ref)
		if out.OK() {
			report.Sent++
			log.Info("sheet delivered", zap.String("sheet", ref.Name), zap.Int("bytes", out.Bytes))
		} else {
			report.Failed++
			log.Error("sheet failed", zap.String("sheet", ref.Name), zap.Error(out.Err))
		}
		report.Outcomes = append(report.Outcomes, out)
		r.record(ctx, runID, req, out)
		if req.OnOutcome != nil {
			req.OnOutcome(ctx, out)
		}
	}

	r.publish(ctx, log, req, report)
	log.Info("relay run finished", zap.Int("sent", report.Sent), zap.Int("failed", report.Failed))
	return report, nil
}

func (r *Relay) relayOne(ctx context.Context, req Request, ref sheets.Ref) Outcome {
	out := Outcome{Ref: ref, Filename: Filename(ref, req.Stamp)}

	export, err := r.deps.Fetcher.Fetch(ctx, ref)
	if err != nil {
		metrics.ObserveFetch(ref.Name, metrics.StatusError, 0)
		out.Err = err
		return out
	}
	metrics.ObserveFetch(ref.Name, metrics.StatusSuccess, export.Size())
	out.Bytes = export.Size()
	if digest, err := r.deps.Hasher.Hash(export.Body); err == nil {
		out.SHA256 = digest
	}

	err = r.deps.Deliverer.SendDocument(ctx, delivery.Document{
		ChatID:   req.ChatID,
		Filename: out.Filename,
		Caption:  Caption(ref),
		Body:     export.Body,
	})
	if err != nil {
		metrics.ObserveDelivery(metrics.StatusError)
		out.Err = err
		return out
	}
	metrics.ObserveDelivery(metrics.StatusSuccess)
	return out
}

func (r *Relay) record(ctx context.Context, runID string, req Request, out Outcome) {
	id, err := r.deps.IDs.NewID()
	if err != nil {
		r.log.Warn("skip delivery record", zap.Error(err))
		return
	}
	rec := audit.Record{
		ID:        id,
		RunID:     runID,
		Source:    req.Source,
		Sheet:     out.Ref.Name,
		GID:       out.Ref.GID,
		ChatID:    req.ChatID,
		Filename:  out.Filename,
		Bytes:     out.Bytes,
		SHA256:    out.SHA256,
		Status:    audit.StatusSent,
		CreatedAt: r.deps.Clock.Now(),
	}
	if out.Err != nil {
		rec.Status = audit.StatusFailed
		rec.Error = out.Err.Error()
	}
	if err := r.audit.RecordDelivery(ctx, rec); err != nil {
		r.log.Warn("record delivery failed", zap.String("sheet", out.Ref.Name), zap.Error(err))
	}
}

func (r *Relay) publish(ctx context.Context, log *zap.Logger, req Request, report Report) {
	if r.deps.Publisher == nil {
		return
	}
	names := make([]string, 0, len(report.Outcomes))
	for _, out := range report.Outcomes {
		names = append(names, out.Ref.Name)
	}
	event := RunEvent{
		RunID:  report.RunID,
		Source: req.Source,
		ChatID: req.ChatID,
		Sent:   report.Sent,
		Failed: report.Failed,
		Sheets: names,
		At:     r.deps.Clock.Now(),
	}
	if _, err := r.deps.Publisher.Publish(ctx, EventRun, event); err != nil {
		log.Warn("publish run event failed", zap.Error(err))
	}
}

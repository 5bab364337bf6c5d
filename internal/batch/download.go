package batch

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/sheets-relay/internal/metrics"
	"github.com/JakeFAU/sheets-relay/internal/relay"
	"github.com/JakeFAU/sheets-relay/internal/sheets"
	"github.com/JakeFAU/sheets-relay/internal/storage"
)

// DownloaderDeps bundles the collaborators of a Downloader. Publisher is optional.
type DownloaderDeps struct {
	Fetcher   relay.Fetcher
	Store     storage.BlobStore
	Hasher    relay.Hasher
	Clock     relay.Clock
	IDs       relay.IDGenerator
	Publisher relay.Publisher
	Logger    *zap.Logger
}

// Downloader archives every configured sheet for one date.
type Downloader struct {
	deps DownloaderDeps
	refs []sheets.Ref
	log  *zap.Logger
}

// NewDownloader validates deps and returns a Downloader over refs.
func NewDownloader(deps DownloaderDeps, refs []sheets.Ref) (*Downloader, error) {
	switch {
	case deps.Fetcher == nil:
		return nil, fmt.Errorf("fetcher is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("blob store is required")
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
	return &Downloader{deps: deps, refs: append([]sheets.Ref(nil), refs...), log: logger}, nil
}

// Run fetches and stores each sheet in order. The first failure aborts the run and no
// manifest is written; files stored before the failure are left in place.
func (d *Downloader) Run(ctx context.Context, date time.Time) (Manifest, error) {
	runID, err := d.deps.IDs.NewID()
	if err != nil {
		return Manifest{}, fmt.Errorf("generate run id: %w", err)
	}
	manifest := Manifest{RunID: runID, Date: Stamp(date)}

	for _, ref := range d.refs {
		entry, err := d.downloadOne(ctx, ref, date)
		if err != nil {
			d.log.Error("download aborted", zap.String("sheet", ref.Name), zap.Error(err))
			return Manifest{}, fmt.Errorf("download %s: %w", ref.Name, err)
		}
		d.log.Info(fmt.Sprintf("%s (%d bytes)", entry.Filename, entry.Bytes), zap.String("uri", entry.URI))
		manifest.Entries = append(manifest.Entries, entry)
	}

	manifest.Created = d.deps.Clock.Now()
	data, err := encodeManifest(manifest)
	if err != nil {
		return Manifest{}, err
	}
	if _, err := d.deps.Store.PutObject(ctx, ManifestName(date), storage.ContentTypeJSON, bytes.NewReader(data)); err != nil {
		return Manifest{}, fmt.Errorf("store manifest: %w", err)
	}
	d.log.Info("download complete", zap.String("run_id", runID), zap.Int("files", len(manifest.Entries)))

	if d.deps.Publisher != nil {
		if _, err := d.deps.Publisher.Publish(ctx, EventDownload, manifest); err != nil {
			d.log.Warn("publish download event failed", zap.Error(err))
		}
	}
	return manifest, nil
}

func (d *Downloader) downloadOne(ctx context.Context, ref sheets.Ref, date time.Time) (Entry, error) {
	export, err := d.deps.Fetcher.Fetch(ctx, ref)
	if err != nil {
		metrics.ObserveFetch(ref.Name, metrics.StatusError, 0)
		return Entry{}, err
	}
	metrics.ObserveFetch(ref.Name, metrics.StatusSuccess, export.Size())

	name := FileName(ref, date)
	uri, err := d.deps.Store.PutObject(ctx, name, storage.ContentTypeCSV, bytes.NewReader(export.Body))
	if err != nil {
		return Entry{}, fmt.Errorf("store %s: %w", name, err)
	}
	digest, err := d.deps.Hasher.Hash(export.Body)
	if err != nil {
		return Entry{}, fmt.Errorf("hash %s: %w", name, err)
	}
	fetchedAt := export.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = d.deps.Clock.Now()
	}
	return Entry{
		Sheet:     ref.Name,
		GID:       ref.GID,
		Filename:  name,
		URI:       uri,
		Bytes:     export.Size(),
		SHA256:    digest,
		FetchedAt: fetchedAt,
	}, nil
}

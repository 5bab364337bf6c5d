// Package app initializes and holds long-lived services, acting as a dependency injection
// container for the cobra commands.
package app

import (
	"context"
	"fmt"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/sheets-relay/internal/audit"
	"github.com/JakeFAU/sheets-relay/internal/clock/system"
	"github.com/JakeFAU/sheets-relay/internal/config"
	"github.com/JakeFAU/sheets-relay/internal/hash/sha256"
	"github.com/JakeFAU/sheets-relay/internal/id/uuid"
	pspublisher "github.com/JakeFAU/sheets-relay/internal/publisher/pubsub"
	"github.com/JakeFAU/sheets-relay/internal/relay"
	"github.com/JakeFAU/sheets-relay/internal/sheets"
	"github.com/JakeFAU/sheets-relay/internal/storage"
	"github.com/JakeFAU/sheets-relay/internal/storage/gcs"
	"github.com/JakeFAU/sheets-relay/internal/storage/local"
	"github.com/JakeFAU/sheets-relay/internal/storage/memory"
	"github.com/JakeFAU/sheets-relay/internal/storage/postgres"
)

// App holds the shared services built from one Config.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	Fetcher   *sheets.Fetcher
	Store     storage.BlobStore
	Publisher relay.Publisher
	Audit     audit.Store
	Clock     *system.Clock
	IDs       *uuid.Generator
	Hasher    *sha256.Hasher

	closers []func()
}

// Option adjusts how cloud clients are built.
type Option func(*options)

type options struct {
	clientOpts []option.ClientOption
}

// WithClientOptions passes options to the GCS and Pub/Sub clients (endpoints, credentials).
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

// New builds every service cfg asks for. Optional services (Pub/Sub, Postgres) are left
// nil or no-op when unconfigured. Partially built services are closed on error.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	a := &App{
		Config: cfg,
		Logger: logger,
		Audit:  audit.Nop{},
		Clock:  system.New(),
		IDs:    uuid.New(),
		Hasher: sha256.New(),
	}
	built := false
	defer func() {
		if !built {
			a.Close()
		}
	}()

	var err error
	a.Fetcher, err = sheets.NewFetcher(sheets.Config{
		SpreadsheetID: cfg.Spreadsheet.ID,
		BaseURL:       cfg.Spreadsheet.ExportBaseURL,
		UserAgent:     cfg.HTTP.UserAgent,
		Timeout:       cfg.FetchTimeout(),
		MaxBodyBytes:  cfg.HTTP.MaxBodyBytes,
	}, logger.Named("fetcher"))
	if err != nil {
		return nil, fmt.Errorf("init fetcher: %w", err)
	}

	if a.Store, err = a.newBlobStore(ctx, o); err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	if cfg.PubSub.TopicName != "" {
		client, err := gpubsub.NewClient(ctx, cfg.PubSub.ProjectID, o.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("init pubsub: %w", err)
		}
		pub := pspublisher.New(client.Topic(cfg.PubSub.TopicName))
		a.Publisher = pub
		a.closers = append(a.closers, func() {
			pub.Stop()
			if err := client.Close(); err != nil {
				logger.Warn("error closing pubsub client", zap.Error(err))
			}
		})
		logger.Info("publishing run events", zap.String("topic", cfg.PubSub.TopicName))
	}

	if cfg.DB.DSN != "" {
		store, err := postgres.NewDeliveryStore(ctx, postgres.DeliveryStoreConfig{
			DSN:      cfg.DB.DSN,
			Table:    cfg.DB.Table,
			MaxConns: cfg.DB.MaxConns,
		})
		if err != nil {
			return nil, fmt.Errorf("init delivery store: %w", err)
		}
		a.Audit = store
		a.closers = append(a.closers, store.Close)
		logger.Info("recording deliveries", zap.String("table", cfg.DB.Table))
	}

	built = true
	return a, nil
}

func (a *App) newBlobStore(ctx context.Context, o options) (storage.BlobStore, error) {
	cfg := a.Config.Storage
	switch cfg.Provider {
	case "", "local":
		a.Logger.Info("using local archive", zap.String("dir", cfg.LocalDir))
		return local.New(local.Config{BaseDir: cfg.LocalDir})
	case "memory":
		a.Logger.Info("using in-memory archive; files do not survive the process")
		return memory.NewBlobStore(), nil
	case "gcs":
		client, err := gstorage.NewClient(ctx, o.clientOpts...)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				a.Logger.Warn("error closing gcs client", zap.Error(err))
			}
		})
		a.Logger.Info("using gcs archive", zap.String("bucket", cfg.GCSBucket), zap.String("prefix", cfg.Prefix))
		return gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket, Prefix: cfg.Prefix})
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
}

// Close shuts down services in reverse order of construction.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

package sheets

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const (
	defaultTimeout    = 30 * time.Second
	contentTypeKey    = "content_type"
	opaqueContentType = "application/octet-stream"
)

// Config controls collector behavior.
type Config struct {
	SpreadsheetID string
	BaseURL       string
	UserAgent     string
	Timeout       time.Duration
	// MaxBodyBytes caps the export size; larger exports fail with *TooLargeError. 0 means unlimited.
	MaxBodyBytes int
}

// Fetcher downloads tab exports using a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// NewFetcher builds a Fetcher. The same export URL is fetched on every run, so revisits are allowed.
func NewFetcher(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("spreadsheet id is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// One byte past the cap lets Fetch tell a full-size export from a truncated one.
	readLimit := 0
	if cfg.MaxBodyBytes > 0 {
		readLimit = cfg.MaxBodyBytes + 1
	}
	c := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.MaxBodySize(readLimit),
	)
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	// Non-2xx answers still reach OnResponse so the status can be classified here.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}, nil
}

// URL returns the export URL for ref.
func (f *Fetcher) URL(ref Ref) string {
	return ExportURL(f.cfg.BaseURL, f.cfg.SpreadsheetID, ref.GID)
}

// Fetch performs one GET against the export endpoint and returns the body untouched.
func (f *Fetcher) Fetch(ctx context.Context, ref Ref) (Export, error) {
	var (
		result   Export
		fetchErr error
	)
	target := f.URL(ref)
	start := time.Now()

	collector := f.baseCollector.Clone()
	collector.Context = ctx
	collector.OnResponseHeaders(func(r *colly.Response) {
		// colly transcodes any declared non-UTF-8 charset; hide it so the bytes stay as served.
		r.Ctx.Put(contentTypeKey, r.Headers.Get("Content-Type"))
		r.Headers.Set("Content-Type", opaqueContentType)
	})
	collector.OnResponse(func(r *colly.Response) {
		if r.StatusCode < http.StatusOK || r.StatusCode >= http.StatusMultipleChoices {
			fetchErr = &StatusError{URL: target, StatusCode: r.StatusCode}
			return
		}
		if limit := f.cfg.MaxBodyBytes; limit > 0 && len(r.Body) > limit {
			fetchErr = &TooLargeError{URL: target, Limit: limit}
			return
		}
		result = Export{
			Ref:         ref,
			URL:         target,
			StatusCode:  r.StatusCode,
			ContentType: r.Ctx.Get(contentTypeKey),
			Body:        append([]byte(nil), r.Body...),
			FetchedAt:   start.UTC(),
			Duration:    time.Since(start),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 && fetchErr == nil {
			fetchErr = &StatusError{URL: target, StatusCode: r.StatusCode}
			return
		}
		fetchErr = err
	})

	if err := f.runCollector(ctx, collector, target, &fetchErr); err != nil {
		f.logger.Debug("export fetch failed", zap.String("sheet", ref.Name), zap.String("url", target), zap.Error(err))
		return Export{}, err
	}
	f.logger.Debug("export fetched",
		zap.String("sheet", ref.Name),
		zap.Int("bytes", result.Size()),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("export fetch canceled: %w", ctx.Err())
	case err := <-done:
		if *fetchErr != nil {
			return fmt.Errorf("fetch %s: %w", url, *fetchErr)
		}
		if err != nil {
			return fmt.Errorf("fetch %s: %w", url, err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}

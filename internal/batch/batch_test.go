package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sheets-relay/internal/clock/manual"
	"github.com/JakeFAU/sheets-relay/internal/config"
	"github.com/JakeFAU/sheets-relay/internal/delivery"
	"github.com/JakeFAU/sheets-relay/internal/hash/sha256"
	"github.com/JakeFAU/sheets-relay/internal/publisher/memory"
	"github.com/JakeFAU/sheets-relay/internal/sheets"
	"github.com/JakeFAU/sheets-relay/internal/storage"
	memstore "github.com/JakeFAU/sheets-relay/internal/storage/memory"
)

var (
	testDate = time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	testRefs = []sheets.Ref{
		{Name: "Список_карт_номиналов", GID: "1674053030"},
		{Name: "Список_номеров_СБП", GID: "1789244637"},
	}
)

type fakeFetcher struct {
	bodies map[string][]byte
	errs   map[string]error
	calls  []string
}

func (f *fakeFetcher) Fetch(_ context.Context, ref sheets.Ref) (sheets.Export, error) {
	f.calls = append(f.calls, ref.GID)
	if err := f.errs[ref.GID]; err != nil {
		return sheets.Export{}, err
	}
	return sheets.Export{Ref: ref, StatusCode: 200, Body: f.bodies[ref.GID], FetchedAt: testDate}, nil
}

type recordingDeliverer struct {
	mu   sync.Mutex
	docs []delivery.Document
	fail map[string]error
}

func (d *recordingDeliverer) SendDocument(_ context.Context, doc delivery.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.fail[doc.Filename]; err != nil {
		return err
	}
	d.docs = append(d.docs, doc)
	return nil
}

type seqIDs struct{ n int }

func (s *seqIDs) NewID() (string, error) {
	s.n++
	return fmt.Sprintf("run-%d", s.n), nil
}

func newDownloader(t *testing.T, fetcher *fakeFetcher, store storage.BlobStore, pub *memory.Publisher) *Downloader {
	t.Helper()
	d, err := NewDownloader(DownloaderDeps{
		Fetcher:   fetcher,
		Store:     store,
		Hasher:    sha256.New(),
		Clock:     manual.New(testDate),
		IDs:       &seqIDs{},
		Publisher: pub,
	}, testRefs)
	require.NoError(t, err)
	return d
}

func newSender(t *testing.T, deliverer *recordingDeliverer, store storage.BlobStore) *Sender {
	t.Helper()
	s, err := NewSender(SenderDeps{
		Deliverer: deliverer,
		Store:     store,
		Hasher:    sha256.New(),
		Clock:     manual.New(testDate),
		IDs:       &seqIDs{},
	}, testRefs)
	require.NoError(t, err)
	return s
}

func TestNames(t *testing.T) {
	t.Parallel()

	require.Equal(t, "20240102", Stamp(testDate))
	require.Equal(t, "Список_номеров_СБП_20240102.csv", FileName(testRefs[1], testDate))
	require.Equal(t, "manifest_20240102.json", ManifestName(testDate))
}

func TestDownloadWritesFilesAndManifest(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"1674053030": []byte("card,nominal\n1,100\n"),
		"1789244637": []byte("\xef\xbb\xbfphone\r\n"),
	}}
	store := memstore.NewBlobStore()
	pub := memory.New()

	manifest, err := newDownloader(t, fetcher, store, pub).Run(context.Background(), testDate)
	require.NoError(t, err)

	hasher := sha256.New()
	want := Manifest{
		RunID:   "run-1",
		Date:    "20240102",
		Created: testDate,
	}
	for _, ref := range testRefs {
		body := fetcher.bodies[ref.GID]
		digest, _ := hasher.Hash(body)
		want.Entries = append(want.Entries, Entry{
			Sheet:     ref.Name,
			GID:       ref.GID,
			Filename:  FileName(ref, testDate),
			URI:       "memory://" + FileName(ref, testDate),
			Bytes:     len(body),
			SHA256:    digest,
			FetchedAt: testDate,
		})
	}
	if diff := cmp.Diff(want, manifest); diff != "" {
		t.Fatalf("manifest mismatch (-want +got):\n%s", diff)
	}

	stored, err := store.GetObject(context.Background(), ManifestName(testDate))
	require.NoError(t, err)
	decoded, err := decodeManifest(stored)
	require.NoError(t, err)
	if diff := cmp.Diff(manifest, decoded); diff != "" {
		t.Fatalf("stored manifest mismatch (-want +got):\n%s", diff)
	}

	for _, ref := range testRefs {
		got, err := store.GetObject(context.Background(), FileName(ref, testDate))
		require.NoError(t, err)
		require.Equal(t, fetcher.bodies[ref.GID], got)
	}
	require.Len(t, pub.Messages(), 1)
	require.Equal(t, EventDownload, pub.Messages()[0].Kind)
}

func TestDownloadAbortsOnFirstFailure(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{
		bodies: map[string][]byte{"1789244637": []byte("x")},
		errs:   map[string]error{"1674053030": &sheets.StatusError{URL: "u", StatusCode: 500}},
	}
	store := memstore.NewBlobStore()
	pub := memory.New()

	_, err := newDownloader(t, fetcher, store, pub).Run(context.Background(), testDate)
	var statusErr *sheets.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, []string{"1674053030"}, fetcher.calls, "no further sheets after a failure")
	require.Empty(t, store.Paths(), "no files and no manifest after an aborted run")
	require.Empty(t, pub.Messages())
}

func TestDownloadStoreFailure(t *testing.T) {
	t.Parallel()

	store := &storage.MockBlobStore{}
	store.On("PutObject", mock.Anything, "Список_карт_номиналов_20240102.csv", storage.ContentTypeCSV, []byte("a")).
		Return("", errors.New("disk full")).Once()

	fetcher := &fakeFetcher{bodies: map[string][]byte{"1674053030": []byte("a")}}
	_, err := newDownloader(t, fetcher, store, nil).Run(context.Background(), testDate)
	require.ErrorContains(t, err, "disk full")
	store.AssertExpectations(t)
}

func TestSendUsesManifest(t *testing.T) {
	t.Parallel()

	fetcher := &fakeFetcher{bodies: map[string][]byte{
		"1674053030": []byte("a\n"),
		"1789244637": []byte("b\n"),
	}}
	store := memstore.NewBlobStore()
	_, err := newDownloader(t, fetcher, store, nil).Run(context.Background(), testDate)
	require.NoError(t, err)

	deliverer := &recordingDeliverer{}
	report, err := newSender(t, deliverer, store).Run(context.Background(), 42, testDate)
	require.NoError(t, err)

	want := SendReport{
		RunID:        "run-1",
		Date:         "20240102",
		FromManifest: true,
		Sent:         2,
		Files: []FileResult{
			{Filename: "Список_карт_номиналов_20240102.csv", Status: FileSent},
			{Filename: "Список_номеров_СБП_20240102.csv", Status: FileSent},
		},
	}
	if diff := cmp.Diff(want, report); diff != "" {
		t.Fatalf("report mismatch (-want +got):\n%s", diff)
	}
	require.Len(t, deliverer.docs, 2)
	require.Equal(t, "📊 Список_карт_номиналов_20240102.csv", deliverer.docs[0].Caption)
	require.Equal(t, []byte("a\n"), deliverer.docs[0].Body)
	require.Equal(t, int64(42), deliverer.docs[1].ChatID)
}

func TestSendWithoutManifestSkipsMissingFiles(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	_, err := store.PutObject(context.Background(), "Список_номеров_СБП_20240102.csv", storage.ContentTypeCSV, bytesReader("sbp"))
	require.NoError(t, err)

	deliverer := &recordingDeliverer{}
	report, err := newSender(t, deliverer, store).Run(context.Background(), 42, testDate)
	require.NoError(t, err)
	require.False(t, report.FromManifest)
	require.Equal(t, 1, report.Sent)
	require.Equal(t, 1, report.Skipped)
	require.Len(t, deliverer.docs, 1)
	require.Equal(t, "Список_номеров_СБП_20240102.csv", deliverer.docs[0].Filename)
}

func TestSendContinuesAfterUploadFailure(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	for _, ref := range testRefs {
		_, err := store.PutObject(context.Background(), FileName(ref, testDate), "", bytesReader(ref.GID))
		require.NoError(t, err)
	}
	deliverer := &recordingDeliverer{fail: map[string]error{
		"Список_карт_номиналов_20240102.csv": errors.New("Request Entity Too Large"),
	}}
	report, err := newSender(t, deliverer, store).Run(context.Background(), 42, testDate)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Equal(t, 1, report.Sent)

	failed := report.Files[0]
	if diff := cmp.Diff(FileResult{Filename: "Список_карт_номиналов_20240102.csv", Status: FileFailed}, failed,
		cmpopts.IgnoreFields(FileResult{}, "Error")); diff != "" {
		t.Fatalf("unexpected failed entry (-want +got):\n%s", diff)
	}
	require.Contains(t, failed.Error, "Too Large")
}

func TestSendChecksumMismatchFails(t *testing.T) {
	t.Parallel()

	store := memstore.NewBlobStore()
	m := Manifest{RunID: "r", Date: "20240102", Entries: []Entry{{Sheet: "a", Filename: "a_20240102.csv", SHA256: "deadbeef"}}}
	data, err := encodeManifest(m)
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), ManifestName(testDate), storage.ContentTypeJSON, bytesReaderBytes(data))
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "a_20240102.csv", "", bytesReader("tampered"))
	require.NoError(t, err)

	deliverer := &recordingDeliverer{}
	report, err := newSender(t, deliverer, store).Run(context.Background(), 42, testDate)
	require.NoError(t, err)
	require.Equal(t, 1, report.Failed)
	require.Empty(t, deliverer.docs)
}

func TestSendNoFiles(t *testing.T) {
	t.Parallel()

	report, err := newSender(t, &recordingDeliverer{}, memstore.NewBlobStore()).Run(context.Background(), 42, testDate)
	require.ErrorIs(t, err, ErrNoFiles)
	require.Equal(t, 2, report.Skipped)
}

func TestSendRequiresChatID(t *testing.T) {
	t.Parallel()

	_, err := newSender(t, &recordingDeliverer{}, memstore.NewBlobStore()).Run(context.Background(), 0, testDate)
	require.ErrorIs(t, err, config.ErrMissingChatID)
}

func TestSendManifestReadError(t *testing.T) {
	t.Parallel()

	store := &storage.MockBlobStore{}
	store.On("GetObject", mock.Anything, "manifest_20240102.json").Return(nil, errors.New("permission denied"))

	_, err := newSender(t, &recordingDeliverer{}, store).Run(context.Background(), 42, testDate)
	require.ErrorContains(t, err, "permission denied")
	store.AssertExpectations(t)
}

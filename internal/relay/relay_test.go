package relay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sheets-relay/internal/audit"
	"github.com/JakeFAU/sheets-relay/internal/clock/manual"
	"github.com/JakeFAU/sheets-relay/internal/delivery"
	"github.com/JakeFAU/sheets-relay/internal/hash/sha256"
	"github.com/JakeFAU/sheets-relay/internal/publisher/memory"
	"github.com/JakeFAU/sheets-relay/internal/sheets"
)

var testRefs = []sheets.Ref{
	{Name: "Список_карт_номиналов", GID: "1674053030"},
	{Name: "Список_номеров_СБП", GID: "1789244637"},
}

type recordingDeliverer struct {
	mu   sync.Mutex
	docs []delivery.Document
	err  error
}

func (d *recordingDeliverer) SendDocument(_ context.Context, doc delivery.Document) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.docs = append(d.docs, doc)
	return nil
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (s *seqIDs) NewID() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("id-%d", s.n), nil
}

type mockAudit struct {
	mock.Mock
}

func (m *mockAudit) RecordDelivery(ctx context.Context, rec audit.Record) error {
	args := m.Called(ctx, rec)
	return args.Error(0)
}

// exportServer serves a fixed body per gid and counts hits by request URI.
type exportServer struct {
	mu     sync.Mutex
	bodies map[string][]byte
	status map[string]int
	hits   []string
}

func (s *exportServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	gid := r.URL.Query().Get("gid")
	s.mu.Lock()
	s.hits = append(s.hits, r.URL.RequestURI())
	code, body := s.status[gid], s.bodies[gid]
	s.mu.Unlock()
	if code != 0 {
		w.WriteHeader(code)
		return
	}
	_, _ = w.Write(body)
}

func newExportFetcher(t *testing.T, srv *exportServer) *sheets.Fetcher {
	t.Helper()
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	f, err := sheets.NewFetcher(sheets.Config{SpreadsheetID: "doc", BaseURL: ts.URL, Timeout: time.Second}, nil)
	require.NoError(t, err)
	return f
}

func newTestRelay(t *testing.T, fetcher Fetcher, deliverer Deliverer, store audit.Store, pub Publisher) *Relay {
	t.Helper()
	r, err := New(Deps{
		Fetcher:   fetcher,
		Deliverer: deliverer,
		Publisher: pub,
		Audit:     store,
		Hasher:    sha256.New(),
		Clock:     manual.New(time.Date(2024, 1, 2, 3, 4, 0, 0, time.UTC)),
		IDs:       &seqIDs{},
	}, testRefs)
	require.NoError(t, err)
	return r
}

func TestRunFetchesAndDeliversEverySheet(t *testing.T) {
	t.Parallel()

	srv := &exportServer{bodies: map[string][]byte{
		"1674053030": []byte("\xef\xbb\xbfcard;nominal\r\n1;100\r\n"),
		"1789244637": []byte("phone\n+7900\n"),
	}}
	deliverer := &recordingDeliverer{}
	pub := memory.New()
	r := newTestRelay(t, newExportFetcher(t, srv), deliverer, nil, pub)

	report, err := r.Run(context.Background(), Request{ChatID: 42, Source: "bot", Stamp: "2024-01-02_03-04"})
	require.NoError(t, err)

	assert.Equal(t, []string{
		"/doc/export?format=csv&gid=1674053030",
		"/doc/export?format=csv&gid=1789244637",
	}, srv.hits)
	require.Len(t, deliverer.docs, 2)
	assert.Equal(t, 2, report.Sent)
	assert.Zero(t, report.Failed)
	assert.Equal(t, "id-1", report.RunID)

	for i, doc := range deliverer.docs {
		ref := testRefs[i]
		assert.Equal(t, int64(42), doc.ChatID)
		assert.Equal(t, ref.Name+"_2024-01-02_03-04.csv", doc.Filename)
		assert.Equal(t, "📊 "+ref.Name, doc.Caption)
		assert.Equal(t, srv.bodies[ref.GID], doc.Body, "delivered bytes must equal exported bytes")
	}

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, EventRun, msgs[0].Kind)
	event, ok := msgs[0].Payload.(RunEvent)
	require.True(t, ok)
	assert.Equal(t, 2, event.Sent)
	assert.Equal(t, []string{testRefs[0].Name, testRefs[1].Name}, event.Sheets)
}

func TestRunContinuesPastFailedSheet(t *testing.T) {
	t.Parallel()

	srv := &exportServer{
		bodies: map[string][]byte{"1789244637": []byte("ok\n")},
		status: map[string]int{"1674053030": http.StatusForbidden},
	}
	deliverer := &recordingDeliverer{}
	r := newTestRelay(t, newExportFetcher(t, srv), deliverer, nil, nil)

	var seen []Outcome
	report, err := r.Run(context.Background(), Request{
		ChatID: 7,
		Stamp:  "s",
		OnOutcome: func(_ context.Context, out Outcome) {
			seen = append(seen, out)
		},
	})
	require.NoError(t, err)

	assert.Len(t, srv.hits, 2, "the second sheet must still be fetched")
	require.Len(t, deliverer.docs, 1)
	assert.Equal(t, "Список_номеров_СБП_s.csv", deliverer.docs[0].Filename)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, report.Failed)

	require.Len(t, seen, 2)
	assert.False(t, seen[0].OK())
	var statusErr *sheets.StatusError
	require.ErrorAs(t, seen[0].Err, &statusErr)
	assert.Equal(t, http.StatusForbidden, statusErr.StatusCode)
	assert.True(t, seen[1].OK())
}

func TestRunRecordsAudit(t *testing.T) {
	t.Parallel()

	srv := &exportServer{bodies: map[string][]byte{"1674053030": []byte("a"), "1789244637": []byte("b")}}
	deliverer := &recordingDeliverer{err: errors.New("chat not found")}
	store := &mockAudit{}
	store.On("RecordDelivery", mock.Anything, mock.MatchedBy(func(rec audit.Record) bool {
		return rec.RunID == "id-1" && rec.Status == audit.StatusFailed && rec.Error == "chat not found" && rec.Bytes == 1
	})).Return(nil).Twice()

	r := newTestRelay(t, newExportFetcher(t, srv), deliverer, store, nil)
	report, err := r.Run(context.Background(), Request{ChatID: 1, Source: "bot", Stamp: "s"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Failed)
	store.AssertExpectations(t)
}

func TestRunStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	srv := &exportServer{bodies: map[string][]byte{}}
	r := newTestRelay(t, newExportFetcher(t, srv), &recordingDeliverer{}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.Run(ctx, Request{ChatID: 1})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, srv.hits)
}

func TestNewValidatesDeps(t *testing.T) {
	t.Parallel()

	_, err := New(Deps{}, testRefs)
	require.Error(t, err)

	_, err = New(Deps{
		Fetcher:   &sheets.Fetcher{},
		Deliverer: &recordingDeliverer{},
		Hasher:    sha256.New(),
		Clock:     manual.New(time.Time{}),
		IDs:       &seqIDs{},
	}, nil)
	require.Error(t, err)
}

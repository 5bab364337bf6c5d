package api

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func serve(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestLivenessAnswersAnyPath(t *testing.T) {
	t.Parallel()

	h := NewServer(Config{}, zap.NewNop()).Handler()
	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/"},
		{http.MethodGet, "/healthz"},
		{http.MethodGet, "/some/deep/path"},
		{http.MethodPost, "/webhook"},
		{http.MethodHead, "/"},
	} {
		rec := serve(t, h, tc.method, tc.path)
		require.Equal(t, http.StatusOK, rec.Code, "%s %s", tc.method, tc.path)
		if tc.method != http.MethodHead {
			require.Equal(t, "OK", rec.Body.String())
		}
		require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	}
}

func TestStrictPaths(t *testing.T) {
	t.Parallel()

	h := NewServer(Config{StrictPaths: true}, zap.NewNop()).Handler()
	require.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/").Code)
	require.Equal(t, http.StatusOK, serve(t, h, http.MethodGet, "/healthz").Code)
	require.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/other").Code)
	require.Equal(t, http.StatusNotFound, serve(t, h, http.MethodGet, "/metrics").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()

	h := NewServer(Config{MetricsEnabled: true, StrictPaths: true}, zap.NewNop()).Handler()
	serve(t, h, http.MethodGet, "/")
	rec := serve(t, h, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")
}

func TestRecoverMiddleware(t *testing.T) {
	t.Parallel()

	h := recoverMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := serve(t, h, http.MethodGet, "/")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListenAndServeShutsDownOnCancel(t *testing.T) {
	t.Parallel()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	ctx, cancel := context.WithCancel(context.Background())
	srv := NewServer(Config{}, zap.NewNop())
	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, addr) }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		resp, err = http.Get("http://" + addr + "/anything")
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	require.Equal(t, "OK", strings.TrimSpace(string(body)))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestAddr(t *testing.T) {
	t.Parallel()
	require.Equal(t, ":8080", Addr(8080))
}

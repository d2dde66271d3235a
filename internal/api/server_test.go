package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
	"github.com/JakeFAU/newsletter-crawler/internal/extract"
)

type stubExtractor struct {
	got     crawler.FetchResponse
	content crawler.Content
	err     error
	panics  bool
}

func (s *stubExtractor) Extract(resp crawler.FetchResponse) (crawler.Content, error) {
	if s.panics {
		panic("extractor exploded")
	}
	s.got = resp
	return s.content, s.err
}

func post(t *testing.T, h http.Handler, target, contentType, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHTMLToFulltextReturnsText(t *testing.T) {
	t.Parallel()

	stub := &stubExtractor{content: crawler.Content{Title: "T", Text: "plain text"}}
	server := NewServer(stub, Options{}, zap.NewNop())

	rec := post(t, server.Handler(), "/html_to_fulltext?url=https://a.example.com/story", "text/html", "<html>doc</html>")

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "plain text", rec.Body.String())
	require.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	require.Equal(t, "https://a.example.com/story", stub.got.FinalURL())
	require.Equal(t, "text/html", stub.got.ContentType())
	require.Equal(t, "<html>doc</html>", string(stub.got.Body))
}

func TestHTMLToFulltextWithReadability(t *testing.T) {
	t.Parallel()

	server := NewServer(extract.New(zap.NewNop()), Options{}, zap.NewNop())
	doc := `<html><head><title>Rates hold</title></head><body><article>
<h1>Rates hold</h1>
<p>The central bank left its policy rate unchanged on Tuesday, citing a cooling labor market and easing inflation.</p>
<p>Officials signaled that cuts could come later in the year if price pressures keep fading across services.</p>
</article></body></html>`

	rec := post(t, server.Handler(), "/html_to_fulltext?url=https://news.example.com/rates", "text/html; charset=utf-8", doc)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "central bank left its policy rate unchanged")
	require.NotContains(t, rec.Body.String(), "<p>")
}

func TestHTMLToFulltextValidation(t *testing.T) {
	t.Parallel()

	server := NewServer(&stubExtractor{}, Options{MaxBodyBytes: 8}, zap.NewNop())

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"missing url", "/html_to_fulltext", "<p>x</p>", http.StatusBadRequest},
		{"relative url", "/html_to_fulltext?url=/story", "<p>x</p>", http.StatusBadRequest},
		{"too large", "/html_to_fulltext?url=https://a.example.com", "<html>too big</html>", http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := post(t, server.Handler(), tt.target, "text/html", tt.body)
			require.Equal(t, tt.want, rec.Code)
			require.Contains(t, rec.Body.String(), `"error"`)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/html_to_fulltext?url=https://a.example.com", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHTMLToFulltextExtractionErrors(t *testing.T) {
	t.Parallel()

	rec := post(t, NewServer(&stubExtractor{err: crawler.ErrNoContent}, Options{}, zap.NewNop()).Handler(),
		"/html_to_fulltext?url=https://a.example.com", "text/html", "")
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = post(t, NewServer(&stubExtractor{err: errors.New("boom")}, Options{}, zap.NewNop()).Handler(),
		"/html_to_fulltext?url=https://a.example.com", "text/html", "<p>x</p>")
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	rec = post(t, NewServer(&stubExtractor{panics: true}, Options{}, zap.NewNop()).Handler(),
		"/html_to_fulltext?url=https://a.example.com", "text/html", "<p>x</p>")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), "internal server error")
}

func TestProbesAndMetrics(t *testing.T) {
	t.Parallel()

	handler := NewServer(&stubExtractor{}, Options{}, zap.NewNop()).Handler()
	for path, want := range map[string]string{"/healthz": "ok", "/readyz": "ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, path)
		require.Contains(t, rec.Body.String(), want)
	}

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "http_requests_total")

	rec = httptest.NewRecorder()
	NewServer(nil, Options{}, zap.NewNop()).Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	rec := httptest.NewRecorder()
	NewServer(&stubExtractor{}, Options{}, zap.NewNop()).Handler().ServeHTTP(rec, req)
	require.Equal(t, "abc-123", rec.Header().Get("X-Request-ID"))
}

func TestServeStopsOnCancel(t *testing.T) {
	t.Parallel()

	server := NewServer(&stubExtractor{}, Options{Port: 0}, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- server.Serve(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServeOverRealListener(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(NewServer(&stubExtractor{content: crawler.Content{Text: "hello"}}, Options{}, zap.NewNop()).Handler())
	t.Cleanup(ts.Close)

	resp, err := http.Post(ts.URL+"/html_to_fulltext?url=https://a.example.com", "text/html", strings.NewReader("<p>hi</p>"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, "hello", string(body))
}

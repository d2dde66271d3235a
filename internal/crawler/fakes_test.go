package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

// memStore is an in-memory Store keyed the same way the SQL stores are.
type memStore struct {
	mu          sync.Mutex
	archives    []Archive
	newsletters []Newsletter
	articles    []Article
	failFind    error
}

var _ Store = (*memStore)(nil)

func (s *memStore) EnsureSchema(context.Context) error { return nil }
func (s *memStore) Close() error                       { return nil }

func (s *memStore) FindArchive(_ context.Context, url string) (Archive, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.archives {
		if a.DiscoveryURL == url {
			return a, true, nil
		}
	}
	return Archive{}, false, nil
}

func (s *memStore) CreateArchive(_ context.Context, a Archive) (Archive, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.archives {
		if existing.DiscoveryURL == a.DiscoveryURL {
			return existing, OutcomeFound, nil
		}
	}
	a.ID = int64(len(s.archives) + 1)
	s.archives = append(s.archives, a)
	return a, OutcomeCreated, nil
}

func (s *memStore) PopulateArchive(_ context.Context, id int64, doc Document, at time.Time) (Archive, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.archives {
		a := &s.archives[i]
		if a.ID != id {
			continue
		}
		if !a.Populated() {
			if a.URL == "" {
				a.URL = doc.URL
			}
			a.FullHTML, a.Status, a.ModifiedAt = doc.HTML, doc.Status, at
		}
		return *a, nil
	}
	return Archive{}, ErrNotPopulated
}

func (s *memStore) FindNewsletter(_ context.Context, url string) (Newsletter, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind != nil {
		return Newsletter{}, false, s.failFind
	}
	for _, n := range s.newsletters {
		if n.DiscoveryURL == url || n.URL == url {
			return n, true, nil
		}
	}
	return Newsletter{}, false, nil
}

func (s *memStore) CreateNewsletter(_ context.Context, n Newsletter) (Newsletter, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.newsletters {
		if existing.DiscoveryURL == n.DiscoveryURL {
			return existing, OutcomeFound, nil
		}
	}
	n.ID = int64(len(s.newsletters) + 1)
	s.newsletters = append(s.newsletters, n)
	return n, OutcomeCreated, nil
}

func (s *memStore) PopulateNewsletter(_ context.Context, id int64, doc Document, at time.Time) (Newsletter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.newsletters {
		n := &s.newsletters[i]
		if n.ID != id {
			continue
		}
		if !n.Populated() {
			if n.URL == "" {
				n.URL = doc.URL
			}
			n.FullHTML, n.Status, n.ModifiedAt = doc.HTML, doc.Status, at
		}
		return *n, nil
	}
	return Newsletter{}, ErrNotPopulated
}

func (s *memStore) FindArticle(_ context.Context, url string) (Article, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.articles {
		if a.DiscoveryURL == url || a.URL == url {
			return a, true, nil
		}
	}
	return Article{}, false, nil
}

func (s *memStore) CreateArticle(_ context.Context, a Article) (Article, Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.articles {
		if existing.DiscoveryURL == a.DiscoveryURL {
			return existing, OutcomeFound, nil
		}
	}
	a.ID = int64(len(s.articles) + 1)
	s.articles = append(s.articles, a)
	return a, OutcomeCreated, nil
}

func (s *memStore) articleCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.articles)
}

// page is a canned response. A zero status means the host is unreachable.
type page struct {
	status      int
	body        string
	contentType string
	finalURL    string
}

// siteFetcher serves pages from a map and updates counters like the real fetcher.
type siteFetcher struct {
	mu       sync.Mutex
	pages    map[string]page
	counters *Counters
	calls    []string
	// failures returns a non-transport error for a URL this many times.
	failures map[string]int
}

func newSiteFetcher(counters *Counters, pages map[string]page) *siteFetcher {
	return &siteFetcher{pages: pages, counters: counters, failures: map[string]int{}}
}

func (f *siteFetcher) Fetch(ctx context.Context, url string) (FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return FetchResponse{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, url)
	if n := f.failures[url]; n > 0 {
		f.failures[url] = n - 1
		return FetchResponse{}, errors.New("boom")
	}
	f.counters.Attempt()
	p, ok := f.pages[url]
	if !ok || p.status == 0 {
		return FetchResponse{}, fmt.Errorf("fetch %s: %w", url, ErrEmptyResponse)
	}
	f.counters.Succeed()
	contentType := p.contentType
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}
	return FetchResponse{
		RequestedURL: url,
		URL:          firstNonEmpty(p.finalURL, url),
		StatusCode:   p.status,
		Headers:      http.Header{"Content-Type": []string{contentType}},
		Body:         []byte(p.body),
	}, nil
}

func (f *siteFetcher) fetched(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == url {
			n++
		}
	}
	return n
}

// textExtractor treats the decoded body as the article text.
type textExtractor struct{}

func (textExtractor) Extract(resp FetchResponse) (Content, error) {
	body := DecodeBody(resp)
	if body == "" {
		return Content{}, ErrNoContent
	}
	return Content{Title: "title of " + resp.FinalURL(), Text: body, HTML: body}, nil
}

type substringMatcher []string

func (m substringMatcher) Blocked(url string) bool {
	for _, s := range m {
		if s != "" && strings.Contains(url, s) {
			return true
		}
	}
	return false
}

type recordingPrompter struct {
	mu      sync.Mutex
	pauses  []string
	confirm bool
}

func (p *recordingPrompter) Confirm(context.Context, string) (bool, error) { return p.confirm, nil }

func (p *recordingPrompter) Pause(_ context.Context, message string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pauses = append(p.pauses, message)
	return nil
}

package crawler

import (
	"net/http"
	"strings"
	"time"
)

// Outcome tags the result of an ensure call.
type Outcome int

// Outcome values returned by the ensure layer.
const (
	// OutcomeSkipped means nothing was persisted (transport or extraction failure).
	OutcomeSkipped Outcome = iota
	// OutcomeFound means an existing row matched the lookup.
	OutcomeFound
	// OutcomeCreated means a new row was inserted by this call.
	OutcomeCreated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeFound:
		return "found"
	case OutcomeCreated:
		return "created"
	default:
		return "skipped"
	}
}

// Persisted reports whether a row backs the result.
func (o Outcome) Persisted() bool {
	return o == OutcomeFound || o == OutcomeCreated
}

// FetchResponse captures the body and metadata of a completed GET.
// 4xx and 5xx responses are still responses.
type FetchResponse struct {
	RequestedURL string
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
}

// ContentType returns the declared content type, lowercased.
func (r FetchResponse) ContentType() string {
	if r.Headers == nil {
		return ""
	}
	return strings.ToLower(r.Headers.Get("Content-Type"))
}

// FinalURL returns the post-redirect address, falling back to the requested one.
func (r FetchResponse) FinalURL() string {
	if r.URL != "" {
		return r.URL
	}
	return r.RequestedURL
}

// Document is the fetch-derived part of an archive or newsletter row.
type Document struct {
	URL    string
	HTML   string
	Status int
}

// Content is the extracted representation of an article.
type Content struct {
	Title string
	Text  string
	HTML  string
}

// Archive is a seed page listing newsletter issues.
type Archive struct {
	ID           int64
	DiscoveryURL string
	URL          string
	FullHTML     string
	Status       int
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// Populated reports whether the archive's document has been stored.
func (a Archive) Populated() bool { return a.Status != 0 }

// BaseURL is the address relative links on the archive page resolve against.
func (a Archive) BaseURL() string { return firstNonEmpty(a.URL, a.DiscoveryURL) }

// Newsletter is a single issue linked from an archive.
type Newsletter struct {
	ID           int64
	ArchiveID    int64
	DiscoveryURL string
	URL          string
	FullHTML     string
	Status       int
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// Populated reports whether the newsletter's document has been stored.
func (n Newsletter) Populated() bool { return n.Status != 0 }

// BaseURL is the address relative links in the issue resolve against.
func (n Newsletter) BaseURL() string { return firstNonEmpty(n.URL, n.DiscoveryURL) }

// Article is a linked page whose full text was extracted.
type Article struct {
	ID           int64
	NewsletterID int64
	DiscoveryURL string
	URL          string
	Title        string
	FullHTML     string
	FullText     string
	Status       int
	CreatedAt    time.Time
	ModifiedAt   time.Time
}

// RunSummary reports what a crawl did.
type RunSummary struct {
	ArchivesSeen    int
	NewslettersSeen int
	ArticlesSeen    int
	ArticlesCreated int
	Requests        CounterSnapshot
	Stopped         bool
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

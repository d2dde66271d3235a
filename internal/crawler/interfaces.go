package crawler

import (
	"context"
	"time"
)

// Fetcher performs a single GET and returns the response or a transport error
// wrapping ErrEmptyResponse.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (FetchResponse, error)
}

// Extractor turns a fetched article into text. ErrNoContent means do not persist.
type Extractor interface {
	Extract(resp FetchResponse) (Content, error)
}

// Matcher reports whether a URL is excluded by the blocklist.
type Matcher interface {
	Blocked(url string) bool
}

// Prompter asks the operator for input on the terminal.
type Prompter interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
	Pause(ctx context.Context, message string) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// Store persists the three entity tiers.
// Create methods return OutcomeFound when a concurrent writer inserted the
// same discovery URL first. Populate methods never overwrite a stored document.
type Store interface {
	EnsureSchema(ctx context.Context) error

	FindArchive(ctx context.Context, url string) (Archive, bool, error)
	CreateArchive(ctx context.Context, archive Archive) (Archive, Outcome, error)
	PopulateArchive(ctx context.Context, id int64, doc Document, at time.Time) (Archive, error)

	FindNewsletter(ctx context.Context, url string) (Newsletter, bool, error)
	CreateNewsletter(ctx context.Context, newsletter Newsletter) (Newsletter, Outcome, error)
	PopulateNewsletter(ctx context.Context, id int64, doc Document, at time.Time) (Newsletter, error)

	FindArticle(ctx context.Context, url string) (Article, bool, error)
	CreateArticle(ctx context.Context, article Article) (Article, Outcome, error)

	Close() error
}

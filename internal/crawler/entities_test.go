package crawler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newEntities(store *memStore, fetcher Fetcher) *Entities {
	return NewEntities(store, fetcher, textExtractor{}, fixedClock{t: testNow}, zap.NewNop())
}

func TestEnsureArchiveCreatesBareRowOnce(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memStore{}
	fetcher := newSiteFetcher(NewCounters(), nil)
	e := newEntities(store, fetcher)

	var outcomes []Outcome
	e.OnOutcome(func(tier string, o Outcome) {
		require.Equal(t, "archive", tier)
		outcomes = append(outcomes, o)
	})

	first, outcome, err := e.EnsureArchive(ctx, "https://news.example.com/archive")
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)
	require.False(t, first.Populated())
	require.True(t, testNow.Equal(first.CreatedAt))

	second, outcome, err := e.EnsureArchive(ctx, "https://news.example.com/archive")
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, outcome)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, []Outcome{OutcomeCreated, OutcomeFound}, outcomes)
	require.Empty(t, fetcher.calls)
}

func TestPopulateArchiveRecordsFinalURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memStore{}
	fetcher := newSiteFetcher(NewCounters(), map[string]page{
		"http://news.example.com": {status: 200, body: "<html>archive</html>", finalURL: "https://news.example.com/"},
	})
	e := newEntities(store, fetcher)

	archive, _, err := e.EnsureArchive(ctx, "http://news.example.com")
	require.NoError(t, err)
	populated, err := e.PopulateArchive(ctx, archive)
	require.NoError(t, err)
	require.Equal(t, "https://news.example.com/", populated.URL)
	require.Equal(t, "<html>archive</html>", populated.FullHTML)
	require.Equal(t, "https://news.example.com/", populated.BaseURL())

	_, err = e.PopulateArchive(ctx, populated)
	require.NoError(t, err)
	require.Equal(t, 1, fetcher.fetched("http://news.example.com"))
}

func TestEnsureNewsletterRedirectToKnownIssue(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memStore{}
	fetcher := newSiteFetcher(NewCounters(), map[string]page{
		"https://news.example.com/issues/1":     {status: 200, body: "issue"},
		"https://news.example.com/latest":       {status: 200, body: "issue", finalURL: "https://news.example.com/issues/1"},
		"https://news.example.com/issues/error": {status: 500, body: "oops"},
	})
	e := newEntities(store, fetcher)

	first, ok, err := e.EnsureNewsletter(ctx, "https://news.example.com/issues/1", Archive{ID: 7})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, int64(7), first.ArchiveID)

	viaRedirect, ok, err := e.EnsureNewsletter(ctx, "https://news.example.com/latest", Archive{ID: 7})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, first.ID, viaRedirect.ID)
	require.Len(t, store.newsletters, 1)

	// Error statuses are still documents.
	errored, ok, err := e.EnsureNewsletter(ctx, "https://news.example.com/issues/error", Archive{ID: 7})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 500, errored.Status)
}

func TestEnsureNewsletterUnreachableWritesNothing(t *testing.T) {
	t.Parallel()

	store := &memStore{}
	e := newEntities(store, newSiteFetcher(NewCounters(), nil))

	_, ok, err := e.EnsureNewsletter(context.Background(), "https://gone.example.com/issue", Archive{ID: 1})
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, store.newsletters)
}

func TestEnsureNewsletterStoreFailure(t *testing.T) {
	t.Parallel()

	store := &memStore{failFind: errors.New("db down")}
	e := newEntities(store, newSiteFetcher(NewCounters(), nil))

	_, _, err := e.EnsureNewsletter(context.Background(), "https://news.example.com/issue", Archive{ID: 1})
	require.ErrorContains(t, err, "db down")
}

func TestEnsureArticle(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := &memStore{}
	fetcher := newSiteFetcher(NewCounters(), map[string]page{
		"https://t.example.com/abc":   {status: 200, body: "story", finalURL: "https://b.example.org/story"},
		"https://b.example.org/story": {status: 200, body: "story"},
		"https://b.example.org/empty": {status: 200, body: ""},
	})
	e := newEntities(store, fetcher)
	issue := Newsletter{ID: 3}

	created, outcome, err := e.EnsureArticle(ctx, "https://t.example.com/abc", issue)
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, outcome)
	require.Equal(t, "https://b.example.org/story", created.URL)
	require.Equal(t, "story", created.FullText)
	require.Equal(t, int64(3), created.NewsletterID)

	// Either URL finds the row without fetching.
	found, outcome, err := e.EnsureArticle(ctx, "https://b.example.org/story", issue)
	require.NoError(t, err)
	require.Equal(t, OutcomeFound, outcome)
	require.Equal(t, created.ID, found.ID)
	require.Zero(t, fetcher.fetched("https://b.example.org/story"))

	_, outcome, err = e.EnsureArticle(ctx, "https://b.example.org/empty", issue)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)

	_, outcome, err = e.EnsureArticle(ctx, "https://unreachable.example.org/", issue)
	require.NoError(t, err)
	require.Equal(t, OutcomeSkipped, outcome)
	require.Len(t, store.articles, 1)
}

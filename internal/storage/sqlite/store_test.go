package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
)

var now = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.EnsureSchema(context.Background()))
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), "")
	require.Error(t, err)
}

func TestEnsureSchemaIsRepeatable(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	require.NoError(t, s.EnsureSchema(context.Background()))
}

func TestArchiveCreateIsIdempotent(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)

	_, found, err := s.FindArchive(ctx, "https://a.example.com/archive")
	require.NoError(t, err)
	require.False(t, found)

	a := crawler.Archive{DiscoveryURL: "https://a.example.com/archive", CreatedAt: now, ModifiedAt: now}
	first, outcome, err := s.CreateArchive(ctx, a)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeCreated, outcome)
	require.Positive(t, first.ID)
	require.True(t, now.Equal(first.CreatedAt))
	require.False(t, first.Populated())

	second, outcome, err := s.CreateArchive(ctx, a)
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeFound, outcome)
	require.Equal(t, first.ID, second.ID)

	got, found, err := s.FindArchive(ctx, "https://a.example.com/archive")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, first.ID, got.ID)
}

func TestPopulateNeverOverwrites(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	a, _, err := s.CreateArchive(ctx, crawler.Archive{DiscoveryURL: "https://a.example.com", CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)

	later := now.Add(time.Hour)
	populated, err := s.PopulateArchive(ctx, a.ID, crawler.Document{
		URL: "https://a.example.com/final", HTML: "<html>first</html>", Status: 200,
	}, later)
	require.NoError(t, err)
	require.Equal(t, "<html>first</html>", populated.FullHTML)
	require.Equal(t, "https://a.example.com/final", populated.URL)
	require.True(t, later.Equal(populated.ModifiedAt))

	again, err := s.PopulateArchive(ctx, a.ID, crawler.Document{
		URL: "https://elsewhere.example.com", HTML: "<html>second</html>", Status: 500,
	}, later.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, "<html>first</html>", again.FullHTML)
	require.Equal(t, "https://a.example.com/final", again.URL)
	require.Equal(t, 200, again.Status)

	_, err = s.PopulateArchive(ctx, 999, crawler.Document{Status: 200}, later)
	require.ErrorIs(t, err, crawler.ErrNotPopulated)
}

func TestNewsletterAndArticleLookupByEitherURL(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t)
	a, _, err := s.CreateArchive(ctx, crawler.Archive{DiscoveryURL: "https://a.example.com", CreatedAt: now, ModifiedAt: now})
	require.NoError(t, err)

	n, outcome, err := s.CreateNewsletter(ctx, crawler.Newsletter{
		ArchiveID:    a.ID,
		DiscoveryURL: "https://a.example.com/issues/1",
		URL:          "https://a.example.com/issues/1/",
		FullHTML:     "<html>issue</html>",
		Status:       200,
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeCreated, outcome)
	require.True(t, n.Populated())

	byFinal, found, err := s.FindNewsletter(ctx, "https://a.example.com/issues/1/")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, n.ID, byFinal.ID)

	art, outcome, err := s.CreateArticle(ctx, crawler.Article{
		NewsletterID: n.ID,
		DiscoveryURL: "https://t.co/abc",
		URL:          "https://b.com/story",
		Title:        "Story",
		FullHTML:     "<html>story</html>",
		FullText:     "story text",
		Status:       200,
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeCreated, outcome)

	for _, u := range []string{"https://t.co/abc", "https://b.com/story"} {
		got, found, err := s.FindArticle(ctx, u)
		require.NoError(t, err)
		require.True(t, found, u)
		require.Equal(t, art.ID, got.ID)
		require.Equal(t, "story text", got.FullText)
		require.Equal(t, n.ID, got.NewsletterID)
	}

	dup, outcome, err := s.CreateArticle(ctx, crawler.Article{
		NewsletterID: n.ID,
		DiscoveryURL: "https://t.co/abc",
		FullText:     "other text",
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	require.NoError(t, err)
	require.Equal(t, crawler.OutcomeFound, outcome)
	require.Equal(t, "story text", dup.FullText)
}

func TestForeignKeysEnforced(t *testing.T) {
	t.Parallel()

	_, _, err := newStore(t).CreateNewsletter(context.Background(), crawler.Newsletter{
		ArchiveID:    42,
		DiscoveryURL: "https://orphan.example.com",
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	require.Error(t, err)
}

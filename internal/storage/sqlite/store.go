// Package sqlite provides a single-file entity store backed by modernc SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
	"github.com/JakeFAU/newsletter-crawler/internal/storage/sqlq"
)

const schema = `
CREATE TABLE IF NOT EXISTS archives (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	discovery_url TEXT NOT NULL UNIQUE,
	url           TEXT,
	full_html     TEXT,
	status        INTEGER,
	created_at    TEXT NOT NULL,
	modified_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS archives_url_idx ON archives (url);

CREATE TABLE IF NOT EXISTS newsletters (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	archive_id    INTEGER NOT NULL REFERENCES archives (id),
	discovery_url TEXT NOT NULL UNIQUE,
	url           TEXT,
	full_html     TEXT,
	status        INTEGER,
	created_at    TEXT NOT NULL,
	modified_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS newsletters_url_idx ON newsletters (url);

CREATE TABLE IF NOT EXISTS articles (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	newsletter_id INTEGER NOT NULL REFERENCES newsletters (id),
	discovery_url TEXT NOT NULL UNIQUE,
	url           TEXT,
	title         TEXT,
	full_html     TEXT,
	full_text     TEXT,
	status        INTEGER,
	created_at    TEXT NOT NULL,
	modified_at   TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS articles_url_idx ON articles (url);
`

// Store implements crawler.Store on SQLite.
type Store struct {
	db *sql.DB
	q  sqlq.Builder
}

var _ crawler.Store = (*Store)(nil)

// Open opens (or creates) the database at path. Use ":memory:" for a
// throwaway database.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	return &Store{db: db, q: sqlq.SQLite()}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// EnsureSchema creates the entity tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FindArchive looks an archive up by its seed URL.
func (s *Store) FindArchive(ctx context.Context, url string) (crawler.Archive, bool, error) {
	return find(ctx, s.db, scanArchive, func() (string, []any, error) {
		return s.q.ByDiscoveryURL(sqlq.Archives, url)
	})
}

// CreateArchive inserts a bare archive row.
func (s *Store) CreateArchive(ctx context.Context, a crawler.Archive) (crawler.Archive, crawler.Outcome, error) {
	return create(ctx, s, sqlq.Archives, a.DiscoveryURL, scanArchive, func() (string, []any, error) {
		return s.q.InsertArchive(a)
	})
}

// PopulateArchive stores the archive's document unless one is already stored.
func (s *Store) PopulateArchive(ctx context.Context, id int64, doc crawler.Document, at time.Time) (crawler.Archive, error) {
	return populate(ctx, s, sqlq.Archives, id, doc, at, scanArchive)
}

// FindNewsletter looks a newsletter up by discovery or final URL.
func (s *Store) FindNewsletter(ctx context.Context, url string) (crawler.Newsletter, bool, error) {
	return find(ctx, s.db, scanNewsletter, func() (string, []any, error) {
		return s.q.ByEitherURL(sqlq.Newsletters, url)
	})
}

// CreateNewsletter inserts a newsletter with its document.
func (s *Store) CreateNewsletter(
	ctx context.Context,
	n crawler.Newsletter,
) (crawler.Newsletter, crawler.Outcome, error) {
	return create(ctx, s, sqlq.Newsletters, n.DiscoveryURL, scanNewsletter, func() (string, []any, error) {
		return s.q.InsertNewsletter(n)
	})
}

// PopulateNewsletter stores the newsletter's document unless one is already stored.
func (s *Store) PopulateNewsletter(
	ctx context.Context,
	id int64,
	doc crawler.Document,
	at time.Time,
) (crawler.Newsletter, error) {
	return populate(ctx, s, sqlq.Newsletters, id, doc, at, scanNewsletter)
}

// FindArticle looks an article up by discovery or final URL.
func (s *Store) FindArticle(ctx context.Context, url string) (crawler.Article, bool, error) {
	return find(ctx, s.db, scanArticle, func() (string, []any, error) {
		return s.q.ByEitherURL(sqlq.Articles, url)
	})
}

// CreateArticle inserts an extracted article.
func (s *Store) CreateArticle(ctx context.Context, a crawler.Article) (crawler.Article, crawler.Outcome, error) {
	return create(ctx, s, sqlq.Articles, a.DiscoveryURL, scanArticle, func() (string, []any, error) {
		return s.q.InsertArticle(a)
	})
}

type queryRower interface {
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func find[T any](
	ctx context.Context,
	db queryRower,
	scan func(*sql.Row) (T, error),
	build func() (string, []any, error),
) (T, bool, error) {
	var zero T
	query, args, err := build()
	if err != nil {
		return zero, false, fmt.Errorf("build lookup: %w", err)
	}
	got, err := scan(db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("lookup: %w", err)
	}
	return got, true, nil
}

func create[T any](
	ctx context.Context,
	s *Store,
	table, discoveryURL string,
	scan func(*sql.Row) (T, error),
	build func() (string, []any, error),
) (T, crawler.Outcome, error) {
	var (
		out     T
		outcome crawler.Outcome
	)
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := build()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		got, err := scan(tx.QueryRowContext(ctx, query, args...))
		if err == nil {
			out, outcome = got, crawler.OutcomeCreated
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("insert into %s: %w", table, err)
		}
		got, found, err := find(ctx, tx, scan, func() (string, []any, error) {
			return s.q.ByDiscoveryURL(table, discoveryURL)
		})
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("insert into %s conflicted but no row for %s", table, discoveryURL)
		}
		out, outcome = got, crawler.OutcomeFound
		return nil
	})
	return out, outcome, err
}

func populate[T any](
	ctx context.Context,
	s *Store,
	table string,
	id int64,
	doc crawler.Document,
	at time.Time,
	scan func(*sql.Row) (T, error),
) (T, error) {
	var out T
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		query, args, err := s.q.Populate(table, id, doc, at)
		if err != nil {
			return fmt.Errorf("build populate: %w", err)
		}
		got, err := scan(tx.QueryRowContext(ctx, query, args...))
		if err == nil {
			out = got
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("populate %s: %w", table, err)
		}
		got, found, err := find(ctx, tx, scan, func() (string, []any, error) {
			return s.q.ByID(table, id)
		})
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s id %d: %w", table, id, crawler.ErrNotPopulated)
		}
		out = got
		return nil
	})
	return out, err
}

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

type timestamps struct {
	created, modified string
}

func (ts timestamps) apply(created, modified *time.Time) error {
	c, err := sqlq.ParseTime(ts.created)
	if err != nil {
		return err
	}
	m, err := sqlq.ParseTime(ts.modified)
	if err != nil {
		return err
	}
	*created, *modified = c, m
	return nil
}

func scanArchive(row *sql.Row) (crawler.Archive, error) {
	var (
		a         crawler.Archive
		url, html sql.NullString
		status    sql.NullInt64
		ts        timestamps
	)
	if err := row.Scan(&a.ID, &a.DiscoveryURL, &url, &html, &status, &ts.created, &ts.modified); err != nil {
		return crawler.Archive{}, err
	}
	if err := ts.apply(&a.CreatedAt, &a.ModifiedAt); err != nil {
		return crawler.Archive{}, err
	}
	a.URL, a.FullHTML, a.Status = url.String, html.String, int(status.Int64)
	return a, nil
}

func scanNewsletter(row *sql.Row) (crawler.Newsletter, error) {
	var (
		n         crawler.Newsletter
		url, html sql.NullString
		status    sql.NullInt64
		ts        timestamps
	)
	if err := row.Scan(&n.ID, &n.ArchiveID, &n.DiscoveryURL, &url, &html, &status, &ts.created, &ts.modified); err != nil {
		return crawler.Newsletter{}, err
	}
	if err := ts.apply(&n.CreatedAt, &n.ModifiedAt); err != nil {
		return crawler.Newsletter{}, err
	}
	n.URL, n.FullHTML, n.Status = url.String, html.String, int(status.Int64)
	return n, nil
}

func scanArticle(row *sql.Row) (crawler.Article, error) {
	var (
		a                     crawler.Article
		url, title, html, txt sql.NullString
		status                sql.NullInt64
		ts                    timestamps
	)
	if err := row.Scan(
		&a.ID, &a.NewsletterID, &a.DiscoveryURL, &url, &title, &html, &txt, &status, &ts.created, &ts.modified,
	); err != nil {
		return crawler.Article{}, err
	}
	if err := ts.apply(&a.CreatedAt, &a.ModifiedAt); err != nil {
		return crawler.Article{}, err
	}
	a.URL, a.Title, a.FullHTML, a.FullText = url.String, title.String, html.String, txt.String
	a.Status = int(status.Int64)
	return a, nil
}

// Package postgres provides the Postgres-backed entity store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
	"github.com/JakeFAU/newsletter-crawler/internal/storage/sqlq"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Begin(context.Context) (pgx.Tx, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store implements crawler.Store on Postgres.
type Store struct {
	pool pool
	q    sqlq.Builder
}

var _ crawler.Store = (*Store)(nil)

// New connects a pgx pool using the provided config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: p, q: sqlq.Postgres()}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for testing).
func NewWithPool(p pool) (*Store, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: p, q: sqlq.Postgres()}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates the entity tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// FindArchive looks an archive up by its seed URL.
func (s *Store) FindArchive(ctx context.Context, url string) (crawler.Archive, bool, error) {
	return find(ctx, s.pool, scanArchive, func() (string, []any, error) {
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
	return find(ctx, s.pool, scanNewsletter, func() (string, []any, error) {
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
	return find(ctx, s.pool, scanArticle, func() (string, []any, error) {
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
	QueryRow(context.Context, string, ...any) pgx.Row
}

func find[T any](
	ctx context.Context,
	db queryRower,
	scan func(pgx.Row) (T, error),
	build func() (string, []any, error),
) (T, bool, error) {
	var zero T
	query, args, err := build()
	if err != nil {
		return zero, false, fmt.Errorf("build lookup: %w", err)
	}
	got, err := scan(db.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("lookup: %w", err)
	}
	return got, true, nil
}

// create inserts a row; when a row with the same discovery URL already
// exists it returns that row tagged OutcomeFound.
func create[T any](
	ctx context.Context,
	s *Store,
	table, discoveryURL string,
	scan func(pgx.Row) (T, error),
	build func() (string, []any, error),
) (T, crawler.Outcome, error) {
	var (
		out     T
		outcome crawler.Outcome
	)
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		query, args, err := build()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		got, err := scan(tx.QueryRow(ctx, query, args...))
		if err == nil {
			out, outcome = got, crawler.OutcomeCreated
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
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
	scan func(pgx.Row) (T, error),
) (T, error) {
	var out T
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		query, args, err := s.q.Populate(table, id, doc, at)
		if err != nil {
			return fmt.Errorf("build populate: %w", err)
		}
		got, err := scan(tx.QueryRow(ctx, query, args...))
		if err == nil {
			out = got
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
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

func (s *Store) inTx(ctx context.Context, fn func(pgx.Tx) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func scanArchive(row pgx.Row) (crawler.Archive, error) {
	var (
		a      crawler.Archive
		url    *string
		html   *string
		status *int
	)
	if err := row.Scan(&a.ID, &a.DiscoveryURL, &url, &html, &status, &a.CreatedAt, &a.ModifiedAt); err != nil {
		return crawler.Archive{}, err
	}
	a.URL, a.FullHTML, a.Status = deref(url), deref(html), derefInt(status)
	return a, nil
}

func scanNewsletter(row pgx.Row) (crawler.Newsletter, error) {
	var (
		n      crawler.Newsletter
		url    *string
		html   *string
		status *int
	)
	if err := row.Scan(&n.ID, &n.ArchiveID, &n.DiscoveryURL, &url, &html, &status, &n.CreatedAt, &n.ModifiedAt); err != nil {
		return crawler.Newsletter{}, err
	}
	n.URL, n.FullHTML, n.Status = deref(url), deref(html), derefInt(status)
	return n, nil
}

func scanArticle(row pgx.Row) (crawler.Article, error) {
	var (
		a                     crawler.Article
		url, title, html, txt *string
		status                *int
	)
	if err := row.Scan(
		&a.ID, &a.NewsletterID, &a.DiscoveryURL, &url, &title, &html, &txt, &status, &a.CreatedAt, &a.ModifiedAt,
	); err != nil {
		return crawler.Article{}, err
	}
	a.URL, a.Title, a.FullHTML, a.FullText = deref(url), deref(title), deref(html), deref(txt)
	a.Status = derefInt(status)
	return a, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// Package sqlq builds the entity store statements shared by the Postgres and
// SQLite backends. Both dialects accept ON CONFLICT ... DO NOTHING and RETURNING.
package sqlq

import (
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/JakeFAU/newsletter-crawler/internal/crawler"
)

// Table names.
const (
	Archives    = "archives"
	Newsletters = "newsletters"
	Articles    = "articles"
)

// Column lists in scan order.
var (
	ArchiveColumns    = []string{"id", "discovery_url", "url", "full_html", "status", "created_at", "modified_at"}
	NewsletterColumns = []string{"id", "archive_id", "discovery_url", "url", "full_html", "status", "created_at", "modified_at"}
	ArticleColumns    = []string{
		"id", "newsletter_id", "discovery_url", "url", "title", "full_html", "full_text", "status", "created_at", "modified_at",
	}
)

// Builder renders statements for one placeholder dialect.
type Builder struct {
	sb     sq.StatementBuilderType
	timeFn func(time.Time) any
}

// Postgres returns a Builder using $n placeholders and native timestamps.
func Postgres() Builder {
	return Builder{
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		timeFn: func(t time.Time) any { return t.UTC() },
	}
}

// SQLite returns a Builder using ? placeholders and RFC 3339 text timestamps.
func SQLite() Builder {
	return Builder{
		sb:     sq.StatementBuilder.PlaceholderFormat(sq.Question),
		timeFn: func(t time.Time) any { return FormatTime(t) },
	}
}

// FormatTime renders t the way the SQLite backend stores it.
func FormatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTime reverses FormatTime.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

func columnsFor(table string) []string {
	switch table {
	case Archives:
		return ArchiveColumns
	case Newsletters:
		return NewsletterColumns
	default:
		return ArticleColumns
	}
}

func returning(table string) string {
	return "RETURNING " + strings.Join(columnsFor(table), ", ")
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(v int) any {
	if v == 0 {
		return nil
	}
	return v
}

// ByID selects one row of table by primary key.
func (b Builder) ByID(table string, id int64) (string, []any, error) {
	return b.sb.Select(columnsFor(table)...).
		From(table).
		Where(sq.Eq{"id": id}).
		ToSql()
}

// ByDiscoveryURL selects the row of table created for discovery URL u.
func (b Builder) ByDiscoveryURL(table, u string) (string, []any, error) {
	return b.sb.Select(columnsFor(table)...).
		From(table).
		Where(sq.Eq{"discovery_url": u}).
		Limit(1).
		ToSql()
}

// ByEitherURL selects the oldest row of table whose discovery or final URL is u.
func (b Builder) ByEitherURL(table, u string) (string, []any, error) {
	return b.sb.Select(columnsFor(table)...).
		From(table).
		Where(sq.Or{sq.Eq{"discovery_url": u}, sq.Eq{"url": u}}).
		OrderBy("id").
		Limit(1).
		ToSql()
}

// InsertArchive inserts a bare archive row, doing nothing on a duplicate discovery URL.
func (b Builder) InsertArchive(a crawler.Archive) (string, []any, error) {
	return b.sb.Insert(Archives).
		Columns("discovery_url", "url", "full_html", "status", "created_at", "modified_at").
		Values(a.DiscoveryURL, nullable(a.URL), nullable(a.FullHTML), nullableInt(a.Status),
			b.timeFn(a.CreatedAt), b.timeFn(a.ModifiedAt)).
		Suffix("ON CONFLICT (discovery_url) DO NOTHING " + returning(Archives)).
		ToSql()
}

// InsertNewsletter inserts a newsletter with its document.
func (b Builder) InsertNewsletter(n crawler.Newsletter) (string, []any, error) {
	return b.sb.Insert(Newsletters).
		Columns("archive_id", "discovery_url", "url", "full_html", "status", "created_at", "modified_at").
		Values(n.ArchiveID, n.DiscoveryURL, nullable(n.URL), nullable(n.FullHTML), nullableInt(n.Status),
			b.timeFn(n.CreatedAt), b.timeFn(n.ModifiedAt)).
		Suffix("ON CONFLICT (discovery_url) DO NOTHING " + returning(Newsletters)).
		ToSql()
}

// InsertArticle inserts an extracted article.
func (b Builder) InsertArticle(a crawler.Article) (string, []any, error) {
	return b.sb.Insert(Articles).
		Columns("newsletter_id", "discovery_url", "url", "title", "full_html", "full_text", "status",
			"created_at", "modified_at").
		Values(a.NewsletterID, a.DiscoveryURL, nullable(a.URL), a.Title, a.FullHTML, a.FullText,
			nullableInt(a.Status), b.timeFn(a.CreatedAt), b.timeFn(a.ModifiedAt)).
		Suffix("ON CONFLICT (discovery_url) DO NOTHING " + returning(Articles)).
		ToSql()
}

// Populate stores doc on row id of table unless a document is already stored.
// The final URL is only set when the row has none.
func (b Builder) Populate(table string, id int64, doc crawler.Document, at time.Time) (string, []any, error) {
	return b.sb.Update(table).
		Set("url", sq.Expr("COALESCE(url, ?)", nullable(doc.URL))).
		Set("full_html", doc.HTML).
		Set("status", doc.Status).
		Set("modified_at", b.timeFn(at)).
		Where(sq.And{sq.Eq{"id": id}, sq.Eq{"status": nil}}).
		Suffix(returning(table)).
		ToSql()
}

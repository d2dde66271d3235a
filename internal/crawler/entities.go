package crawler

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Entities is the ensure-or-create layer over a Store. It decides when a
// fetch happens: archives are created bare and populated separately,
// newsletters are fetched before their row is written, and articles are
// written only after extraction succeeds.
type Entities struct {
	store     Store
	fetcher   Fetcher
	extractor Extractor
	clock     Clock
	logger    *zap.Logger
	observe   func(tier string, outcome Outcome)
}

// NewEntities wires the ensure layer.
func NewEntities(store Store, fetcher Fetcher, extractor Extractor, clock Clock, logger *zap.Logger) *Entities {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Entities{
		store:     store,
		fetcher:   fetcher,
		extractor: extractor,
		clock:     clock,
		logger:    logger,
		observe:   func(string, Outcome) {},
	}
}

// OnOutcome registers a hook called after every ensure call.
func (e *Entities) OnOutcome(fn func(tier string, outcome Outcome)) {
	if fn != nil {
		e.observe = fn
	}
}

// EnsureArchive returns the archive for a seed URL, creating a bare row if needed.
func (e *Entities) EnsureArchive(ctx context.Context, seed string) (Archive, Outcome, error) {
	existing, found, err := e.store.FindArchive(ctx, seed)
	if err != nil {
		return Archive{}, OutcomeSkipped, fmt.Errorf("find archive %s: %w", seed, err)
	}
	if found {
		e.observe("archive", OutcomeFound)
		return existing, OutcomeFound, nil
	}
	now := e.clock.Now()
	created, outcome, err := e.store.CreateArchive(ctx, Archive{DiscoveryURL: seed, CreatedAt: now, ModifiedAt: now})
	if err != nil {
		return Archive{}, OutcomeSkipped, fmt.Errorf("create archive %s: %w", seed, err)
	}
	e.observe("archive", outcome)
	return created, outcome, nil
}

// PopulateArchive fetches and stores the archive's document if it has none.
// A transport failure returns an error wrapping ErrEmptyResponse.
func (e *Entities) PopulateArchive(ctx context.Context, archive Archive) (Archive, error) {
	if archive.Populated() {
		return archive, nil
	}
	resp, err := e.fetcher.Fetch(ctx, archive.BaseURL())
	if err != nil {
		return archive, err
	}
	populated, err := e.store.PopulateArchive(ctx, archive.ID, DocumentFrom(resp), e.clock.Now())
	if err != nil {
		return archive, fmt.Errorf("populate archive %d: %w", archive.ID, err)
	}
	return populated, nil
}

// EnsureNewsletter returns a newsletter with its document. The bool is false
// when the page could not be fetched; no row is written in that case.
func (e *Entities) EnsureNewsletter(
	ctx context.Context,
	discoveryURL string,
	archive Archive,
) (Newsletter, bool, error) {
	existing, found, err := e.store.FindNewsletter(ctx, discoveryURL)
	if err != nil {
		return Newsletter{}, false, fmt.Errorf("find newsletter %s: %w", discoveryURL, err)
	}
	if found {
		e.observe("newsletter", OutcomeFound)
		populated, err := e.PopulateNewsletter(ctx, existing)
		if errors.Is(err, ErrEmptyResponse) {
			e.logger.Info("skipping newsletter without document", zap.String("url", discoveryURL))
			return existing, false, nil
		}
		if err != nil {
			return Newsletter{}, false, err
		}
		return populated, true, nil
	}

	resp, err := e.fetcher.Fetch(ctx, discoveryURL)
	if errors.Is(err, ErrEmptyResponse) {
		e.logger.Info("skipping unreachable newsletter", zap.String("url", discoveryURL), zap.Error(err))
		e.observe("newsletter", OutcomeSkipped)
		return Newsletter{}, false, nil
	}
	if err != nil {
		return Newsletter{}, false, err
	}
	if final := resp.FinalURL(); final != discoveryURL {
		redirected, found, err := e.store.FindNewsletter(ctx, final)
		if err != nil {
			return Newsletter{}, false, fmt.Errorf("find newsletter %s: %w", final, err)
		}
		if found {
			e.observe("newsletter", OutcomeFound)
			return e.ensurePopulated(ctx, redirected, DocumentFrom(resp))
		}
	}
	doc := DocumentFrom(resp)
	now := e.clock.Now()
	created, outcome, err := e.store.CreateNewsletter(ctx, Newsletter{
		ArchiveID:    archive.ID,
		DiscoveryURL: discoveryURL,
		URL:          doc.URL,
		FullHTML:     doc.HTML,
		Status:       doc.Status,
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	if err != nil {
		return Newsletter{}, false, fmt.Errorf("create newsletter %s: %w", discoveryURL, err)
	}
	e.observe("newsletter", outcome)
	return e.ensurePopulated(ctx, created, doc)
}

// ensurePopulated stores doc on a row that reached us without a document.
func (e *Entities) ensurePopulated(ctx context.Context, n Newsletter, doc Document) (Newsletter, bool, error) {
	if n.Populated() {
		return n, true, nil
	}
	populated, err := e.store.PopulateNewsletter(ctx, n.ID, doc, e.clock.Now())
	if err != nil {
		return Newsletter{}, false, fmt.Errorf("populate newsletter %d: %w", n.ID, err)
	}
	return populated, true, nil
}

// PopulateNewsletter fetches and stores a newsletter's document if it has none.
func (e *Entities) PopulateNewsletter(ctx context.Context, newsletter Newsletter) (Newsletter, error) {
	if newsletter.Populated() {
		return newsletter, nil
	}
	resp, err := e.fetcher.Fetch(ctx, newsletter.BaseURL())
	if err != nil {
		return newsletter, err
	}
	populated, err := e.store.PopulateNewsletter(ctx, newsletter.ID, DocumentFrom(resp), e.clock.Now())
	if err != nil {
		return newsletter, fmt.Errorf("populate newsletter %d: %w", newsletter.ID, err)
	}
	return populated, nil
}

// EnsureArticle returns the article for discoveryURL. An existing row is
// returned without fetching. Otherwise the page is fetched and extracted;
// OutcomeSkipped with a nil error means the fetch or extraction failed and
// nothing was written.
func (e *Entities) EnsureArticle(
	ctx context.Context,
	discoveryURL string,
	newsletter Newsletter,
) (Article, Outcome, error) {
	existing, found, err := e.store.FindArticle(ctx, discoveryURL)
	if err != nil {
		return Article{}, OutcomeSkipped, fmt.Errorf("find article %s: %w", discoveryURL, err)
	}
	if found {
		e.observe("article", OutcomeFound)
		return existing, OutcomeFound, nil
	}

	resp, err := e.fetcher.Fetch(ctx, discoveryURL)
	if err != nil {
		if Recoverable(err) {
			e.logger.Info("skipping unreachable article", zap.String("url", discoveryURL), zap.Error(err))
			e.observe("article", OutcomeSkipped)
			return Article{}, OutcomeSkipped, nil
		}
		return Article{}, OutcomeSkipped, err
	}
	if final := resp.FinalURL(); final != discoveryURL {
		redirected, found, err := e.store.FindArticle(ctx, final)
		if err != nil {
			return Article{}, OutcomeSkipped, fmt.Errorf("find article %s: %w", final, err)
		}
		if found {
			e.observe("article", OutcomeFound)
			return redirected, OutcomeFound, nil
		}
	}
	content, err := e.extractor.Extract(resp)
	if err != nil {
		if Recoverable(err) {
			e.logger.Info("skipping article without content", zap.String("url", discoveryURL), zap.Error(err))
			e.observe("article", OutcomeSkipped)
			return Article{}, OutcomeSkipped, nil
		}
		return Article{}, OutcomeSkipped, fmt.Errorf("extract %s: %w", discoveryURL, err)
	}

	now := e.clock.Now()
	created, outcome, err := e.store.CreateArticle(ctx, Article{
		NewsletterID: newsletter.ID,
		DiscoveryURL: discoveryURL,
		URL:          resp.FinalURL(),
		Title:        content.Title,
		FullHTML:     content.HTML,
		FullText:     content.Text,
		Status:       resp.StatusCode,
		CreatedAt:    now,
		ModifiedAt:   now,
	})
	if err != nil {
		return Article{}, OutcomeSkipped, fmt.Errorf("create article %s: %w", discoveryURL, err)
	}
	e.observe("article", outcome)
	return created, outcome, nil
}

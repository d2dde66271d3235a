package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/JakeFAU/newsletter-crawler/internal/links"
)

// Options tunes a crawl run.
type Options struct {
	// RequestLimit halts the whole run once this many fetches were attempted. 0 means unlimited.
	RequestLimit int64
	// ArticleQuota abandons an archive once this many articles were ensured in it. 0 means unlimited.
	ArticleQuota int
	// Debug pauses and retries once on unexpected errors instead of aborting immediately.
	Debug bool
	// Verbose prints the title and URL of every ensured article to Out.
	Verbose bool
	Out     io.Writer
}

type archiveState int

const (
	statePending archiveState = iota
	stateFetched
	stateTraversing
	stateExhausted
	stateStopped
)

func (s archiveState) String() string {
	switch s {
	case statePending:
		return "pending"
	case stateFetched:
		return "fetched"
	case stateTraversing:
		return "traversing"
	case stateExhausted:
		return "exhausted"
	default:
		return "stopped"
	}
}

// archiveRun is the per-archive traversal state.
type archiveRun struct {
	state    archiveState
	archive  Archive
	articles int
	logger   *zap.Logger
}

func (r *archiveRun) transition(next archiveState) {
	r.logger.Debug("archive state", zap.Stringer("from", r.state), zap.Stringer("to", next))
	r.state = next
}

// Engine walks archives, newsletters, and articles in order, enforcing the
// global request budget and the per-archive article quota.
type Engine struct {
	entities *Entities
	counters *Counters
	matcher  Matcher
	prompter Prompter
	opts     Options
	logger   *zap.Logger
}

// NewEngine constructs an Engine. counters must be the ones the fetcher updates.
func NewEngine(
	entities *Entities,
	counters *Counters,
	matcher Matcher,
	prompter Prompter,
	opts Options,
	logger *zap.Logger,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if counters == nil {
		counters = NewCounters()
	}
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Engine{
		entities: entities,
		counters: counters,
		matcher:  matcher,
		prompter: prompter,
		opts:     opts,
		logger:   logger,
	}
}

// Run crawls seeds in order. Exhausting the request budget is not an error;
// it sets RunSummary.Stopped.
func (e *Engine) Run(ctx context.Context, seeds []string) (summary RunSummary, err error) {
	defer func() { summary.Requests = e.counters.Snapshot() }()

	for _, seed := range seeds {
		stop, err := e.shouldStop(ctx)
		if err != nil {
			return summary, err
		}
		if stop {
			summary.Stopped = true
			break
		}
		state, err := e.crawlArchive(ctx, seed, &summary)
		if err != nil {
			return summary, fmt.Errorf("archive %s: %w", seed, err)
		}
		if state == stateStopped {
			summary.Stopped = true
			break
		}
	}
	if summary.Stopped {
		e.logger.Info("request budget exhausted", zap.Int64("limit", e.opts.RequestLimit))
	}
	return summary, nil
}

// shouldStop is the guard evaluated before every unit of work.
func (e *Engine) shouldStop(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return true, fmt.Errorf("crawl canceled: %w", err)
	}
	return e.opts.RequestLimit > 0 && e.counters.Total() >= e.opts.RequestLimit, nil
}

func (e *Engine) quotaReached(run *archiveRun) bool {
	return e.opts.ArticleQuota > 0 && run.articles >= e.opts.ArticleQuota
}

func (e *Engine) crawlArchive(ctx context.Context, seed string, summary *RunSummary) (archiveState, error) {
	run := &archiveRun{state: statePending, logger: e.logger.With(zap.String("archive", seed))}

	err := e.attempt(ctx, "ensure archive", func() error {
		archive, _, err := e.entities.EnsureArchive(ctx, seed)
		run.archive = archive
		return err
	})
	if err != nil {
		return run.state, err
	}
	summary.ArchivesSeen++

	if stop, err := e.shouldStop(ctx); err != nil || stop {
		run.transition(stateStopped)
		return run.state, err
	}
	err = e.attempt(ctx, "fetch archive", func() error {
		archive, err := e.entities.PopulateArchive(ctx, run.archive)
		if err == nil {
			run.archive = archive
		}
		return err
	})
	if errors.Is(err, ErrEmptyResponse) {
		run.logger.Warn("archive unreachable, skipping", zap.Error(err))
		run.transition(stateExhausted)
		return run.state, nil
	}
	if err != nil {
		return run.state, err
	}
	run.transition(stateFetched)

	newsletterURLs, err := links.NewsletterCandidates(run.archive.FullHTML, run.archive.BaseURL())
	if err != nil {
		return run.state, fmt.Errorf("newsletter links: %w", err)
	}
	run.logger.Info("archive fetched", zap.Int("newsletters", len(newsletterURLs)))
	run.transition(stateTraversing)

	for _, newsletterURL := range newsletterURLs {
		done, err := e.crawlNewsletter(ctx, run, newsletterURL, summary)
		if err != nil {
			return run.state, err
		}
		if done {
			return run.state, nil
		}
	}
	run.transition(stateExhausted)
	return run.state, nil
}

// crawlNewsletter reports done when the archive reached a terminal state.
func (e *Engine) crawlNewsletter(
	ctx context.Context,
	run *archiveRun,
	newsletterURL string,
	summary *RunSummary,
) (bool, error) {
	if stop, err := e.shouldStop(ctx); err != nil || stop {
		run.transition(stateStopped)
		return true, err
	}

	var (
		newsletter Newsletter
		ok         bool
	)
	err := e.attempt(ctx, "ensure newsletter", func() error {
		var err error
		newsletter, ok, err = e.entities.EnsureNewsletter(ctx, newsletterURL, run.archive)
		return err
	})
	if err != nil {
		return true, err
	}
	if !ok {
		return false, nil
	}
	summary.NewslettersSeen++

	articleURLs, err := links.ArticleCandidates(newsletter.FullHTML, newsletter.BaseURL(), e.matcher)
	if err != nil {
		return true, fmt.Errorf("article links for %s: %w", newsletterURL, err)
	}
	run.logger.Debug("newsletter ready", zap.String("newsletter", newsletterURL), zap.Int("articles", len(articleURLs)))

	for _, articleURL := range articleURLs {
		if stop, err := e.shouldStop(ctx); err != nil || stop {
			run.transition(stateStopped)
			return true, err
		}

		var (
			article Article
			outcome Outcome
		)
		err := e.attempt(ctx, "ensure article", func() error {
			var err error
			article, outcome, err = e.entities.EnsureArticle(ctx, articleURL, newsletter)
			return err
		})
		if err != nil {
			return true, err
		}
		if !outcome.Persisted() {
			continue
		}

		run.articles++
		summary.ArticlesSeen++
		if outcome == OutcomeCreated {
			summary.ArticlesCreated++
		}
		if e.opts.Verbose {
			fmt.Fprintf(e.opts.Out, "%s %s\n", article.Title, firstNonEmpty(article.URL, article.DiscoveryURL))
		}
		if e.quotaReached(run) {
			run.logger.Info("article quota reached", zap.Int("quota", e.opts.ArticleQuota))
			run.transition(stateExhausted)
			return true, nil
		}
	}
	return false, nil
}

// attempt runs fn. In debug mode an unexpected error pauses for the operator
// and fn is retried once; the second error is returned as-is.
func (e *Engine) attempt(ctx context.Context, op string, fn func() error) error {
	err := fn()
	if err == nil || !e.opts.Debug || Recoverable(err) || isCanceled(err) {
		return err
	}
	e.logger.Error("unexpected error", zap.String("op", op), zap.Error(err))
	if e.prompter != nil {
		if perr := e.prompter.Pause(ctx, fmt.Sprintf("%s failed: %v. Press enter to retry", op, err)); perr != nil {
			return fmt.Errorf("%s: %w", op, errors.Join(err, perr))
		}
	}
	if err := fn(); err != nil {
		return fmt.Errorf("%s after retry: %w", op, err)
	}
	return nil
}

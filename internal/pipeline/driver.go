// =============================================================================
// driver.go - run orchestration
// =============================================================================
//
// One run walks the listing pages in order:
//
//	page 1 ─fetch─> extract ─> accumulate ─(delay)─> page 2 ... page N
//	                                                         │
//	            ┌──────────── any articles? ─────────────────┘
//	            │ yes                          │ no
//	            v                              v
//	   dedupe -> assemble -> write     dump page 1 -> alert -> StatusEmpty
//
// A page that cannot be fetched contributes nothing; the run continues.
// The delay between pages is a politeness requirement of the source
// site and is always a real wait.
//
// =============================================================================
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sort"

	"bankier-feed/internal/config"
	"bankier-feed/internal/logger"
)

// PageSource fetches listing pages. *Fetcher satisfies it.
type PageSource interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	FetchOnce(ctx context.Context, url string) (*Page, error)
}

// Deps are the collaborators of a Driver.
type Deps struct {
	Fetcher  PageSource
	Writer   FeedWriter
	Notifier Notifier
	Dates    *DateParser
	Log      logger.Logger
	Sleep    SleepFunc
}

// Driver runs the whole pipeline once per Run call.
type Driver struct {
	cfg       *config.Config
	fetcher   PageSource
	writer    FeedWriter
	notifier  Notifier
	dates     *DateParser
	extractor *Extractor
	log       logger.Logger
	sleep     SleepFunc
}

// NewDriver wires a Driver from explicit dependencies. Missing optional
// ones (Notifier, Dates, Log, Sleep) get production defaults.
func NewDriver(cfg *config.Config, deps Deps) *Driver {
	if deps.Log == nil {
		deps.Log = logger.NewNop()
	}
	if deps.Dates == nil {
		deps.Dates = NewDateParser(cfg.Location(), nil)
	}
	if deps.Notifier == nil {
		deps.Notifier = NopNotifier{}
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	return &Driver{
		cfg:       cfg,
		fetcher:   deps.Fetcher,
		writer:    deps.Writer,
		notifier:  deps.Notifier,
		dates:     deps.Dates,
		extractor: NewExtractor(cfg.Base(), deps.Dates, cfg.Window(), deps.Log),
		log:       deps.Log,
		sleep:     deps.Sleep,
	}
}

// New builds a Driver with the production HTTP client, a FileWriter at
// cfg.OutputPath and the configured notifier.
func New(cfg *config.Config, log logger.Logger) (*Driver, error) {
	opts := FetcherOptionsFromConfig(cfg)
	fetcher, err := NewFetcher(&http.Client{}, opts, log)
	if err != nil {
		return nil, err
	}
	return NewDriver(cfg, Deps{
		Fetcher:  fetcher,
		Writer:   FileWriter{Path: cfg.OutputPath},
		Notifier: NewNotifier(cfg, log),
		Log:      log,
	}), nil
}

// Run executes one pass. It returns a non-nil error only for fatal
// failures (feed write) and for cancellation, in which case the returned
// error is ctx.Err(). An empty result is reported through StatusEmpty.
func (d *Driver) Run(ctx context.Context) (*RunResult, error) {
	res := &RunResult{Skipped: map[SkipReason]int{}}
	total := d.cfg.PagesToScan

	d.log.Info("starting run",
		logger.String("listing", d.cfg.ListingURL()),
		logger.Int("pages", total),
		logger.Int("window_hours", d.cfg.WindowHours),
		logger.Duration("delay", d.cfg.RequestDelay),
	)

	var collected []Article
	var firstPage *Page

	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		url := d.cfg.PageURL(n)
		d.log.Info("page", logger.Int("page", n), logger.Int("of", total), logger.String("url", url))

		page, err := d.fetcher.Fetch(ctx, url)
		switch {
		case err != nil && ctx.Err() != nil:
			return res, ctx.Err()
		case err != nil:
			res.PagesFailed++
			d.log.Warn("skipping page after fetch failure", logger.Int("page", n), logger.Error(err))
		default:
			res.PagesFetched++
			if n == 1 {
				firstPage = page
			}
			articles := d.extractPage(page, n, res)
			collected = append(collected, articles...)
		}

		if n < total {
			d.log.Info("waiting before next page", logger.Duration("delay", d.cfg.RequestDelay))
			if err := d.sleep(ctx, d.cfg.RequestDelay); err != nil {
				return res, err
			}
		}
	}

	res.Collected = len(collected)
	d.log.Info("collection finished",
		logger.Int("collected", res.Collected),
		logger.Int("pages_fetched", res.PagesFetched),
		logger.Int("pages_failed", res.PagesFailed),
	)

	if len(collected) == 0 {
		return d.finishEmpty(ctx, firstPage, res), nil
	}

	unique := Dedupe(collected)
	res.Duplicates = len(collected) - len(unique)
	if res.Duplicates > 0 {
		d.log.Info("duplicates removed", logger.Int("removed", res.Duplicates))
	}
	d.log.Info("unique articles", logger.Int("count", len(unique)))

	doc := Assemble(unique, ChannelFromConfig(d.cfg), d.dates.Now())
	if err := d.writer.WriteFeed(doc); err != nil {
		return res, fmt.Errorf("write feed: %w", err)
	}

	res.Status = StatusDone
	res.Articles = sortNewestFirst(unique)
	res.OutputPath = d.cfg.OutputPath
	d.log.Info("feed written", logger.String("path", d.cfg.OutputPath), logger.Int("entries", doc.Len()))
	return res, nil
}

// extractPage parses and extracts one fetched page, adding its skip
// reasons to res. A page that fails to parse contributes nothing.
func (d *Driver) extractPage(page *Page, n int, res *RunResult) []Article {
	doc, err := ParseDocumentString(page.Text)
	if err != nil {
		d.log.Warn("could not parse page", logger.Int("page", n), logger.Error(err))
		return nil
	}
	pr := d.extractor.Extract(doc, n)
	for _, s := range pr.Skips {
		res.Skipped[s.Reason]++
	}
	d.log.Info("page collected",
		logger.Int("page", n),
		logger.Int("articles", len(pr.Articles)),
		logger.Int("skipped", len(pr.Skips)),
	)
	return pr.Articles
}

// finishEmpty saves the first listing page for inspection and sends the
// alert. Both are best effort.
func (d *Driver) finishEmpty(ctx context.Context, firstPage *Page, res *RunResult) *RunResult {
	res.Status = StatusEmpty
	d.log.Warn("no articles found; check the listing markup")

	if path := d.cfg.DiagnosticPath; path != "" {
		if err := d.dumpFirstPage(ctx, firstPage, path); err != nil {
			d.log.Error("could not save diagnostic page", logger.String("path", path), logger.Error(err))
		} else {
			res.DiagnosticPath = path
			d.log.Info("diagnostic page saved", logger.String("path", path))
		}
	}

	if err := d.notifier.NotifyEmpty(ctx, res); err != nil {
		d.log.Error("empty-run alert failed", logger.Error(err))
	}
	return res
}

// dumpFirstPage writes the first listing page exactly as received, so a
// charset or markup problem can be inspected byte for byte.
func (d *Driver) dumpFirstPage(ctx context.Context, page *Page, path string) error {
	if page == nil {
		var err error
		page, err = d.fetcher.FetchOnce(ctx, d.cfg.PageURL(1))
		if err != nil {
			return fmt.Errorf("fetch first page: %w", err)
		}
	}
	return os.WriteFile(path, page.Raw, 0o644)
}

// sortNewestFirst returns a copy ordered by publish time descending;
// equal instants keep their relative order.
func sortNewestFirst(in []Article) []Article {
	out := make([]Article, len(in))
	copy(out, in)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PublishedAt().After(out[j].PublishedAt())
	})
	return out
}

// ExitCode maps a run outcome to the process exit status.
func ExitCode(res *RunResult, err error) int {
	if err != nil || res == nil || res.Status != StatusDone {
		return 1
	}
	return 0
}

// IsInterrupt reports whether err came from cancelling the run.
func IsInterrupt(err error) bool {
	return errors.Is(err, context.Canceled)
}

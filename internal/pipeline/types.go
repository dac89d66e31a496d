// =============================================================================
// types.go - data structures
// =============================================================================
//
// Types shared by the feed pipeline:
//   - Article:    one accepted listing entry (immutable)
//   - Skip:       why a candidate block was not turned into an Article
//   - PageResult: what one listing page produced
//   - RunResult:  what a whole run produced
//
// =============================================================================
package pipeline

import "time"

// -----------------------------------------------------------------------------
// Article
// -----------------------------------------------------------------------------

// Article is one news entry taken from a listing page.
//
// Fields are unexported so that an Article can only come out of the
// extractor with every invariant already checked:
//   - title is non-empty and whitespace-normalised
//   - link is absolute and on the configured origin
//   - description is never empty (falls back to the title)
//   - publishedAt carries a location
//   - guid equals link
type Article struct {
	title       string
	link        string
	description string
	publishedAt time.Time
	guid        string
}

func newArticle(title, link, description string, publishedAt time.Time) Article {
	if description == "" {
		description = title
	}
	return Article{
		title:       title,
		link:        link,
		description: description,
		publishedAt: publishedAt,
		guid:        link,
	}
}

func (a Article) Title() string          { return a.title }
func (a Article) Link() string           { return a.link }
func (a Article) Description() string    { return a.description }
func (a Article) PublishedAt() time.Time { return a.publishedAt }

// GUID is the dedup identity. It currently equals Link.
func (a Article) GUID() string { return a.guid }

// -----------------------------------------------------------------------------
// Extraction outcome
// -----------------------------------------------------------------------------

// SkipReason names why a candidate block produced no Article.
type SkipReason string

const (
	SkipMissingTitle SkipReason = "missing-title"
	SkipMissingLink  SkipReason = "missing-link"
	SkipEmptyTitle   SkipReason = "empty-title"
	SkipBadLink      SkipReason = "bad-link"
	SkipExternalLink SkipReason = "external-link"
	SkipMissingDate  SkipReason = "missing-date"
	SkipBadDate      SkipReason = "bad-date"
	SkipTooOld       SkipReason = "too-old" // filtered, not malformed
	SkipPanic        SkipReason = "panic"
)

// Skip records one rejected candidate.
type Skip struct {
	Index  int // 1-based position of the candidate on its page
	Reason SkipReason
	Detail string
}

// PageResult is what the extractor produced for one listing page.
type PageResult struct {
	Page       int
	Candidates int
	Articles   []Article
	Skips      []Skip
}

// -----------------------------------------------------------------------------
// Run outcome
// -----------------------------------------------------------------------------

// RunStatus is the terminal state of a run.
type RunStatus string

const (
	StatusDone  RunStatus = "done"
	StatusEmpty RunStatus = "empty"
)

// RunResult summarises one pipeline execution.
type RunResult struct {
	Status         RunStatus
	Articles       []Article // deduplicated, newest first
	PagesFetched   int
	PagesFailed    int
	Collected      int // before dedup
	Duplicates     int
	Skipped        map[SkipReason]int
	OutputPath     string
	DiagnosticPath string
}

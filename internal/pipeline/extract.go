// =============================================================================
// extract.go - listing page -> articles
// =============================================================================
//
// Turns one parsed listing page into Articles. The bankier.pl listing is
// a WordPress-style theme; each teaser looks like:
//
//	<div class="article">
//	  <span class="entry-title"><a href="/wiadomosc/...">Title</a></span>
//	  <div class="entry-meta"><time class="entry-date" datetime="2025-12-30T11:44:00+01:00">
//	  <div class="entry-content"><p>Lead ... <a class="more-link">Czytaj dalej</a></p></div>
//	</div>
//
// Every candidate is handled independently: a broken teaser is recorded
// as a Skip and logged, and its siblings are processed as usual.
//
// =============================================================================
package pipeline

import (
	"fmt"
	"net/url"
	"time"

	"bankier-feed/internal/logger"
)

// Markup names the elements the extractor looks for.
type Markup struct {
	Container   Element // one per teaser
	Title       Element // inside Container
	Meta        Element // inside Container; primary home of Date
	Date        Element // inside Meta, or directly inside Container
	DateAttr    string
	Content     Element // inside Container
	Paragraph   Element // first one inside Content
	ReadMore    Element // removed from Paragraph before taking its text
	TitleAnchor string
}

// Element is a tag plus a class token; empty class matches any.
type Element struct {
	Tag   string
	Class string
}

// DefaultMarkup matches the bankier.pl news listing.
func DefaultMarkup() Markup {
	return Markup{
		Container:   Element{Tag: "div", Class: "article"},
		Title:       Element{Tag: "span", Class: "entry-title"},
		TitleAnchor: "a",
		Meta:        Element{Tag: "div", Class: "entry-meta"},
		Date:        Element{Tag: "time", Class: "entry-date"},
		DateAttr:    "datetime",
		Content:     Element{Tag: "div", Class: "entry-content"},
		Paragraph:   Element{Tag: "p"},
		ReadMore:    Element{Tag: "a", Class: "more-link"},
	}
}

// Extractor builds Articles from listing pages.
type Extractor struct {
	base   *url.URL
	dates  *DateParser
	window time.Duration
	markup Markup
	log    logger.Logger
}

// NewExtractor creates an extractor for links on base's origin that keeps
// articles published within window.
func NewExtractor(base *url.URL, dates *DateParser, window time.Duration, log logger.Logger) *Extractor {
	if log == nil {
		log = logger.NewNop()
	}
	return &Extractor{
		base:   base,
		dates:  dates,
		window: window,
		markup: DefaultMarkup(),
		log:    log,
	}
}

// WithMarkup returns a copy using different element names.
func (e *Extractor) WithMarkup(m Markup) *Extractor {
	cp := *e
	cp.markup = m
	return &cp
}

// Extract returns the accepted articles of one page in document order,
// along with a Skip for every rejected candidate. It never panics.
func (e *Extractor) Extract(doc Node, page int) PageResult {
	result := PageResult{Page: page}
	if doc == nil {
		return result
	}

	m := e.markup
	candidates := doc.All(m.Container.Tag, m.Container.Class)
	result.Candidates = len(candidates)
	e.log.Info("candidates found",
		logger.Int("page", page),
		logger.Int("count", len(candidates)),
		logger.String("container", selector(m.Container.Tag, m.Container.Class)),
	)

	now := e.dates.Now()
	for i, cand := range candidates {
		idx := i + 1
		article, skip := e.extractOne(cand, idx, now)
		if skip != nil {
			result.Skips = append(result.Skips, *skip)
			e.logSkip(page, *skip)
			continue
		}
		result.Articles = append(result.Articles, article)
		e.log.Info("article accepted",
			logger.Int("page", page),
			logger.Int("index", idx),
			logger.String("title", truncateString(article.Title(), 60)),
			logger.String("published", article.PublishedAt().In(e.dates.Location()).Format("2006-01-02 15:04")),
		)
	}
	return result
}

// extractOne runs steps 1-8 for one candidate. A panic anywhere inside is
// converted into a SkipPanic.
func (e *Extractor) extractOne(cand Node, idx int, now time.Time) (article Article, skip *Skip) {
	defer func() {
		if r := recover(); r != nil {
			article = Article{}
			skip = &Skip{Index: idx, Reason: SkipPanic, Detail: fmt.Sprint(r)}
		}
	}()

	m := e.markup
	reject := func(reason SkipReason, detail string) (Article, *Skip) {
		return Article{}, &Skip{Index: idx, Reason: reason, Detail: detail}
	}

	// 1. title element
	titleEl, ok := cand.First(m.Title.Tag, m.Title.Class)
	if !ok {
		return reject(SkipMissingTitle, "")
	}

	// 2. anchor with a non-empty href
	anchor, ok := titleEl.First(m.TitleAnchor, "")
	if !ok {
		return reject(SkipMissingLink, "")
	}
	href, ok := anchor.Attr("href")
	if !ok || href == "" {
		return reject(SkipMissingLink, "")
	}
	title := anchor.Text()
	if title == "" {
		return reject(SkipEmptyTitle, href)
	}

	// 3. absolute URL on our origin
	link := resolveURL(e.base, href)
	if link == nil {
		return reject(SkipBadLink, href)
	}
	if !sameOrigin(link, e.base) {
		return reject(SkipExternalLink, link.String())
	}

	// 4. publish timestamp: meta container first, then the block itself
	stamp, ok := e.findTimestamp(cand)
	if !ok {
		return reject(SkipMissingDate, truncateString(title, 50))
	}

	// 5. parse
	published, ok := e.dates.Parse(stamp)
	if !ok {
		return reject(SkipBadDate, stamp)
	}

	// 6. recency
	if !IsRecent(published, e.window, now) {
		return reject(SkipTooOld, published.In(e.dates.Location()).Format("2006-01-02 15:04"))
	}

	// 7. description
	description := e.findDescription(cand)

	// 8. record
	return newArticle(title, link.String(), description, published), nil
}

// findTimestamp returns the DateAttr value of the Date element, looking
// first inside Meta and then anywhere in the candidate:
//
//	<div class="entry-meta"><time class="entry-date" datetime="..."></div> // preferred
//	<time class="entry-date" datetime="...">                                 // fallback
//
// An element whose attribute is missing or empty does not count.
func (e *Extractor) findTimestamp(cand Node) (string, bool) {
	m := e.markup
	if meta, ok := cand.First(m.Meta.Tag, m.Meta.Class); ok {
		if el, ok := meta.First(m.Date.Tag, m.Date.Class); ok {
			if v, ok := el.Attr(m.DateAttr); ok && v != "" {
				return v, true
			}
		}
	}
	if el, ok := cand.First(m.Date.Tag, m.Date.Class); ok {
		if v, ok := el.Attr(m.DateAttr); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// findDescription returns the text of the first paragraph in the content
// block with the read-more link removed, or "" when there is none.
func (e *Extractor) findDescription(cand Node) string {
	m := e.markup
	content, ok := cand.First(m.Content.Tag, m.Content.Class)
	if !ok {
		return ""
	}
	p, ok := content.First(m.Paragraph.Tag, m.Paragraph.Class)
	if !ok {
		return ""
	}
	for _, more := range p.All(m.ReadMore.Tag, m.ReadMore.Class) {
		more.Remove()
	}
	return p.Text()
}

func (e *Extractor) logSkip(page int, s Skip) {
	fields := []logger.Field{
		logger.Int("page", page),
		logger.Int("index", s.Index),
		logger.String("reason", string(s.Reason)),
	}
	if s.Detail != "" {
		fields = append(fields, logger.String("detail", s.Detail))
	}
	switch s.Reason {
	case SkipTooOld:
		e.log.Info("article too old, skipping", fields...)
	case SkipPanic:
		e.log.Error("candidate extraction failed", fields...)
	default:
		e.log.Warn("candidate skipped", fields...)
	}
}

package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newTestExtractor(t *testing.T) (*Extractor, *DateParser) {
	t.Helper()
	dates := NewDateParser(warsaw(t), fixedClock)
	return NewExtractor(mustURL("https://www.bankier.pl"), dates, 48*time.Hour, nil), dates
}

func extractHTML(t *testing.T, e *Extractor, html string) PageResult {
	t.Helper()
	doc, err := ParseDocumentString(html)
	require.NoError(t, err)
	return e.Extract(doc, 1)
}

func TestExtract_WellFormed(t *testing.T) {
	e, _ := newTestExtractor(t)
	res := extractHTML(t, e, listingHTML(
		teaser{Title: "  Stopy   procentowe bez zmian ", Href: "/wiadomosc/Stopy-8912.html", Date: "2025-12-30T11:44:00+01:00", Lead: "RPP zdecydowała."},
		teaser{Title: "Kurs złotego", Href: "https://www.bankier.pl/wiadomosc/Kurs-8913.html", Date: "2025-12-29 18:00", Lead: "Złoty umacnia się."},
	))

	require.Len(t, res.Articles, 2)
	assert.Equal(t, 2, res.Candidates)
	assert.Empty(t, res.Skips)

	a := res.Articles[0]
	assert.Equal(t, "Stopy procentowe bez zmian", a.Title())
	assert.Equal(t, "https://www.bankier.pl/wiadomosc/Stopy-8912.html", a.Link())
	assert.Equal(t, a.Link(), a.GUID())
	assert.Equal(t, "RPP zdecydowała.", a.Description(), "read-more link is stripped")
	assert.True(t, time.Date(2025, 12, 30, 10, 44, 0, 0, time.UTC).Equal(a.PublishedAt()))

	b := res.Articles[1]
	assert.True(t, time.Date(2025, 12, 29, 17, 0, 0, 0, time.UTC).Equal(b.PublishedAt()), "naive date is Warsaw time")
}

func TestExtract_MissingTimestampSkipsOnlyThatCandidate(t *testing.T) {
	e, _ := newTestExtractor(t)
	res := extractHTML(t, e, listingHTML(
		teaser{Title: "Ma datę", Href: "/wiadomosc/a.html", Date: hoursAgo(1)},
		teaser{Title: "Bez daty", Href: "/wiadomosc/b.html"},
		teaser{Title: "Też ma datę", Href: "/wiadomosc/c.html", Date: hoursAgo(2)},
	))

	require.Len(t, res.Articles, 2)
	assert.Equal(t, "Ma datę", res.Articles[0].Title())
	assert.Equal(t, "Też ma datę", res.Articles[1].Title())
	require.Len(t, res.Skips, 1)
	assert.Equal(t, Skip{Index: 2, Reason: SkipMissingDate, Detail: "Bez daty"}, res.Skips[0])
}

func TestExtract_DateFallbackInsideBlock(t *testing.T) {
	e, _ := newTestExtractor(t)
	res := extractHTML(t, e, listingHTML(
		teaser{Title: "Fallback", Href: "/wiadomosc/f.html", Date: hoursAgo(3), DateInBlock: true},
	))
	require.Len(t, res.Articles, 1)
	assert.Equal(t, "Fallback", res.Articles[0].Description(), "no lead falls back to title")
}

func TestExtract_ExternalLinkRejected(t *testing.T) {
	e, _ := newTestExtractor(t)
	res := extractHTML(t, e, listingHTML(
		teaser{Title: "Partner", Href: "https://partner.example.com/promo", Date: hoursAgo(1)},
		teaser{Title: "Plain http", Href: "http://www.bankier.pl/wiadomosc/x.html", Date: hoursAgo(1)},
		teaser{Title: "Other port", Href: "https://www.bankier.pl:8443/wiadomosc/y.html", Date: hoursAgo(1)},
		teaser{Title: "Explicit port", Href: "https://www.bankier.pl:443/wiadomosc/z.html", Date: hoursAgo(1)},
	))

	require.Len(t, res.Articles, 1)
	assert.Equal(t, "Explicit port", res.Articles[0].Title())
	require.Len(t, res.Skips, 3)
	for _, s := range res.Skips {
		assert.Equal(t, SkipExternalLink, s.Reason)
	}
}

func TestExtract_MalformedCandidates(t *testing.T) {
	e, _ := newTestExtractor(t)
	html := listingHTML(
		teaser{Title: "Bad date", Href: "/wiadomosc/a.html", Date: "wczoraj"},
		teaser{Title: "Old", Href: "/wiadomosc/b.html", Date: hoursAgo(49)},
		teaser{Title: "", Href: "/wiadomosc/c.html", Date: hoursAgo(1)},
		teaser{Title: "No href", Href: "", Date: hoursAgo(1)},
		teaser{Title: "Mailto", Href: "mailto:redakcja@bankier.pl", Date: hoursAgo(1)},
		teaser{Date: hoursAgo(1)},
		teaser{Title: "Boundary", Href: "/wiadomosc/e.html", Date: hoursAgo(48)},
	)
	res := extractHTML(t, e, html)

	require.Len(t, res.Articles, 1)
	assert.Equal(t, "Boundary", res.Articles[0].Title())

	reasons := make([]SkipReason, 0, len(res.Skips))
	for _, s := range res.Skips {
		reasons = append(reasons, s.Reason)
	}
	assert.Equal(t, []SkipReason{
		SkipBadDate, SkipTooOld, SkipEmptyTitle, SkipMissingLink, SkipBadLink, SkipMissingTitle,
	}, reasons)
}

func TestExtract_NoCandidates(t *testing.T) {
	e, _ := newTestExtractor(t)
	res := extractHTML(t, e, "<html><body><p>Przerwa techniczna</p></body></html>")
	assert.Zero(t, res.Candidates)
	assert.Empty(t, res.Articles)
	assert.Empty(t, res.Skips)

	assert.Empty(t, e.Extract(nil, 1).Articles)
}

// panicNode blows up on any lookup below the candidate.
func TestExtract_WithMarkup(t *testing.T) {
	e, _ := newTestExtractor(t)
	alt := e.WithMarkup(Markup{
		Container:   Element{Tag: "article", Class: "post"},
		Title:       Element{Tag: "h2", Class: "title"},
		TitleAnchor: "a",
		Meta:        Element{Tag: "footer"},
		Date:        Element{Tag: "span", Class: "published"},
		DateAttr:    "data-ts",
		Content:     Element{Tag: "section", Class: "lead"},
		Paragraph:   Element{Tag: "p"},
		ReadMore:    Element{Tag: "a", Class: "more"},
	})
	page := `<html><body>
<article class="post">
  <h2 class="title"><a href="/wiadomosc/inny-uklad.html">Inny układ</a></h2>
  <footer><span class="published" data-ts="` + hoursAgo(2) + `"></span></footer>
  <section class="lead"><p>Nowy szablon. <a class="more" href="#">Więcej</a></p></section>
</article>
</body></html>`

	res := extractHTML(t, alt, page)
	require.Len(t, res.Articles, 1)
	assert.Equal(t, "Inny układ", res.Articles[0].Title())
	assert.Equal(t, "https://www.bankier.pl/wiadomosc/inny-uklad.html", res.Articles[0].Link())
	assert.Equal(t, "Nowy szablon.", res.Articles[0].Description())

	assert.Zero(t, extractHTML(t, e, page).Candidates, "original extractor keeps the default markup")
	assert.Equal(t, DefaultMarkup(), e.markup)
}

type panicNode struct{}

func (panicNode) First(string, string) (Node, bool) { panic("boom") }
func (panicNode) All(string, string) []Node        { return nil }
func (panicNode) Attr(string) (string, bool)       { return "", false }
func (panicNode) Text() string                     { return "" }
func (panicNode) Remove()                          {}

type rootNode struct{ children []Node }

func (r rootNode) First(string, string) (Node, bool) { return nil, false }
func (r rootNode) All(string, string) []Node         { return r.children }
func (rootNode) Attr(string) (string, bool)          { return "", false }
func (rootNode) Text() string                        { return "" }
func (rootNode) Remove()                             {}

func TestExtract_PanicIsContained(t *testing.T) {
	e, _ := newTestExtractor(t)
	good, err := ParseDocumentString(listingHTML(teaser{Title: "OK", Href: "/wiadomosc/ok.html", Date: hoursAgo(1)}))
	require.NoError(t, err)
	goodBlock, ok := good.First("div", "article")
	require.True(t, ok)

	res := e.Extract(rootNode{children: []Node{panicNode{}, goodBlock}}, 1)

	require.Len(t, res.Articles, 1)
	require.Len(t, res.Skips, 1)
	assert.Equal(t, SkipPanic, res.Skips[0].Reason)
	assert.Equal(t, "boom", res.Skips[0].Detail)
}

func TestExtract_LogsSkipReasons(t *testing.T) {
	log, logs := observed()
	dates := NewDateParser(warsaw(t), fixedClock)
	e := NewExtractor(mustURL("https://www.bankier.pl"), dates, 48*time.Hour, log)

	doc, err := ParseDocumentString(listingHTML(
		teaser{Title: "Old", Href: "/wiadomosc/old.html", Date: hoursAgo(72)},
		teaser{Title: "Partner", Href: "https://ads.example.com/", Date: hoursAgo(1)},
		teaser{Title: "Fresh", Href: "/wiadomosc/fresh.html", Date: hoursAgo(1)},
	))
	require.NoError(t, err)
	e.Extract(doc, 3)

	tooOld := logs.FilterMessage("article too old, skipping").All()
	require.Len(t, tooOld, 1)
	assert.Equal(t, zapcore.InfoLevel, tooOld[0].Level)
	assert.EqualValues(t, 3, tooOld[0].ContextMap()["page"])
	assert.EqualValues(t, 1, tooOld[0].ContextMap()["index"])

	skipped := logs.FilterMessage("candidate skipped").All()
	require.Len(t, skipped, 1)
	assert.Equal(t, zapcore.WarnLevel, skipped[0].Level)
	assert.Equal(t, string(SkipExternalLink), skipped[0].ContextMap()["reason"])

	accepted := logs.FilterMessage("article accepted").All()
	require.Len(t, accepted, 1)
	assert.Equal(t, "Fresh", accepted[0].ContextMap()["title"])
	assert.Equal(t, "2025-12-30 11:00", accepted[0].ContextMap()["published"])
}

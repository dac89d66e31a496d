package pipeline

import (
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"bankier-feed/internal/logger"
)

// testNow is 2025-12-30 12:00 in Warsaw.
var testNow = time.Date(2025, 12, 30, 11, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func mustURL(raw string) *url.URL {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func observed() (logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(zap.DebugLevel)
	return logger.NewFromZap(zap.New(core)), logs
}

// teaser describes one listing block. Empty fields are left out of the
// markup; DateInBlock moves the time element out of entry-meta.
type teaser struct {
	Title       string
	Href        string
	Date        string
	DateInBlock bool
	Lead        string
}

func (tz teaser) html() string {
	var sb strings.Builder
	sb.WriteString(`<div class="article">`)
	if tz.Title != "" || tz.Href != "" {
		fmt.Fprintf(&sb, `<span class="entry-title"><a href="%s">%s</a></span>`, tz.Href, tz.Title)
	}
	timeEl := ""
	if tz.Date != "" {
		timeEl = fmt.Sprintf(`<time class="entry-date" datetime="%s">%s</time>`, tz.Date, tz.Date)
	}
	if tz.DateInBlock {
		sb.WriteString(`<div class="entry-meta"><span class="author">Redakcja</span></div>`)
		sb.WriteString(timeEl)
	} else {
		fmt.Fprintf(&sb, `<div class="entry-meta">%s</div>`, timeEl)
	}
	if tz.Lead != "" {
		fmt.Fprintf(&sb, `<div class="entry-content"><p>%s <a class="more-link" href="%s">Czytaj dalej</a></p></div>`, tz.Lead, tz.Href)
	}
	sb.WriteString(`</div>`)
	return sb.String()
}

func listingHTML(teasers ...teaser) string {
	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html><html lang="pl"><head><meta charset="utf-8"><title>Wiadomości</title></head><body><main>`)
	for _, tz := range teasers {
		sb.WriteString(tz.html())
		sb.WriteString("\n")
	}
	sb.WriteString(`</main></body></html>`)
	return sb.String()
}

// hoursAgo formats an offset timestamp relative to testNow.
func hoursAgo(h int) string {
	return testNow.Add(-time.Duration(h) * time.Hour).Format(time.RFC3339)
}

// =============================================================================
// feed.go - RSS assembly and output
// =============================================================================
//
// Assemble sorts articles newest-first and maps them onto a gorilla/feeds
// document. Writers then serialise it:
//   - FileWriter:   temp file -> gofeed read-back check -> rename
//   - BufferWriter: in memory (Lambda responses)
//
// =============================================================================
package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/feeds"
	"github.com/mmcdole/gofeed"

	"bankier-feed/internal/config"
)

// ErrFeedVerification means the serialised feed did not read back intact.
var ErrFeedVerification = errors.New("written feed failed verification")

// Channel is the channel-level metadata of the feed.
type Channel struct {
	ID          string // listing URL; also the alternate link
	Title       string
	Description string
	Language    string
	AuthorName  string
	AuthorEmail string
}

// ChannelFromConfig builds channel metadata for the configured listing.
func ChannelFromConfig(cfg *config.Config) Channel {
	return Channel{
		ID:          cfg.ListingURL(),
		Title:       cfg.Channel.Title,
		Description: cfg.Channel.Description,
		Language:    cfg.Channel.Language,
		AuthorName:  cfg.Channel.AuthorName,
		AuthorEmail: cfg.Channel.AuthorEmail,
	}
}

// FeedDocument is an assembled feed ready to be written.
type FeedDocument struct {
	feed     *feeds.Feed
	language string
}

// Entries returns the feed items in output order.
func (d *FeedDocument) Entries() []*feeds.Item { return d.feed.Items }

// Updated returns the channel's last-updated instant.
func (d *FeedDocument) Updated() time.Time { return d.feed.Updated }

// Len is the number of entries.
func (d *FeedDocument) Len() int { return len(d.feed.Items) }

// Assemble sorts articles by publish time, newest first (ties keep input
// order), and builds the feed. updated should be "now" in the reference
// location.
func Assemble(articles []Article, ch Channel, updated time.Time) *FeedDocument {
	sorted := sortNewestFirst(articles)

	feed := &feeds.Feed{
		Id:          ch.ID,
		Title:       ch.Title,
		Link:        &feeds.Link{Href: ch.ID, Rel: "alternate"},
		Description: ch.Description,
		Author:      &feeds.Author{Name: ch.AuthorName, Email: ch.AuthorEmail},
		Updated:     updated,
		Items:       make([]*feeds.Item, 0, len(sorted)),
	}
	for _, a := range sorted {
		feed.Items = append(feed.Items, &feeds.Item{
			Id:          a.GUID(),
			Title:       a.Title(),
			Link:        &feeds.Link{Href: a.Link()},
			Description: a.Description(),
			Created:     a.PublishedAt(),
			Updated:     a.PublishedAt(),
		})
	}
	return &FeedDocument{feed: feed, language: ch.Language}
}

// WriteTo renders pretty-printed RSS 2.0.
func (d *FeedDocument) WriteTo(w io.Writer) (int64, error) {
	rss := (&feeds.Rss{Feed: d.feed}).RssFeed()
	rss.Language = d.language

	var buf bytes.Buffer
	if err := feeds.WriteXML(rss, &buf); err != nil {
		return 0, fmt.Errorf("render RSS: %w", err)
	}
	return buf.WriteTo(w)
}

// -----------------------------------------------------------------------------
// Writers
// -----------------------------------------------------------------------------

// FeedWriter persists an assembled feed. Errors are fatal for the run.
type FeedWriter interface {
	WriteFeed(doc *FeedDocument) error
}

// FileWriter writes the feed to Path, replacing it only after the new
// content has been written completely and parsed back successfully.
type FileWriter struct {
	Path string
}

// WriteFeed implements FeedWriter.
func (w FileWriter) WriteFeed(doc *FeedDocument) error {
	dir := filepath.Dir(w.Path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(w.Path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp feed file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := doc.WriteTo(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write feed: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close feed file: %w", err)
	}

	if err := verifyFeedFile(tmpPath, doc.Len()); err != nil {
		return err
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod feed file: %w", err)
	}
	if err := os.Rename(tmpPath, w.Path); err != nil {
		return fmt.Errorf("replace %s: %w", w.Path, err)
	}
	committed = true
	return nil
}

func verifyFeedFile(path string, wantItems int) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFeedVerification, err)
	}
	defer f.Close()

	parsed, err := gofeed.NewParser().Parse(f)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrFeedVerification, err)
	}
	if parsed.FeedType != "rss" || len(parsed.Items) != wantItems {
		return fmt.Errorf("%w: got %s feed with %d items, want rss with %d",
			ErrFeedVerification, parsed.FeedType, len(parsed.Items), wantItems)
	}
	return nil
}

// BufferWriter keeps the rendered feed in memory.
type BufferWriter struct {
	bytes.Buffer
}

// WriteFeed implements FeedWriter.
func (w *BufferWriter) WriteFeed(doc *FeedDocument) error {
	w.Reset()
	_, err := doc.WriteTo(&w.Buffer)
	return err
}

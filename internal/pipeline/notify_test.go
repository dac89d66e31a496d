package pipeline

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bankier-feed/internal/config"
)

type sentMail struct {
	addr string
	from string
	to   []string
	msg  string
}

func notifyConfig() *config.Config {
	cfg := config.Default()
	cfg.Notify.From = "bot@example.com"
	cfg.Notify.Password = "secret"
	cfg.Notify.To = "ops@example.com, dev@example.com"
	return cfg
}

func newTestNotifier(t *testing.T, failures int) (*EmailNotifier, *[]sentMail, *recordingSleep) {
	t.Helper()
	n, ok := NewNotifier(notifyConfig(), nil).(*EmailNotifier)
	require.True(t, ok)

	var sent []sentMail
	calls := 0
	n.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		if calls <= failures {
			return errors.New("421 try again later")
		}
		sent = append(sent, sentMail{addr: addr, from: from, to: to, msg: string(msg)})
		return nil
	}
	rec := &recordingSleep{}
	n.sleep = rec.sleep
	n.now = func() time.Time { return time.Date(2026, 1, 5, 6, 0, 0, 0, time.UTC) }
	return n, &sent, rec
}

func TestNewNotifier_DisabledWithoutSettings(t *testing.T) {
	_, ok := NewNotifier(config.Default(), nil).(NopNotifier)
	assert.True(t, ok)
	assert.NoError(t, NopNotifier{}.NotifyEmpty(context.Background(), &RunResult{}))
}

func TestEmailNotifier_Message(t *testing.T) {
	n, sent, rec := newTestNotifier(t, 0)
	res := &RunResult{
		Status:         StatusEmpty,
		PagesFetched:   4,
		PagesFailed:    1,
		Skipped:        map[SkipReason]int{SkipTooOld: 12, SkipBadDate: 2},
		DiagnosticPath: "debug.html",
	}
	require.NoError(t, n.NotifyEmpty(context.Background(), res))

	require.Len(t, *sent, 1)
	m := (*sent)[0]
	assert.Equal(t, "smtp.gmail.com:587", m.addr)
	assert.Equal(t, "bot@example.com", m.from)
	assert.Equal(t, []string{"ops@example.com", "dev@example.com"}, m.to)
	assert.Empty(t, rec.waits)

	head, body, found := strings.Cut(m.msg, "\r\n\r\n")
	require.True(t, found)
	assert.Contains(t, head, "Subject: [bankier-feed] no articles - 2026-01-05 06:00\r\n")
	assert.Contains(t, head, "To: ops@example.com, dev@example.com\r\n")
	assert.Contains(t, head, "Content-Type: text/plain; charset=UTF-8")

	assert.Contains(t, body, "Pages fetched: 4")
	assert.Contains(t, body, "Pages failed:  1")
	assert.Contains(t, body, "debug.html")
	assert.Less(t, strings.Index(body, "bad-date"), strings.Index(body, "too-old"), "reasons sorted")
}

func TestEmailNotifier_Retries(t *testing.T) {
	n, sent, rec := newTestNotifier(t, 2)
	require.NoError(t, n.NotifyEmpty(context.Background(), &RunResult{}))
	assert.Len(t, *sent, 1)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.waits)
}

func TestEmailNotifier_GivesUp(t *testing.T) {
	n, sent, rec := newTestNotifier(t, 10)
	err := n.NotifyEmpty(context.Background(), &RunResult{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Empty(t, *sent)
	assert.Len(t, rec.waits, 2)
}

// =============================================================================
// notify.go - empty-run alert e-mail
// =============================================================================
//
// When a run finds no articles the listing markup has most likely changed.
// If SMTP settings are present the driver sends a plain-text alert:
//
//	From: bot@example.com
//	To: ops@example.com
//	Subject: [bankier-feed] no articles - 2026-01-05 06:00
//	Content-Type: text/plain; charset=UTF-8
//
// Delivery is retried with exponential backoff (2s, 4s). A failure is
// logged by the caller and never changes the run's outcome.
//
// =============================================================================
package pipeline

import (
	"context"
	"fmt"
	"net/smtp"
	"sort"
	"strings"
	"time"

	"bankier-feed/internal/config"
	"bankier-feed/internal/logger"
)

// Notifier is told about runs that produced nothing.
type Notifier interface {
	NotifyEmpty(ctx context.Context, res *RunResult) error
}

// NopNotifier ignores every notification.
type NopNotifier struct{}

// NotifyEmpty implements Notifier.
func (NopNotifier) NotifyEmpty(context.Context, *RunResult) error { return nil }

// sendMailFunc matches smtp.SendMail.
type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends the alert over SMTP with PLAIN auth.
type EmailNotifier struct {
	cfg         config.NotifyConfig
	to          []string
	listing     string
	maxAttempts int
	sendMail    sendMailFunc
	sleep       SleepFunc
	now         func() time.Time
	log         logger.Logger
}

// NewNotifier returns an EmailNotifier when cfg.Notify is complete and a
// NopNotifier otherwise.
func NewNotifier(cfg *config.Config, log logger.Logger) Notifier {
	if !cfg.Notify.Enabled() {
		return NopNotifier{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &EmailNotifier{
		cfg:         cfg.Notify,
		to:          cfg.Notify.Recipients(),
		listing:     cfg.ListingURL(),
		maxAttempts: 3,
		sendMail:    smtp.SendMail,
		sleep:       sleepContext,
		now:         time.Now,
		log:         log,
	}
}

// NotifyEmpty implements Notifier.
func (n *EmailNotifier) NotifyEmpty(ctx context.Context, res *RunResult) error {
	subject := fmt.Sprintf("[bankier-feed] no articles - %s", n.now().Format("2006-01-02 15:04"))
	msg := n.buildMessage(subject, n.buildBody(res))
	return n.sendWithRetry(ctx, msg)
}

func (n *EmailNotifier) buildBody(res *RunResult) string {
	var sb strings.Builder
	sb.WriteString("bankier-feed finished without any articles.\n\n")
	sb.WriteString(fmt.Sprintf("Listing:       %s\n", n.listing))
	sb.WriteString(fmt.Sprintf("Pages fetched: %d\n", res.PagesFetched))
	sb.WriteString(fmt.Sprintf("Pages failed:  %d\n", res.PagesFailed))

	if len(res.Skipped) > 0 {
		reasons := make([]string, 0, len(res.Skipped))
		for r := range res.Skipped {
			reasons = append(reasons, string(r))
		}
		sort.Strings(reasons)
		sb.WriteString("\nSkipped candidates:\n")
		for _, r := range reasons {
			sb.WriteString(fmt.Sprintf("  %-14s %d\n", r, res.Skipped[SkipReason(r)]))
		}
	}
	if res.DiagnosticPath != "" {
		sb.WriteString(fmt.Sprintf("\nRaw first page saved to %s\n", res.DiagnosticPath))
	}
	sb.WriteString(fmt.Sprintf("\nTimestamp: %s\n", n.now().Format(time.RFC3339)))
	return sb.String()
}

// buildMessage lays out an RFC 5322 message; headers end with a blank line.
func (n *EmailNotifier) buildMessage(subject, body string) []byte {
	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", n.cfg.From))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(n.to, ", ")))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	return []byte(msg.String())
}

func (n *EmailNotifier) sendWithRetry(ctx context.Context, msg []byte) error {
	auth := smtp.PlainAuth("", n.cfg.From, n.cfg.Password, n.cfg.SMTPHost)
	addr := n.cfg.SMTPHost + ":" + n.cfg.SMTPPort

	var lastErr error
	for i := 0; i < n.maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<i) * time.Second
			n.log.Info("retrying alert e-mail", logger.Duration("wait", wait))
			if err := n.sleep(ctx, wait); err != nil {
				return err
			}
		}
		err := n.sendMail(addr, auth, n.cfg.From, n.to, msg)
		if err == nil {
			return nil
		}
		lastErr = err
		n.log.Warn("alert e-mail failed", logger.Int("attempt", i+1), logger.Int("max_attempts", n.maxAttempts), logger.Error(err))
	}
	return fmt.Errorf("failed to send e-mail after %d attempts: %w", n.maxAttempts, lastErr)
}

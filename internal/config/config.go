// =============================================================================
// config.go - run configuration
// =============================================================================
//
// Every adjustable parameter of a feed run lives in Config. Values are
// resolved in this order (later wins):
//
//   1. Default()                  - built-in values for bankier.pl
//   2. YAML file (--config)       - optional
//   3. .env / .env.local          - loaded into the process environment
//   4. process environment        - BANKIER_* variables, LOG_LEVEL, LOG_FORMAT
//   5. CLI flags                  - applied by cmd/bankier-feed
//
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Validation errors.
var (
	ErrInvalidBaseURL     = errors.New("base_url must be an absolute http(s) URL")
	ErrInvalidPages       = errors.New("pages_to_scan must be at least 1")
	ErrInvalidWindow      = errors.New("window_hours must be at least 1")
	ErrInvalidDelay       = errors.New("request_delay must be non-negative")
	ErrInvalidMaxAttempts = errors.New("max_attempts must be at least 1")
	ErrInvalidBackoff     = errors.New("backoff_base must be non-negative")
	ErrInvalidTimeout     = errors.New("request_timeout must be positive")
	ErrMissingOutputPath  = errors.New("output_path is required")
	ErrInvalidTimezone    = errors.New("timezone is not a known IANA zone")
	ErrMissingCharset     = errors.New("charset is required")
)

// Config holds the parameters of one run.
type Config struct {
	BaseURL        string            `yaml:"base_url"`
	ListingPath    string            `yaml:"listing_path"`
	PagesToScan    int               `yaml:"pages_to_scan"`
	WindowHours    int               `yaml:"window_hours"`
	RequestDelay   time.Duration     `yaml:"request_delay"`
	OutputPath     string            `yaml:"output_path"`
	DiagnosticPath string            `yaml:"diagnostic_path"`
	MaxAttempts    int               `yaml:"max_attempts"`
	BackoffBase    time.Duration     `yaml:"backoff_base"`
	RequestTimeout time.Duration     `yaml:"request_timeout"`
	Headers        map[string]string `yaml:"headers"`
	Timezone       string            `yaml:"timezone"`
	Charset        string            `yaml:"charset"`
	Channel        ChannelConfig     `yaml:"channel"`
	Logging        LoggingConfig     `yaml:"logging"`
	Notify         NotifyConfig      `yaml:"notify"`
}

// ChannelConfig is the channel-level metadata of the generated feed.
type ChannelConfig struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Language    string `yaml:"language"`
	AuthorName  string `yaml:"author_name"`
	AuthorEmail string `yaml:"author_email"`
}

// LoggingConfig selects log level and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NotifyConfig holds SMTP settings for the empty-run alert e-mail.
// The alert is disabled unless From, Password and To are all set.
type NotifyConfig struct {
	From     string `yaml:"from"`
	Password string `yaml:"-"`
	To       string `yaml:"to"` // comma separated
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort string `yaml:"smtp_port"`
}

// Enabled reports whether enough is configured to send mail.
func (n NotifyConfig) Enabled() bool {
	return n.From != "" && n.Password != "" && strings.TrimSpace(n.To) != ""
}

// Recipients splits To on commas.
func (n NotifyConfig) Recipients() []string {
	var out []string
	for _, addr := range strings.Split(n.To, ",") {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

// DefaultHeaders mimic a desktop browser; the site blocks obvious bots.
// Accept-Encoding is left to net/http so gzip is decoded transparently.
func DefaultHeaders() map[string]string {
	return map[string]string{
		"User-Agent":                "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
		"Accept-Language":           "pl-PL,pl;q=0.9,en-US;q=0.8,en;q=0.7",
		"Referer":                   "https://www.bankier.pl/",
		"Upgrade-Insecure-Requests": "1",
		"Cache-Control":             "max-age=0",
	}
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:        "https://www.bankier.pl",
		ListingPath:    "/wiadomosc/",
		PagesToScan:    5,
		WindowHours:    48,
		RequestDelay:   2 * time.Second,
		OutputPath:     "bankier_rss.xml",
		DiagnosticPath: "debug.html",
		MaxAttempts:    3,
		BackoffBase:    2 * time.Second,
		RequestTimeout: 15 * time.Second,
		Headers:        DefaultHeaders(),
		Timezone:       "Europe/Warsaw",
		Charset:        "utf-8",
		Channel: ChannelConfig{
			Title:       "Bankier.pl - Wiadomości",
			Description: "Najnowsze wiadomości z serwisu Bankier.pl",
			Language:    "pl",
			AuthorName:  "Bankier.pl",
			AuthorEmail: "redakcja@bankier.pl",
		},
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Notify:  NotifyConfig{SMTPHost: "smtp.gmail.com", SMTPPort: "587"},
	}
}

// Load resolves defaults, an optional YAML file, .env files and the
// environment, then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return nil, err
		}
	}

	if err := loadEnvFiles(); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	// Fields absent from the file keep their current values.
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}
	return nil
}

// loadEnvFiles loads .env.local then .env; godotenv never overrides a
// variable that is already set, so .env.local wins over .env.
func loadEnvFiles() error {
	for _, name := range []string{".env.local", ".env"} {
		if err := godotenv.Load(name); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load %s: %w", name, err)
		}
	}
	return nil
}

// ApplyEnv overrides fields from environment variables found through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		d, err := parseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("BANKIER_BASE_URL", &c.BaseURL)
	str("BANKIER_LISTING_PATH", &c.ListingPath)
	str("BANKIER_OUTPUT_PATH", &c.OutputPath)
	str("BANKIER_DIAGNOSTIC_PATH", &c.DiagnosticPath)
	str("BANKIER_TIMEZONE", &c.Timezone)
	str("BANKIER_CHARSET", &c.Charset)
	if v, ok := lookup("BANKIER_USER_AGENT"); ok && strings.TrimSpace(v) != "" {
		if c.Headers == nil {
			c.Headers = map[string]string{}
		}
		c.Headers["User-Agent"] = strings.TrimSpace(v)
	}
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("EMAIL_FROM", &c.Notify.From)
	str("EMAIL_PASSWORD", &c.Notify.Password)
	str("EMAIL_TO", &c.Notify.To)
	str("SMTP_HOST", &c.Notify.SMTPHost)
	str("SMTP_PORT", &c.Notify.SMTPPort)

	for key, dst := range map[string]*int{
		"BANKIER_PAGES":        &c.PagesToScan,
		"BANKIER_WINDOW_HOURS": &c.WindowHours,
		"BANKIER_MAX_ATTEMPTS": &c.MaxAttempts,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"BANKIER_REQUEST_DELAY":   &c.RequestDelay,
		"BANKIER_BACKOFF_BASE":    &c.BackoffBase,
		"BANKIER_REQUEST_TIMEOUT": &c.RequestTimeout,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// parseDuration accepts Go durations ("1500ms") and bare seconds ("2").
func parseDuration(s string) (time.Duration, error) {
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidBaseURL
	}
	if c.PagesToScan < 1 {
		return ErrInvalidPages
	}
	if c.WindowHours < 1 {
		return ErrInvalidWindow
	}
	if c.RequestDelay < 0 {
		return ErrInvalidDelay
	}
	if c.MaxAttempts < 1 {
		return ErrInvalidMaxAttempts
	}
	if c.BackoffBase < 0 {
		return ErrInvalidBackoff
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		return ErrMissingOutputPath
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil || c.Timezone == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTimezone, c.Timezone)
	}
	if strings.TrimSpace(c.Charset) == "" {
		return ErrMissingCharset
	}
	return nil
}

// Base returns the parsed origin URL. Call after Validate.
func (c *Config) Base() *url.URL {
	u, _ := url.Parse(c.BaseURL)
	return u
}

// ListingURL is the absolute URL of the first listing page.
func (c *Config) ListingURL() string {
	ref, err := url.Parse(c.ListingPath)
	if err != nil {
		return strings.TrimRight(c.BaseURL, "/") + c.ListingPath
	}
	return c.Base().ResolveReference(ref).String()
}

// PageURL returns the URL of listing page n (1-based). Page 1 is the
// listing itself; later pages append "<n>/".
func (c *Config) PageURL(n int) string {
	listing := c.ListingURL()
	if n <= 1 {
		return listing
	}
	if !strings.HasSuffix(listing, "/") {
		listing += "/"
	}
	return fmt.Sprintf("%s%d/", listing, n)
}

// Window is the recency window as a duration.
func (c *Config) Window() time.Duration {
	return time.Duration(c.WindowHours) * time.Hour
}

// Location loads the reference timezone. Call after Validate.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// String returns a one-line summary for startup logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Listing: %s, Pages: %d, Window: %dh, Delay: %s, Output: %s}",
		c.ListingURL(), c.PagesToScan, c.WindowHours, c.RequestDelay, c.OutputPath,
	)
}

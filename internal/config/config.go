package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.yaml.in/yaml/v4"
)

// DateLayout is the literal format accepted for start and end dates.
const DateLayout = "2006-01-02"

// ErrInvalidDate is returned for dates not written as DateLayout.
var ErrInvalidDate = errors.New("invalid date, expected format YYYY-MM-DD")

// DefaultSkipFolders are the path substrings excluded from a scan when the
// configuration does not name its own. Matching is case-insensitive against
// the whole folder path, mailbox name included, so patterns stay narrow
// to folders that never hold real mail.
var DefaultSkipFolders = []string{
	"Deleted", "Trash", "Junk", "Spam",
	"Sync Issues", "Conflicts",
}

// Config is the top-level application configuration.
type Config struct {
	LogLevel    string   `yaml:"log_level"`
	Stores      []Store  `yaml:"stores"`
	Mailboxes   []string `yaml:"mailboxes"`
	Template    string   `yaml:"template"`
	OutputDir   string   `yaml:"output_dir"`
	Prefix      string   `yaml:"prefix"`
	Start       string   `yaml:"start"`
	End         string   `yaml:"end"`
	YearsBack   int      `yaml:"years_back"`
	MonthsBack  int      `yaml:"months_back"`
	SkipFolders []string `yaml:"skip_folders"`
	Quiet       bool     `yaml:"quiet"`
	TestMode    bool     `yaml:"test_mode"`
	TestLimit   int      `yaml:"test_limit"`
	NoPrompt    bool     `yaml:"no_prompt"`
	HistoryDB   string   `yaml:"history_db"`
	Report      Report   `yaml:"report"`
}

// Store describes one mail store to read mailboxes from.
type Store struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // "mbox", "imap" or "pop3"
	Path     string `yaml:"path"` // mbox profile directory
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

// Report configures mailing the finished workbook.
type Report struct {
	MailTo   string `yaml:"mail_to"`
	From     string `yaml:"from"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

// Enabled reports whether a report recipient is configured.
func (r *Report) Enabled() bool {
	return r.MailTo != ""
}

// GetFrom returns the envelope sender, defaulting to the SMTP username.
func (r *Report) GetFrom() string {
	if r.From == "" {
		return r.Username
	}
	return r.From
}

// GetOutputDir returns the output directory, defaulting to "reports".
func (c *Config) GetOutputDir() string {
	if c.OutputDir == "" {
		return "reports"
	}
	return c.OutputDir
}

// GetPrefix returns the artifact name prefix, defaulting to "MailStats".
func (c *Config) GetPrefix() string {
	if c.Prefix == "" {
		return "MailStats"
	}
	return c.Prefix
}

// GetSkipFolders returns the skip patterns, defaulting to DefaultSkipFolders.
func (c *Config) GetSkipFolders() []string {
	if c.SkipFolders == nil {
		return DefaultSkipFolders
	}
	return c.SkipFolders
}

// GetTestLimit returns the record cap of a test run, or 0 outside test mode.
func (c *Config) GetTestLimit() int {
	if !c.TestMode {
		return 0
	}
	if c.TestLimit <= 0 {
		return 100
	}
	return c.TestLimit
}

// GetPort returns the configured port or the protocol default.
func (s *Store) GetPort() int {
	if s.Port > 0 {
		return s.Port
	}
	switch s.Type {
	case "imap":
		if s.UseTLS {
			return 993
		}
		return 143
	case "pop3":
		if s.UseTLS {
			return 995
		}
		return 110
	}
	return 0
}

// GetName returns the store's display name, defaulting to the host or path.
func (s *Store) GetName() string {
	switch {
	case s.Name != "":
		return s.Name
	case s.Host != "":
		return s.Host
	default:
		return s.Path
	}
}

// Window is the resolved scan window. A zero End leaves it open.
type Window struct {
	Start time.Time
	End   time.Time
}

// Window resolves the configured dates relative to now. Explicit dates win;
// otherwise the window reaches back YearsBack/MonthsBack (one year when
// neither is set) and ends now. An explicit end date includes that whole day.
func (c *Config) Window(now time.Time) (Window, error) {
	var w Window
	loc := now.Location()

	if c.Start != "" {
		start, err := ParseDate(c.Start, loc)
		if err != nil {
			return w, fmt.Errorf("start: %w", err)
		}
		w.Start = start
	} else {
		years, months := c.YearsBack, c.MonthsBack
		if years == 0 && months == 0 {
			years = 1
		}
		w.Start = now.AddDate(-years, -months, 0)
	}

	if c.End != "" {
		end, err := ParseDate(c.End, loc)
		if err != nil {
			return w, fmt.Errorf("end: %w", err)
		}
		w.End = end.AddDate(0, 0, 1).Add(-time.Nanosecond)
	} else {
		w.End = now
	}

	if w.End.Before(w.Start) {
		return w, fmt.Errorf("end %s is before start %s", w.End.Format(DateLayout), w.Start.Format(DateLayout))
	}
	return w, nil
}

// ParseDate parses a DateLayout date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(s), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q: %w", s, ErrInvalidDate)
	}
	return t, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		LogLevel: "info",
	}
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration after flags have been applied.
func (c *Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel)
	}
	for i, s := range c.Stores {
		label := s.Name
		if label == "" {
			label = fmt.Sprintf("#%d", i)
		}
		switch s.Type {
		case "mbox":
			if s.Path == "" {
				return fmt.Errorf("store %s: path is required", label)
			}
		case "imap", "pop3":
			if s.Host == "" {
				return fmt.Errorf("store %s: host is required", label)
			}
			if s.Username == "" {
				return fmt.Errorf("store %s: username is required", label)
			}
		default:
			return fmt.Errorf("store %s: type must be mbox, imap or pop3", label)
		}
	}
	if c.YearsBack < 0 || c.MonthsBack < 0 {
		return fmt.Errorf("years_back and months_back must not be negative")
	}
	if c.TestLimit < 0 {
		return fmt.Errorf("test_limit must not be negative")
	}
	if c.Report.Enabled() {
		if c.Report.Host == "" {
			return fmt.Errorf("report.host is required")
		}
		if c.Report.Port == 0 {
			return fmt.Errorf("report.port is required")
		}
	}
	return nil
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/tracyhatemice/gomailstat/internal/config"
	"github.com/tracyhatemice/gomailstat/internal/credential"
	"github.com/tracyhatemice/gomailstat/internal/export"
	"github.com/tracyhatemice/gomailstat/internal/history"
	"github.com/tracyhatemice/gomailstat/internal/mailstore"
	"github.com/tracyhatemice/gomailstat/internal/prompt"
	"github.com/tracyhatemice/gomailstat/internal/runner"
	"github.com/tracyhatemice/gomailstat/internal/sender"
	"github.com/tracyhatemice/gomailstat/internal/walker"
)

type flags struct {
	config    string
	mailboxes string
	template  string
	out       string
	prefix    string
	start     string
	end       string
	years     int
	months    int
	quiet     bool
	test      bool
	testLimit int
	noPrompt  bool
	logLevel  string
	mailTo    string
	history   string
	listRuns  int
}

func parseFlags() *flags {
	f := &flags{}
	flag.StringVar(&f.config, "config", "config.yaml", "path to configuration file")
	flag.StringVar(&f.mailboxes, "mailbox", "", "mailbox name(s) to scan, comma-separated")
	flag.StringVar(&f.template, "template", "", "workbook template to copy")
	flag.StringVar(&f.out, "out", "", "output directory")
	flag.StringVar(&f.prefix, "prefix", "", "output file name prefix")
	flag.StringVar(&f.start, "start", "", "start date ("+config.DateLayout+")")
	flag.StringVar(&f.end, "end", "", "end date ("+config.DateLayout+"), inclusive")
	flag.IntVar(&f.years, "years", 0, "years back from today when no start date is given")
	flag.IntVar(&f.months, "months", 0, "months back from today when no start date is given")
	flag.BoolVar(&f.quiet, "quiet", false, "suppress per-folder progress")
	flag.BoolVar(&f.test, "test", false, "test mode: stop after a few records")
	flag.IntVar(&f.testLimit, "test-limit", 0, "record cap in test mode")
	flag.BoolVar(&f.noPrompt, "no-prompt", false, "never ask which mailboxes to scan")
	flag.StringVar(&f.logLevel, "log-level", "", "debug, info, warn or error")
	flag.StringVar(&f.mailTo, "mail-to", "", "mail the workbook to these addresses")
	flag.StringVar(&f.history, "history", "", "SQLite run history database")
	flag.IntVar(&f.listRuns, "list-runs", 0, "print the last N recorded runs and exit")
	flag.Parse()
	return f
}

func main() {
	f := parseFlags()

	cfg, err := loadConfig(f)
	if err != nil {
		fatal(err)
	}

	runID := uuid.NewString()
	logger := setupLogger(cfg.LogLevel).With("run", runID)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if f.listRuns > 0 {
		if err := listRuns(ctx, cfg.HistoryDB, f.listRuns); err != nil {
			fatal(err)
		}
		return
	}

	if err := run(ctx, cfg, runID, logger); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// loadConfig reads the config file, if any, and applies flag overrides.
func loadConfig(f *flags) (*config.Config, error) {
	cfg := config.Default()
	if _, err := os.Stat(f.config); err == nil {
		if cfg, err = config.Load(f.config); err != nil {
			return nil, err
		}
	} else if isSet("config") {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if f.mailboxes != "" {
		cfg.Mailboxes = splitList(f.mailboxes)
	}
	if f.template != "" {
		cfg.Template = f.template
	}
	if f.out != "" {
		cfg.OutputDir = f.out
	}
	if f.prefix != "" {
		cfg.Prefix = f.prefix
	}
	if f.start != "" {
		cfg.Start = f.start
	}
	if f.end != "" {
		cfg.End = f.end
	}
	if f.years > 0 || f.months > 0 {
		cfg.YearsBack, cfg.MonthsBack = f.years, f.months
		if f.start == "" {
			cfg.Start = ""
		}
	}
	if f.quiet {
		cfg.Quiet = true
	}
	if f.test {
		cfg.TestMode = true
	}
	if f.testLimit > 0 {
		cfg.TestMode = true
		cfg.TestLimit = f.testLimit
	}
	if f.noPrompt {
		cfg.NoPrompt = true
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.mailTo != "" {
		cfg.Report.MailTo = f.mailTo
	}
	if f.history != "" {
		cfg.HistoryDB = f.history
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func run(ctx context.Context, cfg *config.Config, runID string, logger *slog.Logger) error {
	if len(cfg.Stores) == 0 {
		return errors.New("no mail stores configured")
	}
	window, err := cfg.Window(time.Now())
	if err != nil {
		return err
	}
	if err := export.CheckTemplate(cfg.Template); err != nil {
		return err
	}

	logger.Info("gomailstat starting",
		"stores", len(cfg.Stores),
		"start", window.Start.Format(config.DateLayout),
		"end", window.End.Format(config.DateLayout),
		"test_limit", cfg.GetTestLimit(),
	)

	creds := credential.New()
	var stores []mailstore.Store
	defer func() {
		for _, s := range stores {
			if err := s.Close(); err != nil {
				logger.Warn("close store", "error", err)
			}
		}
	}()
	for _, sc := range cfg.Stores {
		s, err := newStore(ctx, sc, creds, window, logger)
		if err != nil {
			return fmt.Errorf("connect store %s: %w", sc.GetName(), err)
		}
		stores = append(stores, s)
	}

	w := walker.New(walker.Options{
		Window:    walker.Window{Start: window.Start, End: window.End},
		Skip:      walker.NewSkipPolicy(cfg.GetSkipFolders()...),
		TestLimit: cfg.GetTestLimit(),
		Quiet:     cfg.Quiet,
	}, logger)
	exp := export.New(export.Options{
		Template: cfg.Template,
		OutDir:   cfg.GetOutputDir(),
		Prefix:   cfg.GetPrefix(),
	}, logger)

	opts := runner.Options{RunID: runID, Window: walker.Window{Start: window.Start, End: window.End}}
	if cfg.HistoryDB != "" {
		h, err := history.Open(cfg.HistoryDB)
		if err != nil {
			logger.Warn("run history unavailable", "path", cfg.HistoryDB, "error", err)
		} else {
			defer h.Close()
			opts.History = h
		}
	}
	if cfg.Report.Enabled() {
		password, err := credential.Resolve(creds, "smtp:"+cfg.Report.Username, cfg.Report.Password)
		if err != nil && cfg.Report.Username != "" {
			logger.Warn("no SMTP password found", "username", cfg.Report.Username, "error", err)
		}
		opts.Reporter = sender.New(
			cfg.Report.Host,
			cfg.Report.Port,
			cfg.Report.Username,
			password,
			cfg.Report.GetFrom(),
			cfg.Report.UseTLS,
			logger,
		)
		opts.MailTo = cfg.Report.MailTo
	}

	r := runner.New(stores, w, exp, opts, logger)

	mailboxes := cfg.Mailboxes
	if len(mailboxes) == 0 {
		available, err := r.Mailboxes(ctx)
		if err != nil {
			return err
		}
		if !cfg.NoPrompt && prompt.Interactive() {
			if mailboxes, err = prompt.SelectMailboxes(available); err != nil {
				return err
			}
		} else {
			mailboxes = available
		}
	}

	sum, err := r.Run(ctx, mailboxes)
	if err != nil {
		return err
	}
	if sum.Artifact != nil {
		logger.Info("done", "path", sum.Artifact.Path, "rows", sum.Artifact.Rows, "result", sum.Result)
	} else {
		logger.Info("done, no workbook written", "result", sum.Result)
	}
	return nil
}

func newStore(ctx context.Context, sc config.Store, creds credential.Getter, window config.Window, logger *slog.Logger) (mailstore.Store, error) {
	if sc.Type == "mbox" {
		return mailstore.NewMbox(sc.Path, logger), nil
	}

	password, err := credential.Resolve(creds, sc.GetName(), sc.Password)
	if err != nil {
		return nil, err
	}
	switch sc.Type {
	case "imap":
		s := mailstore.NewIMAP(
			sc.GetName(), sc.Host, sc.GetPort(),
			sc.Username, password,
			sc.UseTLS, window.Start, window.End, logger,
		)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	case "pop3":
		s := mailstore.NewPOP3(
			sc.GetName(), sc.Host, sc.GetPort(),
			sc.Username, password,
			sc.UseTLS, logger,
		)
		if err := s.Connect(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s", sc.Type)
	}
}

func listRuns(ctx context.Context, path string, n int) error {
	if path == "" {
		return errors.New("no history database configured")
	}
	h, err := history.Open(path)
	if err != nil {
		return err
	}
	defer h.Close()

	runs, err := h.Runs(ctx, n)
	if err != nil {
		return err
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %-17s %5d records  %s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.ID, r.Result, r.Records, r.Artifact)
	}
	return nil
}

func setupLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func isSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

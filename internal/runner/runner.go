// Package runner drives one statistics run: walk the requested mailboxes,
// export what was collected, then record and mail the result.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tracyhatemice/gomailstat/internal/export"
	"github.com/tracyhatemice/gomailstat/internal/history"
	"github.com/tracyhatemice/gomailstat/internal/mailstore"
	"github.com/tracyhatemice/gomailstat/internal/record"
	"github.com/tracyhatemice/gomailstat/internal/sender"
	"github.com/tracyhatemice/gomailstat/internal/walker"
)

// Exporter writes the collected records.
type Exporter interface {
	Export(records []record.MailRecord) (*export.Result, error)
}

// History stores a finished run.
type History interface {
	RecordRun(ctx context.Context, run history.Run, records []record.MailRecord) (string, error)
}

// Reporter mails a finished workbook.
type Reporter interface {
	Send(report sender.Report, to string) error
}

// Options configure a Runner. History and Reporter are optional.
type Options struct {
	RunID    string
	Window   walker.Window
	History  History
	Reporter Reporter
	MailTo   string
}

// Summary describes a completed run.
type Summary struct {
	RunID    string
	Result   walker.Result
	Stats    walker.Stats
	Walked   []string // mailboxes traversed
	Skipped  []string // mailboxes not found or without an inbox
	Records  int
	Artifact *export.Result // nil when nothing was exported
}

// Runner owns the stores and the traversal state of one run.
type Runner struct {
	stores   []mailstore.Store
	walker   *walker.Walker
	exporter Exporter
	opts     Options
	logger   *slog.Logger
	now      func() time.Time
}

// New creates a Runner over already connected stores.
func New(stores []mailstore.Store, w *walker.Walker, exp Exporter, opts Options, logger *slog.Logger) *Runner {
	return &Runner{
		stores:   stores,
		walker:   w,
		exporter: exp,
		opts:     opts,
		logger:   logger,
		now:      time.Now,
	}
}

// Mailboxes lists the mailbox names of every store, in store order.
func (r *Runner) Mailboxes(ctx context.Context) ([]string, error) {
	var names []string
	for _, s := range r.stores {
		n, err := s.Mailboxes(ctx)
		if err != nil {
			return nil, fmt.Errorf("list mailboxes: %w", err)
		}
		names = append(names, n...)
	}
	return names, nil
}

// Run walks the named mailboxes in order with one shared traversal and
// exports the records. Missing mailboxes and an empty result are reported
// but not treated as errors.
func (r *Runner) Run(ctx context.Context, mailboxes []string) (*Summary, error) {
	started := r.now()
	tr := walker.NewTraversal()
	sum := &Summary{RunID: r.opts.RunID}

	for _, name := range mailboxes {
		if tr.Stopped() {
			r.logger.Info("test limit reached, not opening further mailboxes", "mailbox", name)
			break
		}

		mb, err := r.open(ctx, name)
		if errors.Is(err, mailstore.ErrMailboxNotFound) {
			r.logger.Warn("mailbox not found, skipping", "mailbox", name)
			sum.Skipped = append(sum.Skipped, name)
			continue
		}
		if err != nil {
			return nil, err
		}

		if _, err := mailstore.FindInbox(ctx, mb); err != nil {
			r.logger.Warn("no inbox found, skipping mailbox", "mailbox", name, "error", err)
			sum.Skipped = append(sum.Skipped, name)
			continue
		}

		r.logger.Info("walking mailbox", "mailbox", mb.Name)
		res, err := r.walker.Walk(ctx, tr, mb)
		if err != nil {
			return nil, fmt.Errorf("walk mailbox %s: %w", mb.Name, err)
		}
		sum.Walked = append(sum.Walked, mb.Name)
		sum.Result = res
	}

	sum.Stats = tr.Stats
	sum.Records = len(tr.Records)
	r.logger.Info("traversal complete",
		"result", sum.Result,
		"records", sum.Records,
		"folders", tr.Stats.FoldersVisited,
		"skipped_folders", tr.Stats.FoldersSkipped,
		"unreadable_folders", tr.Stats.FoldersUnreadable,
		"identity_duplicates", tr.Stats.Duplicates,
		"out_of_window", tr.Stats.BeforeStart+tr.Stats.AfterEnd,
		"wrong_class", tr.Stats.WrongClass,
		"no_timestamp", tr.Stats.NoTimestamp,
	)

	art, err := r.exporter.Export(tr.Records)
	switch {
	case errors.Is(err, export.ErrNoRecords):
		r.logger.Warn("no qualifying mail found, nothing exported")
	case err != nil:
		return nil, fmt.Errorf("export: %w", err)
	default:
		sum.Artifact = art
	}

	r.record(ctx, started, sum, tr.Records)
	r.report(sum)
	return sum, nil
}

// open asks each store in turn for the mailbox.
func (r *Runner) open(ctx context.Context, name string) (*mailstore.Mailbox, error) {
	for _, s := range r.stores {
		mb, err := s.Open(ctx, name)
		if errors.Is(err, mailstore.ErrMailboxNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("open mailbox %s: %w", name, err)
		}
		return mb, nil
	}
	return nil, fmt.Errorf("%s: %w", name, mailstore.ErrMailboxNotFound)
}

func (r *Runner) record(ctx context.Context, started time.Time, sum *Summary, records []record.MailRecord) {
	if r.opts.History == nil {
		return
	}
	run := history.Run{
		ID:                r.opts.RunID,
		StartedAt:         started,
		FinishedAt:        r.now(),
		WindowStart:       r.opts.Window.Start,
		WindowEnd:         r.opts.Window.End,
		Mailboxes:         strings.Join(sum.Walked, ","),
		Result:            sum.Result.String(),
		Records:           sum.Records,
		FoldersVisited:    sum.Stats.FoldersVisited,
		FoldersSkipped:    sum.Stats.FoldersSkipped,
		FoldersUnreadable: sum.Stats.FoldersUnreadable,
		WrongClass:        sum.Stats.WrongClass,
		NoTimestamp:       sum.Stats.NoTimestamp,
		BeforeStart:       sum.Stats.BeforeStart,
		AfterEnd:          sum.Stats.AfterEnd,
		IdentityDups:      sum.Stats.Duplicates,
	}
	if sum.Artifact != nil {
		run.Duplicates = sum.Artifact.Duplicates
		run.Artifact = sum.Artifact.Path
	}
	id, err := r.opts.History.RecordRun(ctx, run, records)
	if err != nil {
		r.logger.Warn("recording run history failed", "error", err)
		return
	}
	sum.RunID = id
}

func (r *Runner) report(sum *Summary) {
	if r.opts.Reporter == nil || r.opts.MailTo == "" || sum.Artifact == nil {
		return
	}
	rep := sender.Report{
		Path:    sum.Artifact.Path,
		Subject: fmt.Sprintf("Mail statistics: %d messages", sum.Artifact.Rows),
		Summary: Describe(sum),
	}
	if err := r.opts.Reporter.Send(rep, r.opts.MailTo); err != nil {
		r.logger.Warn("mailing report failed", "to", r.opts.MailTo, "error", err)
	}
}

// Describe renders a plain-text summary of a run.
func Describe(sum *Summary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mailboxes: %s\n", strings.Join(sum.Walked, ", "))
	if len(sum.Skipped) > 0 {
		fmt.Fprintf(&b, "Skipped: %s\n", strings.Join(sum.Skipped, ", "))
	}
	fmt.Fprintf(&b, "Result: %s\n", sum.Result)
	fmt.Fprintf(&b, "Records: %d\n", sum.Records)
	if sum.Artifact != nil {
		fmt.Fprintf(&b, "Flagged duplicates: %d\n", sum.Artifact.Duplicates)
	}
	fmt.Fprintf(&b, "Folders scanned: %d (skipped %d, unreadable %d)\n",
		sum.Stats.FoldersVisited, sum.Stats.FoldersSkipped, sum.Stats.FoldersUnreadable)
	return b.String()
}

// Package walker traverses mailbox folder trees and collects the items that
// qualify for statistics.
package walker

import (
	"context"
	"errors"
	"log/slog"

	"github.com/tracyhatemice/gomailstat/internal/mailstore"
	"github.com/tracyhatemice/gomailstat/internal/record"
)

// Result tells how a walk ended. Both results are complete: the records
// collected so far are the output of the run.
type Result int

const (
	Finished Result = iota
	FinishedByLimit
)

func (r Result) String() string {
	if r == FinishedByLimit {
		return "finished-by-limit"
	}
	return "finished"
}

var errStop = errors.New("test limit reached")

// Options configure a Walker.
type Options struct {
	Window Window
	Skip   SkipPolicy
	// TestLimit caps the number of records collected by a run; 0 disables
	// test mode.
	TestLimit int
	// Quiet demotes per-folder progress to debug level.
	Quiet bool
}

// Walker drives the depth-first traversal of a mailbox.
type Walker struct {
	opts   Options
	logger *slog.Logger
}

// New creates a Walker.
func New(opts Options, logger *slog.Logger) *Walker {
	return &Walker{opts: opts, logger: logger}
}

// Walk visits every folder of mb in store order, depth first, appending
// qualifying records to tr. It returns FinishedByLimit as soon as the test
// limit is reached; later calls on the same traversal return immediately.
// Folders that cannot be read are logged and skipped.
func (w *Walker) Walk(ctx context.Context, tr *Traversal, mb *mailstore.Mailbox) (Result, error) {
	stack := []mailstore.Folder{mb.Root}
	for len(stack) > 0 {
		if tr.stopped {
			return FinishedByLimit, nil
		}
		if err := ctx.Err(); err != nil {
			return Finished, err
		}

		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if pattern, ok := w.opts.Skip.Match(folder.Path()); ok {
			tr.Stats.FoldersSkipped++
			w.logger.Debug("skipping folder", "path", folder.Path(), "pattern", pattern)
			continue
		}

		tr.Stats.FoldersVisited++
		w.progress("scanning folder", "path", folder.Path(), "records", len(tr.Records))

		err := folder.Items(ctx, func(item *mailstore.Item) error {
			w.visit(tr, mb, folder, item)
			if tr.stopped {
				return errStop
			}
			return nil
		})
		switch {
		case errors.Is(err, errStop):
			w.logger.Info("test limit reached", "limit", w.opts.TestLimit, "path", folder.Path())
			return FinishedByLimit, nil
		case err != nil:
			if ctx.Err() != nil {
				return Finished, ctx.Err()
			}
			tr.Stats.FoldersUnreadable++
			w.logger.Warn("cannot read folder items", "path", folder.Path(), "error", err)
		}

		children, err := folder.Children(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return Finished, ctx.Err()
			}
			tr.Stats.FoldersUnreadable++
			w.logger.Warn("cannot list child folders", "path", folder.Path(), "error", err)
			continue
		}
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}
	if tr.stopped {
		return FinishedByLimit, nil
	}
	return Finished, nil
}

func (w *Walker) visit(tr *Traversal, mb *mailstore.Mailbox, folder mailstore.Folder, item *mailstore.Item) {
	if reason := Check(item.Class, item.SentOn, w.opts.Window); reason != Accepted {
		tr.reject(reason)
		return
	}
	if !tr.Tracker.Admit(item.EntryID) {
		tr.Stats.Duplicates++
		return
	}
	tr.Records = append(tr.Records, record.Build(item, mb.Name, folder.Path()))

	if w.opts.TestLimit > 0 {
		tr.Stats.TestAdmitted++
		if tr.Stats.TestAdmitted >= w.opts.TestLimit {
			tr.stopped = true
		}
	}
}

func (w *Walker) progress(msg string, args ...any) {
	if w.opts.Quiet {
		w.logger.Debug(msg, args...)
		return
	}
	w.logger.Info(msg, args...)
}

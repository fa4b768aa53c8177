package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tracyhatemice/gomailstat/internal/export"
	"github.com/tracyhatemice/gomailstat/internal/history"
	"github.com/tracyhatemice/gomailstat/internal/mailstore"
	"github.com/tracyhatemice/gomailstat/internal/sender"
	"github.com/tracyhatemice/gomailstat/internal/walker"
)

func message(id, from, subject string, sent time.Time) string {
	return fmt.Sprintf("From %s %s\n"+
		"From: %s <%s@example.com>\n"+
		"To: team@example.com\n"+
		"Subject: %s\n"+
		"Date: %s\n"+
		"Message-ID: <%s@example.com>\n"+
		"\n"+
		"status update for %s\n"+
		"\n",
		strings.ToLower(from), sent.Format(time.ANSIC),
		from, strings.ToLower(from), subject, sent.Format(time.RFC1123Z), id, subject)
}

func put(t *testing.T, root string, rel string, messages ...string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Join(messages, "")), 0o644); err != nil {
		t.Fatal(err)
	}
}

var day = time.Date(2024, 5, 10, 8, 30, 0, 0, time.UTC)

func profile(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	put(t, root, "Work/Inbox",
		message("m1", "Ann", "Budget", day),
		message("m2", "Bob", "Lunch", day.Add(27*time.Hour)),
		message("old", "Ann", "Ancient", time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)),
	)
	put(t, root, "Work/Archive",
		message("m1", "Ann", "Budget", day),
		message("m3", "Ann", "Budget", day.Add(40*time.Second)),
	)
	put(t, root, "Work/Deleted Items", message("m4", "Eve", "Gone", day))
	put(t, root, "Home/Inbox", message("h1", "Dad", "Dinner", day.Add(time.Hour)))
	put(t, root, "Shared/Archive", message("s1", "Ann", "Old news", day))
	return root
}

type fakeReporter struct {
	sent []sender.Report
	to   []string
	err  error
}

func (f *fakeReporter) Send(r sender.Report, to string) error {
	f.sent = append(f.sent, r)
	f.to = append(f.to, to)
	return f.err
}

func logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newRunner(t *testing.T, limit int, opts Options) (*Runner, string) {
	t.Helper()
	out := filepath.Join(t.TempDir(), "out")
	w := walker.New(walker.Options{
		Window:    walker.Window{Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		Skip:      walker.NewSkipPolicy("Deleted"),
		TestLimit: limit,
	}, logger())
	exp := export.New(export.Options{OutDir: out, Location: time.UTC}, logger())
	stores := []mailstore.Store{mailstore.NewMbox(profile(t), logger())}
	return New(stores, w, exp, opts, logger()), out
}

func TestRun(t *testing.T) {
	ctx := context.Background()
	hist, err := history.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	defer hist.Close()
	rep := &fakeReporter{}

	r, _ := newRunner(t, 0, Options{RunID: "run-1", History: hist, Reporter: rep, MailTo: "boss@example.com"})
	sum, err := r.Run(ctx, []string{"Work", "Ghost", "Shared"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if diff := cmp.Diff([]string{"Work"}, sum.Walked); diff != "" {
		t.Errorf("Walked mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"Ghost", "Shared"}, sum.Skipped); diff != "" {
		t.Errorf("Skipped mismatch (-want +got):\n%s", diff)
	}
	if sum.Result != walker.Finished || sum.Records != 3 {
		t.Errorf("Run() = %s with %d records, want finished with 3", sum.Result, sum.Records)
	}
	if sum.Stats.Duplicates != 1 || sum.Stats.BeforeStart != 1 || sum.Stats.FoldersSkipped != 1 {
		t.Errorf("Stats = %+v", sum.Stats)
	}
	if sum.Artifact == nil || sum.Artifact.Rows != 3 || sum.Artifact.Duplicates != 1 {
		t.Fatalf("Artifact = %+v, want 3 rows with 1 duplicate", sum.Artifact)
	}
	if _, err := os.Stat(sum.Artifact.Path); err != nil {
		t.Errorf("artifact missing: %v", err)
	}

	runs, err := hist.Runs(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != "run-1" || runs[0].Records != 3 || runs[0].Artifact != sum.Artifact.Path {
		t.Errorf("history = %+v", runs)
	}
	entries, err := hist.Entries(ctx, "run-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Errorf("history holds %d records, want 3", len(entries))
	}

	if len(rep.sent) != 1 || rep.to[0] != "boss@example.com" || rep.sent[0].Path != sum.Artifact.Path {
		t.Errorf("reports = %+v to %v", rep.sent, rep.to)
	}
}

func TestRunStopsAtTestLimit(t *testing.T) {
	r, _ := newRunner(t, 2, Options{})
	sum, err := r.Run(context.Background(), []string{"Work", "Home"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Result != walker.FinishedByLimit || sum.Records != 2 {
		t.Errorf("Run() = %s with %d records, want finished-by-limit with 2", sum.Result, sum.Records)
	}
	if diff := cmp.Diff([]string{"Work"}, sum.Walked); diff != "" {
		t.Errorf("Walked mismatch (-want +got):\n%s", diff)
	}
}

func TestRunWithoutRecords(t *testing.T) {
	rep := &fakeReporter{}
	r, out := newRunner(t, 0, Options{Reporter: rep, MailTo: "boss@example.com"})
	sum, err := r.Run(context.Background(), []string{"Shared", "Nobody"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Artifact != nil {
		t.Errorf("Artifact = %+v, want none", sum.Artifact)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Errorf("output dir created for an empty run: %v", err)
	}
	if len(rep.sent) != 0 {
		t.Errorf("report mailed for an empty run")
	}
}

func TestRunReportFailureIsNotFatal(t *testing.T) {
	rep := &fakeReporter{err: errors.New("relay down")}
	r, _ := newRunner(t, 0, Options{Reporter: rep, MailTo: "boss@example.com"})
	sum, err := r.Run(context.Background(), []string{"Home"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if sum.Artifact == nil || len(rep.sent) != 1 {
		t.Errorf("Artifact = %+v, reports = %d", sum.Artifact, len(rep.sent))
	}
}

func TestMailboxes(t *testing.T) {
	r, _ := newRunner(t, 0, Options{})
	names, err := r.Mailboxes(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"Home", "Shared", "Work"}, names); diff != "" {
		t.Errorf("Mailboxes() mismatch (-want +got):\n%s", diff)
	}
}

func TestDescribe(t *testing.T) {
	got := Describe(&Summary{
		Walked:   []string{"Work", "Home"},
		Skipped:  []string{"Ghost"},
		Result:   walker.FinishedByLimit,
		Records:  5,
		Stats:    walker.Stats{FoldersVisited: 4, FoldersSkipped: 1},
		Artifact: &export.Result{Duplicates: 2},
	})
	want := "Mailboxes: Work, Home\n" +
		"Skipped: Ghost\n" +
		"Result: finished-by-limit\n" +
		"Records: 5\n" +
		"Flagged duplicates: 2\n" +
		"Folders scanned: 4 (skipped 1, unreadable 0)\n"
	if got != want {
		t.Errorf("Describe() =\n%s\nwant\n%s", got, want)
	}
}

package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tracyhatemice/gomailstat/internal/record"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRecordRun(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	start := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	run := Run{
		StartedAt:      start,
		FinishedAt:     start.Add(2 * time.Minute),
		WindowStart:    time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC),
		WindowEnd:      start,
		Mailboxes:      "Work,Home",
		Result:         "finished",
		Records:        2,
		Duplicates:     1,
		FoldersVisited: 7,
		WrongClass:     3,
		Artifact:       "reports/MailStats_20240701_090200.xlsx",
	}
	records := []record.MailRecord{
		{EntryID: "a", StoreID: "s", Mailbox: "Work", FolderPath: "Work/Inbox", SentOn: start.Add(-time.Hour), Sender: "Ann", Subject: "Hi", WordCount: 2, Recipients: "Bob"},
		{EntryID: "b", StoreID: "s", Mailbox: "Home", FolderPath: "Home/Inbox", SentOn: start.Add(-2 * time.Hour), Sender: "Cy", BehalfOf: "Di", Subject: "Yo"},
	}

	id, err := s.RecordRun(ctx, run, records)
	if err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	if id == "" {
		t.Fatal("RecordRun() returned an empty id")
	}

	runs, err := s.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	run.ID = id
	timeEq := cmp.Comparer(func(a, b time.Time) bool { return a.Equal(b) })
	if diff := cmp.Diff([]Run{run}, runs, timeEq); diff != "" {
		t.Errorf("Runs() mismatch (-want +got):\n%s", diff)
	}

	entries, err := s.Entries(ctx, id)
	if err != nil {
		t.Fatalf("Entries() error: %v", err)
	}
	want := []Entry{
		{RunID: id, Seq: 0, EntryID: "a", StoreID: "s", Mailbox: "Work", FolderPath: "Work/Inbox", SentOn: start.Add(-time.Hour), Sender: "Ann", Subject: "Hi", WordCount: 2, Recipients: "Bob"},
		{RunID: id, Seq: 1, EntryID: "b", StoreID: "s", Mailbox: "Home", FolderPath: "Home/Inbox", SentOn: start.Add(-2 * time.Hour), Sender: "Cy", BehalfOf: "Di", Subject: "Yo"},
	}
	if diff := cmp.Diff(want, entries, timeEq); diff != "" {
		t.Errorf("Entries() mismatch (-want +got):\n%s", diff)
	}
}

func TestRunsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Hour)
		if _, err := s.RecordRun(ctx, Run{ID: id, StartedAt: at, FinishedAt: at, WindowStart: base, WindowEnd: at, Result: "finished"}, nil); err != nil {
			t.Fatalf("RecordRun(%s) error: %v", id, err)
		}
	}

	runs, err := s.Runs(ctx, 2)
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{"third", "second"}, ids); diff != "" {
		t.Errorf("Runs() order mismatch (-want +got):\n%s", diff)
	}
}

func TestReopenKeepsSchema(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if _, err := s.RecordRun(ctx, Run{ID: "r1", StartedAt: at, FinishedAt: at, WindowStart: at, WindowEnd: at, Result: "finished"}, nil); err != nil {
		t.Fatalf("RecordRun() error: %v", err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("second Open() error: %v", err)
	}
	defer s.Close()

	runs, err := s.Runs(ctx, 0)
	if err != nil {
		t.Fatalf("Runs() error: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" {
		t.Errorf("runs after reopen = %+v, want only r1", runs)
	}
}

package mailstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapserver"
	"github.com/emersion/go-imap/v2/imapserver/imapmemserver"
	"github.com/google/go-cmp/cmp"
)

func imapMessage(id string, sent time.Time) []byte {
	return crlf(
		"From: Ann <ann@example.com>",
		"To: bob@example.com",
		"Subject: report "+id,
		"Date: "+sent.Format(time.RFC1123Z),
		"Message-ID: <"+id+"@example.com>",
		"",
		"body of "+id,
	)
}

// startIMAP serves user over loopback and returns the listener address.
func startIMAP(t *testing.T, user *imapmemserver.User) (string, int) {
	t.Helper()
	mem := imapmemserver.New()
	mem.AddUser(user)

	srv := imapserver.New(&imapserver.Options{
		NewSession: func(*imapserver.Conn) (imapserver.Session, *imapserver.GreetingData, error) {
			return mem.NewSession(), nil, nil
		},
		InsecureAuth: true,
		Caps: imap.CapSet{
			imap.CapIMAP4rev1: {},
			imap.CapIMAP4rev2: {},
		},
	})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() { srv.Close() })

	host, port, _ := net.SplitHostPort(ln.Addr().String())
	n, _ := strconv.Atoi(port)
	return host, n
}

func appendMessage(t *testing.T, user *imapmemserver.User, mailbox string, raw []byte, arrived time.Time) {
	t.Helper()
	if _, err := user.Append(mailbox, bytes.NewReader(raw), &imap.AppendOptions{Time: arrived}); err != nil {
		t.Fatalf("append to %s: %v", mailbox, err)
	}
}

// newIMAPAccount creates INBOX, Work and Archive/2024. Archive itself is
// never created, so the server does not list it.
func newIMAPAccount(t *testing.T) *IMAPStore {
	t.Helper()
	user := imapmemserver.NewUser("ann", "secret")
	for _, name := range []string{"INBOX", "Work", "Archive/2024"} {
		if err := user.Create(name, nil); err != nil {
			t.Fatal(err)
		}
	}

	day := func(m time.Month, d int) time.Time { return time.Date(2024, m, d, 12, 0, 0, 0, time.UTC) }
	appendMessage(t, user, "INBOX", imapMessage("a", day(4, 29)), day(4, 29))
	appendMessage(t, user, "INBOX", imapMessage("b", day(5, 10)), day(5, 10))
	appendMessage(t, user, "INBOX", imapMessage("c", day(5, 31)), day(6, 1))
	appendMessage(t, user, "INBOX", imapMessage("d", day(6, 5)), day(6, 5))
	appendMessage(t, user, "Archive/2024", imapMessage("e", day(5, 2)), day(5, 2))

	host, port := startIMAP(t, user)
	s := NewIMAP("Acme", host, port, "ann", "secret", false,
		time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 5, 31, 0, 0, 0, 0, time.UTC),
		testLogger())
	if err := s.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func folderPaths(t *testing.T, f Folder) []string {
	t.Helper()
	var out []string
	children, err := f.Children(context.Background())
	if err != nil {
		t.Fatalf("Children(%s) error: %v", f.Path(), err)
	}
	for _, c := range children {
		out = append(out, c.Path())
		out = append(out, folderPaths(t, c)...)
	}
	return out
}

func collectIDs(t *testing.T, f Folder) []string {
	t.Helper()
	var ids []string
	err := f.Items(context.Background(), func(it *Item) error {
		ids = append(ids, it.EntryID)
		return nil
	})
	if err != nil {
		t.Fatalf("Items(%s) error: %v", f.Path(), err)
	}
	return ids
}

func TestIMAPOpen(t *testing.T) {
	ctx := context.Background()
	s := newIMAPAccount(t)

	if _, err := s.Open(ctx, "Other"); !errors.Is(err, ErrMailboxNotFound) {
		t.Errorf("Open(Other) error = %v, want ErrMailboxNotFound", err)
	}

	mb, err := s.Open(ctx, "acme")
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if mb.Name != "Acme" || mb.StoreID != "imap://ann@127.0.0.1" {
		t.Errorf("mailbox = %q (%q)", mb.Name, mb.StoreID)
	}

	want := []string{"Acme/Archive", "Acme/Archive/2024", "Acme/INBOX", "Acme/Work"}
	if diff := cmp.Diff(want, folderPaths(t, mb.Root)); diff != "" {
		t.Errorf("folder tree mismatch (-want +got):\n%s", diff)
	}

	top, err := mb.Root.Children(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ids := collectIDs(t, top[0]); len(ids) != 0 {
		t.Errorf("implied parent yielded %v", ids)
	}
	archive, err := top[0].Children(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"e@example.com"}, collectIDs(t, archive[0])); diff != "" {
		t.Errorf("Archive/2024 items mismatch (-want +got):\n%s", diff)
	}
}

func TestIMAPItemsSearchHorizon(t *testing.T) {
	ctx := context.Background()
	s := newIMAPAccount(t)
	mb, err := s.Open(ctx, "Acme")
	if err != nil {
		t.Fatal(err)
	}
	inbox, err := FindInbox(ctx, mb)
	if err != nil {
		t.Fatalf("FindInbox() error: %v", err)
	}

	// a arrived two days before the window and d five days after it. c
	// arrived the day after the end, inside the search slack.
	want := []string{"b@example.com", "c@example.com"}
	if diff := cmp.Diff(want, collectIDs(t, inbox)); diff != "" {
		t.Errorf("inbox items mismatch (-want +got):\n%s", diff)
	}

	// Read-only SELECT with BODY.PEEK leaves nothing marked seen, so a
	// second pass sees the same items.
	if diff := cmp.Diff(want, collectIDs(t, inbox)); diff != "" {
		t.Errorf("second pass mismatch (-want +got):\n%s", diff)
	}
}

func TestIMAPItemsStopsOnCallbackError(t *testing.T) {
	ctx := context.Background()
	s := newIMAPAccount(t)
	mb, err := s.Open(ctx, "Acme")
	if err != nil {
		t.Fatal(err)
	}
	inbox, err := FindInbox(ctx, mb)
	if err != nil {
		t.Fatal(err)
	}

	stop := errors.New("stop")
	calls := 0
	err = inbox.Items(ctx, func(*Item) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("Items() = %v after %d calls, want stop after 1", err, calls)
	}

	// The connection stays usable after an aborted fetch.
	if ids := collectIDs(t, inbox); len(ids) != 2 {
		t.Errorf("Items() after abort = %v", ids)
	}
}

func TestIMAPFolderTree(t *testing.T) {
	s := NewIMAP("Acme", "localhost", 143, "ann", "", false, time.Time{}, time.Time{}, testLogger())
	root := s.folderTree([]*imap.ListData{
		{Mailbox: "INBOX", Delim: '.'},
		{Mailbox: "Projects", Delim: '.', Attrs: []imap.MailboxAttr{imap.MailboxAttrNoSelect}},
		{Mailbox: "Projects.Alpha", Delim: '.'},
		{Mailbox: "Lists.Go.Nuts", Delim: '.'},
		{Mailbox: "Flat"},
	})

	type node struct {
		Path       string
		Server     string
		Selectable bool
	}
	var got []node
	var walk func(f *imapFolder)
	walk = func(f *imapFolder) {
		for _, c := range f.children {
			got = append(got, node{c.path, c.server, c.selectable})
			walk(c)
		}
	}
	walk(root)

	want := []node{
		{"Acme/INBOX", "INBOX", true},
		{"Acme/Projects", "Projects", false},
		{"Acme/Projects/Alpha", "Projects.Alpha", true},
		{"Acme/Lists", "", false},
		{"Acme/Lists/Go", "", false},
		{"Acme/Lists/Go/Nuts", "Lists.Go.Nuts", true},
		{"Acme/Flat", "Flat", true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("folderTree() mismatch (-want +got):\n%s", diff)
	}

	// Unselectable folders are not selected.
	for _, c := range root.children {
		if c.name != "Projects" {
			continue
		}
		if err := c.Items(context.Background(), func(*Item) error { return fmt.Errorf("unexpected item") }); err != nil {
			t.Errorf("Items(Projects) error: %v", err)
		}
	}
}

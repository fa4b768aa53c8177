package mailstore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
)

const imapFetchBatch = 100

// IMAPStore exposes one IMAP account as a single mailbox.
type IMAPStore struct {
	name     string
	host     string
	port     int
	username string
	password string
	useTLS   bool
	since    time.Time
	before   time.Time
	logger   *slog.Logger

	client *imapclient.Client
}

// NewIMAP creates a store for the account. Messages outside [since, before)
// are never fetched; zero times leave that side open.
func NewIMAP(name, host string, port int, username, password string, useTLS bool, since, before time.Time, logger *slog.Logger) *IMAPStore {
	return &IMAPStore{
		name:     name,
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		since:    since,
		before:   before,
		logger:   logger,
	}
}

// Connect dials and authenticates. It is safe to call more than once.
func (s *IMAPStore) Connect(_ context.Context) error {
	if s.client != nil {
		return nil
	}
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	var client *imapclient.Client
	var err error
	if s.useTLS {
		client, err = imapclient.DialTLS(addr, &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: s.host},
		})
	} else {
		client, err = imapclient.DialInsecure(addr, nil)
	}
	if err != nil {
		return fmt.Errorf("imap connect %s: %w", addr, err)
	}

	if err := client.Login(s.username, s.password).Wait(); err != nil {
		client.Close()
		return fmt.Errorf("imap login %s: %w", s.username, err)
	}
	s.client = client
	return nil
}

func (s *IMAPStore) storeID() string {
	return fmt.Sprintf("imap://%s@%s", s.username, s.host)
}

func (s *IMAPStore) Mailboxes(_ context.Context) ([]string, error) {
	return []string{s.name}, nil
}

func (s *IMAPStore) Open(ctx context.Context, name string) (*Mailbox, error) {
	if !strings.EqualFold(name, s.name) {
		return nil, fmt.Errorf("%s: %w", name, ErrMailboxNotFound)
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}

	list, err := s.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("imap list: %w", err)
	}

	root := s.folderTree(list)
	s.logger.Debug("imap folders listed", "mailbox", s.name, "count", len(list))

	return &Mailbox{Name: s.name, StoreID: s.storeID(), Root: root}, nil
}

// folderTree arranges LIST results under a root named after the store,
// splitting names on the hierarchy delimiter. Parents the server does not
// list are implied and hold no items.
func (s *IMAPStore) folderTree(list []*imap.ListData) *imapFolder {
	root := &imapFolder{store: s, name: s.name, path: s.name}
	for _, data := range list {
		segments := []string{data.Mailbox}
		if data.Delim != 0 {
			segments = strings.Split(data.Mailbox, string(data.Delim))
		}
		node := root
		for i, seg := range segments {
			node = node.child(seg)
			if i == len(segments)-1 {
				node.server = data.Mailbox
				node.selectable = !hasAttr(data.Attrs, imap.MailboxAttrNoSelect)
			}
		}
	}
	return root
}

// Close logs out and drops the connection.
func (s *IMAPStore) Close() error {
	if s.client == nil {
		return nil
	}
	defer func() { s.client = nil }()
	if err := s.client.Logout().Wait(); err != nil {
		s.client.Close()
		return fmt.Errorf("imap logout: %w", err)
	}
	return s.client.Close()
}

func hasAttr(attrs []imap.MailboxAttr, want imap.MailboxAttr) bool {
	for _, a := range attrs {
		if strings.EqualFold(string(a), string(want)) {
			return true
		}
	}
	return false
}

type imapFolder struct {
	store      *IMAPStore
	name       string
	path       string
	server     string // server-side mailbox name, empty for implied parents
	selectable bool
	children   []*imapFolder
}

func (f *imapFolder) child(name string) *imapFolder {
	for _, c := range f.children {
		if c.name == name {
			return c
		}
	}
	c := &imapFolder{store: f.store, name: name, path: JoinPath(f.path, name)}
	f.children = append(f.children, c)
	return c
}

func (f *imapFolder) Name() string { return f.name }
func (f *imapFolder) Path() string { return f.path }

func (f *imapFolder) Children(_ context.Context) ([]Folder, error) {
	out := make([]Folder, 0, len(f.children))
	for _, c := range f.children {
		out = append(out, c)
	}
	return out, nil
}

func (f *imapFolder) Items(ctx context.Context, fn func(*Item) error) error {
	if f.server == "" || !f.selectable {
		return nil
	}
	client := f.store.client
	if client == nil {
		return fmt.Errorf("imap %s: not connected", f.path)
	}

	if _, err := client.Select(f.server, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return fmt.Errorf("imap select %s: %w", f.server, err)
	}

	criteria := &imap.SearchCriteria{}
	// SEARCH compares dates only, against the arrival date. Widen the
	// horizon by a day each side; items are filtered on their sent time.
	if !f.store.since.IsZero() {
		criteria.Since = f.store.since.AddDate(0, 0, -1)
	}
	if !f.store.before.IsZero() {
		criteria.Before = f.store.before.AddDate(0, 0, 2)
	}
	searchData, err := client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return fmt.Errorf("imap search %s: %w", f.server, err)
	}
	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		return nil
	}

	section := &imap.FetchItemBodySection{Peek: true}
	options := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}

	for start := 0; start < len(uids); start += imapFetchBatch {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(start+imapFetchBatch, len(uids))
		if err := f.fetchBatch(client, uids[start:end], options, section, fn); err != nil {
			return err
		}
	}
	return nil
}

func (f *imapFolder) fetchBatch(
	client *imapclient.Client,
	uids []imap.UID,
	options *imap.FetchOptions,
	section *imap.FetchItemBodySection,
	fn func(*Item) error,
) error {
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), options)
	defer fetchCmd.Close()

	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			f.store.logger.Warn("imap fetch failed", "folder", f.path, "error", err)
			continue
		}
		raw := buf.FindBodySection(section)
		if len(raw) == 0 {
			f.store.logger.Warn("empty message, skipping", "folder", f.path, "uid", buf.UID)
			continue
		}
		item, err := ParseMessage(raw, f.store.storeID())
		if err != nil {
			f.store.logger.Warn("skipping unreadable message", "folder", f.path, "uid", buf.UID, "error", err)
			continue
		}
		if err := fn(item); err != nil {
			return err
		}
	}

	if err := fetchCmd.Close(); err != nil {
		return fmt.Errorf("imap fetch %s: %w", f.server, err)
	}
	return nil
}

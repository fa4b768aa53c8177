package mailstore

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"

	pop3client "github.com/knadh/go-pop3"
)

// POP3Store exposes a POP3 maildrop as a mailbox with a single Inbox folder.
type POP3Store struct {
	name     string
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger

	conn *pop3client.Conn
}

// NewPOP3 creates a store for the account.
func NewPOP3(name, host string, port int, username, password string, useTLS bool, logger *slog.Logger) *POP3Store {
	return &POP3Store{
		name:     name,
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   logger,
	}
}

// Connect dials and authenticates. It is safe to call more than once.
func (s *POP3Store) Connect(_ context.Context) error {
	if s.conn != nil {
		return nil
	}
	addr := net.JoinHostPort(s.host, fmt.Sprintf("%d", s.port))

	client := pop3client.New(pop3client.Opt{
		Host:       s.host,
		Port:       s.port,
		TLSEnabled: s.useTLS,
	})
	conn, err := client.NewConn()
	if err != nil {
		return fmt.Errorf("pop3 connect %s: %w", addr, err)
	}
	if err := conn.Auth(s.username, s.password); err != nil {
		conn.Quit()
		return fmt.Errorf("pop3 auth %s: %w", s.username, err)
	}
	s.conn = conn
	return nil
}

func (s *POP3Store) storeID() string {
	return fmt.Sprintf("pop3://%s@%s", s.username, s.host)
}

func (s *POP3Store) Mailboxes(_ context.Context) ([]string, error) {
	return []string{s.name}, nil
}

func (s *POP3Store) Open(ctx context.Context, name string) (*Mailbox, error) {
	if !strings.EqualFold(name, s.name) {
		return nil, fmt.Errorf("%s: %w", name, ErrMailboxNotFound)
	}
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	inbox := &pop3Folder{store: s, name: "Inbox", path: JoinPath(s.name, "Inbox")}
	return &Mailbox{
		Name:    s.name,
		StoreID: s.storeID(),
		Root:    &pop3Folder{store: s, name: s.name, path: s.name, children: []Folder{inbox}},
	}, nil
}

// Close ends the POP3 session.
func (s *POP3Store) Close() error {
	if s.conn == nil {
		return nil
	}
	defer func() { s.conn = nil }()
	if err := s.conn.Quit(); err != nil {
		return fmt.Errorf("pop3 quit: %w", err)
	}
	return nil
}

type pop3Folder struct {
	store    *POP3Store
	name     string
	path     string
	children []Folder
}

func (f *pop3Folder) Name() string { return f.name }
func (f *pop3Folder) Path() string { return f.path }

func (f *pop3Folder) Children(_ context.Context) ([]Folder, error) {
	return f.children, nil
}

func (f *pop3Folder) Items(ctx context.Context, fn func(*Item) error) error {
	if f.children != nil {
		return nil
	}
	conn := f.store.conn
	if conn == nil {
		return fmt.Errorf("pop3 %s: not connected", f.path)
	}

	msgs, err := conn.List(0)
	if err != nil {
		return fmt.Errorf("pop3 list: %w", err)
	}
	f.store.logger.Debug("fetched message list", "folder", f.path, "count", len(msgs))

	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		rawBuf, err := conn.RetrRaw(msg.ID)
		if err != nil {
			f.store.logger.Warn("pop3 retrieve failed", "msg_id", msg.ID, "error", err)
			continue
		}
		item, err := ParseMessage(rawBuf.Bytes(), f.store.storeID())
		if err != nil {
			f.store.logger.Warn("skipping unreadable message", "folder", f.path, "msg_id", msg.ID, "error", err)
			continue
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

package mailstore

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-mbox"
	"github.com/google/uuid"
)

const maxMessageBytes = 12 << 20

// Files that live next to mbox files in a mail profile but are not folders.
var mboxIndexSuffixes = []string{".msf", ".dat", ".json", ".db", ".sqlite", ".html", ".txt", ".lock"}

// MboxStore reads a directory of mailboxes laid out like a Thunderbird
// profile: each subdirectory of the root is a mailbox, each mbox file is a
// folder and a folder's children live in a sibling "<name>.sbd" directory.
type MboxStore struct {
	root   string
	logger *slog.Logger
}

// NewMbox creates a store rooted at dir.
func NewMbox(dir string, logger *slog.Logger) *MboxStore {
	return &MboxStore{root: dir, logger: logger}
}

// Mailboxes returns the names of the mailbox directories under the root.
func (s *MboxStore) Mailboxes(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read mail root %s: %w", s.root, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// Open returns the mailbox stored in the named subdirectory.
func (s *MboxStore) Open(ctx context.Context, name string) (*Mailbox, error) {
	names, err := s.Mailboxes(ctx)
	if err != nil {
		return nil, err
	}
	match := ""
	for _, n := range names {
		if n == name {
			match = n
			break
		}
		if match == "" && strings.EqualFold(n, name) {
			match = n
		}
	}
	if match == "" {
		return nil, fmt.Errorf("%s: %w", name, ErrMailboxNotFound)
	}

	dir := filepath.Join(s.root, match)
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	storeID := uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()

	return &Mailbox{
		Name:    match,
		StoreID: storeID,
		Root: &mboxFolder{
			name:    match,
			path:    match,
			dir:     dir,
			storeID: storeID,
			logger:  s.logger,
		},
	}, nil
}

// Close is a no-op; files are opened and closed per folder.
func (s *MboxStore) Close() error {
	return nil
}

type mboxFolder struct {
	name    string
	path    string
	file    string // mbox file, empty for pure containers
	dir     string // directory holding child folders, may be empty
	storeID string
	logger  *slog.Logger
}

func (f *mboxFolder) Name() string { return f.name }
func (f *mboxFolder) Path() string { return f.path }

func (f *mboxFolder) Children(_ context.Context) ([]Folder, error) {
	if f.dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read folder %s: %w", f.path, err)
	}

	byName := make(map[string]*mboxFolder)
	var order []string
	get := func(name string) *mboxFolder {
		if c, ok := byName[name]; ok {
			return c
		}
		c := &mboxFolder{
			name:    name,
			path:    JoinPath(f.path, name),
			storeID: f.storeID,
			logger:  f.logger,
		}
		byName[name] = c
		order = append(order, name)
		return c
	}

	for _, e := range entries {
		base := e.Name()
		if strings.HasPrefix(base, ".") {
			continue
		}
		full := filepath.Join(f.dir, base)
		if e.IsDir() {
			if strings.HasSuffix(base, ".mozmsgs") {
				continue
			}
			get(strings.TrimSuffix(base, ".sbd")).dir = full
			continue
		}
		if !isMboxFile(base) {
			continue
		}
		get(strings.TrimSuffix(base, ".mbox")).file = full
	}

	out := make([]Folder, 0, len(order))
	for _, name := range order {
		out = append(out, byName[name])
	}
	return out, nil
}

func (f *mboxFolder) Items(ctx context.Context, fn func(*Item) error) error {
	if f.file == "" {
		return nil
	}
	file, err := os.Open(f.file)
	if err != nil {
		return fmt.Errorf("open mbox %s: %w", f.path, err)
	}
	defer file.Close()

	reader := mbox.NewReader(file)
	warned := 0
	for n := 0; ; n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgReader, err := reader.NextMessage()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read mbox %s: %w", f.path, err)
		}
		raw, err := io.ReadAll(io.LimitReader(msgReader, maxMessageBytes))
		if err != nil {
			return fmt.Errorf("read message %d in %s: %w", n, f.path, err)
		}
		item, err := ParseMessage(raw, f.storeID)
		if err != nil {
			if warned < 3 {
				f.logger.Warn("skipping unreadable message", "folder", f.path, "index", n, "error", err)
			}
			warned++
			continue
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}

func isMboxFile(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range mboxIndexSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return false
		}
	}
	return true
}

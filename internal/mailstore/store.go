package mailstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMailboxNotFound is returned by Store.Open for an unknown mailbox name.
	ErrMailboxNotFound = errors.New("mailbox not found")

	// ErrNoInbox is returned by FindInbox when a mailbox has no inbox folder.
	ErrNoInbox = errors.New("no inbox folder found")
)

// Message classes assigned by ParseMessage.
const (
	ClassNote            = "IPM.Note"
	ClassMeetingRequest  = "IPM.Schedule.Meeting.Request"
	ClassMeetingCanceled = "IPM.Schedule.Meeting.Canceled"
	ClassMeetingResponse = "IPM.Schedule.Meeting.Resp"
	ClassTaskRequest     = "IPM.TaskRequest"
)

// RecipientType distinguishes primary recipients from copies.
type RecipientType int

const (
	RecipientTo RecipientType = iota + 1
	RecipientCc
	RecipientBcc
)

func (t RecipientType) String() string {
	switch t {
	case RecipientTo:
		return "To"
	case RecipientCc:
		return "Cc"
	case RecipientBcc:
		return "Bcc"
	default:
		return fmt.Sprintf("RecipientType(%d)", int(t))
	}
}

// Recipient is one addressee of an item.
type Recipient struct {
	Name    string
	Address string
	Type    RecipientType
}

// DisplayName returns the recipient's name, or its address when unnamed.
func (r Recipient) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Address
}

// Item is one mail-store entry as read from a folder.
type Item struct {
	Class          string
	SentOn         time.Time // zero when the store has no sent timestamp
	Sender         string
	SenderAddress  string
	SentOnBehalfOf string
	Subject        string
	Body           string
	Recipients     []Recipient
	EntryID        string // unique per logical item
	StoreID        string // owning store
}

// Folder is a node in a mailbox's folder tree.
type Folder interface {
	// Name is the folder's display name.
	Name() string
	// Path is the full path of the folder within the store.
	Path() string
	// Children returns the child folders in store order.
	Children(ctx context.Context) ([]Folder, error)
	// Items calls fn for every item in store order. Iteration stops at the
	// first error returned by fn, which is passed back to the caller.
	Items(ctx context.Context, fn func(*Item) error) error
}

// Mailbox is a named root of a folder tree.
type Mailbox struct {
	Name    string
	StoreID string
	Root    Folder
}

// Store is a hierarchical mail store holding one or more mailboxes.
type Store interface {
	// Mailboxes lists the names of all mailboxes the store exposes.
	Mailboxes(ctx context.Context) ([]string, error)

	// Open returns the named mailbox, or ErrMailboxNotFound.
	Open(ctx context.Context, name string) (*Mailbox, error)

	// Close releases any resources held by the store.
	Close() error
}

var inboxNames = []string{"inbox", "posteingang", "boîte de réception"}

// FindInbox returns the inbox-equivalent top-level folder of a mailbox.
func FindInbox(ctx context.Context, mb *Mailbox) (Folder, error) {
	children, err := mb.Root.Children(ctx)
	if err != nil {
		return nil, fmt.Errorf("list folders of %s: %w", mb.Name, err)
	}
	for _, name := range inboxNames {
		for _, f := range children {
			if strings.EqualFold(f.Name(), name) {
				return f, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: %w", mb.Name, ErrNoInbox)
}

// JoinPath builds a folder path from its segments.
func JoinPath(parts ...string) string {
	return strings.Join(parts, "/")
}

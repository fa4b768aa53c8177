// Package record turns admitted mail-store items into immutable rows of
// the statistics table.
package record

import (
	"strings"
	"time"

	"github.com/tracyhatemice/gomailstat/internal/mailstore"
)

// NoSubject replaces an empty or missing subject.
const NoSubject = "(no subject)"

// RecipientSeparator joins the primary recipients of a record.
const RecipientSeparator = "; "

// MailRecord is one qualifying mail item.
type MailRecord struct {
	SentOn        time.Time
	Sender        string
	SenderAddress string
	BehalfOf      string // empty unless sent on behalf of someone else
	Subject       string
	Mailbox       string
	FolderPath    string
	WordCount     int
	StoreID       string
	EntryID       string
	Recipients    string
}

// Build maps an item found in folderPath of mailbox to a record.
func Build(item *mailstore.Item, mailbox, folderPath string) MailRecord {
	subject := item.Subject
	if strings.TrimSpace(subject) == "" {
		subject = NoSubject
	}
	return MailRecord{
		SentOn:        item.SentOn,
		Sender:        item.Sender,
		SenderAddress: item.SenderAddress,
		BehalfOf:      item.SentOnBehalfOf,
		Subject:       subject,
		Mailbox:       mailbox,
		FolderPath:    folderPath,
		WordCount:     WordCount(item.Body),
		StoreID:       item.StoreID,
		EntryID:       item.EntryID,
		Recipients:    PrimaryRecipients(item.Recipients),
	}
}

// WordCount counts the whitespace-separated tokens of body.
func WordCount(body string) int {
	return len(strings.Fields(body))
}

// PrimaryRecipients joins the "To" recipients in store order.
func PrimaryRecipients(rcpts []mailstore.Recipient) string {
	names := make([]string, 0, len(rcpts))
	for _, r := range rcpts {
		if r.Type != mailstore.RecipientTo {
			continue
		}
		names = append(names, r.DisplayName())
	}
	return strings.Join(names, RecipientSeparator)
}

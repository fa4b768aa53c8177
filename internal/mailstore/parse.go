package mailstore

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/google/uuid"
	"golang.org/x/net/html"
)

const maxPartBytes = 2 << 20

// ParseMessage converts a raw RFC 5322 message into an Item owned by storeID.
func ParseMessage(raw []byte, storeID string) (*Item, error) {
	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if mr == nil || (err != nil && !message.IsUnknownCharset(err) && !message.IsUnknownEncoding(err)) {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("parse message: %w", err)
	}
	defer mr.Close()

	h := mr.Header
	item := &Item{
		Class:   ClassNote,
		StoreID: storeID,
	}

	if date, err := h.Date(); err == nil {
		item.SentOn = date
	}
	if subject, err := h.Subject(); err == nil {
		item.Subject = strings.TrimSpace(subject)
	} else {
		item.Subject = strings.TrimSpace(h.Get("Subject"))
	}

	from := firstAddress(h, "From")
	sender := firstAddress(h, "Sender")
	switch {
	case sender != nil && from != nil && !strings.EqualFold(sender.Address, from.Address):
		item.Sender = addressName(sender)
		item.SenderAddress = sender.Address
		item.SentOnBehalfOf = addressName(from)
	case from != nil:
		item.Sender = addressName(from)
		item.SenderAddress = from.Address
	case sender != nil:
		item.Sender = addressName(sender)
		item.SenderAddress = sender.Address
	}

	item.Recipients = append(item.Recipients, recipients(h, "To", RecipientTo)...)
	item.Recipients = append(item.Recipients, recipients(h, "Cc", RecipientCc)...)
	item.Recipients = append(item.Recipients, recipients(h, "Bcc", RecipientBcc)...)

	item.EntryID = entryID(h)

	if strings.EqualFold(strings.TrimSpace(h.Get("Content-Class")), "urn:content-classes:calendarmessage") {
		item.Class = ClassMeetingRequest
	}

	var textBody, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) || message.IsUnknownEncoding(err) {
				continue
			}
			break
		}

		ih, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ctype, params, _ := ih.ContentType()
		body, err := io.ReadAll(io.LimitReader(part.Body, maxPartBytes))
		if err != nil {
			continue
		}
		switch ctype {
		case "text/calendar":
			item.Class = calendarClass(params["method"], body)
		case "text/plain":
			if textBody == "" {
				textBody = string(body)
			}
		case "text/html":
			if htmlBody == "" {
				htmlBody = string(body)
			}
		}
	}

	item.Body = textBody
	if strings.TrimSpace(item.Body) == "" && htmlBody != "" {
		item.Body = htmlToText(htmlBody)
	}
	return item, nil
}

func firstAddress(h mail.Header, key string) *mail.Address {
	addrs, err := h.AddressList(key)
	if err != nil || len(addrs) == 0 {
		return nil
	}
	return addrs[0]
}

func addressName(a *mail.Address) string {
	if a.Name != "" {
		return a.Name
	}
	return a.Address
}

func recipients(h mail.Header, key string, typ RecipientType) []Recipient {
	addrs, err := h.AddressList(key)
	if err != nil {
		// Keep malformed lists visible rather than dropping them.
		if raw, terr := h.Text(key); terr == nil && strings.TrimSpace(raw) != "" {
			return []Recipient{{Name: strings.TrimSpace(raw), Type: typ}}
		}
		return nil
	}
	out := make([]Recipient, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, Recipient{Name: a.Name, Address: a.Address, Type: typ})
	}
	return out
}

// calendarClass maps an iCalendar payload onto a message class.
func calendarClass(method string, body []byte) string {
	if method == "" {
		method = icalProperty(body, "METHOD")
	}
	if bytes.Contains(bytes.ToUpper(body), []byte("BEGIN:VTODO")) {
		return ClassTaskRequest
	}
	switch strings.ToUpper(method) {
	case "CANCEL":
		return ClassMeetingCanceled
	case "REPLY", "COUNTER":
		return ClassMeetingResponse
	default:
		return ClassMeetingRequest
	}
}

func icalProperty(body []byte, name string) string {
	sc := bufio.NewScanner(bytes.NewReader(body))
	prefix := name + ":"
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if len(line) >= len(prefix) && strings.EqualFold(line[:len(prefix)], prefix) {
			return strings.TrimSpace(line[len(prefix):])
		}
	}
	return ""
}

// entryID returns the message identity. Ids the strict msg-id grammar
// rejects, such as ones without a domain part, are used as written.
func entryID(h mail.Header) string {
	if id, err := h.MessageID(); err == nil && id != "" {
		return id
	}
	if id := strings.Trim(strings.TrimSpace(h.Get("Message-Id")), "<>"); id != "" {
		return id
	}
	return fallbackEntryID(h)
}

// fallbackEntryID hashes the headers that do not change in transit, so
// delivered copies of a message without Message-ID share one identity.
func fallbackEntryID(h mail.Header) string {
	var b strings.Builder
	for _, key := range []string{"From", "Date", "Subject", "To"} {
		b.WriteString(key)
		b.WriteByte(':')
		b.WriteString(strings.TrimSpace(h.Get(key)))
		b.WriteByte('\n')
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String())).URN()
}

func htmlToText(src string) string {
	z := html.NewTokenizer(strings.NewReader(src))
	var b strings.Builder
	skip := 0
	for {
		switch z.Next() {
		case html.ErrorToken:
			return strings.Join(strings.Fields(b.String()), " ")
		case html.StartTagToken:
			name, _ := z.TagName()
			if string(name) == "script" || string(name) == "style" {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if (string(name) == "script" || string(name) == "style") && skip > 0 {
				skip--
			}
			b.WriteByte(' ')
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

package export

import (
	"sort"
	"strings"
	"time"

	"github.com/tracyhatemice/gomailstat/internal/record"
)

const (
	// TimeLayout formats the Sent column and the comparison key.
	TimeLayout = "2006-01-02 15:04"

	// DuplicateFlag marks rows whose comparison key appeared earlier.
	DuplicateFlag = "Duplicate"

	keySeparator = "|"
)

// Row is one record prepared for the sheet.
type Row struct {
	Record    record.MailRecord
	Sent      string
	Key       string
	Duplicate bool
}

// BuildRows prepares one row per record, in record order, with timestamps
// rendered in loc.
func BuildRows(records []record.MailRecord, loc *time.Location) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = Row{
			Record: r,
			Sent:   r.SentOn.In(loc).Format(TimeLayout),
			Key:    ComparisonKey(r, loc),
		}
	}
	return rows
}

// ComparisonKey is the coarse identity used to spot copies of one message
// that carry different entry identities: subject, sender and the minute it
// was sent, lower-cased.
func ComparisonKey(r record.MailRecord, loc *time.Location) string {
	sender := r.Sender
	if strings.TrimSpace(sender) == "" {
		sender = r.SenderAddress
	}
	return strings.ToLower(strings.Join([]string{
		strings.TrimSpace(r.Subject),
		strings.TrimSpace(sender),
		r.SentOn.In(loc).Format(TimeLayout),
	}, keySeparator))
}

// MarkDuplicates flags every row whose key already occurred in an earlier
// row. Flags are recomputed from scratch, so marking twice changes nothing.
// It returns the number of flagged rows.
func MarkDuplicates(rows []Row) int {
	seen := make(map[string]struct{}, len(rows))
	n := 0
	for i := range rows {
		_, dup := seen[rows[i].Key]
		rows[i].Duplicate = dup
		if dup {
			n++
			continue
		}
		seen[rows[i].Key] = struct{}{}
	}
	return n
}

// SortBySentDesc orders rows most recent first, keeping ties in place.
func SortBySentDesc(rows []Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		return rows[i].Record.SentOn.After(rows[j].Record.SentOn)
	})
}

// Flag renders the Duplicate column.
func (r Row) Flag() string {
	if r.Duplicate {
		return DuplicateFlag
	}
	return ""
}

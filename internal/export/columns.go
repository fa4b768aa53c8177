package export

type column struct {
	header string
	width  float64
	hidden bool
}

// Sheet layout, in column order A..M.
var columns = []column{
	{header: "StoreID", width: 12, hidden: true},
	{header: "EntryID", width: 12, hidden: true},
	{header: "Open", width: 7},
	{header: "Sent", width: 17},
	{header: "Sender", width: 28},
	{header: "On behalf of", width: 24},
	{header: "Subject", width: 55},
	{header: "Folder", width: 40},
	{header: "Words", width: 8},
	{header: "Recipients", width: 45},
	{header: "Compare key", width: 12, hidden: true},
	{header: "Duplicate", width: 11},
	{header: "Mailbox", width: 22},
}

const (
	colOpen      = 3
	colDuplicate = 12
)

func headers() []any {
	out := make([]any, len(columns))
	for i, c := range columns {
		out[i] = c.header
	}
	return out
}

func (r Row) values() []any {
	return []any{
		r.Record.StoreID,
		r.Record.EntryID,
		"Open",
		r.Sent,
		r.Record.Sender,
		r.Record.BehalfOf,
		r.Record.Subject,
		r.Record.FolderPath,
		r.Record.WordCount,
		r.Record.Recipients,
		r.Key,
		r.Flag(),
		r.Record.Mailbox,
	}
}

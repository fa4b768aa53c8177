package walker

import (
	"github.com/tracyhatemice/gomailstat/internal/dedup"
	"github.com/tracyhatemice/gomailstat/internal/record"
)

// Stats counts what a traversal saw.
type Stats struct {
	FoldersVisited    int
	FoldersSkipped    int
	FoldersUnreadable int
	WrongClass        int
	NoTimestamp       int
	BeforeStart       int
	AfterEnd          int
	Duplicates        int
	TestAdmitted      int
}

// Traversal is the state of one run across all of its mailboxes. It has a
// single owner; hand Records to the exporter once walking is over.
type Traversal struct {
	Stats   Stats
	Tracker *dedup.Tracker
	Records []record.MailRecord

	stopped bool
}

// NewTraversal creates the state for a new run.
func NewTraversal() *Traversal {
	return &Traversal{Tracker: dedup.NewTracker()}
}

// Stopped reports whether the test-mode limit ended the run.
func (t *Traversal) Stopped() bool {
	return t.stopped
}

func (t *Traversal) reject(r Reason) {
	switch r {
	case WrongClass:
		t.Stats.WrongClass++
	case NoTimestamp:
		t.Stats.NoTimestamp++
	case BeforeStart:
		t.Stats.BeforeStart++
	case AfterEnd:
		t.Stats.AfterEnd++
	}
}

package walker

import (
	"strings"
	"time"

	"github.com/tracyhatemice/gomailstat/internal/mailstore"
)

// Reason is the verdict of Check.
type Reason int

const (
	Accepted Reason = iota
	WrongClass
	NoTimestamp
	BeforeStart
	AfterEnd
)

func (r Reason) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case WrongClass:
		return "wrong-class"
	case NoTimestamp:
		return "no-timestamp"
	case BeforeStart:
		return "before-start-date"
	case AfterEnd:
		return "after-end-date"
	default:
		return "unknown"
	}
}

// Window is the inclusive date range of a run. A zero End leaves the
// window open towards the present.
type Window struct {
	Start time.Time
	End   time.Time
}

// Check decides whether an item with the given class and sent time
// qualifies for statistics. Both window bounds apply to every item; a
// store's own pre-filtering is only a horizon and never replaces the end
// check here.
func Check(class string, sentOn time.Time, w Window) Reason {
	if sentOn.IsZero() {
		return NoTimestamp
	}
	if !IsMailClass(class) {
		return WrongClass
	}
	if sentOn.Before(w.Start) {
		return BeforeStart
	}
	if !w.End.IsZero() && sentOn.After(w.End) {
		return AfterEnd
	}
	return Accepted
}

// IsMailClass reports whether class denotes an ordinary mail message
// rather than a meeting, task or other object.
func IsMailClass(class string) bool {
	lower := strings.ToLower(class)
	note := strings.ToLower(mailstore.ClassNote)
	return lower == note || strings.HasPrefix(lower, note+".")
}

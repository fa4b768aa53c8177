package dedup

// Tracker admits each item identity at most once for its lifetime. One
// Tracker is shared by every mailbox walked in a run so that an item
// reachable through several folders or mailboxes yields a single record.
type Tracker struct {
	ids   map[string]struct{}
	order []string
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		ids: make(map[string]struct{}),
	}
}

// Admit reports whether id has not been seen before and records it.
// It returns true exactly once per distinct id.
func (t *Tracker) Admit(id string) bool {
	if _, exists := t.ids[id]; exists {
		return false
	}
	t.ids[id] = struct{}{}
	t.order = append(t.order, id)
	return true
}

// Seen reports whether id has already been admitted.
func (t *Tracker) Seen(id string) bool {
	_, ok := t.ids[id]
	return ok
}

// IDs returns the admitted identities in admission order.
func (t *Tracker) IDs() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Count returns the number of admitted identities.
func (t *Tracker) Count() int {
	return len(t.order)
}

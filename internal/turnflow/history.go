package turnflow

import "github.com/pavelanni/speakdrill/internal/model"

// History is the append-only log of resolved turns for one session.
type History struct {
	entries []model.HistoryEntry
}

// Append returns a history with e added at the end. The receiver is left
// untouched so earlier states never observe the new entry.
func (h History) Append(e model.HistoryEntry) History {
	e.Seq = len(h.entries) + 1
	return History{entries: append(h.entries[:len(h.entries):len(h.entries)], e)}
}

// Len returns the number of resolved turns.
func (h History) Len() int { return len(h.entries) }

// Entries returns a copy of the entries in completion order.
func (h History) Entries() []model.HistoryEntry {
	out := make([]model.HistoryEntry, len(h.entries))
	copy(out, h.entries)
	return out
}

// Correct counts entries graded GOOD.
func (h History) Correct() int {
	n := 0
	for _, e := range h.entries {
		if e.Result == model.ResultCorrect {
			n++
		}
	}
	return n
}

// Incorrect returns the entries that were not graded GOOD.
func (h History) Incorrect() []model.HistoryEntry {
	var out []model.HistoryEntry
	for _, e := range h.entries {
		if e.Result != model.ResultCorrect {
			out = append(out, e)
		}
	}
	return out
}

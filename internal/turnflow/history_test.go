package turnflow

import (
	"testing"

	"github.com/pavelanni/speakdrill/internal/model"
)

func TestHistoryAppendIsolated(t *testing.T) {
	var h History
	h = h.Append(model.HistoryEntry{Result: model.ResultCorrect})
	h = h.Append(model.HistoryEntry{Result: model.ResultIncorrect})

	// Two histories branching from the same parent must not share storage.
	a := h.Append(model.HistoryEntry{Response: "a"})
	b := h.Append(model.HistoryEntry{Response: "b"})

	if h.Len() != 2 {
		t.Fatalf("parent len = %d, want 2", h.Len())
	}
	if got := a.Entries()[2].Response; got != "a" {
		t.Errorf("a[2] = %q, want a", got)
	}
	if got := b.Entries()[2].Response; got != "b" {
		t.Errorf("b[2] = %q, want b", got)
	}
}

func TestHistorySeqAndScore(t *testing.T) {
	var h History
	for _, r := range []model.Result{model.ResultCorrect, model.ResultIncorrect, model.ResultCorrect, model.ResultIncorrect, model.ResultIncorrect} {
		h = h.Append(model.HistoryEntry{Seq: 99, Result: r})
	}
	for i, e := range h.Entries() {
		if e.Seq != i+1 {
			t.Errorf("entry %d seq = %d", i, e.Seq)
		}
	}
	if h.Correct() != 2 {
		t.Errorf("Correct = %d, want 2", h.Correct())
	}
	if n := len(h.Incorrect()); n != 3 {
		t.Errorf("Incorrect = %d, want 3", n)
	}
}

func TestHistoryEntriesReturnsCopy(t *testing.T) {
	var h History
	h = h.Append(model.HistoryEntry{Response: "안녕하세요"})
	out := h.Entries()
	out[0].Response = "changed"
	if h.Entries()[0].Response != "안녕하세요" {
		t.Error("Entries exposed internal storage")
	}
}

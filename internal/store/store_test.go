package store

import (
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/speakdrill/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

var completedAt = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

func testCompletion(id string) model.Completion {
	score := 0.91
	ai := model.Turn{ID: "t1", Speaker: model.SpeakerAI, Text: "안녕하세요", Romanization: "annyeonghaseyo", Translation: "Hello"}
	user := model.Turn{
		ID: "t2", Speaker: model.SpeakerUser, Text: "저는 학생이에요",
		Choices: []model.Choice{
			{ID: 1, Text: "저는 학생이에요", Correct: true},
			{ID: 2, Text: "저는 선생님이에요"},
		},
	}
	return model.Completion{
		SessionID:  id,
		ScenarioID: "cafe-order",
		Summary:    model.Summary{Total: 2, Correct: 1, CompletedAt: completedAt},
		Elapsed:    95 * time.Second,
		History: []model.HistoryEntry{
			{Seq: 1, Turn: ai, Verdict: model.Verdict{Outcome: model.OutcomeGood, Score: &score}, Result: model.ResultCorrect, Response: ai.Text, ResolvedAt: completedAt.Add(-time.Minute)},
			{Seq: 2, Turn: user, Verdict: model.TimeoutVerdict(), Result: model.ResultIncorrect, ChoiceResult: model.ResultIncorrect, Response: "저는 선생님이에요", ResolvedAt: completedAt.Add(-10 * time.Second)},
		},
	}
}

func TestSaveAndLoadCompletion(t *testing.T) {
	s := newTestStore(t)

	if err := s.SaveCompletion(testCompletion("sess-1")); err != nil {
		t.Fatalf("SaveCompletion: %v", err)
	}

	view, err := s.GetSessionView("sess-1")
	if err != nil {
		t.Fatalf("GetSessionView: %v", err)
	}
	rec := view.Session
	if rec.ScenarioID != "cafe-order" || rec.Total != 2 || rec.Correct != 1 {
		t.Errorf("record = %+v", rec)
	}
	if rec.Elapsed != 95*time.Second {
		t.Errorf("elapsed = %v", rec.Elapsed)
	}
	if !rec.CompletedAt.Equal(completedAt) || !rec.StartedAt.Equal(completedAt.Add(-95*time.Second)) {
		t.Errorf("times = %v / %v", rec.StartedAt, rec.CompletedAt)
	}

	if len(view.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(view.Entries))
	}
	first, second := view.Entries[0], view.Entries[1]
	if first.Seq != 1 || first.Turn.Text != "안녕하세요" || first.Verdict.Score == nil || *first.Verdict.Score != 0.91 {
		t.Errorf("first = %+v", first)
	}
	if second.Verdict.Score != nil || !second.Verdict.TimedOut || second.Result != model.ResultIncorrect {
		t.Errorf("second verdict = %+v result %s", second.Verdict, second.Result)
	}
	if len(second.Turn.Choices) != 2 || !second.Turn.Choices[0].Correct {
		t.Errorf("choices not preserved: %+v", second.Turn.Choices)
	}
	if second.ChoiceResult != model.ResultIncorrect || second.Response != "저는 선생님이에요" {
		t.Errorf("second = %+v", second)
	}
}

func TestSaveCompletionIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	c := testCompletion("sess-1")
	for i := 0; i < 2; i++ {
		if err := s.SaveCompletion(c); err != nil {
			t.Fatalf("SaveCompletion #%d: %v", i+1, err)
		}
	}
	count, err := s.SessionCount()
	if err != nil {
		t.Fatalf("SessionCount: %v", err)
	}
	if count != 1 {
		t.Errorf("sessions = %d, want 1", count)
	}
	entries, err := s.GetEntries("sess-1")
	if err != nil {
		t.Fatalf("GetEntries: %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("entries = %d, want 2", len(entries))
	}
}

func TestGetSessionNotFound(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.GetSession("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListSessionsNewestFirst(t *testing.T) {
	s := newTestStore(t)

	list, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	older := testCompletion("sess-old")
	older.Summary.CompletedAt = completedAt.Add(-24 * time.Hour)
	for _, c := range []model.Completion{older, testCompletion("sess-new")} {
		if err := s.SaveCompletion(c); err != nil {
			t.Fatalf("SaveCompletion: %v", err)
		}
	}

	list, err = s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(list) != 2 || list[0].ID != "sess-new" || list[1].ID != "sess-old" {
		t.Errorf("order = %+v", list)
	}
}

func TestSaveCompletionDefaultsCompletedAt(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	c := testCompletion("sess-1")
	c.Summary.CompletedAt = time.Time{}
	if err := s.SaveCompletion(c); err != nil {
		t.Fatalf("SaveCompletion: %v", err)
	}
	rec, err := s.GetSession("sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if !rec.CompletedAt.Equal(now) {
		t.Errorf("completed_at = %v, want %v", rec.CompletedAt, now)
	}
}

func TestReviewQueue(t *testing.T) {
	s := newTestStore(t)
	if err := s.SaveCompletion(testCompletion("sess-1")); err != nil {
		t.Fatalf("SaveCompletion: %v", err)
	}

	items, err := s.ReviewQueue(0, 3)
	if err != nil {
		t.Fatalf("ReviewQueue: %v", err)
	}
	if len(items) != 1 || items[0].Turn.ID != "t2" || items[0].ScenarioID != "cafe-order" {
		t.Fatalf("items = %+v", items)
	}
	id := items[0].EntryID

	// Two misses keep the entry queued while under the attempt cap.
	for i := 0; i < 2; i++ {
		if err := s.RecordReview(id, model.OutcomeWrong); err != nil {
			t.Fatalf("RecordReview: %v", err)
		}
	}
	items, err = s.ReviewQueue(0, 3)
	if err != nil {
		t.Fatalf("ReviewQueue: %v", err)
	}
	if len(items) != 1 || items[0].Attempts != 2 {
		t.Fatalf("items = %+v", items)
	}

	// Hitting the cap removes it.
	if err := s.RecordReview(id, model.OutcomeRetry); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	if items, _ = s.ReviewQueue(0, 3); len(items) != 0 {
		t.Errorf("entry should leave the queue at the attempt cap, got %+v", items)
	}
	if items, _ = s.ReviewQueue(0, 10); len(items) != 1 {
		t.Errorf("higher cap should keep the entry, got %+v", items)
	}

	// A GOOD review masters it regardless of cap.
	if err := s.RecordReview(id, model.OutcomeGood); err != nil {
		t.Fatalf("RecordReview: %v", err)
	}
	if items, _ = s.ReviewQueue(0, 10); len(items) != 0 {
		t.Errorf("mastered entry still queued: %+v", items)
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	name, err := s.Learner()
	if err != nil {
		t.Fatalf("Learner: %v", err)
	}
	if name != "" {
		t.Errorf("expected empty learner, got %q", name)
	}
	if err := s.SetLearner("minji"); err != nil {
		t.Fatalf("SetLearner: %v", err)
	}
	if err := s.SetLearner("Minji Kim"); err != nil {
		t.Fatalf("SetLearner overwrite: %v", err)
	}
	if name, _ = s.Learner(); name != "Minji Kim" {
		t.Errorf("learner = %q", name)
	}
}

func TestExportAllSessions(t *testing.T) {
	s := newTestStore(t)

	results, err := s.ExportAllSessions()
	if err != nil {
		t.Fatalf("ExportAllSessions on empty store: %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}

	if err := s.SaveCompletion(testCompletion("sess-1")); err != nil {
		t.Fatalf("SaveCompletion: %v", err)
	}
	results, err = s.ExportAllSessions()
	if err != nil {
		t.Fatalf("ExportAllSessions: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	r := results[0]
	if r.ElapsedSec != 95 || r.Total != 2 || r.Correct != 1 {
		t.Errorf("result = %+v", r)
	}
	if len(r.Turns) != 2 {
		t.Fatalf("turns = %d", len(r.Turns))
	}
	if r.Turns[1].Outcome != model.OutcomeWrong || !r.Turns[1].TimedOut || r.Turns[1].Speaker != model.SpeakerUser {
		t.Errorf("turn 2 = %+v", r.Turns[1])
	}
	if r.Turns[0].Romanization != "annyeonghaseyo" {
		t.Errorf("turn 1 = %+v", r.Turns[0])
	}
}

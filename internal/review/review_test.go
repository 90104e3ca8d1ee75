package review

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pavelanni/speakdrill/internal/model"
	"github.com/pavelanni/speakdrill/internal/store"
)

var resolved = time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)

func newArchive(t *testing.T, turnIDs ...string) *store.Store {
	t.Helper()
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	var history []model.HistoryEntry
	for i, id := range turnIDs {
		turn := model.Turn{ID: id, Speaker: model.SpeakerAI, Text: "문장 " + id}
		history = append(history, model.HistoryEntry{
			Seq:     i + 1,
			Turn:    turn,
			Verdict: model.Verdict{Outcome: model.OutcomeWrong},
			Result:  model.ResultIncorrect,
			// Newest first in the queue: the first id resolves last.
			ResolvedAt: resolved.Add(-time.Duration(i) * time.Minute),
		})
	}
	err = s.SaveCompletion(model.Completion{
		SessionID:  "sess-1",
		ScenarioID: "introductions",
		Summary:    model.Summary{Total: len(turnIDs), CompletedAt: resolved.Add(time.Minute)},
		Elapsed:    time.Minute,
		History:    history,
	})
	if err != nil {
		t.Fatalf("SaveCompletion: %v", err)
	}
	return s
}

// scriptedGrader returns outcomes per turn id in order.
type scriptedGrader map[string][]model.Outcome

func (g scriptedGrader) Grade(_ context.Context, it model.ReviewItem, _ model.AudioSample) (model.Outcome, error) {
	outs := g[it.Turn.ID]
	if len(outs) == 0 {
		return "", errors.New("no scripted outcome for " + it.Turn.ID)
	}
	g[it.Turn.ID] = outs[1:]
	return outs[0], nil
}

type promptLog struct {
	asked    []string
	attempts []int
	requeued []bool
	stopAt   int
}

func (p *promptLog) Prompt(_ context.Context, it model.ReviewItem, attempt int) (model.AudioSample, error) {
	if p.stopAt > 0 && len(p.asked) == p.stopAt {
		return model.AudioSample{}, ErrStopped
	}
	p.asked = append(p.asked, it.Turn.ID)
	p.attempts = append(p.attempts, attempt)
	return model.AudioSample{Data: []byte{1, 2}, Encoding: "audio/wav"}, nil
}

func (p *promptLog) Feedback(_ model.ReviewItem, _ model.Outcome, requeued bool) {
	p.requeued = append(p.requeued, requeued)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestDrillRequeuesWrongUntilMaxAttempts(t *testing.T) {
	archive := newArchive(t, "a", "b")
	grader := scriptedGrader{
		"a": {model.OutcomeWrong, model.OutcomeGood},
		"b": {model.OutcomeWrong, model.OutcomeWrong, model.OutcomeWrong},
	}
	p := &promptLog{}

	rep, err := New(archive, grader, p, Config{MaxAttempts: 3}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if want := []string{"a", "b", "a", "b", "b"}; !equalStrings(p.asked, want) {
		t.Errorf("asked = %v, want %v", p.asked, want)
	}
	if rep.Items != 2 || rep.Attempts != 5 || rep.Mastered != 1 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Remaining) != 1 || rep.Remaining[0].Turn.ID != "b" || rep.Remaining[0].Attempts != 3 {
		t.Errorf("remaining = %+v", rep.Remaining)
	}
	if p.attempts[4] != 3 {
		t.Errorf("last attempt number = %d, want 3", p.attempts[4])
	}

	left, err := archive.ReviewQueue(0, 3)
	if err != nil {
		t.Fatalf("ReviewQueue: %v", err)
	}
	if len(left) != 0 {
		t.Errorf("queue after drill = %d items, want 0", len(left))
	}
	left, err = archive.ReviewQueue(0, 5)
	if err != nil {
		t.Fatalf("ReviewQueue: %v", err)
	}
	if len(left) != 1 || left[0].Turn.ID != "b" || left[0].Attempts != 3 {
		t.Errorf("queue with higher cap = %+v", left)
	}
}

func TestDrillRetryAsksAgainAtOnce(t *testing.T) {
	archive := newArchive(t, "a", "b")
	grader := scriptedGrader{
		"a": {model.OutcomeRetry, model.OutcomeGood},
		"b": {model.OutcomeGood},
	}
	p := &promptLog{}

	rep, err := New(archive, grader, p, Config{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if want := []string{"a", "a", "b"}; !equalStrings(p.asked, want) {
		t.Errorf("asked = %v, want %v", p.asked, want)
	}
	if rep.Mastered != 2 {
		t.Errorf("mastered = %d, want 2", rep.Mastered)
	}
	if want := []bool{true, false, false}; len(p.requeued) != 3 || p.requeued[0] != want[0] || p.requeued[1] != want[1] {
		t.Errorf("requeued = %v, want %v", p.requeued, want)
	}
}

func TestDrillStopKeepsRecordedAttempts(t *testing.T) {
	archive := newArchive(t, "a", "b")
	grader := scriptedGrader{"a": {model.OutcomeGood}, "b": {model.OutcomeGood}}
	p := &promptLog{stopAt: 1}

	rep, err := New(archive, grader, p, Config{}, nil).Run(context.Background())
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("Run err = %v, want ErrStopped", err)
	}
	if rep.Attempts != 1 || rep.Mastered != 1 {
		t.Errorf("report = %+v", rep)
	}
	left, err := archive.ReviewQueue(0, 3)
	if err != nil {
		t.Fatalf("ReviewQueue: %v", err)
	}
	if len(left) != 1 || left[0].Turn.ID != "b" {
		t.Errorf("queue = %+v, want only b", left)
	}
}

func TestDrillEmptyQueue(t *testing.T) {
	s, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer s.Close()
	p := &promptLog{}
	rep, err := New(s, scriptedGrader{}, p, Config{}, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Items != 0 || len(p.asked) != 0 {
		t.Errorf("report = %+v, asked = %v", rep, p.asked)
	}
}

func TestSimulatedGrader(t *testing.T) {
	ctx := context.Background()
	voiced := model.AudioSample{Data: []byte{1}}
	item := model.ReviewItem{EntryID: 1}

	tests := []struct {
		name   string
		pGood  float64
		sample model.AudioSample
		want   model.Outcome
	}{
		{"always good", 1, voiced, model.OutcomeGood},
		{"never good", 0, voiced, model.OutcomeWrong},
		{"clamped above one", 7, voiced, model.OutcomeGood},
		{"empty attempt", 1, model.AudioSample{}, model.OutcomeWrong},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewSimulatedGrader(42, tt.pGood)
			for i := 0; i < 5; i++ {
				got, err := g.Grade(ctx, item, tt.sample)
				if err != nil {
					t.Fatalf("Grade: %v", err)
				}
				if got != tt.want {
					t.Fatalf("attempt %d = %s, want %s", i, got, tt.want)
				}
			}
		})
	}
}

func TestSimulatedGraderIsSeeded(t *testing.T) {
	ctx := context.Background()
	sample := model.AudioSample{Data: []byte{1}}
	a := NewSimulatedGrader(7, 0.5)
	b := NewSimulatedGrader(7, 0.5)
	for i := 0; i < 20; i++ {
		x, _ := a.Grade(ctx, model.ReviewItem{}, sample)
		y, _ := b.Grade(ctx, model.ReviewItem{}, sample)
		if x != y {
			t.Fatalf("attempt %d differs: %s vs %s", i, x, y)
		}
	}
}

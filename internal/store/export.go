package store

import (
	"fmt"

	"github.com/pavelanni/speakdrill/internal/model"
)

// ExportAllSessions builds export-ready results from all archived sessions.
func (s *Store) ExportAllSessions() ([]model.ArchivedResult, error) {
	sessions, err := s.ListSessions()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	results := make([]model.ArchivedResult, 0, len(sessions))
	for _, sess := range sessions {
		entries, err := s.GetEntries(sess.ID)
		if err != nil {
			return nil, fmt.Errorf("get entries of %s: %w", sess.ID, err)
		}

		turns := make([]model.TurnResult, 0, len(entries))
		for _, e := range entries {
			turns = append(turns, model.TurnResult{
				TurnID:       e.Turn.ID,
				Speaker:      e.Turn.Speaker,
				Text:         e.Turn.Text,
				Romanization: e.Turn.Romanization,
				Translation:  e.Turn.Translation,
				Response:     e.Response,
				Outcome:      e.Verdict.Outcome,
				Result:       e.Result,
				TimedOut:     e.Verdict.TimedOut,
			})
		}

		results = append(results, model.ArchivedResult{
			SessionID:   sess.ID,
			ScenarioID:  sess.ScenarioID,
			StartedAt:   sess.StartedAt,
			CompletedAt: sess.CompletedAt,
			ElapsedSec:  sess.Elapsed.Seconds(),
			Total:       sess.Total,
			Correct:     sess.Correct,
			Turns:       turns,
		})
	}

	return results, nil
}

package model

import "time"

// ArchiveExport is the top-level JSON structure for archived session export.
type ArchiveExport struct {
	Learner    string           `json:"learner,omitempty"`
	ExportedAt time.Time        `json:"exported_at"`
	Sessions   []ArchivedResult `json:"sessions"`
}

// ArchivedResult holds one completed session for export.
type ArchivedResult struct {
	SessionID   string       `json:"session_id"`
	ScenarioID  string       `json:"scenario_id"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
	ElapsedSec  float64      `json:"elapsed_sec"`
	Total       int          `json:"total"`
	Correct     int          `json:"correct"`
	Turns       []TurnResult `json:"turns"`
}

// TurnResult holds per-turn data for export.
type TurnResult struct {
	TurnID       string  `json:"turn_id"`
	Speaker      Speaker `json:"speaker"`
	Text         string  `json:"text"`
	Romanization string  `json:"romanization,omitempty"`
	Translation  string  `json:"translation,omitempty"`
	Response     string  `json:"response"`
	Outcome      Outcome `json:"outcome"`
	Result       Result  `json:"result"`
	TimedOut     bool    `json:"timed_out,omitempty"`
}

// SessionRecord is a row from the completed-sessions archive.
type SessionRecord struct {
	ID          string
	ScenarioID  string
	StartedAt   time.Time
	CompletedAt time.Time
	Elapsed     time.Duration
	Total       int
	Correct     int
}

// SessionView combines a session record with its ordered entries.
type SessionView struct {
	Session SessionRecord
	Entries []HistoryEntry
}

// ReviewItem is an archived INCORRECT entry queued for review.
type ReviewItem struct {
	EntryID    int64
	SessionID  string
	ScenarioID string
	Turn       Turn
	Attempts   int
	ResolvedAt time.Time
}

package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/speakdrill/internal/model"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned for unknown session ids.
var ErrNotFound = errors.New("not found")

type Store struct {
	db  *sql.DB
	now func() time.Time
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		scenario_id TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		completed_at DATETIME NOT NULL,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		correct INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS history_entries (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		turn TEXT NOT NULL,
		outcome TEXT NOT NULL,
		score REAL,
		timed_out INTEGER NOT NULL DEFAULT 0,
		result TEXT NOT NULL,
		choice_result TEXT NOT NULL DEFAULT '',
		response TEXT NOT NULL DEFAULT '',
		resolved_at DATETIME NOT NULL,
		UNIQUE (session_id, seq),
		FOREIGN KEY (session_id) REFERENCES sessions(id)
	);

	CREATE TABLE IF NOT EXISTS review_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		entry_id INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		attempted_at DATETIME NOT NULL,
		FOREIGN KEY (entry_id) REFERENCES history_entries(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveCompletion archives a completed session and its history. Saving the
// same session twice is a no-op.
func (s *Store) SaveCompletion(c model.Completion) error {
	completedAt := c.Summary.CompletedAt
	if completedAt.IsZero() {
		completedAt = s.now()
	}
	startedAt := completedAt.Add(-c.Elapsed)

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO sessions (id, scenario_id, started_at, completed_at, elapsed_ms, total, correct)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		c.SessionID, c.ScenarioID, startedAt.UTC(), completedAt.UTC(), c.Elapsed.Milliseconds(), c.Summary.Total, c.Summary.Correct,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return nil
	}

	for _, e := range c.History {
		turn, err := json.Marshal(e.Turn)
		if err != nil {
			return fmt.Errorf("encode turn %s: %w", e.Turn.ID, err)
		}
		_, err = tx.Exec(
			`INSERT INTO history_entries (session_id, seq, turn, outcome, score, timed_out, result, choice_result, response, resolved_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.SessionID, e.Seq, string(turn), e.Verdict.Outcome, e.Verdict.Score, e.Verdict.TimedOut,
			e.Result, e.ChoiceResult, e.Response, e.ResolvedAt.UTC(),
		)
		if err != nil {
			return fmt.Errorf("insert entry %d: %w", e.Seq, err)
		}
	}

	return tx.Commit()
}

const sessionColumns = `id, scenario_id, started_at, completed_at, elapsed_ms, total, correct`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (model.SessionRecord, error) {
	var rec model.SessionRecord
	var elapsedMS int64
	err := row.Scan(&rec.ID, &rec.ScenarioID, &rec.StartedAt, &rec.CompletedAt, &elapsedMS, &rec.Total, &rec.Correct)
	rec.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	return rec, err
}

// GetSession returns an archived session by id.
func (s *Store) GetSession(id string) (model.SessionRecord, error) {
	rec, err := scanSession(s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return rec, fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// ListSessions returns archived sessions, newest first.
func (s *Store) ListSessions() ([]model.SessionRecord, error) {
	rows, err := s.db.Query(`SELECT ` + sessionColumns + ` FROM sessions ORDER BY completed_at DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []model.SessionRecord
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, rec)
	}
	return sessions, rows.Err()
}

// SessionCount returns the number of archived sessions.
func (s *Store) SessionCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count)
	return count, err
}

// GetEntries returns a session's history in completion order.
func (s *Store) GetEntries(sessionID string) ([]model.HistoryEntry, error) {
	rows, err := s.db.Query(
		`SELECT seq, turn, outcome, score, timed_out, result, choice_result, response, resolved_at
		 FROM history_entries WHERE session_id = ? ORDER BY seq`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var turn string
		var score sql.NullFloat64
		if err := rows.Scan(&e.Seq, &turn, &e.Verdict.Outcome, &score, &e.Verdict.TimedOut,
			&e.Result, &e.ChoiceResult, &e.Response, &e.ResolvedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(turn), &e.Turn); err != nil {
			return nil, fmt.Errorf("decode turn of entry %d: %w", e.Seq, err)
		}
		if score.Valid {
			v := score.Float64
			e.Verdict.Score = &v
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetSessionView returns a session with its ordered entries.
func (s *Store) GetSessionView(sessionID string) (*model.SessionView, error) {
	sess, err := s.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	entries, err := s.GetEntries(sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionView{Session: sess, Entries: entries}, nil
}

// ReviewQueue returns INCORRECT entries that have not been answered GOOD in
// review and have fewer than maxAttempts review attempts, most recent first.
// limit <= 0 means no limit.
func (s *Store) ReviewQueue(limit, maxAttempts int) ([]model.ReviewItem, error) {
	query := `
	SELECT e.id, e.session_id, s.scenario_id, e.turn, e.resolved_at,
		(SELECT COUNT(*) FROM review_attempts a WHERE a.entry_id = e.id) AS attempts
	FROM history_entries e
	JOIN sessions s ON s.id = e.session_id
	WHERE e.result = ?
		AND NOT EXISTS (SELECT 1 FROM review_attempts a WHERE a.entry_id = e.id AND a.outcome = ?)
		AND (SELECT COUNT(*) FROM review_attempts a WHERE a.entry_id = e.id) < ?
	ORDER BY e.resolved_at DESC, e.id`
	args := []any{model.ResultIncorrect, model.OutcomeGood, maxAttempts}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.ReviewItem
	for rows.Next() {
		var it model.ReviewItem
		var turn string
		if err := rows.Scan(&it.EntryID, &it.SessionID, &it.ScenarioID, &turn, &it.ResolvedAt, &it.Attempts); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(turn), &it.Turn); err != nil {
			return nil, fmt.Errorf("decode turn of entry %d: %w", it.EntryID, err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// RecordReview stores the outcome of one review attempt.
func (s *Store) RecordReview(entryID int64, outcome model.Outcome) error {
	_, err := s.db.Exec(
		`INSERT INTO review_attempts (entry_id, outcome, attempted_at) VALUES (?, ?, ?)`,
		entryID, outcome, s.now().UTC(),
	)
	return err
}

package store

import (
	"database/sql"
)

const learnerKey = "learner"

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetLearner records the learner name stamped on exports.
func (s *Store) SetLearner(name string) error {
	return s.SetMetadata(learnerKey, name)
}

// Learner returns the recorded learner name, or "".
func (s *Store) Learner() (string, error) {
	return s.GetMetadata(learnerKey)
}

package model

import (
	"errors"
	"fmt"
	"time"
)

// Speaker identifies who opens a turn.
type Speaker string

const (
	// SpeakerAI turns carry a scripted line the learner must repeat.
	SpeakerAI Speaker = "AI"
	// SpeakerUser turns present a correct line plus one decoy.
	SpeakerUser Speaker = "USER"
)

// Outcome is the gateway's tri-state grading result.
type Outcome string

const (
	OutcomeGood  Outcome = "GOOD"
	OutcomeRetry Outcome = "RETRY"
	OutcomeWrong Outcome = "WRONG"
)

// Result is what the learner sees for a resolved turn.
type Result string

const (
	ResultCorrect   Result = "CORRECT"
	ResultIncorrect Result = "INCORRECT"
)

// Choice is one candidate line of a USER turn.
type Choice struct {
	ID           int64  `json:"id"`
	Text         string `json:"text"`
	Romanization string `json:"romanization,omitempty"`
	Translation  string `json:"translation,omitempty"`
	Correct      bool   `json:"correct"`
}

// Turn is one prompt-response unit issued by the gateway.
type Turn struct {
	ID           string   `json:"id"`
	Speaker      Speaker  `json:"speaker"`
	Text         string   `json:"text"`
	Romanization string   `json:"romanization,omitempty"`
	Translation  string   `json:"translation,omitempty"`
	Choices      []Choice `json:"choices,omitempty"`
}

// ErrInvalidTurn is returned by Turn.Validate.
var ErrInvalidTurn = errors.New("invalid turn")

// Validate checks the structural invariants of a turn.
func (t Turn) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidTurn)
	}
	switch t.Speaker {
	case SpeakerAI:
		if t.Text == "" {
			return fmt.Errorf("%w: AI turn %s has no text", ErrInvalidTurn, t.ID)
		}
	case SpeakerUser:
		if len(t.Choices) != 2 {
			return fmt.Errorf("%w: USER turn %s has %d choices, want 2", ErrInvalidTurn, t.ID, len(t.Choices))
		}
		correct := 0
		for _, c := range t.Choices {
			if c.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: USER turn %s has %d correct choices, want 1", ErrInvalidTurn, t.ID, correct)
		}
	default:
		return fmt.Errorf("%w: unknown speaker %q", ErrInvalidTurn, t.Speaker)
	}
	return nil
}

// CorrectChoice returns the candidate flagged correct.
func (t Turn) CorrectChoice() (Choice, bool) {
	for _, c := range t.Choices {
		if c.Correct {
			return c, true
		}
	}
	return Choice{}, false
}

// Choice returns the candidate with the given id.
func (t Turn) Choice(id int64) (Choice, bool) {
	for _, c := range t.Choices {
		if c.ID == id {
			return c, true
		}
	}
	return Choice{}, false
}

// AudioSample is an encoded capture ready for upload.
type AudioSample struct {
	Data     []byte
	Encoding string // MIME type of Data, e.g. "audio/wav"
	Duration time.Duration
}

// Verdict is the graded outcome of one turn. Never mutated after creation.
type Verdict struct {
	Outcome  Outcome  `json:"outcome"`
	Score    *float64 `json:"score,omitempty"`
	TimedOut bool     `json:"timed_out,omitempty"`
}

// Result maps GOOD to CORRECT and everything else to INCORRECT.
func (v Verdict) Result() Result {
	if v.Outcome == OutcomeGood {
		return ResultCorrect
	}
	return ResultIncorrect
}

// TimeoutVerdict is the client-decided verdict for an exhausted countdown.
func TimeoutVerdict() Verdict {
	return Verdict{Outcome: OutcomeWrong, TimedOut: true}
}

// HistoryEntry is a resolved turn recorded for the transcript and score.
type HistoryEntry struct {
	Seq          int       `json:"seq"`
	Turn         Turn      `json:"turn"`
	Verdict      Verdict   `json:"verdict"`
	Result       Result    `json:"result"`
	ChoiceResult Result    `json:"choice_result,omitempty"`
	Response     string    `json:"response"`
	ResolvedAt   time.Time `json:"resolved_at"`
}

// Summary is returned by the gateway when a session is completed.
type Summary struct {
	Total       int       `json:"total"`
	Correct     int       `json:"correct"`
	CompletedAt time.Time `json:"completed_at"`
}

// Completion is the payload handed to the completion consumer.
type Completion struct {
	SessionID  string         `json:"session_id"`
	ScenarioID string         `json:"scenario_id"`
	Summary    Summary        `json:"summary"`
	Elapsed    time.Duration  `json:"elapsed"`
	History    []HistoryEntry `json:"history"`
}

// TimeoutPolicy decides how an exhausted countdown is graded.
type TimeoutPolicy string

const (
	// TimeoutLocal force-grades INCORRECT without calling the gateway.
	TimeoutLocal TimeoutPolicy = "local"
	// TimeoutGateway submits a short silent sample for server grading.
	TimeoutGateway TimeoutPolicy = "gateway"
)

// SessionConfig holds the turn-flow timing parameters set via CLI flags.
type SessionConfig struct {
	StartDelay     time.Duration
	ListenCeiling  time.Duration // safety auto-advance for listen phases
	PlaybackSettle time.Duration // delay after successful playback
	CountdownTicks int
	TickInterval   time.Duration
	FeedbackHold   time.Duration
	TimeoutPolicy  TimeoutPolicy
}

// DefaultSessionConfig returns the stock timings.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		StartDelay:     1500 * time.Millisecond,
		ListenCeiling:  4 * time.Second,
		PlaybackSettle: 500 * time.Millisecond,
		CountdownTicks: 10,
		TickInterval:   time.Second,
		FeedbackHold:   1500 * time.Millisecond,
		TimeoutPolicy:  TimeoutLocal,
	}
}

// Normalize fills zero fields with defaults.
func (c SessionConfig) Normalize() SessionConfig {
	d := DefaultSessionConfig()
	if c.StartDelay <= 0 {
		c.StartDelay = d.StartDelay
	}
	if c.ListenCeiling <= 0 {
		c.ListenCeiling = d.ListenCeiling
	}
	if c.PlaybackSettle <= 0 {
		c.PlaybackSettle = d.PlaybackSettle
	}
	if c.CountdownTicks <= 0 {
		c.CountdownTicks = d.CountdownTicks
	}
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.FeedbackHold <= 0 {
		c.FeedbackHold = d.FeedbackHold
	}
	if c.TimeoutPolicy != TimeoutGateway {
		c.TimeoutPolicy = TimeoutLocal
	}
	return c
}

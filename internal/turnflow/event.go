package turnflow

import (
	"time"

	"github.com/pavelanni/speakdrill/internal/model"
)

// Token identifies one timer, playback, capture or grading request. Events
// carrying a token that no longer matches the state are stale and dropped.
type Token uint64

// Event is an input to Reduce.
type Event interface{ isEvent() }

// Mounted opens the screen for a scenario.
type Mounted struct {
	ScenarioID string
}

// SessionStarted reports the gateway's start-session response. Turn is nil
// when the gateway expects the first turn to be fetched with next-turn.
type SessionStarted struct {
	SessionID string
	Turn      *model.Turn
	At        time.Time
}

// TimerFired reports expiry of the timer with Token.
type TimerFired struct {
	Token Token
	At    time.Time
}

// PlaybackFinished reports the end of an utterance.
type PlaybackFinished struct {
	Token Token
	OK    bool
}

// ReplayRequested is the learner pressing the replay control.
type ReplayRequested struct{}

// ChoiceTapped selects a candidate and plays it.
type ChoiceTapped struct {
	ChoiceID int64
}

// ChoiceSubmitted submits the selected candidate.
type ChoiceSubmitted struct{}

// MicPressed starts a capture.
type MicPressed struct{}

// MicReleased ends a capture.
type MicReleased struct{}

// CaptureStarted reports that the microphone opened for a capture.
type CaptureStarted struct {
	Token Token
}

// CaptureFailed reports that a capture could not start or produced nothing.
type CaptureFailed struct {
	Token Token
	Err   error
}

// CaptureFinished delivers the encoded sample of a capture.
type CaptureFinished struct {
	Token  Token
	Sample model.AudioSample
}

// GradeReceived delivers the gateway verdict for a submission.
type GradeReceived struct {
	Token   Token
	Verdict model.Verdict
	At      time.Time
}

// GradeFailed reports a grading transport failure.
type GradeFailed struct {
	Token Token
	Err   error
}

// TryAgain restarts the current turn after a grading failure.
type TryAgain struct{}

// TurnReceived delivers the next turn.
type TurnReceived struct {
	Turn model.Turn
}

// TurnsExhausted is the gateway's "no more turns" signal.
type TurnsExhausted struct{}

// NextTurnFailed reports any other next-turn error.
type NextTurnFailed struct {
	Err error
}

// SummaryReceived delivers the complete-session response.
type SummaryReceived struct {
	Summary model.Summary
	At      time.Time
}

// CompleteFailed reports a complete-session error.
type CompleteFailed struct {
	Err error
}

// Fatal ends the screen with an error (start failure, malformed id).
type Fatal struct {
	Err error
}

// Unmounted tears the screen down.
type Unmounted struct{}

func (Mounted) isEvent()          {}
func (SessionStarted) isEvent()   {}
func (TimerFired) isEvent()       {}
func (PlaybackFinished) isEvent() {}
func (ReplayRequested) isEvent()  {}
func (ChoiceTapped) isEvent()     {}
func (ChoiceSubmitted) isEvent()  {}
func (MicPressed) isEvent()       {}
func (MicReleased) isEvent()      {}
func (CaptureStarted) isEvent()   {}
func (CaptureFailed) isEvent()    {}
func (CaptureFinished) isEvent()  {}
func (GradeReceived) isEvent()    {}
func (GradeFailed) isEvent()      {}
func (TryAgain) isEvent()         {}
func (TurnReceived) isEvent()     {}
func (TurnsExhausted) isEvent()   {}
func (NextTurnFailed) isEvent()   {}
func (SummaryReceived) isEvent()  {}
func (CompleteFailed) isEvent()   {}
func (Fatal) isEvent()            {}
func (Unmounted) isEvent()        {}

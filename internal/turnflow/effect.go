package turnflow

import (
	"time"

	"github.com/pavelanni/speakdrill/internal/model"
)

// Effect is an instruction emitted by Reduce for the runner to execute.
type Effect interface{ isEffect() }

// StartSession asks the gateway to open a session for a scenario.
type StartSession struct {
	ScenarioID string
}

// ClearTimer cancels the pending timer, if any.
type ClearTimer struct{}

// StartTimer schedules a TimerFired with Token after the delay.
type StartTimer struct {
	Token Token
	After time.Duration
}

// StopPlayback cancels in-flight playback.
type StopPlayback struct{}

// Speak plays text; completion is reported as PlaybackFinished with Token.
type Speak struct {
	Token Token
	Text  string
}

// BeginCapture opens the microphone.
type BeginCapture struct {
	Token Token
}

// EndCapture stops the microphone and encodes the sample.
type EndCapture struct {
	Token Token
}

// DiscardCapture stops the microphone and drops the sample.
type DiscardCapture struct {
	Token Token
}

// SubmitAudio sends a sample for grading. Silent is set for a timeout under
// the gateway policy; the runner then uploads a short silent clip.
type SubmitAudio struct {
	Token     Token
	SessionID string
	TurnID    string
	Sample    model.AudioSample
	Silent    bool
}

// FetchNextTurn requests the next turn.
type FetchNextTurn struct {
	SessionID string
}

// CompleteSession requests the session summary.
type CompleteSession struct {
	SessionID string
}

// Handoff passes the completion payload to the next screen.
type Handoff struct {
	Completion model.Completion
}

// Transitioned reports a phase change.
type Transitioned struct {
	From PhaseName
	To   PhaseName
}

// NoticeKind classifies a user-visible message.
type NoticeKind string

const (
	NoticeMicBlocked     NoticeKind = "mic_blocked"
	NoticeCaptureFailed  NoticeKind = "capture_failed"
	NoticePlaybackFailed NoticeKind = "playback_failed"
	NoticeTimeUp         NoticeKind = "time_up"
	NoticeGradingFailed  NoticeKind = "grading_failed"
	NoticeFatal          NoticeKind = "fatal"
)

// Notify surfaces a message to the learner.
type Notify struct {
	Kind NoticeKind
	Err  error
}

// Release frees the adapters on unmount: playback is closed without a
// completion callback and any active capture is discarded.
type Release struct{}

func (StartSession) isEffect()    {}
func (ClearTimer) isEffect()      {}
func (StartTimer) isEffect()      {}
func (StopPlayback) isEffect()    {}
func (Speak) isEffect()           {}
func (BeginCapture) isEffect()    {}
func (EndCapture) isEffect()      {}
func (DiscardCapture) isEffect()  {}
func (SubmitAudio) isEffect()     {}
func (FetchNextTurn) isEffect()   {}
func (CompleteSession) isEffect() {}
func (Handoff) isEffect()         {}
func (Transitioned) isEffect()    {}
func (Notify) isEffect()          {}
func (Release) isEffect()         {}

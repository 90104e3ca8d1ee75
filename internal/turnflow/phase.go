package turnflow

import "github.com/pavelanni/speakdrill/internal/model"

// PhaseName is the display name of a phase.
type PhaseName string

const (
	PhaseStart              PhaseName = "START"
	PhaseListen             PhaseName = "LISTEN"
	PhaseListenDone         PhaseName = "LISTEN_DONE"
	PhaseSpeakSetup         PhaseName = "SPEAK_SETUP"
	PhaseRecording          PhaseName = "RECORDING"
	PhaseGrading            PhaseName = "GRADING"
	PhaseChoiceSetup        PhaseName = "CHOICE_SETUP"
	PhaseChoiceFeedback     PhaseName = "CHOICE_FEEDBACK"
	PhasePracticeListen     PhaseName = "PRACTICE_LISTEN"
	PhasePracticeListenDone PhaseName = "PRACTICE_LISTEN_DONE"
	PhasePracticeSpeak      PhaseName = "PRACTICE_SPEAK"
	PhasePracticeGrading    PhaseName = "PRACTICE_GRADING"
	PhaseAdvancing          PhaseName = "ADVANCING"
	PhaseCompleting         PhaseName = "COMPLETING"
	PhaseCompleted          PhaseName = "COMPLETED"
	PhaseGradingError       PhaseName = "GRADING_ERROR"
	PhaseDone               PhaseName = "DONE"
	PhaseDisposed           PhaseName = "DISPOSED"
)

// Phase is the tagged union of sequencer phases. Only the types in this
// file implement it.
type Phase interface {
	Name() PhaseName
	isPhase()
}

// CaptureStatus tracks the microphone within a speak-ready phase.
type CaptureStatus int

const (
	CaptureIdle CaptureStatus = iota
	CaptureOpening // requested, device not open yet
	CaptureActive
	CaptureFinishing // released, waiting for the encoded sample
)

// Starting is the initial phase. AwaitingTurn is set when the session was
// opened without a first turn and one has been requested.
type Starting struct {
	AwaitingTurn bool
}

// Listening plays the target text (LISTEN or PRACTICE_LISTEN).
type Listening struct {
	Practice bool
}

// ListenDone is passed through on the way to the speak-ready phase.
type ListenDone struct {
	Practice bool
}

// Speaking is the countdown phase in which the microphone is accepted.
type Speaking struct {
	Practice  bool
	Remaining int
	Capture   CaptureStatus
}

// Grading waits for the gateway verdict of a submitted sample.
type Grading struct {
	Practice bool
}

// Choosing lets the learner pick one of the two candidates.
type Choosing struct{}

// ChoiceFeedback displays the local choice verdict.
type ChoiceFeedback struct {
	Result model.Result
}

// Advancing waits for the next turn.
type Advancing struct{}

// Completing waits for the session summary.
type Completing struct{}

// Completed is the normal exit; the completion has been handed off.
type Completed struct {
	Completion model.Completion
}

// GradingFailed shows a grading transport error until the learner tries the
// turn again.
type GradingFailed struct {
	Practice bool
	Err      error
}

// Failed is the terminal error phase.
type Failed struct {
	Err error
}

// Disposed follows unmount; every later event is dropped.
type Disposed struct{}

func (p Starting) Name() PhaseName { return PhaseStart }

func (p Listening) Name() PhaseName {
	if p.Practice {
		return PhasePracticeListen
	}
	return PhaseListen
}

func (p ListenDone) Name() PhaseName {
	if p.Practice {
		return PhasePracticeListenDone
	}
	return PhaseListenDone
}

func (p Speaking) Name() PhaseName {
	switch {
	case p.Practice:
		return PhasePracticeSpeak
	case p.Capture == CaptureActive || p.Capture == CaptureFinishing:
		return PhaseRecording
	default:
		return PhaseSpeakSetup
	}
}

func (p Grading) Name() PhaseName {
	if p.Practice {
		return PhasePracticeGrading
	}
	return PhaseGrading
}

func (Choosing) Name() PhaseName       { return PhaseChoiceSetup }
func (ChoiceFeedback) Name() PhaseName { return PhaseChoiceFeedback }
func (Advancing) Name() PhaseName      { return PhaseAdvancing }
func (Completing) Name() PhaseName     { return PhaseCompleting }
func (Completed) Name() PhaseName      { return PhaseCompleted }
func (GradingFailed) Name() PhaseName  { return PhaseGradingError }
func (Failed) Name() PhaseName         { return PhaseDone }
func (Disposed) Name() PhaseName       { return PhaseDisposed }

func (Starting) isPhase()       {}
func (Listening) isPhase()      {}
func (ListenDone) isPhase()     {}
func (Speaking) isPhase()       {}
func (Grading) isPhase()        {}
func (Choosing) isPhase()       {}
func (ChoiceFeedback) isPhase() {}
func (Advancing) isPhase()      {}
func (Completing) isPhase()     {}
func (Completed) isPhase()      {}
func (GradingFailed) isPhase()  {}
func (Failed) isPhase()         {}
func (Disposed) isPhase()       {}

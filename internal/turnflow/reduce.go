// Package turnflow is the learning-turn state machine. Reduce maps a State and
// an Event to the next State plus the effects a runner must execute; it does
// no I/O and reads no clock.
package turnflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/pavelanni/speakdrill/internal/model"
)

var (
	// ErrEmptyCapture is surfaced when a capture produced no audio.
	ErrEmptyCapture = errors.New("captured sample is empty")
	// ErrNoSession is raised when the gateway returns no session id.
	ErrNoSession = errors.New("gateway returned no session id")
)

// State is everything the sequencer owns for one screen.
type State struct {
	Config     model.SessionConfig
	ScenarioID string
	SessionID  string
	Turn       *model.Turn
	Phase      Phase
	Playing    bool
	Selected   int64        // selected candidate of a USER turn
	Choice     model.Result // local verdict of the USER turn's choice
	History    History
	StartedAt  time.Time

	played    map[playKey]struct{}
	seq       Token
	timer     Token
	playback  Token
	capture   Token
	grade     Token
	expiredAt time.Time // countdown ran out while a capture was encoding
}

type playKey struct {
	turnID   string
	practice bool
}

// New returns the initial state.
func New(cfg model.SessionConfig) State {
	return State{Config: cfg.Normalize(), Phase: Starting{}}
}

// Played reports whether the automatic playback of a turn's listen phase has
// already happened.
func (s State) Played(turnID string, practice bool) bool {
	_, ok := s.played[playKey{turnID, practice}]
	return ok
}

// Remaining returns the countdown ticks left, or 0 outside speak phases.
func (s State) Remaining() int {
	if sp, ok := s.Phase.(Speaking); ok {
		return sp.Remaining
	}
	return 0
}

// Capturing reports whether the microphone is open.
func (s State) Capturing() bool {
	sp, ok := s.Phase.(Speaking)
	return ok && sp.Capture == CaptureActive
}

// Expired reports whether the countdown ran out while a released capture
// was still being encoded.
func (s State) Expired() bool {
	sp, ok := s.Phase.(Speaking)
	return ok && sp.Remaining == 0 && sp.Capture == CaptureFinishing
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	switch s.Phase.(type) {
	case Completed, Failed, Disposed:
		return true
	}
	return false
}

// Reduce applies one event.
func Reduce(s State, ev Event) (State, []Effect) {
	r := &reducer{s: s}
	r.handle(ev)
	return r.s, r.fx
}

type reducer struct {
	s  State
	fx []Effect
}

func (r *reducer) emit(fx ...Effect) { r.fx = append(r.fx, fx...) }

func (r *reducer) issue() Token {
	r.s.seq++
	return r.s.seq
}

func (r *reducer) handle(ev Event) {
	if _, ok := r.s.Phase.(Disposed); ok {
		return
	}
	if _, ok := ev.(Unmounted); ok {
		r.dispose()
		return
	}
	if r.s.Terminal() {
		return
	}

	switch e := ev.(type) {
	case Mounted:
		r.onMounted(e)
	case SessionStarted:
		r.onSessionStarted(e)
	case TimerFired:
		r.onTimer(e)
	case PlaybackFinished:
		r.onPlaybackFinished(e)
	case ReplayRequested:
		r.onReplay()
	case ChoiceTapped:
		r.onChoiceTapped(e)
	case ChoiceSubmitted:
		r.onChoiceSubmitted()
	case MicPressed:
		r.onMicPressed()
	case MicReleased:
		r.onMicReleased()
	case CaptureStarted:
		r.onCaptureStarted(e)
	case CaptureFailed:
		r.onCaptureFailed(e)
	case CaptureFinished:
		r.onCaptureFinished(e)
	case GradeReceived:
		r.onGradeReceived(e)
	case GradeFailed:
		r.onGradeFailed(e)
	case TryAgain:
		r.onTryAgain()
	case TurnReceived:
		r.onTurnReceived(e)
	case TurnsExhausted:
		r.onTurnsExhausted()
	case NextTurnFailed:
		r.fail(fmt.Errorf("next turn: %w", e.Err))
	case SummaryReceived:
		r.onSummary(e)
	case CompleteFailed:
		if _, ok := r.s.Phase.(Completing); ok {
			r.fail(fmt.Errorf("complete session: %w", e.Err))
		}
	case Fatal:
		r.fail(e.Err)
	}
}

// transition tears down the current phase's timer and playback before
// switching phase. Setup effects are emitted by the caller afterwards.
func (r *reducer) transition(to Phase) {
	from := r.s.Phase.Name()
	if r.s.timer != 0 {
		r.emit(ClearTimer{})
		r.s.timer = 0
	}
	if r.s.Playing {
		r.emit(StopPlayback{})
		r.s.Playing = false
		r.s.playback = 0
	}
	r.s.Phase = to
	r.emit(Transitioned{From: from, To: to.Name()})
}

// relabel changes phase data without teardown; used inside the speak phase.
func (r *reducer) relabel(to Phase) {
	from := r.s.Phase.Name()
	r.s.Phase = to
	if from != to.Name() {
		r.emit(Transitioned{From: from, To: to.Name()})
	}
}

func (r *reducer) startTimer(d time.Duration) {
	if r.s.timer != 0 {
		r.emit(ClearTimer{})
	}
	r.s.timer = r.issue()
	r.emit(StartTimer{Token: r.s.timer, After: d})
}

func (r *reducer) speak(text string) {
	r.s.playback = r.issue()
	r.s.Playing = true
	r.emit(Speak{Token: r.s.playback, Text: text})
}

func (r *reducer) fail(err error) {
	r.abandonCapture()
	r.transition(Failed{Err: err})
	r.emit(Notify{Kind: NoticeFatal, Err: err})
}

func (r *reducer) dispose() {
	if r.s.timer != 0 {
		r.emit(ClearTimer{})
		r.s.timer = 0
	}
	from := r.s.Phase.Name()
	r.s.Phase = Disposed{}
	r.s.Playing = false
	r.s.playback, r.s.capture, r.s.grade = 0, 0, 0
	r.emit(Release{}, Transitioned{From: from, To: PhaseDisposed})
}

func (r *reducer) abandonCapture() {
	if sp, ok := r.s.Phase.(Speaking); ok && sp.Capture != CaptureIdle {
		r.emit(DiscardCapture{Token: r.s.capture})
	}
	r.s.capture = 0
}

func (r *reducer) onMounted(e Mounted) {
	st, ok := r.s.Phase.(Starting)
	if !ok || r.s.SessionID != "" || st.AwaitingTurn {
		return
	}
	r.s.ScenarioID = e.ScenarioID
	r.emit(StartSession{ScenarioID: e.ScenarioID})
}

func (r *reducer) onSessionStarted(e SessionStarted) {
	if _, ok := r.s.Phase.(Starting); !ok || r.s.SessionID != "" {
		return
	}
	if e.SessionID == "" {
		r.fail(ErrNoSession)
		return
	}
	r.s.SessionID = e.SessionID
	r.s.StartedAt = e.At
	if e.Turn == nil {
		r.s.Phase = Starting{AwaitingTurn: true}
		r.emit(FetchNextTurn{SessionID: r.s.SessionID})
		return
	}
	if !r.setTurn(*e.Turn) {
		return
	}
	r.startTimer(r.s.Config.StartDelay)
}

// setTurn installs a new turn and forgets the previous turn's played set.
func (r *reducer) setTurn(t model.Turn) bool {
	if err := t.Validate(); err != nil {
		r.fail(err)
		return false
	}
	r.s.Turn = &t
	r.s.played = nil
	r.s.Selected = 0
	r.s.Choice = ""
	return true
}

func (r *reducer) beginTurn() {
	if r.s.Turn.Speaker == model.SpeakerUser {
		r.enterChoosing()
		return
	}
	r.enterListen(false)
}

func (r *reducer) listenText(practice bool) string {
	if practice {
		c, _ := r.s.Turn.CorrectChoice()
		return c.Text
	}
	return r.s.Turn.Text
}

func (r *reducer) markPlayed(k playKey) {
	played := make(map[playKey]struct{}, len(r.s.played)+1)
	for key := range r.s.played {
		played[key] = struct{}{}
	}
	played[k] = struct{}{}
	r.s.played = played
}

func (r *reducer) enterListen(practice bool) {
	r.transition(Listening{Practice: practice})
	k := playKey{turnID: r.s.Turn.ID, practice: practice}
	if _, done := r.s.played[k]; !done {
		r.markPlayed(k)
		r.speak(r.listenText(practice))
	}
	r.startTimer(r.s.Config.ListenCeiling)
}

func (r *reducer) finishListen(practice bool) {
	r.transition(ListenDone{Practice: practice})
	r.transition(Speaking{Practice: practice, Remaining: r.s.Config.CountdownTicks})
	r.startTimer(r.s.Config.TickInterval)
}

func (r *reducer) enterChoosing() {
	r.transition(Choosing{})
	if c, ok := r.s.Turn.CorrectChoice(); ok {
		r.s.Selected = c.ID
	}
}

func (r *reducer) onTimer(e TimerFired) {
	if e.Token == 0 || e.Token != r.s.timer {
		return
	}
	r.s.timer = 0
	switch p := r.s.Phase.(type) {
	case Starting:
		if r.s.Turn != nil {
			r.beginTurn()
		}
	case Listening:
		r.finishListen(p.Practice)
	case Speaking:
		p.Remaining--
		if p.Remaining > 0 {
			r.relabel(p)
			r.startTimer(r.s.Config.TickInterval)
			return
		}
		r.relabel(p)
		if p.Capture == CaptureFinishing {
			r.s.expiredAt = e.At
			return
		}
		r.timeUp(p, e.At)
	case ChoiceFeedback:
		r.enterListen(true)
	}
}

// timeUp handles a countdown that reached zero without a completed capture.
func (r *reducer) timeUp(p Speaking, at time.Time) {
	r.abandonCapture()
	r.emit(Notify{Kind: NoticeTimeUp})
	if r.s.Config.TimeoutPolicy == model.TimeoutGateway {
		r.enterGrading(p.Practice, model.AudioSample{}, true)
		return
	}
	r.transition(Grading{Practice: p.Practice})
	r.resolve(model.TimeoutVerdict(), at)
}

func (r *reducer) onPlaybackFinished(e PlaybackFinished) {
	if e.Token == 0 || e.Token != r.s.playback {
		return
	}
	r.s.Playing = false
	r.s.playback = 0
	if !e.OK {
		r.emit(Notify{Kind: NoticePlaybackFailed})
		return
	}
	if _, ok := r.s.Phase.(Listening); ok {
		r.startTimer(r.s.Config.PlaybackSettle)
	}
}

func (r *reducer) onReplay() {
	switch p := r.s.Phase.(type) {
	case Listening:
		r.speak(r.listenText(p.Practice))
	case Speaking:
		if p.Capture != CaptureIdle {
			return
		}
		r.speak(r.listenText(p.Practice))
	case Choosing:
		if c, ok := r.s.Turn.Choice(r.s.Selected); ok {
			r.speak(c.Text)
		}
	}
}

func (r *reducer) onChoiceTapped(e ChoiceTapped) {
	if _, ok := r.s.Phase.(Choosing); !ok {
		return
	}
	c, ok := r.s.Turn.Choice(e.ChoiceID)
	if !ok {
		return
	}
	r.s.Selected = c.ID
	r.speak(c.Text)
}

func (r *reducer) onChoiceSubmitted() {
	if _, ok := r.s.Phase.(Choosing); !ok {
		return
	}
	result := model.ResultIncorrect
	if c, ok := r.s.Turn.CorrectChoice(); ok && c.ID == r.s.Selected {
		result = model.ResultCorrect
	}
	r.s.Choice = result
	r.transition(ChoiceFeedback{Result: result})
	r.startTimer(r.s.Config.FeedbackHold)
}

func (r *reducer) onMicPressed() {
	p, ok := r.s.Phase.(Speaking)
	if !ok || p.Capture != CaptureIdle {
		return
	}
	if !p.Practice && r.s.Playing {
		r.emit(Notify{Kind: NoticeMicBlocked})
		return
	}
	r.s.capture = r.issue()
	p.Capture = CaptureOpening
	r.relabel(p)
	r.emit(BeginCapture{Token: r.s.capture})
}

func (r *reducer) onCaptureStarted(e CaptureStarted) {
	p, ok := r.s.Phase.(Speaking)
	if !ok || e.Token == 0 || e.Token != r.s.capture || p.Capture != CaptureOpening {
		return
	}
	p.Capture = CaptureActive
	r.relabel(p)
}

func (r *reducer) onMicReleased() {
	p, ok := r.s.Phase.(Speaking)
	if !ok || p.Capture != CaptureActive {
		return
	}
	p.Capture = CaptureFinishing
	r.relabel(p)
	r.emit(EndCapture{Token: r.s.capture})
}

func (r *reducer) onCaptureFailed(e CaptureFailed) {
	p, ok := r.s.Phase.(Speaking)
	if !ok || e.Token == 0 || e.Token != r.s.capture {
		return
	}
	r.s.capture = 0
	r.captureLost(p, e.Err)
}

// captureLost returns the speak phase to ready, or times the turn out when
// the countdown already ran out during encoding.
func (r *reducer) captureLost(p Speaking, err error) {
	p.Capture = CaptureIdle
	r.relabel(p)
	r.emit(Notify{Kind: NoticeCaptureFailed, Err: err})
	if p.Remaining == 0 {
		at := r.s.expiredAt
		r.s.expiredAt = time.Time{}
		r.timeUp(p, at)
	}
}

func (r *reducer) onCaptureFinished(e CaptureFinished) {
	p, ok := r.s.Phase.(Speaking)
	if !ok || e.Token == 0 || e.Token != r.s.capture || p.Capture == CaptureIdle {
		return
	}
	r.s.capture = 0
	if len(e.Sample.Data) == 0 {
		r.captureLost(p, ErrEmptyCapture)
		return
	}
	r.s.expiredAt = time.Time{}
	r.enterGrading(p.Practice, e.Sample, false)
}

func (r *reducer) enterGrading(practice bool, sample model.AudioSample, silent bool) {
	r.transition(Grading{Practice: practice})
	r.s.grade = r.issue()
	r.emit(SubmitAudio{
		Token:     r.s.grade,
		SessionID: r.s.SessionID,
		TurnID:    r.s.Turn.ID,
		Sample:    sample,
		Silent:    silent,
	})
}

func (r *reducer) onGradeReceived(e GradeReceived) {
	if _, ok := r.s.Phase.(Grading); !ok || e.Token == 0 || e.Token != r.s.grade {
		return
	}
	r.s.grade = 0
	r.resolve(e.Verdict, e.At)
}

func (r *reducer) onGradeFailed(e GradeFailed) {
	p, ok := r.s.Phase.(Grading)
	if !ok || e.Token == 0 || e.Token != r.s.grade {
		return
	}
	r.s.grade = 0
	r.transition(GradingFailed{Practice: p.Practice, Err: e.Err})
	r.emit(Notify{Kind: NoticeGradingFailed, Err: e.Err})
}

func (r *reducer) onTryAgain() {
	if _, ok := r.s.Phase.(GradingFailed); !ok {
		return
	}
	r.s.played = nil
	r.s.Choice = ""
	r.beginTurn()
}

// resolve appends the history entry for the current turn and advances.
func (r *reducer) resolve(v model.Verdict, at time.Time) {
	t := *r.s.Turn
	entry := model.HistoryEntry{
		Turn:       t,
		Verdict:    v,
		Result:     v.Result(),
		Response:   t.Text,
		ResolvedAt: at,
	}
	if t.Speaker == model.SpeakerUser {
		entry.ChoiceResult = r.s.Choice
		if c, ok := t.Choice(r.s.Selected); ok {
			entry.Response = c.Text
		}
	}
	r.s.History = r.s.History.Append(entry)
	r.transition(Advancing{})
	r.emit(FetchNextTurn{SessionID: r.s.SessionID})
}

func (r *reducer) onTurnReceived(e TurnReceived) {
	switch p := r.s.Phase.(type) {
	case Starting:
		if !p.AwaitingTurn {
			return
		}
		if !r.setTurn(e.Turn) {
			return
		}
		r.s.Phase = Starting{}
		r.startTimer(r.s.Config.StartDelay)
	case Advancing:
		if !r.setTurn(e.Turn) {
			return
		}
		r.beginTurn()
	}
}

func (r *reducer) onTurnsExhausted() {
	switch p := r.s.Phase.(type) {
	case Starting:
		if !p.AwaitingTurn {
			return
		}
	case Advancing:
	default:
		return
	}
	r.transition(Completing{})
	r.emit(CompleteSession{SessionID: r.s.SessionID})
}

func (r *reducer) onSummary(e SummaryReceived) {
	if _, ok := r.s.Phase.(Completing); !ok {
		return
	}
	c := model.Completion{
		SessionID:  r.s.SessionID,
		ScenarioID: r.s.ScenarioID,
		Summary:    e.Summary,
		Elapsed:    e.At.Sub(r.s.StartedAt),
		History:    r.s.History.Entries(),
	}
	r.transition(Completed{Completion: c})
	r.emit(Handoff{Completion: c})
}

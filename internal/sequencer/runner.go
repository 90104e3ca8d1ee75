// Package sequencer runs the turnflow state machine against real adapters:
// audio playback, microphone capture, the grading gateway and a clock.
//
// All state lives on the goroutine executing Run. Adapters report back by
// posting events to a mailbox, so a slow network call or playback never
// blocks the loop and results arriving after unmount are dropped.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/speakdrill/internal/capture"
	"github.com/pavelanni/speakdrill/internal/gateway"
	"github.com/pavelanni/speakdrill/internal/model"
	"github.com/pavelanni/speakdrill/internal/turnflow"
)

// SilentClip is the length of the sample uploaded for a timeout under the
// gateway timeout policy.
const SilentClip = 500 * time.Millisecond

// ErrUnmounted is returned by Run when the screen is closed before the
// session completes.
var ErrUnmounted = errors.New("session closed before completion")

// Speaker plays utterances. done is called once per utterance unless the
// speaker is closed first.
type Speaker interface {
	Speak(ctx context.Context, text string, done func(ok bool))
	Cancel()
	Close() error
}

// Recorder captures and encodes learner speech.
type Recorder interface {
	Begin(ctx context.Context) (*capture.Handle, error)
	End(ctx context.Context, h *capture.Handle) (model.AudioSample, error)
	Discard(h *capture.Handle)
	Silence(ctx context.Context, d time.Duration) (model.AudioSample, error)
	Close() error
}

// Gateway is the remote session service.
type Gateway interface {
	StartSession(ctx context.Context, scenarioID string) (gateway.StartResponse, error)
	NextTurn(ctx context.Context, sessionID string) (model.Turn, error)
	GradeAudio(ctx context.Context, sessionID, turnID string, s model.AudioSample) (model.Verdict, error)
	CompleteSession(ctx context.Context, sessionID string) (model.Summary, error)
}

// Observer receives every state after an event has been applied and every
// notice. Calls happen on the loop goroutine and must not block.
type Observer interface {
	OnState(s turnflow.State)
	OnNotice(n turnflow.Notify)
}

// Options configures a Runner. Gateway is required.
type Options struct {
	Config   model.SessionConfig
	Gateway  Gateway
	Speaker  Speaker
	Recorder Recorder
	Clock    Clock
	Observer Observer
	// OnComplete receives the completion payload exactly once.
	OnComplete func(model.Completion) error
	Logger     *slog.Logger
}

// Runner executes one scenario screen.
type Runner struct {
	cfg        model.SessionConfig
	gw         Gateway
	speaker    Speaker
	rec        Recorder
	clock      Clock
	obs        Observer
	onComplete func(model.Completion) error
	logger     *slog.Logger

	mb      *mailbox
	ctx     context.Context
	cancel  context.CancelFunc
	state   turnflow.State
	timer   Stopper
	handles map[turnflow.Token]*capture.Handle
}

// New creates a runner. A nil Speaker or Recorder is replaced by one that
// always fails, so the learner can still progress by timeouts and choices.
func New(opts Options) (*Runner, error) {
	if opts.Gateway == nil {
		return nil, fmt.Errorf("sequencer: gateway is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r := &Runner{
		cfg:        opts.Config.Normalize(),
		gw:         opts.Gateway,
		speaker:    opts.Speaker,
		rec:        opts.Recorder,
		clock:      opts.Clock,
		obs:        opts.Observer,
		onComplete: opts.OnComplete,
		logger:     logger,
		mb:         newMailbox(),
		handles:    make(map[turnflow.Token]*capture.Handle),
	}
	if r.speaker == nil {
		r.speaker = muteSpeaker{}
	}
	if r.rec == nil {
		r.rec = capture.NewRecorder(nil, nil, capture.DefaultFormat, logger)
	}
	if r.clock == nil {
		r.clock = SystemClock{}
	}
	if r.obs == nil {
		r.obs = nopObserver{}
	}
	r.state = turnflow.New(r.cfg)
	return r, nil
}

// Dispatch posts a learner event (mic, replay, choice, try-again). It is
// safe to call from any goroutine; events after unmount are ignored.
func (r *Runner) Dispatch(ev turnflow.Event) {
	r.mb.post(ev)
}

// Close unmounts the screen. Run returns ErrUnmounted unless the session
// already completed.
func (r *Runner) Close() {
	r.mb.post(turnflow.Unmounted{})
}

// Run mounts the screen for scenarioID and processes events until the
// session completes, fails, or is unmounted. Adapters are released before
// Run returns.
func (r *Runner) Run(ctx context.Context, scenarioID string) (model.Completion, error) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	defer r.cancel()

	r.apply(turnflow.Mounted{ScenarioID: scenarioID})
	for !r.state.Terminal() {
		select {
		case <-ctx.Done():
			r.apply(turnflow.Unmounted{})
			return model.Completion{}, ctx.Err()
		case <-r.mb.signal:
			for _, ev := range r.mb.drain() {
				r.apply(ev)
			}
		}
	}

	final := r.state.Phase
	r.apply(turnflow.Unmounted{})
	switch p := final.(type) {
	case turnflow.Completed:
		return p.Completion, nil
	case turnflow.Failed:
		return model.Completion{}, p.Err
	default:
		return model.Completion{}, ErrUnmounted
	}
}

// apply reduces ev and executes the resulting effects. Effects that complete
// synchronously feed their events back before the observer sees the state.
func (r *Runner) apply(ev turnflow.Event) {
	queue := []turnflow.Event{ev}
	for len(queue) > 0 {
		next, fx := turnflow.Reduce(r.state, queue[0])
		queue = queue[1:]
		r.state = next
		for _, e := range fx {
			queue = append(queue, r.execute(e)...)
		}
	}
	r.obs.OnState(r.state)
}

func (r *Runner) execute(fx turnflow.Effect) []turnflow.Event {
	switch e := fx.(type) {
	case turnflow.Transitioned:
		r.logger.Debug("phase", "from", e.From, "to", e.To)
	case turnflow.Notify:
		if e.Err != nil {
			r.logger.Warn("notice", "kind", e.Kind, "error", e.Err)
		}
		r.obs.OnNotice(e)
	case turnflow.ClearTimer:
		r.stopTimer()
	case turnflow.StartTimer:
		r.stopTimer()
		token := e.Token
		r.timer = r.clock.AfterFunc(e.After, func() {
			r.mb.post(turnflow.TimerFired{Token: token, At: r.clock.Now()})
		})
	case turnflow.StopPlayback:
		r.speaker.Cancel()
	case turnflow.Speak:
		token := e.Token
		r.speaker.Speak(r.ctx, e.Text, func(ok bool) {
			r.mb.post(turnflow.PlaybackFinished{Token: token, OK: ok})
		})
	case turnflow.BeginCapture:
		h, err := r.rec.Begin(r.ctx)
		if err != nil {
			return []turnflow.Event{turnflow.CaptureFailed{Token: e.Token, Err: err}}
		}
		r.handles[e.Token] = h
		return []turnflow.Event{turnflow.CaptureStarted{Token: e.Token}}
	case turnflow.EndCapture:
		h, ok := r.handles[e.Token]
		delete(r.handles, e.Token)
		if !ok {
			return []turnflow.Event{turnflow.CaptureFailed{Token: e.Token, Err: capture.ErrNotCapturing}}
		}
		go r.endCapture(e.Token, h)
	case turnflow.DiscardCapture:
		if h, ok := r.handles[e.Token]; ok {
			delete(r.handles, e.Token)
			r.rec.Discard(h)
		}
	case turnflow.SubmitAudio:
		go r.submit(e)
	case turnflow.StartSession:
		go r.startSession(e.ScenarioID)
	case turnflow.FetchNextTurn:
		go r.fetchNext(e.SessionID)
	case turnflow.CompleteSession:
		go r.complete(e.SessionID)
	case turnflow.Handoff:
		if r.onComplete != nil {
			if err := r.onComplete(e.Completion); err != nil {
				r.logger.Error("completion handoff", "session", e.Completion.SessionID, "error", err)
			}
		}
	case turnflow.Release:
		r.release()
	default:
		r.logger.Warn("unknown effect", "type", fmt.Sprintf("%T", fx))
	}
	return nil
}

func (r *Runner) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

func (r *Runner) release() {
	r.stopTimer()
	r.mb.close()
	for token, h := range r.handles {
		r.rec.Discard(h)
		delete(r.handles, token)
	}
	if err := r.speaker.Close(); err != nil {
		r.logger.Warn("close speaker", "error", err)
	}
	if err := r.rec.Close(); err != nil {
		r.logger.Warn("close recorder", "error", err)
	}
	r.cancel()
}

func (r *Runner) endCapture(token turnflow.Token, h *capture.Handle) {
	s, err := r.rec.End(r.ctx, h)
	if err != nil {
		r.mb.post(turnflow.CaptureFailed{Token: token, Err: err})
		return
	}
	r.mb.post(turnflow.CaptureFinished{Token: token, Sample: s})
}

// submit outlives unmount; the verdict is dropped by the closed mailbox.
func (r *Runner) submit(e turnflow.SubmitAudio) {
	ctx := context.WithoutCancel(r.ctx)
	sample := e.Sample
	if e.Silent {
		var err error
		sample, err = r.rec.Silence(ctx, SilentClip)
		if err != nil {
			r.mb.post(turnflow.GradeFailed{Token: e.Token, Err: err})
			return
		}
	}
	v, err := r.gw.GradeAudio(ctx, e.SessionID, e.TurnID, sample)
	if err != nil {
		r.mb.post(turnflow.GradeFailed{Token: e.Token, Err: err})
		return
	}
	r.mb.post(turnflow.GradeReceived{Token: e.Token, Verdict: v, At: r.clock.Now()})
}

func (r *Runner) startSession(scenarioID string) {
	resp, err := r.gw.StartSession(r.ctx, scenarioID)
	if err != nil {
		r.mb.post(turnflow.Fatal{Err: fmt.Errorf("start session: %w", err)})
		return
	}
	r.mb.post(turnflow.SessionStarted{SessionID: resp.SessionID, Turn: resp.Turn, At: r.clock.Now()})
}

func (r *Runner) fetchNext(sessionID string) {
	t, err := r.gw.NextTurn(r.ctx, sessionID)
	switch {
	case errors.Is(err, gateway.ErrExhausted):
		r.mb.post(turnflow.TurnsExhausted{})
	case err != nil:
		r.mb.post(turnflow.NextTurnFailed{Err: err})
	default:
		r.mb.post(turnflow.TurnReceived{Turn: t})
	}
}

func (r *Runner) complete(sessionID string) {
	sum, err := r.gw.CompleteSession(r.ctx, sessionID)
	if err != nil {
		r.mb.post(turnflow.CompleteFailed{Err: err})
		return
	}
	r.mb.post(turnflow.SummaryReceived{Summary: sum, At: r.clock.Now()})
}

type muteSpeaker struct{}

func (muteSpeaker) Speak(_ context.Context, _ string, done func(bool)) {
	if done != nil {
		done(false)
	}
}
func (muteSpeaker) Cancel()      {}
func (muteSpeaker) Close() error { return nil }

type nopObserver struct{}

func (nopObserver) OnState(turnflow.State)   {}
func (nopObserver) OnNotice(turnflow.Notify) {}

// Package speech plays target-language utterances through a synthesizer and
// an audio output.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultSettle is the pause between a superseded utterance and its
// replacement.
const DefaultSettle = 100 * time.Millisecond

// ErrUnavailable is logged when no synthesizer or output is configured.
var ErrUnavailable = errors.New("speech playback unavailable")

// Synthesizer turns text into an encoded audio clip.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Output plays an encoded clip and blocks until it ends or ctx is done.
type Output interface {
	Play(ctx context.Context, clip []byte) error
}

// Player runs at most one utterance at a time. Every utterance reports its
// end through its done callback exactly once, except when the player is
// closed.
type Player struct {
	synth  Synthesizer
	out    Output
	settle time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	current *utterance
	closed  bool
	wg      sync.WaitGroup
}

type utterance struct {
	cancel context.CancelFunc
	done   func(ok bool)
	once   sync.Once
}

// finish cancels the utterance and reports ok unless it already ended.
func (u *utterance) finish(ok bool) {
	u.once.Do(func() {
		u.cancel()
		if u.done != nil {
			u.done(ok)
		}
	})
}

// silence cancels the utterance without reporting.
func (u *utterance) silence() {
	u.once.Do(u.cancel)
}

// NewPlayer creates a player. A nil synth or out makes every Speak fail
// immediately.
func NewPlayer(synth Synthesizer, out Output, settle time.Duration, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	if settle < 0 {
		settle = 0
	}
	return &Player{synth: synth, out: out, settle: settle, logger: logger}
}

// Available reports whether a backend is configured.
func (p *Player) Available() bool {
	return p.synth != nil && p.out != nil
}

// Speak plays text. An in-flight utterance is superseded: its done reports
// success and the new one starts after the settle delay.
func (p *Player) Speak(ctx context.Context, text string, done func(ok bool)) {
	if !p.Available() {
		p.logger.Warn("speak", "error", ErrUnavailable)
		if done != nil {
			done(false)
		}
		return
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	prev := p.current
	uctx, cancel := context.WithCancel(ctx)
	u := &utterance{cancel: cancel, done: done}
	p.current = u
	p.wg.Add(1)
	p.mu.Unlock()

	if prev != nil {
		prev.finish(true)
	}
	go p.run(uctx, u, text, prev != nil)
}

func (p *Player) run(ctx context.Context, u *utterance, text string, superseded bool) {
	defer p.wg.Done()
	defer p.clear(u)

	if superseded && p.settle > 0 {
		t := time.NewTimer(p.settle)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}

	clip, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("synthesize", "text", text, "error", err)
		}
		u.finish(false)
		return
	}
	if err := p.out.Play(ctx, clip); err != nil {
		if ctx.Err() == nil {
			p.logger.Warn("play", "text", text, "error", err)
		}
		u.finish(false)
		return
	}
	u.finish(true)
}

func (p *Player) clear(u *utterance) {
	p.mu.Lock()
	if p.current == u {
		p.current = nil
	}
	p.mu.Unlock()
}

// Cancel stops in-flight playback, reporting success to its callback.
func (p *Player) Cancel() {
	p.mu.Lock()
	u := p.current
	p.current = nil
	p.mu.Unlock()
	if u != nil {
		u.finish(true)
	}
}

// Close stops in-flight playback without invoking its callback and rejects
// further utterances. It waits for playback goroutines to exit.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	u := p.current
	p.current = nil
	p.mu.Unlock()
	if u != nil {
		u.silence()
	}
	p.wg.Wait()
	return nil
}

// Prefetch synthesizes texts ahead of playback so a caching synthesizer has
// them ready. Failures are returned but do not stop the remaining texts.
func Prefetch(ctx context.Context, synth Synthesizer, texts []string) error {
	var errs []error
	for _, text := range texts {
		if _, err := synth.Synthesize(ctx, text); err != nil {
			errs = append(errs, fmt.Errorf("prefetch %q: %w", text, err))
		}
	}
	return errors.Join(errs...)
}

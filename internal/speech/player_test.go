package speech

import (
	"context"
	"errors"
	"testing"
	"time"
)

type echoSynth struct{ err error }

func (s echoSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	if s.err != nil {
		return nil, s.err
	}
	return []byte(text), nil
}

// blockingOutput plays until its context is cancelled.
type blockingOutput struct {
	started chan string
}

func newBlockingOutput() *blockingOutput {
	return &blockingOutput{started: make(chan string, 4)}
}

func (o *blockingOutput) Play(ctx context.Context, clip []byte) error {
	o.started <- string(clip)
	<-ctx.Done()
	return ctx.Err()
}

func recorder() (func(bool), chan bool) {
	ch := make(chan bool, 2)
	return func(ok bool) { ch <- ok }, ch
}

func waitResult(t *testing.T, ch chan bool) bool {
	t.Helper()
	select {
	case ok := <-ch:
		return ok
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback callback")
		return false
	}
}

func waitStarted(t *testing.T, o *blockingOutput) string {
	t.Helper()
	select {
	case s := <-o.started:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for playback start")
		return ""
	}
}

func assertSilent(t *testing.T, ch chan bool) {
	t.Helper()
	select {
	case ok := <-ch:
		t.Fatalf("unexpected callback(%v)", ok)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSpeakUnavailableFailsImmediately(t *testing.T) {
	p := NewPlayer(nil, nil, DefaultSettle, nil)
	called, ok := false, true
	p.Speak(context.Background(), "안녕하세요", func(v bool) { called, ok = true, v })
	if !called || ok {
		t.Fatalf("called=%v ok=%v, want synchronous failure", called, ok)
	}
}

func TestSpeakReportsSuccess(t *testing.T) {
	p := NewPlayer(echoSynth{}, Discard{}, DefaultSettle, nil)
	defer p.Close()
	done, ch := recorder()
	p.Speak(context.Background(), "안녕하세요", done)
	if !waitResult(t, ch) {
		t.Error("expected success")
	}
}

func TestSpeakSynthesisFailure(t *testing.T) {
	p := NewPlayer(echoSynth{err: errors.New("quota exceeded")}, Discard{}, DefaultSettle, nil)
	defer p.Close()
	done, ch := recorder()
	p.Speak(context.Background(), "안녕하세요", done)
	if waitResult(t, ch) {
		t.Error("expected failure")
	}
}

func TestSpeakSupersedes(t *testing.T) {
	out := newBlockingOutput()
	p := NewPlayer(echoSynth{}, out, 20*time.Millisecond, nil)

	doneA, chA := recorder()
	p.Speak(context.Background(), "first", doneA)
	if got := waitStarted(t, out); got != "first" {
		t.Fatalf("started %q", got)
	}

	doneB, chB := recorder()
	start := time.Now()
	p.Speak(context.Background(), "second", doneB)
	if !waitResult(t, chA) {
		t.Error("superseded utterance should report success")
	}
	if got := waitStarted(t, out); got != "second" {
		t.Fatalf("started %q", got)
	}
	if elapsed := time.Since(start); elapsed < 20*time.Millisecond {
		t.Errorf("replacement started after %v, want settle delay", elapsed)
	}

	p.Close()
	assertSilent(t, chB)
	assertSilent(t, chA)
}

func TestCancelReportsSuccess(t *testing.T) {
	out := newBlockingOutput()
	p := NewPlayer(echoSynth{}, out, DefaultSettle, nil)
	defer p.Close()

	done, ch := recorder()
	p.Speak(context.Background(), "안녕하세요", done)
	waitStarted(t, out)
	p.Cancel()
	if !waitResult(t, ch) {
		t.Error("cancelled playback should report success")
	}
	assertSilent(t, ch)
}

func TestCloseIsSilentAndFinal(t *testing.T) {
	out := newBlockingOutput()
	p := NewPlayer(echoSynth{}, out, DefaultSettle, nil)

	done, ch := recorder()
	p.Speak(context.Background(), "안녕하세요", done)
	waitStarted(t, out)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	assertSilent(t, ch)

	p.Speak(context.Background(), "감사합니다", done)
	assertSilent(t, ch)
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestPrefetchJoinsErrors(t *testing.T) {
	err := Prefetch(context.Background(), echoSynth{err: errors.New("offline")}, []string{"a", "b"})
	if err == nil {
		t.Fatal("expected error")
	}
	if err := Prefetch(context.Background(), echoSynth{}, []string{"a", "b"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

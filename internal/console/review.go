package console

import (
	"context"

	"github.com/pavelanni/speakdrill/internal/capture"
	appI18n "github.com/pavelanni/speakdrill/internal/i18n"
	"github.com/pavelanni/speakdrill/internal/model"
	"github.com/pavelanni/speakdrill/internal/review"
)

// Speaker plays a line and reports when it ends.
type Speaker interface {
	Speak(ctx context.Context, text string, done func(ok bool))
}

// Recorder captures one spoken attempt.
type Recorder interface {
	Begin(ctx context.Context) (*capture.Handle, error)
	End(ctx context.Context, h *capture.Handle) (model.AudioSample, error)
}

// ReviewPrompter runs review attempts at the terminal. It implements
// review.Prompter.
type ReviewPrompter struct {
	c        *Console
	lines    <-chan string
	speaker  Speaker
	recorder Recorder

	total int
	asked int
}

// NewReviewPrompter creates a prompter for a queue of total items.
func NewReviewPrompter(c *Console, lines <-chan string, speaker Speaker, recorder Recorder, total int) *ReviewPrompter {
	return &ReviewPrompter{c: c, lines: lines, speaker: speaker, recorder: recorder, total: total}
}

// Prompt plays the line, then records between two presses of Enter.
// "r" replays, "q" stops the drill.
func (p *ReviewPrompter) Prompt(ctx context.Context, item model.ReviewItem, _ int) (model.AudioSample, error) {
	p.asked++
	p.c.mu.Lock()
	p.c.println("")
	p.c.println(p.c.paint(ansiBlue, appI18n.Td(p.c.ctx, "ReviewProgress", map[string]any{"Index": p.asked, "Total": p.total})))
	p.c.printTurn(item.Turn)
	p.c.mu.Unlock()

	p.speak(ctx, item.Turn.Text)
	p.c.Message("PhaseSpeak")
	for {
		line, err := p.next(ctx)
		if err != nil {
			return model.AudioSample{}, err
		}
		switch trimCommand(line) {
		case "q", "quit", "exit":
			return model.AudioSample{}, review.ErrStopped
		case "r", "replay":
			p.speak(ctx, item.Turn.Text)
		case "":
			return p.record(ctx)
		}
	}
}

func (p *ReviewPrompter) record(ctx context.Context) (model.AudioSample, error) {
	h, err := p.recorder.Begin(ctx)
	if err != nil {
		p.notice("NoticeCaptureFailed", err)
		return model.AudioSample{}, nil
	}
	p.c.Message("PhaseRecording")
	line, lineErr := p.next(ctx)
	sample, err := p.recorder.End(ctx, h)
	if lineErr != nil {
		return model.AudioSample{}, lineErr
	}
	if trimCommand(line) == "q" {
		return model.AudioSample{}, review.ErrStopped
	}
	if err != nil {
		p.notice("NoticeCaptureFailed", err)
		return model.AudioSample{}, nil
	}
	return sample, nil
}

func (p *ReviewPrompter) next(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-p.lines:
		if !ok {
			return "", review.ErrStopped
		}
		return line, nil
	}
}

func (p *ReviewPrompter) speak(ctx context.Context, text string) {
	if p.speaker == nil {
		return
	}
	done := make(chan bool, 1)
	p.speaker.Speak(ctx, text, func(ok bool) { done <- ok })
	select {
	case <-ctx.Done():
	case ok := <-done:
		if !ok {
			p.notice("NoticePlaybackFailed", nil)
		}
	}
}

func (p *ReviewPrompter) notice(id string, err error) {
	msg := appI18n.Td(p.c.ctx, id, map[string]any{"Error": errText(err)})
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.println(p.c.paint(ansiRed, msg))
}

// Feedback prints the verdict of an attempt.
func (p *ReviewPrompter) Feedback(_ model.ReviewItem, outcome model.Outcome, requeued bool) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	p.c.printVerdict(model.Verdict{Outcome: outcome}.Result())
	if requeued {
		p.total++
		p.c.println(p.c.paint(ansiDim, appI18n.T(p.c.ctx, "ReviewRequeued")))
	}
}

// ReviewReport prints the end-of-drill summary.
func (c *Console) ReviewReport(rep review.Report) {
	if rep.Items == 0 {
		c.Message("ReviewEmpty")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.println("")
	c.println(c.paint(ansiGreen, appI18n.Tp(c.ctx, "ReviewMastered", rep.Mastered)))
}

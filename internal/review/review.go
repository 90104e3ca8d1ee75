// Package review drills archived INCORRECT entries again. Unlike a gateway
// session, grading is decided on the client and a WRONG attempt puts the
// item back in the queue until it runs out of attempts.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pavelanni/speakdrill/internal/model"
)

// Defaults for Config.
const (
	DefaultLimit       = 20
	DefaultMaxAttempts = 3
)

// ErrStopped is returned by a Prompter when the learner quits the drill.
var ErrStopped = errors.New("review stopped")

// Queue is the archive the drill reads from and records into.
type Queue interface {
	ReviewQueue(limit, maxAttempts int) ([]model.ReviewItem, error)
	RecordReview(entryID int64, outcome model.Outcome) error
}

// Prompter presents an item and collects the learner's spoken attempt.
type Prompter interface {
	Prompt(ctx context.Context, item model.ReviewItem, attempt int) (model.AudioSample, error)
	Feedback(item model.ReviewItem, outcome model.Outcome, requeued bool)
}

// Grader decides the outcome of one attempt.
type Grader interface {
	Grade(ctx context.Context, item model.ReviewItem, sample model.AudioSample) (model.Outcome, error)
}

// Config bounds one drill.
type Config struct {
	Limit       int
	MaxAttempts int
}

func (c Config) normalize() Config {
	if c.Limit <= 0 {
		c.Limit = DefaultLimit
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	return c
}

// Report summarizes a drill.
type Report struct {
	Items     int
	Attempts  int
	Mastered  int
	Remaining []model.ReviewItem // items that ran out of attempts this drill
}

// Drill runs review rounds over a Queue.
type Drill struct {
	queue    Queue
	grader   Grader
	prompter Prompter
	cfg      Config
	logger   *slog.Logger
}

// New creates a drill.
func New(q Queue, g Grader, p Prompter, cfg Config, logger *slog.Logger) *Drill {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drill{queue: q, grader: g, prompter: p, cfg: cfg.normalize(), logger: logger}
}

// Run drills every queued item. GOOD masters an item, RETRY asks again at
// once and WRONG moves it to the back of the queue. Every attempt is
// recorded. An item whose attempts reach MaxAttempts is dropped from the
// round and listed in Report.Remaining.
func (d *Drill) Run(ctx context.Context) (Report, error) {
	items, err := d.queue.ReviewQueue(d.cfg.Limit, d.cfg.MaxAttempts)
	if err != nil {
		return Report{}, fmt.Errorf("load review queue: %w", err)
	}
	rep := Report{Items: len(items)}
	pending := append([]model.ReviewItem(nil), items...)

	for len(pending) > 0 {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		it := pending[0]
		pending = pending[1:]

		sample, err := d.prompter.Prompt(ctx, it, it.Attempts+1)
		if err != nil {
			return rep, err
		}
		outcome, err := d.grader.Grade(ctx, it, sample)
		if err != nil {
			return rep, fmt.Errorf("grade entry %d: %w", it.EntryID, err)
		}
		if err := d.queue.RecordReview(it.EntryID, outcome); err != nil {
			return rep, fmt.Errorf("record review of entry %d: %w", it.EntryID, err)
		}
		it.Attempts++
		rep.Attempts++
		d.logger.Debug("review attempt", "entry", it.EntryID, "turn", it.Turn.ID, "outcome", outcome, "attempts", it.Attempts)

		requeued := false
		switch {
		case outcome == model.OutcomeGood:
			rep.Mastered++
		case it.Attempts >= d.cfg.MaxAttempts:
			rep.Remaining = append(rep.Remaining, it)
		case outcome == model.OutcomeRetry:
			pending = append([]model.ReviewItem{it}, pending...)
			requeued = true
		default:
			pending = append(pending, it)
			requeued = true
		}
		d.prompter.Feedback(it, outcome, requeued)
	}
	return rep, nil
}

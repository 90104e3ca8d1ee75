// Package console is the terminal front end of a drill: it renders
// sequencer states and notices and turns typed lines into learner events.
package console

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/mattn/go-isatty"

	appI18n "github.com/pavelanni/speakdrill/internal/i18n"
	"github.com/pavelanni/speakdrill/internal/model"
	"github.com/pavelanni/speakdrill/internal/turnflow"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
	ansiDim    = "\x1b[2m"
)

// countdownShown is the number of final countdown ticks printed.
const countdownShown = 3

var phaseMessages = map[turnflow.PhaseName]string{
	turnflow.PhaseStart:           "PhaseStart",
	turnflow.PhaseListen:          "PhaseListen",
	turnflow.PhaseSpeakSetup:      "PhaseSpeak",
	turnflow.PhaseRecording:       "PhaseRecording",
	turnflow.PhaseGrading:         "PhaseGrading",
	turnflow.PhaseChoiceSetup:     "PhaseChoose",
	turnflow.PhasePracticeListen:  "PhasePracticeListen",
	turnflow.PhasePracticeSpeak:   "PhasePracticeSpeak",
	turnflow.PhasePracticeGrading: "PhaseGrading",
	turnflow.PhaseAdvancing:       "PhaseAdvancing",
	turnflow.PhaseCompleting:      "PhaseCompleting",
	turnflow.PhaseGradingError:    "PhaseGradingError",
}

var noticeMessages = map[turnflow.NoticeKind]string{
	turnflow.NoticeMicBlocked:     "NoticeMicBlocked",
	turnflow.NoticeCaptureFailed:  "NoticeCaptureFailed",
	turnflow.NoticePlaybackFailed: "NoticePlaybackFailed",
	turnflow.NoticeTimeUp:         "NoticeTimeUp",
	turnflow.NoticeGradingFailed:  "NoticeGradingFailed",
	turnflow.NoticeFatal:          "NoticeFatal",
}

// Console renders a drill to a writer. It implements sequencer.Observer.
type Console struct {
	ctx      context.Context
	out      io.Writer
	colorize bool

	mu        sync.Mutex
	last      turnflow.State
	phase     turnflow.PhaseName
	turnID    string
	remaining int
	entries   int
}

// New creates a console writing to out with messages in lang. Colour is
// enabled when out is a terminal.
func New(out io.Writer, lang string) *Console {
	ctx := appI18n.WithLocalizer(context.Background(), appI18n.NewLocalizer(appI18n.Match(lang)))
	return &Console{ctx: ctx, out: out, colorize: shouldColorize(out)}
}

func shouldColorize(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func (c *Console) paint(color, s string) string {
	if !c.colorize || color == "" {
		return s
	}
	return color + s + ansiReset
}

func (c *Console) println(s string) {
	fmt.Fprintln(c.out, s)
}

// Header prints the title line of a drill.
func (c *Console) Header(scenario string) {
	c.println(c.paint(ansiBlue, "== "+appI18n.Td(c.ctx, "ScenarioHeader", map[string]any{"Scenario": scenario})+" =="))
	c.println(c.paint(ansiDim, appI18n.T(c.ctx, "Help")))
}

// OnState prints what changed since the previous state.
func (c *Console) OnState(s turnflow.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = s

	if n := s.History.Len(); n > c.entries {
		c.entries = n
		c.printVerdict(s.History.Entries()[n-1].Result)
	}
	if s.Turn != nil && s.Turn.ID != c.turnID {
		c.turnID = s.Turn.ID
		c.printTurn(*s.Turn)
	}

	name := s.Phase.Name()
	if name != c.phase {
		c.phase = name
		c.remaining = 0
		if p, ok := s.Phase.(turnflow.ChoiceFeedback); ok {
			c.printVerdict(p.Result)
		}
		if id, ok := phaseMessages[name]; ok {
			c.println(c.paint(ansiDim, appI18n.T(c.ctx, id)))
		}
		if name == turnflow.PhaseChoiceSetup && s.Turn != nil {
			c.printChoices(*s.Turn, s.Selected)
		}
	}

	if r := s.Remaining(); r > 0 && r != c.remaining {
		c.remaining = r
		if r <= countdownShown {
			c.println(c.paint(ansiYellow, appI18n.Td(c.ctx, "Countdown", map[string]any{"Remaining": r})))
		}
	}
}

// OnNotice prints a localized notice.
func (c *Console) OnNotice(n turnflow.Notify) {
	id, ok := noticeMessages[n.Kind]
	if !ok {
		return
	}
	msg := appI18n.Td(c.ctx, id, map[string]any{"Error": errText(n.Err)})
	c.mu.Lock()
	defer c.mu.Unlock()
	c.println(c.paint(ansiRed, msg))
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (c *Console) printTurn(t model.Turn) {
	speaker := "AI"
	if t.Speaker == model.SpeakerUser {
		speaker = "You"
	}
	c.println("")
	c.println(c.paint(ansiBlue, speaker+": ") + t.Text)
	if t.Romanization != "" {
		c.println("    " + c.paint(ansiDim, t.Romanization))
	}
	if t.Translation != "" {
		c.println("    " + c.paint(ansiDim, t.Translation))
	}
}

func (c *Console) printChoices(t model.Turn, selected int64) {
	for i, ch := range t.Choices {
		mark := " "
		if ch.ID == selected {
			mark = ">"
		}
		line := fmt.Sprintf(" %s %d) %s", mark, i+1, ch.Text)
		if ch.Translation != "" {
			line += c.paint(ansiDim, "  ("+ch.Translation+")")
		}
		c.println(line)
	}
}

func (c *Console) printVerdict(r model.Result) {
	if r == model.ResultCorrect {
		c.println(c.paint(ansiGreen, appI18n.T(c.ctx, "VerdictCorrect")))
		return
	}
	c.println(c.paint(ansiRed, appI18n.T(c.ctx, "VerdictIncorrect")))
}

// Summary prints the end-of-session score line.
func (c *Console) Summary(comp model.Completion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.println("")
	c.println(c.paint(ansiGreen, appI18n.Td(c.ctx, "Summary", map[string]any{
		"Correct": comp.Summary.Correct,
		"Total":   comp.Summary.Total,
		"Elapsed": comp.Elapsed.Round(time.Second),
	})))
	c.println(appI18n.Tp(c.ctx, "TurnsPracticed", len(comp.History)))
}

// Message prints a localized message by id.
func (c *Console) Message(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.println(appI18n.T(c.ctx, id))
}

// snapshot returns the last rendered state.
func (c *Console) snapshot() turnflow.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

func trimCommand(line string) string {
	return strings.ToLower(strings.TrimSpace(line))
}

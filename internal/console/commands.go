package console

import (
	"bufio"
	"context"
	"io"
	"strconv"

	"github.com/pavelanni/speakdrill/internal/turnflow"
)

// Command classifies a typed line.
type Command int

const (
	CmdNone Command = iota
	CmdEvent
	CmdHelp
	CmdQuit
)

// Parse maps a typed line to a learner event for state s. Enter toggles the
// microphone; a digit taps the matching candidate of a USER turn.
func Parse(line string, s turnflow.State) (turnflow.Event, Command) {
	switch cmd := trimCommand(line); cmd {
	case "":
		if s.Capturing() {
			return turnflow.MicReleased{}, CmdEvent
		}
		return turnflow.MicPressed{}, CmdEvent
	case "r", "replay":
		return turnflow.ReplayRequested{}, CmdEvent
	case "s", "submit":
		return turnflow.ChoiceSubmitted{}, CmdEvent
	case "retry", "t":
		return turnflow.TryAgain{}, CmdEvent
	case "q", "quit", "exit":
		return nil, CmdQuit
	case "?", "h", "help":
		return nil, CmdHelp
	default:
		n, err := strconv.Atoi(cmd)
		if err != nil || s.Turn == nil || n < 1 || n > len(s.Turn.Choices) {
			return nil, CmdNone
		}
		return turnflow.ChoiceTapped{ChoiceID: s.Turn.Choices[n-1].ID}, CmdEvent
	}
}

// Lines streams r line by line. The channel closes at end of input.
func Lines(r io.Reader) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(r)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

// Drive feeds typed lines to dispatch until the learner quits, input ends,
// or ctx is done. It reports whether the learner asked to quit.
func (c *Console) Drive(ctx context.Context, lines <-chan string, dispatch func(turnflow.Event)) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			ev, cmd := Parse(line, c.snapshot())
			switch cmd {
			case CmdQuit:
				return true
			case CmdHelp:
				c.Message("Help")
			case CmdEvent:
				dispatch(ev)
			}
		}
	}
}

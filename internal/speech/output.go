package speech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultPlayCommand reads an MP3 clip from stdin.
var DefaultPlayCommand = []string{"mpg123", "-q", "-"}

// CommandOutput pipes clips into an external audio player.
type CommandOutput struct {
	argv []string
}

// NewCommandOutput parses a command line such as "mpg123 -q -". The player
// must read the clip from stdin.
func NewCommandOutput(command string) (*CommandOutput, error) {
	argv := strings.Fields(command)
	if len(argv) == 0 {
		argv = DefaultPlayCommand
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, argv[0], err)
	}
	return &CommandOutput{argv: argv}, nil
}

// Play runs the player to completion; cancelling ctx kills it.
func (o *CommandOutput) Play(ctx context.Context, clip []byte) error {
	cmd := exec.CommandContext(ctx, o.argv[0], o.argv[1:]...)
	cmd.Stdin = bytes.NewReader(clip)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%s exited %d: %s", o.argv[0], exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("run %s: %w", o.argv[0], err)
	}
	return nil
}

// Discard is an output that plays nothing and succeeds immediately.
type Discard struct{}

// Play returns ctx's error, if any.
func (Discard) Play(ctx context.Context, _ []byte) error { return ctx.Err() }

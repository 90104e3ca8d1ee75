package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

// DefaultRecordCommand captures raw PCM with ALSA.
const DefaultRecordCommand = "arecord -q -t raw -f S16_LE"

// CommandDevice records by running an external program that writes raw PCM
// to stdout until interrupted. Rate and channel flags are appended.
type CommandDevice struct {
	argv []string
}

// NewCommandDevice parses a command line; empty selects arecord.
func NewCommandDevice(command string) *CommandDevice {
	if strings.TrimSpace(command) == "" {
		command = DefaultRecordCommand
	}
	return &CommandDevice{argv: strings.Fields(command)}
}

// Open starts the recorder process.
func (d *CommandDevice) Open(ctx context.Context, f Format) (Stream, error) {
	if _, err := exec.LookPath(d.argv[0]); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	args := append(append([]string(nil), d.argv[1:]...),
		"-r", strconv.Itoa(f.SampleRate),
		"-c", strconv.Itoa(f.Channels),
	)
	cmd := exec.Command(d.argv[0], args...)
	s := &commandStream{cmd: cmd}
	cmd.Stdout = &s.pcm
	cmd.Stderr = &s.stderr
	if err := cmd.Start(); err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	s.wait = make(chan error, 1)
	s.done = make(chan struct{})
	go func() { s.wait <- cmd.Wait() }()
	go func() {
		select {
		case <-ctx.Done():
			s.Abort()
		case <-s.done:
		}
	}()
	return s, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	pcm    bytes.Buffer
	stderr bytes.Buffer
	wait   chan error

	once sync.Once
	done chan struct{}
}

// halt signals the recorder and waits for it to exit. The exit status of an
// interrupted recorder is not an error.
func (s *commandStream) halt(sig os.Signal) {
	s.once.Do(func() {
		_ = s.cmd.Process.Signal(sig)
		select {
		case <-s.wait:
		case <-time.After(2 * time.Second):
			_ = s.cmd.Process.Kill()
			<-s.wait
		}
		close(s.done)
	})
}

// Stop interrupts the recorder and returns what it wrote.
func (s *commandStream) Stop() ([]byte, error) {
	s.halt(os.Interrupt)
	<-s.done
	if s.pcm.Len() == 0 {
		if msg := strings.TrimSpace(s.stderr.String()); msg != "" {
			if strings.Contains(strings.ToLower(msg), "permission") {
				return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, msg)
			}
			return nil, fmt.Errorf("%w: %s", ErrUnavailable, msg)
		}
	}
	return s.pcm.Bytes(), nil
}

// Abort kills the recorder.
func (s *commandStream) Abort() {
	s.halt(os.Kill)
}

// FileDevice replays a WAV or raw PCM file as if it had been spoken. It is
// meant for headless runs.
type FileDevice struct {
	Path string
}

// Open reads the file.
func (d FileDevice) Open(_ context.Context, _ Format) (Stream, error) {
	data, err := os.ReadFile(d.Path)
	if err != nil {
		if errors.Is(err, os.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &bufferStream{pcm: PCMFromWAV(data)}, nil
}

// BufferDevice serves fixed PCM; every Open returns a fresh stream.
type BufferDevice struct {
	PCM []byte
	Err error
}

// Open returns Err or a stream over PCM.
func (d BufferDevice) Open(_ context.Context, _ Format) (Stream, error) {
	if d.Err != nil {
		return nil, d.Err
	}
	return &bufferStream{pcm: append([]byte(nil), d.PCM...)}, nil
}

type bufferStream struct {
	pcm []byte
}

func (s *bufferStream) Stop() ([]byte, error) { return s.pcm, nil }
func (s *bufferStream) Abort()                { s.pcm = nil }

// PCMFromWAV returns the data chunk of a RIFF/WAVE file, or data unchanged
// when it is not one.
func PCMFromWAV(data []byte) []byte {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return data
	}
	off := 12
	for off+8 <= len(data) {
		id := string(data[off : off+4])
		size := int(binary.LittleEndian.Uint32(data[off+4 : off+8]))
		off += 8
		if id == "data" {
			end := off + size
			if end > len(data) {
				end = len(data)
			}
			return data[off:end]
		}
		off += size + size%2
	}
	return nil
}

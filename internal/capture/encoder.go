package capture

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Encoder converts PCM into an upload encoding.
type Encoder interface {
	MIMEType() string
	Available() bool
	Encode(ctx context.Context, pcm []byte, f Format) ([]byte, error)
}

// ProbeEncoders returns the first available encoder, falling back to WAV.
func ProbeEncoders(candidates ...Encoder) Encoder {
	for _, e := range candidates {
		if e != nil && e.Available() {
			return e
		}
	}
	return WAVEncoder{}
}

// WAVEncoder wraps PCM in a RIFF/WAVE header.
type WAVEncoder struct{}

func (WAVEncoder) MIMEType() string { return "audio/wav" }
func (WAVEncoder) Available() bool  { return true }

// Encode writes a canonical 44-byte header followed by the samples.
func (WAVEncoder) Encode(_ context.Context, pcm []byte, f Format) ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	le := binary.LittleEndian
	buf.WriteString("RIFF")
	binary.Write(&buf, le, uint32(36+len(pcm)))
	buf.WriteString("WAVEfmt ")
	binary.Write(&buf, le, uint32(16))
	binary.Write(&buf, le, uint16(1)) // PCM
	binary.Write(&buf, le, uint16(f.Channels))
	binary.Write(&buf, le, uint32(f.SampleRate))
	binary.Write(&buf, le, uint32(f.BytesPerSecond()))
	binary.Write(&buf, le, uint16(f.Channels*2))
	binary.Write(&buf, le, uint16(16))
	buf.WriteString("data")
	binary.Write(&buf, le, uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes(), nil
}

// FFmpegEncoder produces Ogg/Opus through an ffmpeg binary.
type FFmpegEncoder struct {
	Path string
}

func (e FFmpegEncoder) bin() string {
	if e.Path == "" {
		return "ffmpeg"
	}
	return e.Path
}

func (FFmpegEncoder) MIMEType() string { return "audio/ogg;codecs=opus" }

// Available reports whether the ffmpeg binary can be found.
func (e FFmpegEncoder) Available() bool {
	_, err := exec.LookPath(e.bin())
	return err == nil
}

// Encode pipes PCM through ffmpeg.
func (e FFmpegEncoder) Encode(ctx context.Context, pcm []byte, f Format) ([]byte, error) {
	cmd := exec.CommandContext(ctx, e.bin(),
		"-hide_banner", "-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(f.SampleRate),
		"-ac", strconv.Itoa(f.Channels),
		"-i", "pipe:0",
		"-c:a", "libopus",
		"-f", "ogg",
		"pipe:1",
	)
	cmd.Stdin = bytes.NewReader(pcm)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out.Bytes(), nil
}

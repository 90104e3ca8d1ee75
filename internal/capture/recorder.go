// Package capture records learner speech from a microphone device and
// encodes it for upload.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pavelanni/speakdrill/internal/model"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrUnavailable      = errors.New("microphone unavailable")
	ErrNotCapturing     = errors.New("no active capture")
	ErrEmptySample      = errors.New("captured sample is empty")
	ErrBusy             = errors.New("a capture is already active")
)

// Format describes signed 16-bit little-endian PCM.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat is 16 kHz mono, the rate speech graders expect.
var DefaultFormat = Format{SampleRate: 16000, Channels: 1}

// BytesPerSecond returns the PCM data rate.
func (f Format) BytesPerSecond() int { return f.SampleRate * f.Channels * 2 }

// Duration returns the playing time of n PCM bytes.
func (f Format) Duration(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(bps)
}

// Device opens raw PCM capture streams.
type Device interface {
	Open(ctx context.Context, f Format) (Stream, error)
}

// Stream is one open capture.
type Stream interface {
	// Stop ends the capture and returns the recorded PCM.
	Stop() ([]byte, error)
	// Abort ends the capture and drops the audio.
	Abort()
}

// Handle identifies a capture started with Begin.
type Handle struct {
	stream  Stream
	started time.Time
}

// Recorder owns at most one active capture.
type Recorder struct {
	device Device
	enc    Encoder
	format Format
	logger *slog.Logger

	mu     sync.Mutex
	active *Handle
}

// NewRecorder creates a recorder. enc is usually chosen by ProbeEncoders.
func NewRecorder(device Device, enc Encoder, f Format, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	if enc == nil {
		enc = WAVEncoder{}
	}
	if f.SampleRate == 0 {
		f = DefaultFormat
	}
	return &Recorder{device: device, enc: enc, format: f, logger: logger}
}

// Encoding returns the MIME type samples are encoded with.
func (r *Recorder) Encoding() string { return r.enc.MIMEType() }

// Begin opens the microphone. Device errors are returned wrapped so callers
// can match ErrPermissionDenied and ErrUnavailable.
func (r *Recorder) Begin(ctx context.Context) (*Handle, error) {
	if r.device == nil {
		return nil, ErrUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil, ErrBusy
	}
	stream, err := r.device.Open(ctx, r.format)
	if err != nil {
		if !errors.Is(err, ErrPermissionDenied) && !errors.Is(err, ErrUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	h := &Handle{stream: stream, started: time.Now()}
	r.active = h
	r.logger.Debug("capture started")
	return h, nil
}

func (r *Recorder) take(h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if h == nil || r.active != h {
		return false
	}
	r.active = nil
	return true
}

// End stops the capture and returns the encoded sample. A zero-length
// recording yields ErrEmptySample.
func (r *Recorder) End(ctx context.Context, h *Handle) (model.AudioSample, error) {
	if !r.take(h) {
		return model.AudioSample{}, ErrNotCapturing
	}
	pcm, err := h.stream.Stop()
	if err != nil {
		return model.AudioSample{}, fmt.Errorf("stop capture: %w", err)
	}
	r.logger.Debug("capture stopped", "bytes", len(pcm), "held", time.Since(h.started))
	return r.encode(ctx, pcm)
}

// Discard stops the capture and drops its audio.
func (r *Recorder) Discard(h *Handle) {
	if r.take(h) {
		h.stream.Abort()
		r.logger.Debug("capture discarded")
	}
}

// Silence returns an encoded silent sample of length d.
func (r *Recorder) Silence(ctx context.Context, d time.Duration) (model.AudioSample, error) {
	n := int(d * time.Duration(r.format.BytesPerSecond()) / time.Second)
	n -= n % (2 * r.format.Channels)
	return r.encode(ctx, make([]byte, n))
}

func (r *Recorder) encode(ctx context.Context, pcm []byte) (model.AudioSample, error) {
	if len(pcm) == 0 {
		return model.AudioSample{}, ErrEmptySample
	}
	data, err := r.enc.Encode(ctx, pcm, r.format)
	if err != nil {
		return model.AudioSample{}, fmt.Errorf("encode %s: %w", r.enc.MIMEType(), err)
	}
	if len(data) == 0 {
		return model.AudioSample{}, ErrEmptySample
	}
	return model.AudioSample{
		Data:     data,
		Encoding: r.enc.MIMEType(),
		Duration: r.format.Duration(len(pcm)),
	}, nil
}

// Close discards any active capture.
func (r *Recorder) Close() error {
	r.mu.Lock()
	h := r.active
	r.mu.Unlock()
	r.Discard(h)
	return nil
}

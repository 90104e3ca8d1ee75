package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestRecorder(t *testing.T, dev Device) *Recorder {
	t.Helper()
	r := NewRecorder(dev, WAVEncoder{}, DefaultFormat, nil)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestRecorderBeginEnd(t *testing.T) {
	pcm := make([]byte, 32000) // one second at 16 kHz mono
	r := newTestRecorder(t, BufferDevice{PCM: pcm})

	h, err := r.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := r.Begin(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("second Begin err = %v, want ErrBusy", err)
	}

	s, err := r.End(context.Background(), h)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if s.Encoding != "audio/wav" {
		t.Errorf("encoding = %q", s.Encoding)
	}
	if len(s.Data) != 44+len(pcm) {
		t.Errorf("data len = %d, want %d", len(s.Data), 44+len(pcm))
	}
	if s.Duration != time.Second {
		t.Errorf("duration = %v, want 1s", s.Duration)
	}

	if _, err := r.End(context.Background(), h); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("End after End err = %v, want ErrNotCapturing", err)
	}
}

func TestRecorderEndWithoutBegin(t *testing.T) {
	r := newTestRecorder(t, BufferDevice{PCM: []byte{1, 2}})
	if _, err := r.End(context.Background(), nil); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("err = %v, want ErrNotCapturing", err)
	}
}

func TestRecorderEmptySample(t *testing.T) {
	r := newTestRecorder(t, BufferDevice{})
	h, err := r.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if _, err := r.End(context.Background(), h); !errors.Is(err, ErrEmptySample) {
		t.Errorf("err = %v, want ErrEmptySample", err)
	}
}

func TestRecorderDeviceErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"permission", ErrPermissionDenied, ErrPermissionDenied},
		{"unavailable", ErrUnavailable, ErrUnavailable},
		{"other", errors.New("no such card"), ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRecorder(t, BufferDevice{Err: tt.err})
			if _, err := r.Begin(context.Background()); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
			// A failed Begin leaves no capture behind.
			if _, err := r.End(context.Background(), nil); !errors.Is(err, ErrNotCapturing) {
				t.Errorf("End err = %v", err)
			}
		})
	}
}

func TestRecorderNoDevice(t *testing.T) {
	r := newTestRecorder(t, nil)
	if _, err := r.Begin(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("err = %v, want ErrUnavailable", err)
	}
}

func TestRecorderDiscard(t *testing.T) {
	r := newTestRecorder(t, BufferDevice{PCM: []byte{1, 2, 3, 4}})
	h, err := r.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	r.Discard(h)
	if _, err := r.End(context.Background(), h); !errors.Is(err, ErrNotCapturing) {
		t.Errorf("End after Discard err = %v", err)
	}
	if _, err := r.Begin(context.Background()); err != nil {
		t.Errorf("Begin after Discard: %v", err)
	}
}

func TestRecorderSilence(t *testing.T) {
	r := newTestRecorder(t, nil)
	s, err := r.Silence(context.Background(), 500*time.Millisecond)
	if err != nil {
		t.Fatalf("Silence: %v", err)
	}
	if s.Duration != 500*time.Millisecond {
		t.Errorf("duration = %v", s.Duration)
	}
	pcm := PCMFromWAV(s.Data)
	if len(pcm) != 16000 {
		t.Fatalf("pcm len = %d, want 16000", len(pcm))
	}
	for _, b := range pcm {
		if b != 0 {
			t.Fatal("silence contains non-zero samples")
		}
	}
}

func TestFileDeviceReadsWAV(t *testing.T) {
	wav, _ := WAVEncoder{}.Encode(context.Background(), []byte{9, 9, 8, 8}, DefaultFormat)
	path := filepath.Join(t.TempDir(), "answer.wav")
	if err := os.WriteFile(path, wav, 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := FileDevice{Path: path}.Open(context.Background(), DefaultFormat)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	pcm, err := s.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if string(pcm) != string([]byte{9, 9, 8, 8}) {
		t.Errorf("pcm = %v", pcm)
	}

	if _, err := (FileDevice{Path: filepath.Join(t.TempDir(), "missing.wav")}).Open(context.Background(), DefaultFormat); !errors.Is(err, ErrUnavailable) {
		t.Errorf("missing file err = %v, want ErrUnavailable", err)
	}
}

type stubEncoder struct {
	mime  string
	avail bool
}

func (e stubEncoder) MIMEType() string { return e.mime }
func (e stubEncoder) Available() bool  { return e.avail }
func (e stubEncoder) Encode(context.Context, []byte, Format) ([]byte, error) {
	return []byte(e.mime), nil
}

func TestProbeEncoders(t *testing.T) {
	tests := []struct {
		name       string
		candidates []Encoder
		want       string
	}{
		{"first available wins", []Encoder{stubEncoder{"audio/ogg;codecs=opus", true}, stubEncoder{"audio/webm", true}}, "audio/ogg;codecs=opus"},
		{"skips unavailable", []Encoder{stubEncoder{"audio/ogg;codecs=opus", false}, stubEncoder{"audio/webm", true}}, "audio/webm"},
		{"falls back to wav", []Encoder{stubEncoder{"audio/ogg;codecs=opus", false}}, "audio/wav"},
		{"none", nil, "audio/wav"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProbeEncoders(tt.candidates...).MIMEType(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRecorderRecordsEncoding(t *testing.T) {
	r := NewRecorder(BufferDevice{PCM: []byte{1, 2}}, stubEncoder{"audio/ogg;codecs=opus", true}, DefaultFormat, nil)
	h, err := r.Begin(context.Background())
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	s, err := r.End(context.Background(), h)
	if err != nil {
		t.Fatalf("End: %v", err)
	}
	if s.Encoding != "audio/ogg;codecs=opus" || r.Encoding() != s.Encoding {
		t.Errorf("encoding = %q / %q", s.Encoding, r.Encoding())
	}
}

func TestDeviceLockExclusive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks", "mic.lock")
	first, err := AcquireDeviceLock(path)
	if err != nil {
		t.Fatalf("first lock: %v", err)
	}
	if _, err := AcquireDeviceLock(path); !errors.Is(err, ErrDeviceLocked) {
		t.Errorf("second lock err = %v, want ErrDeviceLocked", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	again, err := AcquireDeviceLock(path)
	if err != nil {
		t.Fatalf("lock after release: %v", err)
	}
	again.Release()
}

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/speakdrill/internal/capture"
	"github.com/pavelanni/speakdrill/internal/speech"
)

func addAudioFlags(f *pflag.FlagSet) {
	f.String("tts", "translate", "Speech backend (openai, translate, none)")
	f.String("tts-url", "https://api.openai.com/v1", "OpenAI-compatible API base URL")
	f.String("tts-key", "", "API key for the openai backend (or set OPENAI_API_KEY)")
	f.String("tts-model", "", "Speech model name (openai backend)")
	f.String("tts-voice", "", "Voice name (openai backend)")
	f.String("tts-lang", "ko", "Target language of the translate backend")
	f.String("cache-dir", defaultCacheDir(), "Directory for synthesized clips (empty disables caching)")
	f.String("play-command", strings.Join(speech.DefaultPlayCommand, " "), "Player reading an MP3 clip from stdin")
	f.String("record-command", capture.DefaultRecordCommand, "Recorder writing raw 16-bit PCM to stdout")
	f.String("record-file", "", "Use this WAV file as every spoken attempt instead of the microphone")
	f.String("encoder", "auto", "Upload encoding (auto, wav)")
	f.String("ffmpeg", "ffmpeg", "ffmpeg binary for Ogg/Opus encoding")
	f.String("device-lock", filepath.Join(os.TempDir(), "speakdrill-mic.lock"), "Lock file guarding the microphone (empty disables)")
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "speakdrill", "tts")
}

// newSynthesizer builds the configured speech backend, wrapped in the
// on-disk cache. It returns nil when speech is disabled.
func newSynthesizer(v *viper.Viper) speech.Synthesizer {
	var synth speech.Synthesizer
	switch backend := strings.ToLower(v.GetString("tts")); backend {
	case "openai":
		key := v.GetString("tts-key")
		if key == "" {
			key = os.Getenv("OPENAI_API_KEY")
		}
		synth = speech.NewOpenAI(v.GetString("tts-url"), key, v.GetString("tts-model"), v.GetString("tts-voice"))
	case "translate":
		synth = speech.NewTranslate(v.GetString("tts-lang"))
	case "none", "":
		return nil
	default:
		slog.Warn("unknown tts backend, speech disabled", "tts", backend)
		return nil
	}

	dir := v.GetString("cache-dir")
	if dir == "" {
		return synth
	}
	cached, err := speech.NewCache(dir, synth)
	if err != nil {
		slog.Warn("tts cache disabled", "dir", dir, "error", err)
		return synth
	}
	return cached
}

// newPlayer returns a player; without a backend or output every line
// reports a playback failure and the learner reads it instead.
func newPlayer(v *viper.Viper, logger *slog.Logger) *speech.Player {
	synth := newSynthesizer(v)
	var out speech.Output
	if synth != nil {
		o, err := speech.NewCommandOutput(v.GetString("play-command"))
		if err != nil {
			logger.Warn("audio output unavailable", "error", err)
		} else {
			out = o
		}
	}
	return speech.NewPlayer(synth, out, speech.DefaultSettle, logger)
}

func newRecorder(v *viper.Viper, logger *slog.Logger) *capture.Recorder {
	var device capture.Device
	if path := v.GetString("record-file"); path != "" {
		device = capture.FileDevice{Path: path}
	} else {
		device = capture.NewCommandDevice(v.GetString("record-command"))
	}

	var enc capture.Encoder
	switch strings.ToLower(v.GetString("encoder")) {
	case "wav":
		enc = capture.WAVEncoder{}
	default:
		enc = capture.ProbeEncoders(capture.FFmpegEncoder{Path: v.GetString("ffmpeg")})
	}
	logger.Debug("recorder ready", "encoding", enc.MIMEType())
	return capture.NewRecorder(device, enc, capture.DefaultFormat, logger)
}

// acquireMic takes the device lock unless a file replaces the microphone.
func acquireMic(v *viper.Viper) (*capture.DeviceLock, error) {
	path := v.GetString("device-lock")
	if path == "" || v.GetString("record-file") != "" {
		return nil, nil
	}
	lock, err := capture.AcquireDeviceLock(path)
	if errors.Is(err, capture.ErrDeviceLocked) {
		return nil, fmt.Errorf("%w (lock file %s)", err, path)
	}
	return lock, err
}

func prefetch(ctx context.Context, synth speech.Synthesizer, texts []string) error {
	seen := make(map[string]bool, len(texts))
	unique := texts[:0:0]
	for _, t := range texts {
		if !seen[t] {
			seen[t] = true
			unique = append(unique, t)
		}
	}
	return speech.Prefetch(ctx, synth, unique)
}

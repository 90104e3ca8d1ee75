package speech

import (
	"context"
	"fmt"
	"io"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAISynthesizer synthesizes speech with an OpenAI-compatible audio API.
type OpenAISynthesizer struct {
	api   *openai.Client
	model openai.SpeechModel
	voice openai.SpeechVoice
}

// NewOpenAI creates a synthesizer. Empty modelName and voice select tts-1
// and alloy.
func NewOpenAI(baseURL, apiKey, modelName, voice string) *OpenAISynthesizer {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	s := &OpenAISynthesizer{
		api:   openai.NewClientWithConfig(config),
		model: openai.TTSModel1,
		voice: openai.VoiceAlloy,
	}
	if modelName != "" {
		s.model = openai.SpeechModel(modelName)
	}
	if voice != "" {
		s.voice = openai.SpeechVoice(voice)
	}
	return s
}

// Synthesize returns an MP3 clip of text.
func (s *OpenAISynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	resp, err := s.api.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          s.model,
		Input:          text,
		Voice:          s.voice,
		ResponseFormat: openai.SpeechResponseFormatMp3,
	})
	if err != nil {
		return nil, fmt.Errorf("speech API call: %w", err)
	}
	defer resp.Close()

	clip, err := io.ReadAll(resp)
	if err != nil {
		return nil, fmt.Errorf("read speech response: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("speech API returned an empty clip")
	}
	return clip, nil
}

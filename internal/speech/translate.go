package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const (
	translateTTSURL     = "https://translate.google.com/translate_tts"
	ttsRequestTimeout   = 10 * time.Second
	translateTTSUAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
	defaultTranslateTTS = "ko"
)

// TranslateSynthesizer fetches MP3 clips from the translate_tts endpoint.
// No API key is needed.
type TranslateSynthesizer struct {
	BaseURL string
	Lang    string
	Client  *http.Client
}

// NewTranslate creates a synthesizer for lang (default "ko").
func NewTranslate(lang string) *TranslateSynthesizer {
	if lang == "" {
		lang = defaultTranslateTTS
	}
	return &TranslateSynthesizer{
		BaseURL: translateTTSURL,
		Lang:    lang,
		Client:  &http.Client{Timeout: ttsRequestTimeout},
	}
}

// Synthesize downloads a clip of text.
func (s *TranslateSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("q", text)
	params.Set("tl", s.Lang)
	params.Set("client", "tw-ob")
	params.Set("textlen", strconv.Itoa(len([]rune(text))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.BaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", translateTTSUAgent)

	client := s.Client
	if client == nil {
		client = &http.Client{Timeout: ttsRequestTimeout}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch audio: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	clip, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(clip) == 0 {
		return nil, fmt.Errorf("empty audio response")
	}
	return clip, nil
}

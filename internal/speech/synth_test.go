package speech

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
)

type countingSynth struct {
	calls int
}

func (s *countingSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.calls++
	return []byte("mp3:" + text), nil
}

func TestCacheStoresClips(t *testing.T) {
	next := &countingSynth{}
	c, err := NewCache(t.TempDir(), next)
	if err != nil {
		t.Fatalf("NewCache: %v", err)
	}

	for i := 0; i < 3; i++ {
		clip, err := c.Synthesize(context.Background(), "안녕하세요")
		if err != nil {
			t.Fatalf("Synthesize: %v", err)
		}
		if string(clip) != "mp3:안녕하세요" {
			t.Errorf("clip = %q", clip)
		}
	}
	if next.calls != 1 {
		t.Errorf("backend called %d times, want 1", next.calls)
	}
	if _, err := os.Stat(c.Path("안녕하세요")); err != nil {
		t.Errorf("cache file missing: %v", err)
	}
	if c.Path("안녕하세요") == c.Path("감사합니다") {
		t.Error("different texts share a cache file")
	}
}

func TestTranslateSynthesizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("tl") != "ko" {
			t.Errorf("tl = %q, want ko", q.Get("tl"))
		}
		if q.Get("q") != "감사합니다" {
			t.Errorf("q = %q", q.Get("q"))
		}
		if q.Get("textlen") != "5" {
			t.Errorf("textlen = %q, want 5", q.Get("textlen"))
		}
		if r.Header.Get("User-Agent") == "" {
			t.Error("missing user agent")
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3"))
	}))
	defer srv.Close()

	s := NewTranslate("")
	s.BaseURL = srv.URL
	clip, err := s.Synthesize(context.Background(), "감사합니다")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip) != "ID3" {
		t.Errorf("clip = %q", clip)
	}
}

func TestTranslateSynthesizerStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "too many requests", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	s := NewTranslate("ko")
	s.BaseURL = srv.URL
	if _, err := s.Synthesize(context.Background(), "감사합니다"); err == nil {
		t.Fatal("expected error for non-200 status")
	}
}

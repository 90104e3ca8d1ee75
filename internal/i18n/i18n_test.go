package i18n

import (
	"context"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init(lang); err != nil {
		t.Fatalf("Init(%q): %v", lang, err)
	}
	loc := NewLocalizer(lang)
	return WithLocalizer(context.Background(), loc)
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "VerdictCorrect"); got != "Correct!" {
		t.Errorf("T(VerdictCorrect) = %q, want 'Correct!'", got)
	}
	if got := T(ctx, "PhaseListen"); got != "Listen." {
		t.Errorf("T(PhaseListen) = %q, want 'Listen.'", got)
	}
}

func TestTranslateKorean(t *testing.T) {
	ctx := initLang(t, "ko")

	if got := T(ctx, "VerdictCorrect"); got != "정답이에요!" {
		t.Errorf("T(VerdictCorrect) = %q, want '정답이에요!'", got)
	}
	if got := T(ctx, "NoticeTimeUp"); got != "시간이 다 됐어요." {
		t.Errorf("T(NoticeTimeUp) = %q", got)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "TurnsPracticed", 1); got != "1 line practiced." {
		t.Errorf("Tp(TurnsPracticed, 1) = %q", got)
	}
	if got := Tp(ctx, "TurnsPracticed", 5); got != "5 lines practiced." {
		t.Errorf("Tp(TurnsPracticed, 5) = %q", got)
	}

	ko := initLang(t, "ko")
	if got := Tp(ko, "TurnsPracticed", 1); got != "1개 문장을 연습했어요." {
		t.Errorf("Korean Tp(TurnsPracticed, 1) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "Summary", map[string]any{"Correct": 3, "Total": 5, "Elapsed": "1m30s"})
	if got != "3 of 5 correct in 1m30s." {
		t.Errorf("Td(Summary) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"ko-KR", "ko"},
		{"ko", "ko"},
		{"en-GB", "en"},
		{"fr", "en"},
		{"", "en"},
	}
	for _, tt := range tests {
		if got := Match(tt.in); got != tt.want {
			t.Errorf("Match(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

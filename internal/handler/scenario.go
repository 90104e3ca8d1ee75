package handler

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/pavelanni/speakdrill/internal/model"
)

// Scenario is a scripted role-play: turns in order plus the outcome the
// gateway reports for each graded attempt.
type Scenario struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	// InlineFirstTurn returns the first turn from start-session instead of
	// waiting for the first next-turn call.
	InlineFirstTurn bool           `json:"inline_first_turn"`
	Turns           []ScriptedTurn `json:"turns"`
}

// ScriptedTurn is one turn with the outcomes of successive grade attempts.
// The last outcome repeats; no outcomes means GOOD.
type ScriptedTurn struct {
	Turn     model.Turn      `json:"turn"`
	Outcomes []model.Outcome `json:"outcomes,omitempty"`
	Score    *float64        `json:"score,omitempty"`
}

// Outcome returns the scripted outcome of the given zero-based attempt.
func (st ScriptedTurn) Outcome(attempt int) model.Outcome {
	if len(st.Outcomes) == 0 {
		return model.OutcomeGood
	}
	if attempt >= len(st.Outcomes) {
		attempt = len(st.Outcomes) - 1
	}
	return st.Outcomes[attempt]
}

// Validate checks ids, turns and outcomes.
func (sc Scenario) Validate() error {
	if sc.ID == "" {
		return fmt.Errorf("scenario has no id")
	}
	seen := make(map[string]bool, len(sc.Turns))
	for i, st := range sc.Turns {
		if err := st.Turn.Validate(); err != nil {
			return fmt.Errorf("scenario %s turn %d: %w", sc.ID, i+1, err)
		}
		if seen[st.Turn.ID] {
			return fmt.Errorf("scenario %s: duplicate turn id %s", sc.ID, st.Turn.ID)
		}
		seen[st.Turn.ID] = true
		for _, o := range st.Outcomes {
			switch o {
			case model.OutcomeGood, model.OutcomeRetry, model.OutcomeWrong:
			default:
				return fmt.Errorf("scenario %s turn %s: unknown outcome %q", sc.ID, st.Turn.ID, o)
			}
		}
	}
	return nil
}

// ParseScenario decodes and validates one scenario document.
func ParseScenario(data []byte) (Scenario, error) {
	var sc Scenario
	if err := json.Unmarshal(data, &sc); err != nil {
		return sc, fmt.Errorf("parse scenario: %w", err)
	}
	return sc, sc.Validate()
}

// LoadScenarios reads every *.json file in dir, sorted by file name.
func LoadScenarios(dir string) ([]Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	var out []Scenario
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		sc, err := ParseScenario(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		out = append(out, sc)
	}
	return out, nil
}

package handler

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/pavelanni/speakdrill/internal/gateway"
	"github.com/pavelanni/speakdrill/internal/model"
)

// ScenarioInfo describes a loaded scenario.
type ScenarioInfo struct {
	ID    string `json:"id"`
	Title string `json:"title"`
	Turns int    `json:"turns"`
	Hash  string `json:"hash,omitempty"`
}

// SessionState is the inspection view of a stub session.
type SessionState struct {
	ID         string                   `json:"id"`
	ScenarioID string                   `json:"scenario_id"`
	CreatedAt  time.Time                `json:"created_at"`
	Issued     int                      `json:"issued"`
	Remaining  int                      `json:"remaining"`
	Attempts   map[string]int           `json:"attempts"`
	Graded     map[string]model.Outcome `json:"graded"`
	Summary    *model.Summary           `json:"summary,omitempty"`
}

func (h *Handler) handleListScenarios(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	list := make([]ScenarioInfo, 0, len(h.scenarios))
	for _, sc := range h.scenarios {
		list = append(list, ScenarioInfo{ID: sc.ID, Title: sc.Title, Turns: len(sc.Turns)})
	}
	h.mu.Unlock()
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleUploadScenario(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "read body: %v", err)
		return
	}
	sc, err := ParseScenario(data)
	if err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "%v", err)
		return
	}
	if err := h.addScenario(sc); err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "%v", err)
		return
	}
	sum := sha256.Sum256(data)
	h.logger.Info("scenario uploaded", "scenario", sc.ID, "turns", len(sc.Turns))
	writeJSON(w, http.StatusCreated, ScenarioInfo{
		ID:    sc.ID,
		Title: sc.Title,
		Turns: len(sc.Turns),
		Hash:  hex.EncodeToString(sum[:]),
	})
}

func (h *Handler) handleSessionState(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	st := SessionState{
		ID:         sess.ID,
		ScenarioID: sess.Scenario.ID,
		CreatedAt:  sess.CreatedAt,
		Issued:     sess.Issued,
		Remaining:  len(sess.Scenario.Turns) - sess.Issued,
		Attempts:   make(map[string]int, len(sess.Attempts)),
		Graded:     make(map[string]model.Outcome, len(sess.Graded)),
		Summary:    sess.Summary,
	}
	for k, v := range sess.Attempts {
		st.Attempts[k] = v
	}
	for k, v := range sess.Graded {
		st.Graded[k] = v
	}
	writeJSON(w, http.StatusOK, st)
}

// Package handler serves scripted scenarios over the grading gateway's wire
// contract. It grades nothing itself: outcomes come from the scenario files.
package handler

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/pavelanni/speakdrill/internal/gateway"
	"github.com/pavelanni/speakdrill/internal/model"
)

const maxUploadBytes = 10 << 20

// Handler holds the scenario catalog and in-memory sessions.
type Handler struct {
	token  string
	logger *slog.Logger
	now    func() time.Time
	newID  func() string

	mu        sync.Mutex
	scenarios map[string]Scenario
	sessions  map[string]*session
}

type session struct {
	ID        string
	Scenario  Scenario
	CreatedAt time.Time
	Issued    int
	Attempts  map[string]int
	Graded    map[string]model.Outcome
	Summary   *model.Summary
}

// current returns the most recently issued turn.
func (s *session) current() (ScriptedTurn, bool) {
	if s.Issued == 0 {
		return ScriptedTurn{}, false
	}
	return s.Scenario.Turns[s.Issued-1], true
}

func (s *session) issue() model.Turn {
	s.Issued++
	return s.Scenario.Turns[s.Issued-1].Turn
}

// New creates a Handler. A non-empty token is required as a bearer token on
// every request.
func New(scenarios []Scenario, token string, logger *slog.Logger) (*Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		token:     token,
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
		scenarios: make(map[string]Scenario, len(scenarios)),
		sessions:  make(map[string]*session),
	}
	for _, sc := range scenarios {
		if err := h.addScenario(sc); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Handler) addScenario(sc Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.scenarios[sc.ID] = sc
	return nil
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.requireToken)
		r.Post("/sessions", h.handleStartSession)
		r.Post("/sessions/{sessionID}/next", h.handleNextTurn)
		r.Post("/sessions/{sessionID}/grade", h.handleGrade)
		r.Post("/sessions/{sessionID}/complete", h.handleComplete)

		r.Get("/admin/scenarios", h.handleListScenarios)
		r.Post("/admin/scenarios", h.handleUploadScenario)
		r.Get("/admin/sessions/{sessionID}", h.handleSessionState)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, code, format string, args ...any) {
	writeJSON(w, status, gateway.ErrorBody{Code: code, Message: fmt.Sprintf(format, args...)})
}

// lookup returns the session named in the URL; callers must hold h.mu.
func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*session, bool) {
	id := chi.URLParam(r, "sessionID")
	sess, ok := h.sessions[id]
	if !ok {
		writeError(w, http.StatusNotFound, gateway.CodeSessionNotFound, "session %s not found", id)
	}
	return sess, ok
}

func (h *Handler) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req gateway.StartRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "invalid body: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sc, ok := h.scenarios[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusNotFound, gateway.CodeScenarioUnknown, "scenario %q not found", req.ScenarioID)
		return
	}
	sess := &session{
		ID:        h.newID(),
		Scenario:  sc,
		CreatedAt: h.now(),
		Attempts:  make(map[string]int),
		Graded:    make(map[string]model.Outcome),
	}
	h.sessions[sess.ID] = sess

	resp := gateway.StartResponse{SessionID: sess.ID}
	if sc.InlineFirstTurn && len(sc.Turns) > 0 {
		t := sess.issue()
		resp.Turn = &t
	}
	h.logger.Info("session started", "session", sess.ID, "scenario", sc.ID)
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) handleNextTurn(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if sess.Summary != nil || sess.Issued >= len(sess.Scenario.Turns) {
		writeError(w, http.StatusNotFound, gateway.CodeNoMoreTurns, "scenario %s has no more turns", sess.Scenario.ID)
		return
	}
	t := sess.issue()
	h.logger.Debug("turn issued", "session", sess.ID, "turn", t.ID, "speaker", t.Speaker)
	writeJSON(w, http.StatusOK, gateway.TurnResponse{Turn: t})
}

func (h *Handler) handleGrade(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "invalid multipart body: %v", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	f, _, err := r.FormFile(gateway.FieldAudio)
	if err != nil {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "audio part missing")
		return
	}
	audio, err := io.ReadAll(f)
	f.Close()
	if err != nil || len(audio) == 0 {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "audio part is empty")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if got := r.FormValue(gateway.FieldSessionID); got != sess.ID {
		writeError(w, http.StatusBadRequest, gateway.CodeBadRequest, "session_id %q does not match path", got)
		return
	}
	st, ok := sess.current()
	turnID := r.FormValue(gateway.FieldTurnID)
	if !ok || turnID != st.Turn.ID {
		writeError(w, http.StatusConflict, gateway.CodeTurnMismatch, "turn %q is not the current turn", turnID)
		return
	}

	attempt := sess.Attempts[turnID]
	sess.Attempts[turnID] = attempt + 1
	outcome := st.Outcome(attempt)
	sess.Graded[turnID] = outcome

	h.logger.Info("graded",
		"session", sess.ID,
		"turn", turnID,
		"attempt", attempt+1,
		"encoding", r.FormValue(gateway.FieldEncoding),
		"bytes", len(audio),
		"outcome", outcome,
	)
	writeJSON(w, http.StatusOK, gateway.GradeResponse{Outcome: outcome, Score: st.Score})
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.lookup(w, r)
	if !ok {
		return
	}
	if sess.Summary == nil {
		correct := 0
		for _, o := range sess.Graded {
			if o == model.OutcomeGood {
				correct++
			}
		}
		sess.Summary = &model.Summary{
			Total:       sess.Issued,
			Correct:     correct,
			CompletedAt: h.now().UTC(),
		}
		h.logger.Info("session completed", "session", sess.ID, "total", sess.Summary.Total, "correct", correct)
	}
	writeJSON(w, http.StatusOK, sess.Summary)
}

package gateway

import "github.com/pavelanni/speakdrill/internal/model"

// Error codes carried in ErrorBody.Code.
const (
	CodeNoMoreTurns     = "NO_MORE_TURNS"
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodeScenarioUnknown = "SCENARIO_NOT_FOUND"
	CodeTurnMismatch    = "TURN_MISMATCH"
	CodeBadRequest      = "BAD_REQUEST"
	CodeUnauthorized    = "UNAUTHORIZED"
)

// Multipart field names of the grade request.
const (
	FieldSessionID = "session_id"
	FieldTurnID    = "turn_id"
	FieldEncoding  = "encoding"
	FieldAudio     = "audio"
)

// StartRequest is the body of POST /sessions.
type StartRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// StartResponse is returned by POST /sessions. Turn may be omitted, in which
// case the first turn is fetched with next-turn.
type StartResponse struct {
	SessionID string      `json:"session_id"`
	Turn      *model.Turn `json:"turn,omitempty"`
}

// TurnResponse is returned by POST /sessions/{id}/next.
type TurnResponse struct {
	Turn model.Turn `json:"turn"`
}

// GradeResponse is returned by POST /sessions/{id}/grade.
type GradeResponse struct {
	Outcome model.Outcome `json:"outcome"`
	Score   *float64      `json:"score,omitempty"`
}

// ErrorBody is the JSON body of every non-2xx response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Package gateway is the HTTP client for the grading gateway that issues
// turns, grades recorded speech, and summarizes sessions.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/pavelanni/speakdrill/internal/model"
)

var (
	// ErrExhausted is returned by NextTurn when the scenario has no more turns.
	ErrExhausted = errors.New("no more turns")
	// ErrMalformedSessionID is returned for session ids that cannot be used in
	// a request path.
	ErrMalformedSessionID = errors.New("malformed session id")
	// ErrMalformedResponse is returned when a response body does not match the
	// wire contract.
	ErrMalformedResponse = errors.New("malformed gateway response")
)

// APIError is a non-2xx gateway response.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("gateway %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("gateway %d: %s", e.Status, e.Message)
}

// Is makes errors.Is(err, ErrExhausted) hold for NO_MORE_TURNS responses.
func (e *APIError) Is(target error) bool {
	return target == ErrExhausted && e.Code == CodeNoMoreTurns
}

const maxSessionIDLen = 128

// ValidSessionID reports whether id is non-empty, bounded, and made of
// letters, digits, '-' and '_'.
func ValidSessionID(id string) bool {
	if id == "" || len(id) > maxSessionIDLen {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// Client talks to a grading gateway.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// New creates a client. token is sent as a bearer token when non-empty.
func New(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// StartSession opens a session for a scenario.
func (c *Client) StartSession(ctx context.Context, scenarioID string) (StartResponse, error) {
	var resp StartResponse
	body, err := json.Marshal(StartRequest{ScenarioID: scenarioID})
	if err != nil {
		return resp, err
	}
	if err := c.do(ctx, "/sessions", "application/json", bytes.NewReader(body), &resp); err != nil {
		return resp, fmt.Errorf("start session: %w", err)
	}
	if !ValidSessionID(resp.SessionID) {
		return resp, fmt.Errorf("start session: %w: %q", ErrMalformedSessionID, resp.SessionID)
	}
	return resp, nil
}

// NextTurn fetches the next turn. It returns an error matching ErrExhausted
// when the scenario is finished.
func (c *Client) NextTurn(ctx context.Context, sessionID string) (model.Turn, error) {
	path, err := sessionPath(sessionID, "next")
	if err != nil {
		return model.Turn{}, err
	}
	var resp TurnResponse
	if err := c.do(ctx, path, "", nil, &resp); err != nil {
		return model.Turn{}, fmt.Errorf("next turn: %w", err)
	}
	return resp.Turn, nil
}

// GradeAudio uploads a sample for grading.
func (c *Client) GradeAudio(ctx context.Context, sessionID, turnID string, s model.AudioSample) (model.Verdict, error) {
	path, err := sessionPath(sessionID, "grade")
	if err != nil {
		return model.Verdict{}, err
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fields := [][2]string{{FieldSessionID, sessionID}, {FieldTurnID, turnID}, {FieldEncoding, s.Encoding}}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return model.Verdict{}, err
		}
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, FieldAudio, "answer"+extension(s.Encoding)))
	h.Set("Content-Type", s.Encoding)
	part, err := mw.CreatePart(h)
	if err != nil {
		return model.Verdict{}, err
	}
	if _, err := part.Write(s.Data); err != nil {
		return model.Verdict{}, err
	}
	if err := mw.Close(); err != nil {
		return model.Verdict{}, err
	}

	var resp GradeResponse
	if err := c.do(ctx, path, mw.FormDataContentType(), &buf, &resp); err != nil {
		return model.Verdict{}, fmt.Errorf("grade audio: %w", err)
	}
	switch resp.Outcome {
	case model.OutcomeGood, model.OutcomeRetry, model.OutcomeWrong:
	default:
		return model.Verdict{}, fmt.Errorf("grade audio: %w: outcome %q", ErrMalformedResponse, resp.Outcome)
	}
	return model.Verdict{Outcome: resp.Outcome, Score: resp.Score}, nil
}

// CompleteSession closes the session and returns its summary.
func (c *Client) CompleteSession(ctx context.Context, sessionID string) (model.Summary, error) {
	path, err := sessionPath(sessionID, "complete")
	if err != nil {
		return model.Summary{}, err
	}
	var resp model.Summary
	if err := c.do(ctx, path, "", nil, &resp); err != nil {
		return model.Summary{}, fmt.Errorf("complete session: %w", err)
	}
	return resp, nil
}

func sessionPath(sessionID, action string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrMalformedSessionID, sessionID)
	}
	return "/sessions/" + url.PathEscape(sessionID) + "/" + action, nil
}

func extension(encoding string) string {
	mime, _, _ := strings.Cut(encoding, ";")
	switch strings.TrimSpace(mime) {
	case "audio/wav", "audio/x-wav":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/webm":
		return ".webm"
	case "audio/mp4":
		return ".m4a"
	}
	return ".bin"
}

// do POSTs body to path and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("gateway request", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		var eb ErrorBody
		if json.Unmarshal(data, &eb) == nil && (eb.Code != "" || eb.Message != "") {
			apiErr.Code, apiErr.Message = eb.Code, eb.Message
		} else {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}

package secondme

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Client talks to the SecondMe agent service. Chat and Act stream their
// responses; UserInfo is a plain JSON call.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		HTTP: &http.Client{
			// Streams stay open while the agent thinks; allow for slow ones.
			Timeout: 120 * time.Second,
		},
	}
}

type streamRequest struct {
	Message       string `json:"message"`
	ActionControl string `json:"actionControl,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
}

// Chat sends one open-ended message to the agent and returns the decoded
// text plus the session id for multi-turn continuity.
func (c *Client) Chat(ctx context.Context, accessToken, message, sessionID string) (string, string, error) {
	result, err := c.stream(ctx, "/api/secondme/chat/stream", accessToken, streamRequest{
		Message:   message,
		SessionID: sessionID,
	})
	if err != nil {
		return "", "", err
	}
	return result.Text, result.SessionID, nil
}

// Act sends an instruction preamble plus message and parses the accumulated
// stream text as a JSON object. When the agent's output is not valid JSON
// the caller still gets a usable result: a cooperative choice with the raw
// text as the reason. Only transport failures surface as errors.
func (c *Client) Act(ctx context.Context, accessToken, message, actionControl, sessionID string) (map[string]any, string, error) {
	result, err := c.stream(ctx, "/api/secondme/act/stream", accessToken, streamRequest{
		Message:       message,
		ActionControl: actionControl,
		SessionID:     sessionID,
	})
	if err != nil {
		return nil, "", err
	}

	var parsed map[string]any
	if err := json.Unmarshal([]byte(result.Text), &parsed); err != nil {
		log.Printf("[SecondMe] act response is not JSON, applying cooperative fallback (len=%d)", len(result.Text))
		parsed = map[string]any{"choice": "cooperate", "reason": result.Text}
	}
	return parsed, result.SessionID, nil
}

func (c *Client) stream(ctx context.Context, path, accessToken string, body streamRequest) (StreamResult, error) {
	payload, _ := json.Marshal(body)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return StreamResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return StreamResult{}, fmt.Errorf("secondme %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return StreamResult{}, fmt.Errorf("secondme %s returned %d: %s", path, resp.StatusCode, snippet)
	}

	result, err := DecodeEventStream(resp.Body)
	if err != nil {
		return StreamResult{}, fmt.Errorf("secondme %s: decode stream: %w", path, err)
	}
	if result.SessionID == "" {
		result.SessionID = body.SessionID
	}
	return result, nil
}

// UserInfo is the agent owner's SecondMe profile.
type UserInfo struct {
	Name      string `json:"name"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatarUrl"`
	Route     string `json:"route"`
}

type envelope struct {
	Code int             `json:"code"`
	Data json.RawMessage `json:"data"`
}

// GetUserInfo fetches the profile behind an access token.
func (c *Client) GetUserInfo(ctx context.Context, accessToken string) (*UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/secondme/user/info", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("secondme user info: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("secondme user info: %w", err)
	}
	if env.Code != 0 {
		return nil, fmt.Errorf("secondme user info failed: %s", body)
	}

	var info UserInfo
	if err := json.Unmarshal(env.Data, &info); err != nil {
		return nil, fmt.Errorf("secondme user info: %w", err)
	}
	return &info, nil
}

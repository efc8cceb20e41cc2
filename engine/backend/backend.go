package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var ErrUnauthorized = errors.New("backend rejected the auth token")

// TaskStatus is today's task as the backend reports it. Id is opaque; an
// absent, empty or zero id means there is no task.
type TaskStatus struct {
	ID        any    `json:"id,omitempty"`
	Completed bool   `json:"completed"`
	Date      string `json:"date,omitempty"`
}

func (t *TaskStatus) Exists() bool {
	if t == nil || t.ID == nil {
		return false
	}
	switch id := t.ID.(type) {
	case string:
		return id != ""
	case float64:
		return id != 0
	case json.Number:
		return id.String() != "0"
	case int:
		return id != 0
	case int64:
		return id != 0
	}
	return true
}

type User struct {
	Username string `json:"username,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (u User) DisplayName() string {
	if u.Username != "" {
		return u.Username
	}
	return u.Email
}

// StatusError is a non-2xx answer other than 401.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned status %d: %s", e.Code, e.Body)
}

type Client struct {
	BaseURL string
	Token   string
	HTTP    *http.Client
}

func New(apiURL, token string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(apiURL, "/"),
		Token:   token,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// CurrentTask fetches the current grind and returns today's task, or nil
// when there is none (404, empty object, missing id).
func (c *Client) CurrentTask(ctx context.Context) (*TaskStatus, error) {
	var payload struct {
		Grind *struct {
			TaskToday *TaskStatus `json:"taskToday"`
		} `json:"grind"`
	}
	status, err := c.do(ctx, http.MethodGet, "/api/v1/grinds/current", nil, &payload)
	if status == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if payload.Grind == nil || !payload.Grind.TaskToday.Exists() {
		return nil, nil
	}
	return payload.Grind.TaskToday, nil
}

func (c *Client) VerifyToken(ctx context.Context) (User, error) {
	var payload struct {
		User User `json:"user"`
	}
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/verify-token", nil, &payload); err != nil {
		return User{}, err
	}
	return payload.User, nil
}

// FinishTask reports a solved task and returns the task the backend echoes.
func (c *Client) FinishTask(ctx context.Context, code, language string) (map[string]any, error) {
	body := map[string]string{"code": code, "language": language}
	var payload struct {
		Task map[string]any `json:"task"`
	}
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/tasks/finish", body, &payload); err != nil {
		return nil, err
	}
	return payload.Task, nil
}

// do sends one request and decodes a JSON answer into out. The returned
// status is zero when no response arrived.
func (c *Client) do(ctx context.Context, method, path string, in any, out any) (int, error) {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reqBody)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return resp.StatusCode, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return resp.StatusCode, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return resp.StatusCode, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decode %s: %w", path, err)
	}
	return resp.StatusCode, nil
}

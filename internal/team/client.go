// Package team is the HTTP client for the Yoyoo team backend: CEO chat,
// task creation, async execution, and progress timelines.
package team

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
)

const (
	// Channel and ProjectKey tag every backend request originating here.
	Channel    = "web"
	ProjectKey = "yoyoo-ui"

	// retryTimeoutFloor is the minimum timeout for the post-health-check
	// retry of a CEO chat call.
	retryTimeoutFloor = 100 * time.Second
)

// Config fixes the backend endpoint and per-call timeouts.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	HealthTimeout time.Duration
}

// Client talks to the team backend. All methods honor the passed context in
// addition to the configured per-call timeout.
type Client struct {
	cfg  Config
	http *http.Client
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.HealthTimeout <= 0 {
		cfg.HealthTimeout = 3 * time.Second
	}
	return &Client{
		cfg: cfg,
		// Timeouts are applied per call via context; the client itself
		// carries none so the health probe and long chat calls can differ.
		http: &http.Client{},
	}
}

// BaseURL returns the configured backend endpoint, for diagnostics.
func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

// chatRequest is the body of both CEO chat and task creation calls.
type chatRequest struct {
	UserID         string `json:"user_id"`
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
	Channel        string `json:"channel"`
	ProjectKey     string `json:"project_key"`
}

// CeoChatResponse is the backend's chat verdict. TaskIntent is a pointer
// because the backend may omit it, in which case callers fall back to local
// classification.
type CeoChatResponse struct {
	OK                  bool   `json:"ok"`
	Reply               string `json:"reply"`
	TaskIntent          *bool  `json:"task_intent,omitempty"`
	RequireConfirmation bool   `json:"require_confirmation,omitempty"`
	SuggestedExecutor   string `json:"suggested_executor,omitempty"`
	CtoLane             string `json:"cto_lane,omitempty"`
	ExecutionMode       string `json:"execution_mode,omitempty"`
	EtaMinutes          int    `json:"eta_minutes,omitempty"`
}

type CreateTaskResponse struct {
	OK     bool   `json:"ok"`
	TaskID string `json:"task_id"`
	Reply  string `json:"reply,omitempty"`
	Status string `json:"status,omitempty"`
}

type RunAsyncResponse struct {
	OK       bool   `json:"ok"`
	TaskID   string `json:"task_id"`
	Accepted bool   `json:"accepted"`
	Status   string `json:"status"`
	Message  string `json:"message,omitempty"`
}

type TimelineEvent struct {
	Timestamp string `json:"timestamp,omitempty"`
	Actor     string `json:"actor,omitempty"`
	Event     string `json:"event,omitempty"`
	Detail    string `json:"detail,omitempty"`
	Role      string `json:"role,omitempty"`
	Stage     string `json:"stage,omitempty"`
}

type TaskDetailResponse struct {
	TaskID   string          `json:"task_id"`
	Status   string          `json:"status"`
	Timeline []TimelineEvent `json:"timeline,omitempty"`
}

type TaskListItem struct {
	TaskID        string `json:"task_id"`
	Title         string `json:"title"`
	OwnerRole     string `json:"owner_role"`
	Status        string `json:"status"`
	EtaMinutes    int    `json:"eta_minutes,omitempty"`
	CtoLane       string `json:"cto_lane,omitempty"`
	ExecutionMode string `json:"execution_mode,omitempty"`
	UpdatedAt     string `json:"updated_at"`
}

type TaskListResponse struct {
	OK    bool           `json:"ok"`
	Items []TaskListItem `json:"items,omitempty"`
}

// timeoutError marks a call that hit its deadline, as opposed to a refused
// connection or a non-2xx response.
type timeoutError struct {
	cause error
}

func (e *timeoutError) Error() string { return "backend request timeout" }
func (e *timeoutError) Unwrap() error { return e.cause }

// IsTimeout reports whether err represents a backend call deadline.
func IsTimeout(err error) bool {
	var te *timeoutError
	return errors.As(err, &te)
}

// doJSON issues one request with the given per-call timeout (floored to 1s)
// and decodes a JSON response. Non-2xx statuses become errors carrying the
// response body.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, timeout time.Duration, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, max(timeout, time.Second))
	defer cancel()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request body")
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(callCtx, method, c.cfg.BaseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build request %s %s", method, path)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return &timeoutError{cause: err}
		}
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return errors.Errorf("HTTP %d %s", resp.StatusCode, strings.TrimSpace(string(text)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(err, "decode response of %s %s", method, path)
	}
	return nil
}

// Healthy probes the backend's runtime health endpoint with the short
// health timeout. Any failure reads as unhealthy.
func (c *Client) Healthy(ctx context.Context) bool {
	var res struct {
		OK bool `json:"ok"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/team/runtime/health", nil, c.cfg.HealthTimeout, &res); err != nil {
		return false
	}
	return res.OK
}

// CeoChat asks the backend CEO to interpret a prompt. It never fails: a
// timeout triggers a health probe and, when the backend is merely busy with
// a long task, one retry with an extended deadline; any terminal failure
// synthesizes a degraded reply that preserves the caller's local
// task-intent verdict so dispatch logic stays usable offline.
func (c *Client) CeoChat(ctx context.Context, userID, conversationID, prompt string, taskIntentHint bool) CeoChatResponse {
	body := chatRequest{
		UserID:         userID,
		Message:        prompt,
		ConversationID: conversationID,
		Channel:        Channel,
		ProjectKey:     ProjectKey,
	}

	var res CeoChatResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/team/chat/ceo", body, c.cfg.Timeout, &res)
	if err == nil {
		return res
	}

	if IsTimeout(err) && c.Healthy(ctx) {
		slog.Info("ceo chat timed out but backend is healthy, retrying with extended deadline", "user_id", userID)
		var retry CeoChatResponse
		retryErr := c.doJSON(ctx, http.MethodPost, "/api/v1/team/chat/ceo", body, max(c.cfg.Timeout, retryTimeoutFloor), &retry)
		if retryErr == nil {
			return retry
		}
		return degradedReply(
			fmt.Sprintf("我在。后端正在处理长任务（服务健康），这次响应超时：%s。请稍后重试或继续发送下一条指令。", retryErr.Error()),
			taskIntentHint,
		)
	}

	slog.Warn("ceo chat failed, serving degraded reply", "user_id", userID, "error", err)
	return degradedReply(fmt.Sprintf("我在。后端暂时繁忙：%s。请稍后重试。", err.Error()), taskIntentHint)
}

func degradedReply(reply string, taskIntent bool) CeoChatResponse {
	return CeoChatResponse{
		OK:                false,
		Reply:             reply,
		TaskIntent:        &taskIntent,
		SuggestedExecutor: "CTO",
		CtoLane:           "ENG",
		ExecutionMode:     "subagent",
		EtaMinutes:        8,
	}
}

// CreateTask registers a new task for the prompt and returns the backend's
// acknowledgement reply.
func (c *Client) CreateTask(ctx context.Context, userID, conversationID, prompt string) (CreateTaskResponse, error) {
	body := chatRequest{
		UserID:         userID,
		Message:        prompt,
		ConversationID: conversationID,
		Channel:        Channel,
		ProjectKey:     ProjectKey,
	}
	var res CreateTaskResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/team/tasks", body, c.cfg.Timeout, &res)
	return res, err
}

// RunAsync triggers background execution of a created task. Resume is
// always requested so a restarted backend picks up where it left off.
func (c *Client) RunAsync(ctx context.Context, taskID string) (RunAsyncResponse, error) {
	body := struct {
		MaxAttempts int  `json:"max_attempts"`
		Resume      bool `json:"resume"`
	}{MaxAttempts: 2, Resume: true}

	var res RunAsyncResponse
	err := c.doJSON(ctx, http.MethodPost, "/api/v1/team/tasks/"+url.PathEscape(taskID)+"/run-async", body, c.cfg.Timeout, &res)
	return res, err
}

// TaskDetail fetches current status and timeline of one task.
func (c *Client) TaskDetail(ctx context.Context, taskID string) (TaskDetailResponse, error) {
	var res TaskDetailResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/team/tasks/"+url.PathEscape(taskID), nil, c.cfg.Timeout, &res)
	return res, err
}

// ListTasks returns the user's recent tasks, newest last.
func (c *Client) ListTasks(ctx context.Context, userID string, limit int) (TaskListResponse, error) {
	query := url.Values{}
	query.Set("user_id", userID)
	query.Set("limit", fmt.Sprintf("%d", limit))

	var res TaskListResponse
	err := c.doJSON(ctx, http.MethodGet, "/api/v1/team/tasks?"+query.Encode(), nil, c.cfg.Timeout, &res)
	return res, err
}

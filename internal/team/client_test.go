package team

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestClient(baseURL string, timeout time.Duration) *Client {
	return NewClient(Config{
		BaseURL:       baseURL,
		Timeout:       timeout,
		HealthTimeout: time.Second,
	})
}

func TestCeoChat_Success(t *testing.T) {
	var gotBody chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/team/chat/ceo", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(CeoChatResponse{
			OK:                true,
			Reply:             "收到，马上安排。",
			SuggestedExecutor: "CTO",
		})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	res := c.CeoChat(context.Background(), "alice", "conv-1", "帮我部署服务", true)

	require.True(t, res.OK)
	require.Equal(t, "收到，马上安排。", res.Reply)
	require.Equal(t, "alice", gotBody.UserID)
	require.Equal(t, "conv-1", gotBody.ConversationID)
	require.Equal(t, Channel, gotBody.Channel)
	require.Equal(t, ProjectKey, gotBody.ProjectKey)
}

func TestCeoChat_HardFailureDegradesPreservingIntent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, 5*time.Second)
	res := c.CeoChat(context.Background(), "alice", "conv-1", "帮我部署服务", true)

	require.False(t, res.OK)
	require.Contains(t, res.Reply, "后端暂时繁忙")
	require.NotNil(t, res.TaskIntent)
	require.True(t, *res.TaskIntent)
	require.Equal(t, "CTO", res.SuggestedExecutor)
	require.Equal(t, "ENG", res.CtoLane)
	require.Equal(t, "subagent", res.ExecutionMode)
	require.Equal(t, 8, res.EtaMinutes)
}

func TestCeoChat_TimeoutWithHealthyBackendRetries(t *testing.T) {
	// First chat call stalls past the client timeout; health says ok; the
	// retry answers immediately.
	var chatCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/team/runtime/health":
			_, _ = w.Write([]byte(`{"ok":true}`))
		case "/api/v1/team/chat/ceo":
			if chatCalls.Add(1) == 1 {
				time.Sleep(3 * time.Second)
			}
			_ = json.NewEncoder(w).Encode(CeoChatResponse{OK: true, Reply: "久等了，继续。"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	res := c.CeoChat(context.Background(), "alice", "conv-1", "帮我部署服务", false)

	require.True(t, res.OK)
	require.Equal(t, "久等了，继续。", res.Reply)
	require.Equal(t, int32(2), chatCalls.Load())
}

func TestCeoChat_TimeoutWithUnhealthyBackendDegrades(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/team/runtime/health":
			http.Error(w, "down", http.StatusServiceUnavailable)
		default:
			time.Sleep(3 * time.Second)
		}
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	res := c.CeoChat(context.Background(), "alice", "conv-1", "随便聊聊最近的天气如何", false)

	require.False(t, res.OK)
	require.Contains(t, res.Reply, "后端暂时繁忙")
	require.NotNil(t, res.TaskIntent)
	require.False(t, *res.TaskIntent)
}

func TestHealthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/team/runtime/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	require.True(t, c.Healthy(context.Background()))

	srv.Close()
	require.False(t, c.Healthy(context.Background()))
}

func TestRunAsync_SendsResumePolicy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/team/tasks/task-9/run-async", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, float64(2), body["max_attempts"])
		require.Equal(t, true, body["resume"])
		_ = json.NewEncoder(w).Encode(RunAsyncResponse{OK: true, TaskID: "task-9", Accepted: true, Status: "running"})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	res, err := c.RunAsync(context.Background(), "task-9")
	require.NoError(t, err)
	require.True(t, res.Accepted)
}

func TestCreateTask_NonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	_, err := c.CreateTask(context.Background(), "alice", "conv-1", "部署")
	require.Error(t, err)
	require.Contains(t, err.Error(), "HTTP 502")
	require.False(t, IsTimeout(err))
}

func TestListTasks_QueryParams(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/team/tasks", r.URL.Path)
		require.Equal(t, "alice", r.URL.Query().Get("user_id"))
		require.Equal(t, "30", r.URL.Query().Get("limit"))
		_ = json.NewEncoder(w).Encode(TaskListResponse{OK: true, Items: []TaskListItem{{TaskID: "t1", Title: "部署", Status: "running", UpdatedAt: "2026-08-30T10:00:00Z"}}})
	}))
	defer srv.Close()

	c := newTestClient(srv.URL, time.Second)
	res, err := c.ListTasks(context.Background(), "alice", 30)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
}

func TestIsTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(3 * time.Second)
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL, Timeout: time.Second, HealthTimeout: time.Second})
	_, err := c.TaskDetail(context.Background(), "t1")
	require.Error(t, err)
	require.True(t, IsTimeout(err))
}

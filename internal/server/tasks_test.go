package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yoyoo-ai/yoyoo/internal/team"
)

func newTaskBackend(t *testing.T, items []team.TaskListItem, details map[string]team.TaskDetailResponse) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/team/tasks" && r.Method == http.MethodGet:
			_ = json.NewEncoder(w).Encode(team.TaskListResponse{OK: true, Items: items})
		case strings.HasPrefix(r.URL.Path, "/api/v1/team/tasks/"):
			taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/team/tasks/")
			detail, ok := details[taskID]
			if !ok {
				http.NotFound(w, r)
				return
			}
			_ = json.NewEncoder(w).Encode(detail)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestGetTasks_MapsBackendItems(t *testing.T) {
	items := []team.TaskListItem{
		{TaskID: "t1", Title: "旧任务", OwnerRole: "CTO", Status: "done", UpdatedAt: "2026-08-30T09:00:00Z", CtoLane: "ENG", ExecutionMode: "subagent", EtaMinutes: 30},
		{TaskID: "t2", Title: "进行中", OwnerRole: "CTO", Status: "running", UpdatedAt: "2026-08-30T10:00:00Z"},
	}
	details := map[string]team.TaskDetailResponse{
		"t2": {TaskID: "t2", Status: "running", Timeline: []team.TimelineEvent{
			{Timestamp: "2026-08-30T10:01:00Z", Actor: "CTO", Event: "task_created", Detail: "已创建任务"},
			{Timestamp: "2026-08-30T10:02:00Z", Event: "execution_started", Detail: ""},
		}},
		"t1": {TaskID: "t1", Status: "done", Timeline: []team.TimelineEvent{
			{Timestamp: "2026-08-30T09:30:00Z", Actor: "CTO", Event: "artifact_ready", Detail: "产出已交付"},
		}},
	}
	backend := newTaskBackend(t, items, details)
	defer backend.Close()

	h := newHarness(t, backend.URL, "confirm")
	rec := h.serve(t, http.MethodGet, "/chat/tasks?userId=alice&conversationId=conv-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		OK       bool           `json:"ok"`
		Tasks    []TaskItem     `json:"tasks"`
		Timeline []TimelineItem `json:"timeline"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.True(t, body.OK)
	require.Len(t, body.Tasks, 2)

	// Newest first.
	require.Equal(t, "t2", body.Tasks[0].ID)
	require.Equal(t, "in_progress", body.Tasks[0].Status)
	require.Equal(t, 55, body.Tasks[0].Progress)
	require.Equal(t, "medium", body.Tasks[0].Priority)
	require.Equal(t, []string{"ENG", "subagent"}, body.Tasks[0].Tags)
	require.Equal(t, "--", body.Tasks[0].Eta)
	require.Equal(t, "conv-1", body.Tasks[0].ConversationID)

	require.Equal(t, "t1", body.Tasks[1].ID)
	require.Equal(t, "done", body.Tasks[1].Status)
	require.Equal(t, 100, body.Tasks[1].Progress)
	require.Equal(t, "high", body.Tasks[1].Priority)
	require.Equal(t, "Yoyoo CTO", body.Tasks[1].Owner)
	require.Equal(t, "2026-08-30 09:30", body.Tasks[1].Eta)

	// Empty-detail events dropped; newest timeline entries first.
	require.Len(t, body.Timeline, 2)
	require.Equal(t, "artifact", body.Timeline[0].Type)
	require.Equal(t, "产出已交付", body.Timeline[0].Detail)
	require.Equal(t, "created", body.Timeline[1].Type)
}

func TestGetTasks_DegradesWhenBackendDown(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", "confirm")

	rec := h.serve(t, http.MethodGet, "/chat/tasks?userId=alice", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeJSON(t, rec.Body.Bytes())
	require.Equal(t, false, body["ok"])
	require.Len(t, body["tasks"], 0)
	require.Len(t, body["timeline"], 0)
	require.NotEmpty(t, body["error"])
}

func TestGetTasks_MissingUserID(t *testing.T) {
	h := newHarness(t, "http://127.0.0.1:1", "confirm")

	rec := h.serve(t, http.MethodGet, "/chat/tasks", "")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

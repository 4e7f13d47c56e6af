package server

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/sync/errgroup"

	"github.com/yoyoo-ai/yoyoo/internal/model"
	"github.com/yoyoo-ai/yoyoo/internal/team"
)

const (
	taskListLimit        = 30
	taskWindow           = 20
	timelineWindow       = 20
	timelineTaskFanout   = 8
	defaultLane          = "ENG"
	defaultExecutionMode = "subagent"
)

// TaskItem is the workspace view of one backend task.
type TaskItem struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Owner          string   `json:"owner"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	Progress       int      `json:"progress"`
	Eta            string   `json:"eta"`
	UpdatedAt      string   `json:"updatedAt"`
	ConversationID string   `json:"conversationId"`
	Tags           []string `json:"tags"`
}

// TimelineItem is one progress event in the workspace feed.
type TimelineItem struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Time   string `json:"time"`
	Actor  string `json:"actor"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}

// getTasks aggregates the user's recent tasks and their timelines into the
// workspace shape. Backend failure degrades to an empty payload with HTTP
// 200 so the workspace renders instead of erroring.
func (s *Server) getTasks(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return badRequest(c, "missing userId")
	}
	conversationID := c.QueryParam("conversationId")
	if conversationID == "" {
		conversationID = "/"
	}
	ctx := c.Request().Context()

	list, err := s.team.ListTasks(ctx, userID, taskListLimit)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]any{
			"ok":       false,
			"error":    err.Error(),
			"tasks":    []TaskItem{},
			"timeline": []TimelineItem{},
		})
	}

	items := list.Items
	if len(items) > taskWindow {
		items = items[len(items)-taskWindow:]
	}
	recent := make([]team.TaskListItem, len(items))
	for i, item := range items {
		recent[len(items)-1-i] = item
	}

	tasks := make([]TaskItem, 0, len(recent))
	for _, item := range recent {
		status, progress := model.MapBackendStatus(item.Status)
		owner := item.OwnerRole
		if owner == "CTO" {
			owner = "Yoyoo CTO"
		} else if owner == "" {
			owner = "Yoyoo"
		}
		priority := "medium"
		if item.CtoLane == defaultLane {
			priority = "high"
		}
		lane := item.CtoLane
		if lane == "" {
			lane = defaultLane
		}
		mode := item.ExecutionMode
		if mode == "" {
			mode = defaultExecutionMode
		}
		tasks = append(tasks, TaskItem{
			ID:             item.TaskID,
			Title:          item.Title,
			Owner:          owner,
			Status:         string(status),
			Priority:       priority,
			Progress:       progress,
			Eta:            toEtaText(item.UpdatedAt, item.EtaMinutes),
			UpdatedAt:      toHHmm(item.UpdatedAt),
			ConversationID: conversationID,
			Tags:           []string{lane, mode},
		})
	}

	timeline := s.collectTimelines(c, recent)

	return c.JSON(http.StatusOK, map[string]any{
		"ok":       true,
		"tasks":    tasks,
		"timeline": timeline,
	})
}

// collectTimelines fetches per-task timelines concurrently, keeping the
// task order stable. A failed detail fetch contributes nothing.
func (s *Server) collectTimelines(c echo.Context, recent []team.TaskListItem) []TimelineItem {
	fanout := min(len(recent), timelineTaskFanout)
	perTask := make([][]TimelineItem, fanout)

	group, ctx := errgroup.WithContext(c.Request().Context())
	for i := 0; i < fanout; i++ {
		slot := i
		item := recent[i]
		group.Go(func() error {
			detail, err := s.team.TaskDetail(ctx, item.TaskID)
			if err != nil {
				return nil
			}
			entries := make([]TimelineItem, 0, len(detail.Timeline))
			for idx, event := range detail.Timeline {
				title := event.Event
				if title == "" {
					title = "progress"
				}
				actor := event.Actor
				if actor == "" {
					actor = "Yoyoo"
				}
				entries = append(entries, TimelineItem{
					ID:     fmt.Sprintf("%s-%d", item.TaskID, idx),
					Type:   mapEventType(event.Event),
					Time:   toHHmm(event.Timestamp),
					Actor:  actor,
					Title:  title,
					Detail: event.Detail,
				})
			}
			perTask[slot] = entries
			return nil
		})
	}
	_ = group.Wait()

	flat := make([]TimelineItem, 0)
	for _, entries := range perTask {
		for _, item := range entries {
			if strings.TrimSpace(item.Detail) == "" {
				continue
			}
			flat = append(flat, item)
		}
	}
	if len(flat) > timelineWindow {
		flat = flat[len(flat)-timelineWindow:]
	}
	out := make([]TimelineItem, len(flat))
	for i, item := range flat {
		out[len(flat)-1-i] = item
	}
	return out
}

func mapEventType(event string) string {
	value := strings.ToLower(event)
	if strings.Contains(value, "created") {
		return "created"
	}
	if strings.Contains(value, "dispatch") || strings.Contains(value, "execution") || strings.Contains(value, "assigned") {
		return "assigned"
	}
	return "artifact"
}

// toHHmm renders an RFC 3339 stamp as HH:mm, or a placeholder when absent
// or unparseable.
func toHHmm(iso string) string {
	if iso == "" {
		return "--:--"
	}
	parsed, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return "--:--"
	}
	return parsed.Format("15:04")
}

// toEtaText projects the expected completion stamp from the last update.
func toEtaText(updatedAtISO string, etaMinutes int) string {
	base, err := time.Parse(time.RFC3339, updatedAtISO)
	if err != nil || etaMinutes <= 0 {
		return "--"
	}
	return base.Add(time.Duration(etaMinutes) * time.Minute).Format("2006-01-02 15:04")
}

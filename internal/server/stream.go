package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/yoyoo-ai/yoyoo/internal/chat"
	"github.com/yoyoo-ai/yoyoo/internal/gate"
	"github.com/yoyoo-ai/yoyoo/internal/model"
	"github.com/yoyoo-ai/yoyoo/internal/team"
)

const (
	defaultUserID = "web-user"

	replyChunkRunes = 22
	replyChunkPause = 25 * time.Millisecond

	// maxProgressLines caps how many timeline lines one stream relays.
	maxProgressLines = 2

	// creationEchoMarker identifies the backend's task-creation timeline
	// event, which duplicates the intro already streamed.
	creationEchoMarker = "已创建任务并进入协作流程"
)

type streamRequest struct {
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
}

// streamWriter emits chunked plain text to the client, flushing each piece
// immediately.
type streamWriter struct {
	resp  *echo.Response
	sleep func(time.Duration)
}

func (w *streamWriter) text(s string) {
	if s == "" {
		return
	}
	_, _ = w.resp.Write([]byte(s))
	w.resp.Flush()
}

// chunks paces a reply out in small rune windows so the client renders it
// progressively.
func (w *streamWriter) chunks(s string) {
	runes := []rune(s)
	for i := 0; i < len(runes); i += replyChunkRunes {
		end := min(i+replyChunkRunes, len(runes))
		w.text(string(runes[i:end]))
		w.sleep(replyChunkPause)
	}
}

// postStream runs the dispatch conversation. Once streaming starts, every
// failure is reported as stream text; the HTTP status is already committed.
func (s *Server) postStream(c echo.Context) error {
	var body streamRequest
	if err := c.Bind(&body); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	prompt := strings.TrimSpace(body.Prompt)
	if prompt == "" {
		return c.String(http.StatusBadRequest, "missing prompt")
	}
	userID := strings.TrimSpace(body.UserID)
	if userID == "" {
		userID = defaultUserID
	}
	conversationID := strings.TrimSpace(body.ConversationID)
	if conversationID == "" {
		conversationID = "web:" + userID
	}

	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/plain; charset=utf-8")
	resp.Header().Set("Cache-Control", "no-cache, no-transform")
	resp.WriteHeader(http.StatusOK)
	w := &streamWriter{resp: resp, sleep: time.Sleep}

	s.orchestrate(c.Request().Context(), w, userID, conversationID, prompt)
	return nil
}

// orchestrate is the stream state machine: queued-task promotion first,
// then queued-command handling, CEO classification, the dispatch decision,
// and finally slot admission.
func (s *Server) orchestrate(ctx context.Context, w *streamWriter, userID, conversationID, prompt string) {
	promoted, err := s.gate.PromoteForConversation(ctx, userID, conversationID)
	if err != nil {
		w.text("排队状态读取失败，请稍后重试。")
		return
	}
	if promoted.Mode == gate.PromoteRunning {
		s.runExecution(ctx, w, userID, conversationID, promoted.Prompt, promoted.TicketID,
			"你的排队任务已轮到，现在开始执行并给你关键进度。")
		return
	}

	queuePosition, inQueue, err := s.gate.QueuePosition(ctx, userID, conversationID)
	if err != nil {
		w.text("排队状态读取失败，请稍后重试。")
		return
	}
	pendingIntent, hasPending := s.chat.GetPendingIntent(userID, conversationID)

	if inQueue {
		if s.intent.IsCancelExecution(prompt) {
			if _, err := s.gate.CancelForConversation(ctx, userID, conversationID); err != nil {
				w.text("取消失败，请稍后重试。")
				return
			}
			w.text("已取消这条排队任务。我们继续聊。")
			return
		}
		if s.intent.IsQueueQuery(prompt) {
			w.text(fmt.Sprintf("这条任务仍在队列中，当前第 %d 位。轮到后会自动开始执行。", queuePosition))
			return
		}
	}

	confirmIntent := s.intent.IsConfirmExecution(prompt)
	rejectIntent := s.intent.IsRejectExecution(prompt)

	// A confirmation of a stashed intent skips the CEO round trip: the
	// task was already classified when it was stashed.
	skipCeoForConfirm := hasPending && confirmIntent

	ceoResult := team.CeoChatResponse{
		OK:                true,
		SuggestedExecutor: "CTO",
		CtoLane:           "ENG",
		ExecutionMode:     "subagent",
		EtaMinutes:        8,
	}
	ceoReply := ""
	taskIntent := false

	if skipCeoForConfirm {
		taskIntent = true
	} else {
		ceoResult = s.team.CeoChat(ctx, userID, conversationID, prompt, s.intent.IsTaskIntent(prompt))
		ceoReply = strings.TrimSpace(ceoResult.Reply)
		if ceoReply == "" {
			ceoReply = "我在，请继续说。"
		}
		if ceoResult.TaskIntent != nil {
			taskIntent = *ceoResult.TaskIntent
		} else {
			taskIntent = s.intent.IsTaskIntent(prompt)
		}
	}

	if taskIntent && !hasPending {
		w.text("CEO 正在理解任务上下文，请稍候...\n")
	}
	if !skipCeoForConfirm {
		w.chunks(ceoReply)
	}

	if hasPending && rejectIntent {
		if err := s.chat.ClearPendingIntent(ctx, userID, conversationID); err != nil {
			slog.Warn("clear pending intent failed", "user_id", userID, "error", err)
		}
		w.text("\n\n好的，已取消待执行任务。我们继续只讨论。")
		return
	}

	shouldDispatch := false
	dispatchPrompt := prompt

	switch {
	case hasPending && confirmIntent:
		shouldDispatch = true
		dispatchPrompt = pendingIntent.Prompt
		if err := s.chat.ClearPendingIntent(ctx, userID, conversationID); err != nil {
			slog.Warn("clear pending intent failed", "user_id", userID, "error", err)
		}
	case taskIntent:
		switch s.profile.DispatchMode {
		case "auto":
			shouldDispatch = s.intent.ShouldAutoDispatch(ceoReply)
		case "confirm":
			executor := ceoResult.SuggestedExecutor
			if executor == "" {
				executor = chat.DefaultExecutor
			}
			if err := s.chat.SetPendingIntent(ctx, userID, conversationID, model.PendingIntent{
				Prompt:            prompt,
				SuggestedExecutor: executor,
			}); err != nil {
				slog.Warn("stash pending intent failed", "user_id", userID, "error", err)
			}
			if !s.intent.HasConfirmInstruction(ceoReply) {
				w.text("\n\n我已识别到这是一条可执行任务。若要开始执行，请回复“确认执行”；若只想继续讨论，直接继续聊即可。")
			}
			return
		default:
			shouldDispatch = false
		}
	}

	if !shouldDispatch {
		return
	}
	if s.profile.DispatchMode == "auto" && !s.intent.ShouldAutoDispatch(ceoReply) {
		w.text("\n\n我会先按 CEO 的澄清问题推进，待信息齐全后再自动分发 CTO 执行。")
		return
	}

	slot, err := s.gate.RequestSlot(ctx, userID, conversationID, dispatchPrompt)
	if err != nil {
		w.text("\n\n执行调度失败，请稍后重试。")
		return
	}
	switch slot.Mode {
	case gate.SlotRunning:
		intro := "我已识别为可执行任务，已自动派给 CTO 开始执行。"
		if hasPending && confirmIntent {
			intro = "已收到确认，CEO 现已派发 CTO 开始执行。"
		}
		s.runExecution(ctx, w, userID, conversationID, dispatchPrompt, slot.TicketID, intro)
	case gate.SlotQueued:
		w.text(fmt.Sprintf("\n\n执行并发已满，任务已自动排队（第 %d 位）。你可以随时说“查看队列”。", slot.Position))
	default:
		w.text("\n\n当前你的排队任务已达到上限。请先等待已有任务完成，或发送“取消排队”。")
	}
}

// runExecution creates the backend task, triggers async execution, and
// relays key progress until a terminal status or a reporting cutoff. The
// gate slot is released on every exit path, including client disconnect.
func (s *Server) runExecution(ctx context.Context, w *streamWriter, userID, conversationID, taskPrompt, ticketID, intro string) {
	defer func() {
		if ticketID == "" {
			return
		}
		if err := s.gate.Finish(context.WithoutCancel(ctx), ticketID); err != nil {
			slog.Warn("release execution slot failed", "ticket_id", ticketID, "error", err)
		}
	}()

	if intro != "" {
		w.text("\n\n" + intro + "\n")
	}

	created, err := s.team.CreateTask(ctx, userID, conversationID, taskPrompt)
	if err != nil {
		w.text(fmt.Sprintf("\nYoyoo 后端不可达（%s）：%s", s.team.BaseURL(), err.Error()))
		return
	}
	if !created.OK || created.TaskID == "" {
		w.text("\n任务创建失败，请稍后重试。")
		return
	}
	if created.Reply != "" {
		w.text("\n" + created.Reply + "\n")
	}

	if accepted, err := s.team.RunAsync(ctx, created.TaskID); err != nil {
		w.text(fmt.Sprintf("\n触发执行失败：%s", err.Error()))
	} else {
		if accepted.Message != "" {
			w.text("\n" + accepted.Message)
		}
		if !accepted.Accepted && accepted.Status == "done" {
			w.text("\n任务已是完成态，正在回收执行结果。")
		}
	}

	s.pollProgress(ctx, w, created)
}

// pollProgress tails the task timeline until the task reaches a terminal
// status, the wait ceiling passes, or enough early progress was relayed.
func (s *Server) pollProgress(ctx context.Context, w *streamWriter, created team.CreateTaskResponse) {
	startedAt := time.Now()
	seenEvents := make(map[string]struct{})
	lastStatus := created.Status
	if lastStatus == "" {
		lastStatus = "running"
	}
	emittedProgress := 0

	interval := max(s.profile.PollInterval, time.Second)

	for ctx.Err() == nil {
		elapsed := time.Since(startedAt)
		if elapsed > s.profile.PollTimeout {
			w.text("\n任务仍在执行中，已超出本次等待时间。你可以稍后继续查看进度。")
			return
		}

		detail, err := s.team.TaskDetail(ctx, created.TaskID)
		if err != nil {
			w.text(fmt.Sprintf("\n进度查询失败：%s", err.Error()))
			return
		}
		if detail.Status != "" {
			lastStatus = detail.Status
		}

		fresh := make([]string, 0, len(detail.Timeline))
		for _, event := range detail.Timeline {
			key := eventKey(event)
			if _, seen := seenEvents[key]; seen {
				continue
			}
			seenEvents[key] = struct{}{}
			if line := formatEventLine(event); line != "" {
				fresh = append(fresh, line)
			}
		}
		visible := make([]string, 0, len(fresh))
		for _, line := range fresh {
			if strings.Contains(line, creationEchoMarker) {
				continue
			}
			if len(visible) >= maxProgressLines-emittedProgress {
				break
			}
			visible = append(visible, line)
		}
		if len(visible) > 0 {
			w.text("\n" + strings.Join(visible, "\n") + "\n")
			emittedProgress += len(visible)
		}

		if model.IsTerminalBackendStatus(lastStatus) {
			if lastStatus == "done" {
				w.text("\n这条任务已完成，我可以继续为你做验收总结。")
			} else {
				w.text("\n任务执行失败。我可以立刻给你一个修复方案并重派。")
			}
			return
		}
		if elapsed > s.profile.InitialReportWindow && emittedProgress > 0 {
			w.text(fmt.Sprintf("\n当前状态：%s。你随时说“汇报 %s 进展”，我会继续播报。", statusCn(lastStatus), created.TaskID))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func eventKey(event team.TimelineEvent) string {
	return event.Timestamp + "|" + event.Event + "|" + event.Detail
}

// formatEventLine renders one timeline event; events without detail are
// dropped.
func formatEventLine(event team.TimelineEvent) string {
	actor := event.Actor
	if actor == "" {
		actor = event.Role
	}
	if actor == "" {
		actor = "Yoyoo"
	}
	detail := strings.TrimSpace(event.Detail)
	if detail == "" {
		return ""
	}
	return fmt.Sprintf("【%s】%s", actor, detail)
}

func statusCn(status string) string {
	switch status {
	case "done":
		return "已完成"
	case "failed":
		return "失败"
	case "review":
		return "待验收"
	case "running":
		return "执行中"
	default:
		return "处理中"
	}
}

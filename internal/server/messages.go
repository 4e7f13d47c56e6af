package server

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/yoyoo-ai/yoyoo/internal/model"
)

// conversationIDParam accepts both the long and the short query spelling.
func conversationIDParam(c echo.Context) string {
	if id := c.QueryParam("conversationId"); id != "" {
		return id
	}
	return c.QueryParam("conv")
}

func (s *Server) getMessages(c echo.Context) error {
	userID := c.QueryParam("userId")
	conversationID := conversationIDParam(c)
	if userID == "" {
		return badRequest(c, "missing userId")
	}
	if conversationID == "" {
		return badRequest(c, "missing conversationId")
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":       true,
		"messages": s.chat.GetMessages(userID, conversationID),
	})
}

type postMessageRequest struct {
	UserID         string                     `json:"userId"`
	ConversationID string                     `json:"conversationId"`
	Conv           string                     `json:"conv"`
	DedupeKey      string                     `json:"dedupeKey"`
	Message        *model.ConversationMessage `json:"message"`
}

func (s *Server) postMessage(c echo.Context) error {
	var body postMessageRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	conversationID := body.ConversationID
	if conversationID == "" {
		conversationID = body.Conv
	}
	if body.UserID == "" {
		return badRequest(c, "missing userId")
	}
	if conversationID == "" {
		return badRequest(c, "missing conversationId")
	}
	if body.Message == nil {
		return badRequest(c, "missing message")
	}

	stored, err := s.chat.AppendMessage(c.Request().Context(), body.UserID, conversationID, *body.Message, body.DedupeKey)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{
		"ok":      true,
		"message": stored,
	})
}

func (s *Server) deleteMessages(c echo.Context) error {
	userID := c.QueryParam("userId")
	conversationID := conversationIDParam(c)
	if userID == "" {
		return badRequest(c, "missing userId")
	}
	if conversationID == "" {
		return badRequest(c, "missing conversationId")
	}
	if err := s.chat.RemoveMessages(c.Request().Context(), userID, conversationID); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) getState(c echo.Context) error {
	userID := c.QueryParam("userId")
	if userID == "" {
		return badRequest(c, "missing userId")
	}
	user := s.chat.GetUserStore(userID)
	return c.JSON(http.StatusOK, map[string]any{
		"ok":    true,
		"state": user.State,
	})
}

type putStateRequest struct {
	UserID string                              `json:"userId"`
	State  map[string]model.ConversationState `json:"state"`
}

func (s *Server) putState(c echo.Context) error {
	var body putStateRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid body")
	}
	if body.UserID == "" {
		return badRequest(c, "missing userId")
	}
	if body.State == nil {
		return badRequest(c, "invalid state")
	}
	if err := s.chat.SetState(c.Request().Context(), body.UserID, body.State); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]any{"ok": true})
}

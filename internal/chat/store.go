// Package chat persists per-user conversation metadata, message history
// with idempotent appends, and pending-intent bookkeeping.
package chat

import (
	"context"
	"time"

	"github.com/yoyoo-ai/yoyoo/internal/docstore"
	"github.com/yoyoo-ai/yoyoo/internal/model"
)

// DefaultExecutor is assigned to a pending intent when the backend did not
// suggest one.
const DefaultExecutor = "CTO"

// Store wraps the chat document with the same serialized-mutation
// discipline as the gate store.
type Store struct {
	doc *docstore.Store[model.ChatDocument]
	now func() time.Time
}

func NewStore(doc *docstore.Store[model.ChatDocument]) *Store {
	return &Store{
		doc: doc,
		now: time.Now,
	}
}

// GetUserStore returns a normalized snapshot of everything stored for a
// user. Unknown users yield an empty record, not an error.
func (s *Store) GetUserStore(userID string) model.UserChatStore {
	doc := s.doc.Read()
	doc.Normalize()
	user := doc.Users[userID]
	user.Normalize()
	return user
}

// SetState bulk-replaces the conversation-metadata mapping for a user.
func (s *Store) SetState(ctx context.Context, userID string, state map[string]model.ConversationState) error {
	return s.doc.Mutate(ctx, func(doc *model.ChatDocument) error {
		doc.Normalize()
		user := doc.Users[userID]
		user.Normalize()
		user.State = state
		doc.Users[userID] = user
		return nil
	})
}

// GetMessages returns the ordered history for a conversation; empty for an
// unknown conversation.
func (s *Store) GetMessages(userID, conversationID string) []model.ConversationMessage {
	user := s.GetUserStore(userID)
	messages := user.Messages[conversationID]
	if messages == nil {
		return []model.ConversationMessage{}
	}
	return messages
}

// AppendMessage appends to a conversation's history. When dedupeKey was
// already seen for this conversation, the previously stored message is
// returned unchanged and the new payload is ignored — the at-most-once
// guarantee retry-safe clients rely on.
func (s *Store) AppendMessage(ctx context.Context, userID, conversationID string, message model.ConversationMessage, dedupeKey string) (model.ConversationMessage, error) {
	stored := message
	err := s.doc.Mutate(ctx, func(doc *model.ChatDocument) error {
		doc.Normalize()
		user := doc.Users[userID]
		user.Normalize()

		bucket := user.Messages[conversationID]
		dedupeMap := user.Dedupe[conversationID]
		if dedupeMap == nil {
			dedupeMap = map[string]string{}
		}

		if dedupeKey != "" {
			if existingID, ok := dedupeMap[dedupeKey]; ok {
				for _, item := range bucket {
					if item.ID == existingID {
						stored = item
						return nil
					}
				}
			}
		}

		bucket = append(bucket, message)
		if dedupeKey != "" {
			dedupeMap[dedupeKey] = message.ID
		}
		user.Messages[conversationID] = bucket
		user.Dedupe[conversationID] = dedupeMap
		doc.Users[userID] = user
		stored = message
		return nil
	})
	return stored, err
}

// RemoveMessages deletes the conversation's history, dedupe index, and any
// pending intent — a full conversation reset.
func (s *Store) RemoveMessages(ctx context.Context, userID, conversationID string) error {
	return s.doc.Mutate(ctx, func(doc *model.ChatDocument) error {
		doc.Normalize()
		user := doc.Users[userID]
		user.Normalize()
		delete(user.Messages, conversationID)
		delete(user.Dedupe, conversationID)
		delete(user.PendingIntents, conversationID)
		doc.Users[userID] = user
		return nil
	})
}

// GetPendingIntent returns the conversation's pending intent, if any.
func (s *Store) GetPendingIntent(userID, conversationID string) (model.PendingIntent, bool) {
	user := s.GetUserStore(userID)
	intent, ok := user.PendingIntents[conversationID]
	return intent, ok
}

// SetPendingIntent stores a detected task awaiting confirmation, overwriting
// any previous one. Executor and creation time default when unset.
func (s *Store) SetPendingIntent(ctx context.Context, userID, conversationID string, intent model.PendingIntent) error {
	if intent.SuggestedExecutor == "" {
		intent.SuggestedExecutor = DefaultExecutor
	}
	if intent.CreatedAt == "" {
		intent.CreatedAt = s.now().UTC().Format(time.RFC3339)
	}
	return s.doc.Mutate(ctx, func(doc *model.ChatDocument) error {
		doc.Normalize()
		user := doc.Users[userID]
		user.Normalize()
		user.PendingIntents[conversationID] = intent
		doc.Users[userID] = user
		return nil
	})
}

// ClearPendingIntent drops the conversation's pending intent.
func (s *Store) ClearPendingIntent(ctx context.Context, userID, conversationID string) error {
	return s.doc.Mutate(ctx, func(doc *model.ChatDocument) error {
		doc.Normalize()
		user := doc.Users[userID]
		user.Normalize()
		delete(user.PendingIntents, conversationID)
		doc.Users[userID] = user
		return nil
	})
}

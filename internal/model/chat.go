package model

// MessageRole is who authored a conversation message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
	RoleYoyoo     MessageRole = "yoyoo"
)

// MessageStatus tracks client-side delivery state; patched in place during
// streaming updates.
type MessageStatus string

const (
	MessageSending MessageStatus = "sending"
	MessageSent    MessageStatus = "sent"
	MessageFailed  MessageStatus = "failed"
)

// ConversationMessage is one entry in a conversation's ordered history.
type ConversationMessage struct {
	ID        string        `json:"id"`
	Role      MessageRole   `json:"role"`
	Content   string        `json:"content"`
	CreatedAt string        `json:"createdAt"`
	Status    MessageStatus `json:"status,omitempty"`
}

// ConversationState is per-conversation metadata. Deleted is a tombstone;
// entries are never physically removed from the map once set.
type ConversationState struct {
	Title     string `json:"title,omitempty"`
	Pinned    bool   `json:"pinned,omitempty"`
	UpdatedAt int64  `json:"updatedAt,omitempty"`
	Deleted   bool   `json:"deleted,omitempty"`
}

// PendingIntent is a detected task awaiting explicit user confirmation.
// At most one per conversation; overwritten, never merged.
type PendingIntent struct {
	Prompt            string `json:"prompt"`
	SuggestedExecutor string `json:"suggestedExecutor"`
	CreatedAt         string `json:"createdAt"`
}

// UserChatStore holds everything the gateway persists for one user.
type UserChatStore struct {
	State          map[string]ConversationState     `json:"state"`
	Messages       map[string][]ConversationMessage `json:"messages"`
	Dedupe         map[string]map[string]string     `json:"dedupe"`
	PendingIntents map[string]PendingIntent         `json:"pendingIntents"`
}

func EmptyUserChatStore() UserChatStore {
	return UserChatStore{
		State:          map[string]ConversationState{},
		Messages:       map[string][]ConversationMessage{},
		Dedupe:         map[string]map[string]string{},
		PendingIntents: map[string]PendingIntent{},
	}
}

// Normalize repairs nil maps after decoding a partial user record.
func (u *UserChatStore) Normalize() {
	if u.State == nil {
		u.State = map[string]ConversationState{}
	}
	if u.Messages == nil {
		u.Messages = map[string][]ConversationMessage{}
	}
	if u.Dedupe == nil {
		u.Dedupe = map[string]map[string]string{}
	}
	if u.PendingIntents == nil {
		u.PendingIntents = map[string]PendingIntent{}
	}
}

// ChatDocument is the persisted aggregate of the conversation state store.
type ChatDocument struct {
	Users map[string]UserChatStore `json:"users"`
}

func EmptyChatDocument() ChatDocument {
	return ChatDocument{Users: map[string]UserChatStore{}}
}

func (d *ChatDocument) Normalize() {
	if d.Users == nil {
		d.Users = map[string]UserChatStore{}
	}
}

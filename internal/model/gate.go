// Package model defines the data structures for the gateway's gate store,
// chat store, and backend task contracts.
package model

// RunningTicket is an admitted execution attempt occupying one slot.
type RunningTicket struct {
	TicketID       string `json:"ticketId"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
	StartedAt      string `json:"startedAt"`
}

// QueuedTicket is an execution attempt waiting for a slot. Queue order is
// insertion order; there is no reordering.
type QueuedTicket struct {
	TicketID       string `json:"ticketId"`
	UserID         string `json:"userId"`
	ConversationID string `json:"conversationId"`
	Prompt         string `json:"prompt"`
	QueuedAt       string `json:"queuedAt"`
}

// GateDocument is the persisted aggregate of the execution gate.
type GateDocument struct {
	Running map[string]RunningTicket `json:"running"`
	Queue   []QueuedTicket           `json:"queue"`
}

func EmptyGateDocument() GateDocument {
	return GateDocument{
		Running: map[string]RunningTicket{},
		Queue:   []QueuedTicket{},
	}
}

// Normalize repairs nil fields after decoding a hand-edited or partial file.
func (d *GateDocument) Normalize() {
	if d.Running == nil {
		d.Running = map[string]RunningTicket{}
	}
	if d.Queue == nil {
		d.Queue = []QueuedTicket{}
	}
}

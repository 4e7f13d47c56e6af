// Package gate implements admission control for task execution slots:
// bounded per-user and global running capacity, strict FIFO queueing, and
// TTL-based reclamation of abandoned slots.
package gate

import (
	"context"
	"log/slog"
	"time"

	"github.com/pkg/errors"

	"github.com/yoyoo-ai/yoyoo/internal/docstore"
	"github.com/yoyoo-ai/yoyoo/internal/model"
)

// ReasonQueueLimitReached is the machine-readable rejection reason returned
// when a user's queued entries are at the per-user cap.
const ReasonQueueLimitReached = "queue_limit_reached"

// Config fixes the gate limits at process start.
type Config struct {
	MaxRunningPerUser int
	MaxRunningGlobal  int
	MaxQueuePerUser   int
	RunningTTL        time.Duration
}

// DefaultConfig mirrors the documented defaults.
func DefaultConfig() Config {
	return Config{
		MaxRunningPerUser: 2,
		MaxRunningGlobal:  4,
		MaxQueuePerUser:   8,
		RunningTTL:        20 * time.Minute,
	}
}

type SlotMode string

const (
	SlotRunning  SlotMode = "running"
	SlotQueued   SlotMode = "queued"
	SlotRejected SlotMode = "rejected"
)

// SlotResult is the tagged outcome of RequestSlot. TicketID is set for
// running and queued, Position (1-based) for queued, Reason for rejected.
type SlotResult struct {
	Mode     SlotMode
	TicketID string
	Position int
	Reason   string
}

type PromoteMode string

const (
	PromoteRunning PromoteMode = "running"
	PromoteQueued  PromoteMode = "queued"
	PromoteNone    PromoteMode = "none"
)

// PromoteResult is the tagged outcome of PromoteForConversation. TicketID
// and Prompt are set for running, Position for queued.
type PromoteResult struct {
	Mode     PromoteMode
	TicketID string
	Prompt   string
	Position int
}

// Gate enforces the slot invariants. Every public operation runs as one
// atomic mutation of the gate document, so concurrent requests are applied
// strictly one after another.
type Gate struct {
	store *docstore.Store[model.GateDocument]
	cfg   Config
	now   func() time.Time
}

func New(store *docstore.Store[model.GateDocument], cfg Config) *Gate {
	return &Gate{
		store: store,
		cfg:   cfg,
		now:   time.Now,
	}
}

// SetNowFunc overrides the clock for testing.
func (g *Gate) SetNowFunc(now func() time.Time) {
	g.now = now
}

// RequestSlot admits, queues, or rejects one execution attempt for a
// conversation. Re-requesting while running returns the existing ticket and
// ignores the new prompt; re-requesting while queued updates the stored
// prompt in place without moving the entry.
func (g *Gate) RequestSlot(ctx context.Context, userID, conversationID, prompt string) (SlotResult, error) {
	var res SlotResult
	err := g.store.Mutate(ctx, func(doc *model.GateDocument) error {
		doc.Normalize()
		g.reclaimExpired(doc)

		for _, item := range doc.Running {
			if item.UserID == userID && item.ConversationID == conversationID {
				res = SlotResult{Mode: SlotRunning, TicketID: item.TicketID}
				return nil
			}
		}

		for i := range doc.Queue {
			if doc.Queue[i].UserID == userID && doc.Queue[i].ConversationID == conversationID {
				doc.Queue[i].Prompt = prompt
				res = SlotResult{Mode: SlotQueued, TicketID: doc.Queue[i].TicketID, Position: i + 1}
				return nil
			}
		}

		// Admit immediately only while nobody is waiting: capacity freed
		// while the queue is non-empty belongs to the queue head.
		if g.hasRunningCapacity(doc, userID) && len(doc.Queue) == 0 {
			ticketID, err := model.GenerateID(model.IDTypeGate)
			if err != nil {
				return errors.Wrap(err, "generate ticket id")
			}
			doc.Running[ticketID] = model.RunningTicket{
				TicketID:       ticketID,
				UserID:         userID,
				ConversationID: conversationID,
				Prompt:         prompt,
				StartedAt:      g.now().UTC().Format(time.RFC3339),
			}
			slog.Info("execution slot admitted", "ticket_id", ticketID, "user_id", userID, "conversation_id", conversationID)
			res = SlotResult{Mode: SlotRunning, TicketID: ticketID}
			return nil
		}

		if g.queueCountForUser(doc, userID) >= max(g.cfg.MaxQueuePerUser, 1) {
			res = SlotResult{Mode: SlotRejected, Reason: ReasonQueueLimitReached}
			return nil
		}

		ticketID, err := model.GenerateID(model.IDTypeGate)
		if err != nil {
			return errors.Wrap(err, "generate ticket id")
		}
		doc.Queue = append(doc.Queue, model.QueuedTicket{
			TicketID:       ticketID,
			UserID:         userID,
			ConversationID: conversationID,
			Prompt:         prompt,
			QueuedAt:       g.now().UTC().Format(time.RFC3339),
		})
		slog.Info("execution slot queued", "ticket_id", ticketID, "user_id", userID, "position", len(doc.Queue))
		res = SlotResult{Mode: SlotQueued, TicketID: ticketID, Position: len(doc.Queue)}
		return nil
	})
	return res, err
}

// PromoteForConversation moves this conversation's queued ticket to running
// if it is at the queue head and capacity exists. A non-head entry, or one
// whose user lacks capacity, keeps its position with no side effect.
func (g *Gate) PromoteForConversation(ctx context.Context, userID, conversationID string) (PromoteResult, error) {
	res := PromoteResult{Mode: PromoteNone}
	err := g.store.Mutate(ctx, func(doc *model.GateDocument) error {
		doc.Normalize()
		g.reclaimExpired(doc)

		idx := -1
		for i := range doc.Queue {
			if doc.Queue[i].UserID == userID && doc.Queue[i].ConversationID == conversationID {
				idx = i
				break
			}
		}
		if idx < 0 {
			res = PromoteResult{Mode: PromoteNone}
			return nil
		}
		if idx > 0 || !g.hasRunningCapacity(doc, userID) {
			res = PromoteResult{Mode: PromoteQueued, Position: idx + 1}
			return nil
		}

		next := doc.Queue[0]
		doc.Queue = doc.Queue[1:]
		doc.Running[next.TicketID] = model.RunningTicket{
			TicketID:       next.TicketID,
			UserID:         next.UserID,
			ConversationID: next.ConversationID,
			Prompt:         next.Prompt,
			StartedAt:      g.now().UTC().Format(time.RFC3339),
		}
		slog.Info("queued ticket promoted", "ticket_id", next.TicketID, "user_id", next.UserID, "conversation_id", next.ConversationID)
		res = PromoteResult{Mode: PromoteRunning, TicketID: next.TicketID, Prompt: next.Prompt}
		return nil
	})
	return res, err
}

// CancelForConversation removes any queued entry for the conversation and
// reports whether one was removed. Running tickets are not touched.
func (g *Gate) CancelForConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	removed := false
	err := g.store.Mutate(ctx, func(doc *model.GateDocument) error {
		doc.Normalize()
		kept := doc.Queue[:0]
		for _, item := range doc.Queue {
			if item.UserID == userID && item.ConversationID == conversationID {
				removed = true
				slog.Info("queued ticket canceled", "ticket_id", item.TicketID, "user_id", userID)
				continue
			}
			kept = append(kept, item)
		}
		doc.Queue = kept
		return nil
	})
	return removed, err
}

// QueuePosition returns the conversation's 1-based queue position, running
// TTL reclamation first so a stale answer is corrected.
func (g *Gate) QueuePosition(ctx context.Context, userID, conversationID string) (int, bool, error) {
	position := 0
	found := false
	err := g.store.Mutate(ctx, func(doc *model.GateDocument) error {
		doc.Normalize()
		g.reclaimExpired(doc)
		for i := range doc.Queue {
			if doc.Queue[i].UserID == userID && doc.Queue[i].ConversationID == conversationID {
				position = i + 1
				found = true
				return nil
			}
		}
		return nil
	})
	return position, found, err
}

// Finish releases a running slot. Removing an absent ticket is a no-op, so
// callers can (and must) invoke this unconditionally in a deferred cleanup.
func (g *Gate) Finish(ctx context.Context, ticketID string) error {
	return g.store.Mutate(ctx, func(doc *model.GateDocument) error {
		doc.Normalize()
		if _, ok := doc.Running[ticketID]; ok {
			slog.Info("execution slot released", "ticket_id", ticketID)
		}
		delete(doc.Running, ticketID)
		g.reclaimExpired(doc)
		return nil
	})
}

// reclaimExpired drops running tickets whose start time is unparseable or
// older than the TTL. Runs opportunistically inside every gate operation;
// there is no dedicated timer.
func (g *Gate) reclaimExpired(doc *model.GateDocument) {
	ttl := g.cfg.RunningTTL
	if ttl < time.Minute {
		ttl = time.Minute
	}
	now := g.now()
	for ticketID, item := range doc.Running {
		startedAt, err := time.Parse(time.RFC3339, item.StartedAt)
		if err != nil {
			slog.Warn("reclaiming ticket with corrupt start time", "ticket_id", ticketID, "started_at", item.StartedAt)
			delete(doc.Running, ticketID)
			continue
		}
		if now.Sub(startedAt) > ttl {
			slog.Warn("reclaiming expired ticket", "ticket_id", ticketID, "user_id", item.UserID, "started_at", item.StartedAt)
			delete(doc.Running, ticketID)
		}
	}
}

func (g *Gate) hasRunningCapacity(doc *model.GateDocument, userID string) bool {
	return g.runningCountForUser(doc, userID) < max(g.cfg.MaxRunningPerUser, 1) &&
		len(doc.Running) < max(g.cfg.MaxRunningGlobal, 1)
}

func (g *Gate) runningCountForUser(doc *model.GateDocument, userID string) int {
	count := 0
	for _, item := range doc.Running {
		if item.UserID == userID {
			count++
		}
	}
	return count
}

func (g *Gate) queueCountForUser(doc *model.GateDocument, userID string) int {
	count := 0
	for _, item := range doc.Queue {
		if item.UserID == userID {
			count++
		}
	}
	return count
}

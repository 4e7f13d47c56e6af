// Package intent classifies user utterances with table-driven phrase
// matching: greeting, task request, confirmation, rejection, cancellation,
// and queue-status queries.
package intent

import (
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"
)

var whitespace = regexp.MustCompile(`\s+`)

// Classifier evaluates prompts against a Rules table. The table can be
// swapped at runtime (hot reload), so access goes through a RWMutex.
type Classifier struct {
	mu    sync.RWMutex
	rules Rules
}

func NewClassifier(rules Rules) *Classifier {
	return &Classifier{rules: rules}
}

// Rules returns the currently active phrase tables.
func (c *Classifier) Rules() Rules {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rules
}

// SetRules atomically replaces the active phrase tables.
func (c *Classifier) SetRules(rules Rules) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rules = rules
}

// normalize collapses whitespace runs, trims, and lowercases so the ASCII
// entries in the tables ("hi", "hello") match case-insensitively.
func normalize(text string) string {
	return strings.ToLower(strings.TrimSpace(whitespace.ReplaceAllString(text, " ")))
}

func containsAny(text string, words []string) bool {
	for _, w := range words {
		if w != "" && strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// IsGreetingOrSmallTalk reports whether the prompt is a greeting, a
// capability question, or empty. Greeting keywords only count in short
// messages so "你好，帮我部署服务" still reads as a task.
func (c *Classifier) IsGreetingOrSmallTalk(prompt string) bool {
	return isGreeting(normalize(prompt), c.Rules())
}

func isGreeting(text string, r Rules) bool {
	if text == "" {
		return true
	}
	if containsAny(text, r.Greetings) && utf8.RuneCountInString(text) <= 8 {
		return true
	}
	return containsAny(text, r.Capabilities)
}

// IsTaskIntent reports whether the prompt asks for work to be done: an
// explicit task marker, an action verb paired with a request prefix, or an
// action verb in a long enough message. Greetings never count as tasks.
func (c *Classifier) IsTaskIntent(prompt string) bool {
	r := c.Rules()
	text := normalize(prompt)
	if text == "" || isGreeting(text, r) {
		return false
	}
	length := utf8.RuneCountInString(text)

	explicit := containsAny(text, r.TaskMarkers)
	for _, prefix := range r.TaskMarkerPrefixes {
		if prefix != "" && strings.HasPrefix(text, prefix) {
			explicit = true
		}
	}
	if explicit && length >= 6 {
		return true
	}

	hasAction := containsAny(text, r.Actions)
	hasPrefix := containsAny(text, r.RequestPrefixes)
	if hasAction && hasPrefix {
		return true
	}
	return hasAction && length >= 10
}

// IsConfirmExecution reports whether the prompt confirms a pending task:
// an explicit confirm phrase, a bare "确认"/"执行", or the anchor word
// together with a companion like "马上" or "继续".
func (c *Classifier) IsConfirmExecution(prompt string) bool {
	r := c.Rules()
	text := normalize(prompt)
	if containsAny(text, r.ConfirmPhrases) {
		return true
	}
	for _, exact := range r.ConfirmExact {
		if text == exact {
			return true
		}
	}
	if r.ConfirmAnchor != "" && strings.Contains(text, r.ConfirmAnchor) {
		return containsAny(text, r.ConfirmCompanions)
	}
	return false
}

// IsRejectExecution reports whether the prompt declines a pending task.
func (c *Classifier) IsRejectExecution(prompt string) bool {
	return containsAny(normalize(prompt), c.Rules().RejectPhrases)
}

// IsCancelExecution reports whether the prompt asks to drop a queued task.
func (c *Classifier) IsCancelExecution(prompt string) bool {
	return containsAny(normalize(prompt), c.Rules().CancelPhrases)
}

// IsQueueQuery reports whether the prompt asks about queue position or
// task progress.
func (c *Classifier) IsQueueQuery(prompt string) bool {
	return containsAny(normalize(prompt), c.Rules().QueueQueryPhrases)
}

// ShouldAutoDispatch decides whether an assistant reply leaves room to
// dispatch immediately. A reply that asks for clarification first, or asks
// two or more questions, blocks auto-dispatch. An empty reply does not.
func (c *Classifier) ShouldAutoDispatch(reply string) bool {
	r := c.Rules()
	text := normalize(reply)
	if text == "" {
		return true
	}
	if containsAny(text, r.ClarifyHints) {
		return false
	}
	questions := strings.Count(text, "?") + strings.Count(text, "？")
	return questions < 2
}

// HasConfirmInstruction reports whether an assistant reply tells the user
// how to confirm, meaning the gateway should wait instead of dispatching.
func (c *Classifier) HasConfirmInstruction(reply string) bool {
	return containsAny(normalize(reply), c.Rules().ConfirmInstructions)
}

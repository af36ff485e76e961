// Package commands is the outbound channel from the voice session to the
// ordering UI. The UI polls and drains it.
package commands

import (
	"sync"
	"time"
)

// Actions enqueued by the dialogue.
const (
	ActionMenuMentioned  = "menu_mentioned"
	ActionVoiceChatEnded = "voice_chat_ended"
)

// DefaultCapacity bounds the queue when the UI stops polling.
const DefaultCapacity = 256

// Command is one queued action.
type Command struct {
	Action    string         `json:"action"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp float64        `json:"timestamp"`
}

// Queue is a thread-safe FIFO. When full, the oldest command is discarded.
type Queue struct {
	mu       sync.Mutex
	items    []Command
	capacity int
	now      func() time.Time
}

// New creates a queue holding at most capacity commands. A non-positive
// capacity selects [DefaultCapacity].
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Queue{capacity: capacity, now: time.Now}
}

// Enqueue appends a command stamped with the current time in Unix seconds.
func (q *Queue) Enqueue(action string, data map[string]any) Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	c := Command{
		Action:    action,
		Data:      data,
		Timestamp: float64(q.now().UnixMicro()) / 1e6,
	}
	if len(q.items) == q.capacity {
		q.items = q.items[1:]
	}
	q.items = append(q.items, c)
	return c
}

// Drain returns every queued command in FIFO order and empties the queue.
func (q *Queue) Drain() []Command {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	if out == nil {
		out = []Command{}
	}
	return out
}

// Len returns the number of queued commands.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

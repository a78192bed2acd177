package reminder

import (
	"context"
	"sync"

	"github.com/asaskevich/EventBus"
)

const defaultHistorySize = 50

// History keeps the most recent published reminders for the admin API.
type History struct {
	mu    sync.Mutex
	items []Reminder
	size  int
}

func NewHistory(size int) *History {
	if size <= 0 {
		size = defaultHistorySize
	}
	return &History{size: size}
}

func (h *History) Subscribe(bus EventBus.Bus) error {
	return bus.Subscribe(TopicReminder, h.record)
}

func (h *History) record(_ context.Context, r Reminder) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, r)
	if len(h.items) > h.size {
		h.items = h.items[len(h.items)-h.size:]
	}
}

// Recent returns the stored reminders, newest first.
func (h *History) Recent() []Reminder {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]Reminder, len(h.items))
	for i, r := range h.items {
		out[len(h.items)-1-i] = r
	}
	return out
}

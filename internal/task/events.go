package task

import (
	"strings"
	"sync"
	"time"

	"kiri/internal/lane"
)

// Event is one state transition of a classification run.
type Event struct {
	ProjectID    string    `json:"project_id"`
	JobID        string    `json:"job_id,omitempty"`
	State        State     `json:"state"`
	Lane         lane.Lane `json:"lane,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	ExecutionURL string    `json:"execution_url,omitempty"`
	At           time.Time `json:"at"`
}

// Hub fans run events out to per-project watchers. Slow watchers drop
// events rather than block the run.
type Hub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[string]map[uint64]chan Event
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]chan Event)}
}

// Subscribe registers a watcher for projectID. The returned cancel func
// unregisters it and closes the channel.
func (h *Hub) Subscribe(projectID string, size int) (<-chan Event, func()) {
	if size <= 0 {
		size = 1
	}
	key := strings.TrimSpace(projectID)
	ch := make(chan Event, size)

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if h.subs[key] == nil {
		h.subs[key] = make(map[uint64]chan Event)
	}
	h.subs[key][id] = ch
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[key], id)
			if len(h.subs[key]) == 0 {
				delete(h.subs, key)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Publish delivers ev to every watcher of ev.ProjectID.
func (h *Hub) Publish(ev Event) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.subs[strings.TrimSpace(ev.ProjectID)] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Watchers reports how many watchers projectID has.
func (h *Hub) Watchers(projectID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[strings.TrimSpace(projectID)])
}

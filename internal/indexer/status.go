package indexer

import (
	"sync"

	"github.com/google/uuid"
)

// Status is the externally observable ingestion state of one document.
type Status struct {
	IsIndexing   bool   `json:"is_indexing"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// StatusEvent is published on every status change.
type StatusEvent struct {
	DocumentID uuid.UUID `json:"document_id"`
	Status     Status    `json:"status"`
}

const subscriberBuffer = 32

// StatusBoard keeps per-document statuses and fans changes out to subscribers.
// Slow subscribers miss events rather than block publishers.
type StatusBoard struct {
	mu       sync.RWMutex
	statuses map[uuid.UUID]Status
	subs     map[int]chan StatusEvent
	nextSub  int
}

// NewStatusBoard returns an empty board.
func NewStatusBoard() *StatusBoard {
	return &StatusBoard{
		statuses: make(map[uuid.UUID]Status),
		subs:     make(map[int]chan StatusEvent),
	}
}

// Get returns the status of id; unknown documents are idle with no error.
func (b *StatusBoard) Get(id uuid.UUID) Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.statuses[id]
}

// Snapshot returns a copy of all tracked statuses.
func (b *StatusBoard) Snapshot() map[uuid.UUID]Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[uuid.UUID]Status, len(b.statuses))
	for id, st := range b.statuses {
		out[id] = st
	}
	return out
}

// Set stores st for id and notifies subscribers.
func (b *StatusBoard) Set(id uuid.UUID, st Status) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !st.IsIndexing && st.ErrorMessage == "" {
		delete(b.statuses, id)
	} else {
		b.statuses[id] = st
	}
	b.publishLocked(StatusEvent{DocumentID: id, Status: st})
}

// Remove forgets id.
func (b *StatusBoard) Remove(id uuid.UUID) {
	b.Set(id, Status{})
}

func (b *StatusBoard) publishLocked(ev StatusEvent) {
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel of status events and a function that unsubscribes and closes it.
func (b *StatusBoard) Subscribe() (<-chan StatusEvent, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSub
	b.nextSub++
	ch := make(chan StatusEvent, subscriberBuffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

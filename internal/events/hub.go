// Package events fans out collection progress updates to live subscribers.
package events

import (
	"log/slog"
	"sync"

	"github.com/terra-clan/office-hub/internal/models"
)

// Progress is pushed to subscribers after a payment commits
type Progress struct {
	Type               string        `json:"type"`
	CollectionID       string        `json:"collection_id"`
	CurrentAmount      models.Money  `json:"current_amount"`
	TargetAmount       *models.Money `json:"target_amount"`
	ProgressPercentage float64       `json:"progress_percentage"`
	Revision           int64         `json:"revision"`
}

// NewProgress builds the progress message for c
func NewProgress(c models.Collection) Progress {
	return Progress{
		Type:               "progress",
		CollectionID:       c.ID,
		CurrentAmount:      c.CurrentAmount,
		TargetAmount:       c.TargetAmount,
		ProgressPercentage: models.ProgressPercentage(c.CurrentAmount, c.TargetAmount),
		Revision:           c.Revision,
	}
}

// Ordered passes progress frames of one collection in revision order.
// Payments commit concurrently and may be published out of order; a frame
// older than one already passed is dropped. Not safe for concurrent use.
type Ordered struct {
	last int64
	seen bool
}

// Accept reports whether p is newer than every frame accepted so far
func (o *Ordered) Accept(p Progress) bool {
	if o.seen && p.Revision <= o.last {
		return false
	}
	o.last, o.seen = p.Revision, true
	return true
}

// Hub keeps per-collection subscriber sets. Publishing never blocks: a
// subscriber whose buffer is full misses the update.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
}

// NewHub creates a hub with the given per-subscriber buffer
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), buffer: buffer}
}

// Subscription receives updates for one collection until closed
type Subscription struct {
	hub          *Hub
	collectionID string
	ch           chan Progress
	once         sync.Once
}

// C returns the update channel. It is closed by Close.
func (s *Subscription) C() <-chan Progress {
	return s.ch
}

// Close unsubscribes and closes the channel
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		defer s.hub.mu.Unlock()
		if set, ok := s.hub.subs[s.collectionID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(s.hub.subs, s.collectionID)
			}
		}
		close(s.ch)
	})
}

// Subscribe registers for updates of collectionID
func (h *Hub) Subscribe(collectionID string) *Subscription {
	sub := &Subscription{hub: h, collectionID: collectionID, ch: make(chan Progress, h.buffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[collectionID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[collectionID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Subscribers returns the number of live subscriptions for collectionID
func (h *Hub) Subscribers(collectionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[collectionID])
}

// PublishProgress implements ledger.ProgressPublisher
func (h *Hub) PublishProgress(c models.Collection) {
	msg := NewProgress(c)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.subs[c.ID] {
		select {
		case sub.ch <- msg:
		default:
			slog.Debug("dropping progress update for slow subscriber", "collection_id", c.ID)
		}
	}
}

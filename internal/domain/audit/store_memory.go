package audit

import (
	"context"
	"slices"
	"strconv"
	"sync"
)

type MemoryStore struct {
	mu     sync.Mutex
	events []Event
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Insert(_ context.Context, evt Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evt.ID = strconv.Itoa(len(m.events) + 1)
	m.events = append(m.events, evt)
	return nil
}

func (m *MemoryStore) List(_ context.Context, filter Filter, limit int) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []Event{}
	for _, evt := range slices.Backward(m.events) {
		if len(out) == limit {
			break
		}
		if filter.matches(evt) {
			out = append(out, evt)
		}
	}
	return out, nil
}

func (f Filter) matches(evt Event) bool {
	return (f.CompanyID == "" || f.CompanyID == evt.CompanyID) &&
		(f.ActorID == "" || f.ActorID == evt.ActorID) &&
		(f.Action == "" || f.Action == evt.Action) &&
		(f.Outcome == "" || f.Outcome == evt.Outcome)
}

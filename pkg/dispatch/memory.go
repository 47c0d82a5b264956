package dispatch

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStores bundles in-memory implementations of the three store
// interfaces over shared state, for tests and local development. Values are
// cloned on the way in and out so callers cannot mutate stored state, and
// counter updates happen under the store lock, matching the atomic-increment
// contract.
type MemoryStores struct {
	Subscriptions *MemorySubscriptionStore
	Events        *MemoryEventStore
	Deliveries    *MemoryDeliveryStore
}

// NewMemoryStores creates an empty set of in-memory stores.
func NewMemoryStores() *MemoryStores {
	state := &memoryState{
		subscriptions: make(map[uuid.UUID]*Subscription),
		events:        make(map[uuid.UUID]*Event),
	}
	return &MemoryStores{
		Subscriptions: &MemorySubscriptionStore{state: state},
		Events:        &MemoryEventStore{state: state},
		Deliveries:    &MemoryDeliveryStore{state: state},
	}
}

type memoryState struct {
	mu            sync.RWMutex
	subscriptions map[uuid.UUID]*Subscription
	events        map[uuid.UUID]*Event
	deliveries    []*Delivery
}

func cloneSubscription(s *Subscription) *Subscription {
	out := *s
	out.EventTypes = append([]EventType(nil), s.EventTypes...)
	if s.Headers != nil {
		out.Headers = make(map[string]string, len(s.Headers))
		for k, v := range s.Headers {
			out.Headers[k] = v
		}
	}
	return &out
}

func cloneEvent(e *Event) *Event {
	out := *e
	out.Payload = append([]byte(nil), e.Payload...)
	return &out
}

// MemorySubscriptionStore implements SubscriptionStore.
type MemorySubscriptionStore struct {
	state *memoryState
}

func (m *MemorySubscriptionStore) Create(ctx context.Context, sub *Subscription) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.subscriptions[sub.ID] = cloneSubscription(sub)
	return nil
}

func (m *MemorySubscriptionStore) Update(ctx context.Context, sub *Subscription) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if _, ok := m.state.subscriptions[sub.ID]; !ok {
		return ErrSubscriptionNotFound
	}
	m.state.subscriptions[sub.ID] = cloneSubscription(sub)
	return nil
}

func (m *MemorySubscriptionStore) Delete(ctx context.Context, id uuid.UUID) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	if _, ok := m.state.subscriptions[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(m.state.subscriptions, id)
	return nil
}

func (m *MemorySubscriptionStore) Get(ctx context.Context, id uuid.UUID) (*Subscription, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	sub, ok := m.state.subscriptions[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	return cloneSubscription(sub), nil
}

func (m *MemorySubscriptionStore) ListByUser(ctx context.Context, userID uuid.UUID) ([]*Subscription, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	var out []*Subscription
	for _, sub := range m.state.subscriptions {
		if sub.UserID == userID {
			out = append(out, cloneSubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemorySubscriptionStore) ListActiveForEvent(ctx context.Context, t EventType) ([]*Subscription, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	var out []*Subscription
	for _, sub := range m.state.subscriptions {
		if sub.Status == SubscriptionActive && sub.Matches(t) {
			out = append(out, cloneSubscription(sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemorySubscriptionStore) RecordSuccess(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	sub, ok := m.state.subscriptions[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.TotalDelivered++
	t := at
	sub.LastDeliveredAt = &t
	sub.UpdatedAt = at
	return nil
}

func (m *MemorySubscriptionStore) RecordFailure(ctx context.Context, id uuid.UUID, at time.Time, deliveryErr string) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	sub, ok := m.state.subscriptions[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.TotalFailed++
	t := at
	sub.LastFailedAt = &t
	sub.LastError = &deliveryErr
	sub.UpdatedAt = at
	return nil
}

// MemoryEventStore implements EventStore.
type MemoryEventStore struct {
	state *memoryState
}

func (m *MemoryEventStore) Create(ctx context.Context, event *Event) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	m.state.events[event.ID] = cloneEvent(event)
	return nil
}

func (m *MemoryEventStore) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	event, ok := m.state.events[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return cloneEvent(event), nil
}

func (m *MemoryEventStore) ListDue(ctx context.Context, limit int, now time.Time) ([]*Event, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	var due []*Event
	for _, event := range m.state.events {
		if (event.Status == EventPending || event.Status == EventRetrying) && !event.NextAttemptAt.After(now) {
			due = append(due, cloneEvent(event))
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *MemoryEventStore) MarkDelivered(ctx context.Context, id uuid.UUID, at time.Time) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	event, ok := m.state.events[id]
	if !ok {
		return ErrEventNotFound
	}
	event.Status = EventDelivered
	t := at
	event.ProcessedAt = &t
	event.LastError = nil
	return nil
}

func (m *MemoryEventStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string, at time.Time) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	event, ok := m.state.events[id]
	if !ok {
		return ErrEventNotFound
	}
	event.Status = EventFailed
	t := at
	event.ProcessedAt = &t
	event.LastError = &reason
	return nil
}

func (m *MemoryEventStore) ScheduleRetry(ctx context.Context, id uuid.UUID, attempts int, nextAttemptAt time.Time, reason string) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	event, ok := m.state.events[id]
	if !ok {
		return ErrEventNotFound
	}
	event.Status = EventRetrying
	event.Attempts = attempts
	event.NextAttemptAt = nextAttemptAt
	event.LastError = &reason
	return nil
}

func (m *MemoryEventStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	var removed int64
	for id, event := range m.state.events {
		if (event.Status == EventDelivered || event.Status == EventFailed) && event.CreatedAt.Before(cutoff) {
			delete(m.state.events, id)
			removed++
		}
	}
	return removed, nil
}

// MemoryDeliveryStore implements DeliveryStore.
type MemoryDeliveryStore struct {
	state *memoryState
}

func (m *MemoryDeliveryStore) Create(ctx context.Context, delivery *Delivery) error {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	d := *delivery
	m.state.deliveries = append(m.state.deliveries, &d)
	return nil
}

func (m *MemoryDeliveryStore) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*Delivery, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	var out []*Delivery
	for _, d := range m.state.deliveries {
		if d.EventID == eventID {
			copied := *d
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *MemoryDeliveryStore) ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, limit int) ([]*Delivery, error) {
	m.state.mu.RLock()
	defer m.state.mu.RUnlock()
	var out []*Delivery
	for i := len(m.state.deliveries) - 1; i >= 0; i-- {
		if m.state.deliveries[i].SubscriptionID == subscriptionID {
			copied := *m.state.deliveries[i]
			out = append(out, &copied)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *MemoryDeliveryStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	m.state.mu.Lock()
	defer m.state.mu.Unlock()
	kept := m.state.deliveries[:0]
	var removed int64
	for _, d := range m.state.deliveries {
		if d.CompletedAt.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	m.state.deliveries = kept
	return removed, nil
}

package pgstore

import (
	"github.com/jackc/pgx/v5/pgxpool"
)

// Stores bundles the PostgreSQL implementations of the dispatch store
// interfaces over one shared pool.
type Stores struct {
	Subscriptions *SubscriptionStore
	Events        *EventStore
	Deliveries    *DeliveryStore
}

// New creates the store set over pool. The pool is shared; closing it is the
// caller's responsibility.
func New(pool *pgxpool.Pool) *Stores {
	return &Stores{
		Subscriptions: NewSubscriptionStore(pool),
		Events:        NewEventStore(pool),
		Deliveries:    NewDeliveryStore(pool),
	}
}

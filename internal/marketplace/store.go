package marketplace

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
)

// Tx is one atomic unit of work against the ledger. Nothing written through it
// is visible to others, and no published event leaves, until WithTx returns nil.
//
// Lookups return an error wrapping ErrNotFound when the row does not exist.
type Tx interface {
	// LockClient locks the client row for the rest of the transaction, which
	// serialises every purchase made by that client.
	LockClient(ctx context.Context, clientID int64) (Contact, error)
	CountPendingOrders(ctx context.Context, clientID int64) (int, error)
	HasCard(ctx context.Context, role Role, actorID int64) (bool, error)
	Contact(ctx context.Context, role Role, actorID int64) (Contact, error)

	// GetGig reads a gig under a share lock; LockGig takes it exclusively.
	GetGig(ctx context.Context, gigID int64) (Gig, error)
	LockGig(ctx context.Context, gigID int64) (Gig, error)
	InsertGig(ctx context.Context, g Gig) (Gig, error)
	UpdateGig(ctx context.Context, g Gig) error
	DeleteGig(ctx context.Context, gigID int64) error
	CountActiveOrdersForGig(ctx context.Context, gigID int64) (int, error)

	InsertOrder(ctx context.Context, o Order) (int64, error)
	InsertPayment(ctx context.Context, orderID int64, amount decimal.Decimal) error
	LockOrder(ctx context.Context, orderID int64) (OrderRecord, error)
	SetOrderStatus(ctx context.Context, orderID int64, status OrderStatus) error
	// Archive appends the history row for rec with the given final status and
	// removes the live order and its payment.
	Archive(ctx context.Context, rec OrderRecord, final OrderStatus) error
	InsertReview(ctx context.Context, r Review) error

	Publish(ctx context.Context, ev alerts.Event) error
}

// Reader serves the projections. It never writes.
type Reader interface {
	ListGigs(ctx context.Context) ([]GigView, error)
	GetGigView(ctx context.Context, gigID int64) (GigView, error)
	ListFreelancerGigs(ctx context.Context, freelancerID int64) ([]GigView, error)
	CountFreelancerGigs(ctx context.Context, freelancerID int64) (int, error)

	ListClientOrders(ctx context.Context, clientID int64, status OrderStatus) ([]OrderView, error)
	ListFreelancerOrders(ctx context.Context, freelancerID int64, status OrderStatus) ([]OrderView, error)
	ClientOrder(ctx context.Context, clientID, orderID int64) (OrderView, error)
	FreelancerOrder(ctx context.Context, freelancerID, orderID int64) (OrderView, error)
	ClientHistory(ctx context.Context, clientID int64) ([]HistoryView, error)
	FreelancerHistory(ctx context.Context, freelancerID int64) ([]HistoryView, error)
	FreelancerReviews(ctx context.Context, freelancerID int64) ([]ReviewView, error)
}

type Store interface {
	Reader
	// WithTx runs fn in a transaction. It commits when fn returns nil and
	// rolls back on any error, panic or context expiry.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

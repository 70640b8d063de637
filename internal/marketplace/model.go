package marketplace

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the single-character code stored in orders.order_status and
// gig_client_history.order_status.
type OrderStatus string

const (
	StatusPending   OrderStatus = "P"
	StatusCompleted OrderStatus = "C"
	StatusCancelled OrderStatus = "F"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Active reports whether an order in this status still blocks edits to its gig.
func (s OrderStatus) Active() bool {
	return s == StatusPending || s == StatusCompleted
}

type GigType string

const (
	GigHourly GigType = "hourly"
	GigFixed  GigType = "fixed"
)

func (t GigType) Valid() bool {
	return t == GigHourly || t == GigFixed
}

type Role string

const (
	RoleClient     Role = "client"
	RoleFreelancer Role = "freelancer"
)

// Gig is a service offered by one freelancer.
type Gig struct {
	ID           int64           `json:"gig_id"`
	FreelancerID int64           `json:"freelancer_id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `json:"price"`
	Type         GigType         `json:"gig_type"`
	CreatedAt    time.Time       `json:"created_at"`
}

// Order is a live purchase. It only exists while Pending or Completed.
type Order struct {
	ID           int64       `json:"order_id"`
	GigID        int64       `json:"gig_id"`
	FreelancerID int64       `json:"freelancer_id"`
	ClientID     int64       `json:"client_id"`
	Status       OrderStatus `json:"order_status"`
	Description  string      `json:"description"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Payment is owed for exactly one live order.
type Payment struct {
	ID      int64           `json:"payment_id"`
	OrderID int64           `json:"order_id"`
	Amount  decimal.Decimal `json:"amount_to_pay"`
}

// OrderRecord is an order locked for a transition, joined with the data the
// transition needs.
type OrderRecord struct {
	Order
	Amount   decimal.Decimal
	GigTitle string
	// GigOwnerID is the current owner of the gig, which is what Submit checks.
	GigOwnerID int64
}

// HistoryRecord is the permanent trace of a retired order.
type HistoryRecord struct {
	ID           int64           `json:"gch_id"`
	OrderID      int64           `json:"order_id"`
	GigID        *int64          `json:"gig_id"`
	ClientID     int64           `json:"client_id"`
	FreelancerID int64           `json:"freelancer_id"`
	Amount       decimal.Decimal `json:"amount_to_pay"`
	Status       OrderStatus     `json:"order_status"`
	ArchivedAt   time.Time       `json:"archived_at"`
}

type Review struct {
	ID           int64     `json:"review_id"`
	Text         string    `json:"review_text"`
	ClientID     int64     `json:"client_id"`
	FreelancerID int64     `json:"freelancer_id"`
	CreatedAt    time.Time `json:"created_at"`
}

// Contact is what notifications need to know about an actor.
type Contact struct {
	ID    int64
	Name  string
	Email string
}

// Read-side projections.

type GigView struct {
	ID             int64           `json:"gig_id"`
	Title          string          `json:"title"`
	Description    string          `json:"description,omitempty"`
	Price          decimal.Decimal `json:"price"`
	Type           GigType         `json:"gig_type"`
	FreelancerID   int64           `json:"freelancer_id"`
	FreelancerName string          `json:"freelancer_name"`
	CreatedAt      time.Time       `json:"created_at"`
}

type OrderView struct {
	OrderID        int64           `json:"order_id"`
	Status         OrderStatus     `json:"order_status"`
	GigID          int64           `json:"gig_id"`
	GigTitle       string          `json:"gig_title"`
	FreelancerName string          `json:"freelancer_name,omitempty"`
	ClientName     string          `json:"client_name,omitempty"`
	Amount         decimal.Decimal `json:"amount_to_pay"`
	Description    string          `json:"description,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

type HistoryView struct {
	OrderID        int64           `json:"order_id"`
	GigTitle       string          `json:"gig_title"`
	FreelancerName string          `json:"freelancer_name,omitempty"`
	ClientName     string          `json:"client_name,omitempty"`
	Amount         decimal.Decimal `json:"amount_to_pay"`
	Status         OrderStatus     `json:"order_status"`
	ArchivedAt     time.Time       `json:"archived_at"`
}

type ReviewView struct {
	Text       string    `json:"review_text"`
	ClientName string    `json:"fullname"`
	CreatedAt  time.Time `json:"created_at"`
}

// Placeholders shown when a joined row no longer exists.
const (
	DeletedGigTitle = "This gig has been deleted"
	DeletedUserName = "This user has been deleted"
)

// maxMoney is one cent above what NUMERIC(12,2) can hold.
var maxMoney = decimal.New(1, 10)

// checkMoney accepts positive amounts with at most two decimal places that
// fit the money columns.
func checkMoney(d decimal.Decimal, what string) error {
	if !d.IsPositive() {
		return newError(ErrValidation, "%s must be greater than zero", what)
	}
	if !d.Equal(d.Round(2)) {
		return newError(ErrValidation, "%s cannot have more than two decimal places", what)
	}
	if d.GreaterThanOrEqual(maxMoney) {
		return newError(ErrValidation, "%s must be less than %s", what, maxMoney.String())
	}
	return nil
}

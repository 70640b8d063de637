package alerts

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Event kinds
const (
	KindOrderPlaced    = "order:placed"
	KindOrderDelivered = "order:delivered"
	KindOrderCancelled = "order:cancelled"
	KindOrderCompleted = "order:completed"
)

// TaskDeliverEmail is the asynq task type carrying one Event.
const TaskDeliverEmail = "email:deliver"

// QueueEmails is the asynq queue deliveries are enqueued on.
const QueueEmails = "emails"

// EmailEnvelope is what a mailer needs.
type EmailEnvelope struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// Event is published when an order changes state and becomes one email.
type Event struct {
	ID        uuid.UUID `json:"id"`
	Kind      string    `json:"kind"`
	OrderID   int64     `json:"order_id"`
	EmailEnvelope
	CreatedAt time.Time `json:"created_at"`
}

func NewEvent(kind string, orderID int64, env EmailEnvelope) Event {
	return Event{
		ID:            uuid.New(),
		Kind:          kind,
		OrderID:       orderID,
		EmailEnvelope: env,
		CreatedAt:     time.Now().UTC(),
	}
}

// DecodeEvent parses a payload produced by Event.Encode.
func DecodeEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.To == "" {
		return Event{}, fmt.Errorf("decode event %s: missing recipient", ev.ID)
	}
	return ev, nil
}

func (e Event) Encode() ([]byte, error) {
	return json.Marshal(e)
}

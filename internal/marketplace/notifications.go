package marketplace

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
)

func orderPlacedEvent(orderID int64, freelancer, client Contact, gigTitle string, amount decimal.Decimal) alerts.Event {
	return alerts.NewEvent(alerts.KindOrderPlaced, orderID, alerts.EmailEnvelope{
		To:      freelancer.Email,
		Subject: "New order received",
		Body: fmt.Sprintf("Hi %s,\n\n%s ordered your gig \"%s\" (order #%d) for %s.\n\nOpen your pending orders to get started.",
			freelancer.Name, client.Name, gigTitle, orderID, amount.StringFixed(2)),
	})
}

func orderDeliveredEvent(rec OrderRecord, client Contact) alerts.Event {
	return alerts.NewEvent(alerts.KindOrderDelivered, rec.ID, alerts.EmailEnvelope{
		To:      client.Email,
		Subject: "Your order has been delivered",
		Body: fmt.Sprintf("Hi %s,\n\nOrder #%d for \"%s\" was marked as delivered. Review it and confirm completion when you are satisfied.",
			client.Name, rec.ID, rec.GigTitle),
	})
}

func orderCancelledEvent(rec OrderRecord, freelancer Contact) alerts.Event {
	return alerts.NewEvent(alerts.KindOrderCancelled, rec.ID, alerts.EmailEnvelope{
		To:      freelancer.Email,
		Subject: "Order cancelled by client",
		Body: fmt.Sprintf("Hi %s,\n\nOrder #%d for \"%s\" (%s) was cancelled by the client.",
			freelancer.Name, rec.ID, rec.GigTitle, rec.Amount.StringFixed(2)),
	})
}

func orderCompletedEvent(rec OrderRecord, freelancer Contact, review string) alerts.Event {
	subject := "Order completed"
	body := fmt.Sprintf("Hi %s,\n\nThe client confirmed order #%d for \"%s\". %s is on its way to you.",
		freelancer.Name, rec.ID, rec.GigTitle, rec.Amount.StringFixed(2))
	if review != "" {
		subject = "You received a new review"
		body += fmt.Sprintf("\n\nThey also left a review:\n\n%s", review)
	}
	return alerts.NewEvent(alerts.KindOrderCompleted, rec.ID, alerts.EmailEnvelope{
		To:      freelancer.Email,
		Subject: subject,
		Body:    body,
	})
}

package marketplace

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PurchaseRequest is a client's order against a gig. A nil Amount means the
// gig's listed price.
type PurchaseRequest struct {
	GigID       int64
	Amount      *decimal.Decimal
	Description string
}

// ConfirmAction is what the client does with a completed order.
type ConfirmAction string

const (
	ActionMarkDone   ConfirmAction = "markAsDone"
	ActionGiveReview ConfirmAction = "giveReview"
)

// Purchase places a pending order and its payment. The pending cap is counted
// with the client row locked, so concurrent purchases by one client run one
// after another and can never overshoot it.
func (s *Service) Purchase(ctx context.Context, clientID int64, req PurchaseRequest) (int64, error) {
	fields := []zap.Field{zap.Int64("client_id", clientID), zap.Int64("gig_id", req.GigID)}

	desc := strings.TrimSpace(req.Description)
	if desc == "" {
		return 0, s.fail("purchase", newError(ErrValidation, "Please describe the work you need"), fields...)
	}
	if req.Amount != nil {
		if err := checkMoney(*req.Amount, "Amount"); err != nil {
			return 0, s.fail("purchase", err, fields...)
		}
	}

	var orderID int64
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		client, err := tx.LockClient(ctx, clientID)
		if err != nil {
			return notFound(err, "Client account not found")
		}

		pending, err := tx.CountPendingOrders(ctx, clientID)
		if err != nil {
			return err
		}
		if pending >= s.maxPending {
			return newError(ErrLimitExceeded, "You can only have %d pending orders at a time", s.maxPending)
		}

		ok, err := tx.HasCard(ctx, RoleClient, clientID)
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrPaymentMethodMissing, "Please add a payment card before placing an order")
		}

		gig, err := tx.GetGig(ctx, req.GigID)
		if err != nil {
			return notFound(err, "Gig not found")
		}

		amount := gig.Price
		if req.Amount != nil {
			amount = *req.Amount
		}

		orderID, err = tx.InsertOrder(ctx, Order{
			GigID:        gig.ID,
			FreelancerID: gig.FreelancerID,
			ClientID:     clientID,
			Status:       StatusPending,
			Description:  desc,
		})
		if err != nil {
			return err
		}
		if err := tx.InsertPayment(ctx, orderID, amount); err != nil {
			return err
		}

		freelancer, err := tx.Contact(ctx, RoleFreelancer, gig.FreelancerID)
		if err != nil {
			return err
		}
		return tx.Publish(ctx, orderPlacedEvent(orderID, freelancer, client, gig.Title, amount))
	})
	if err != nil {
		return 0, s.fail("purchase", err, fields...)
	}

	s.log.Info("order placed", append(fields, zap.Int64("order_id", orderID))...)
	return orderID, nil
}

// Submit marks a pending order as delivered by the freelancer who owns its gig.
func (s *Service) Submit(ctx context.Context, freelancerID, orderID int64) error {
	fields := []zap.Field{zap.Int64("freelancer_id", freelancerID), zap.Int64("order_id", orderID)}

	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return notFound(err, "Order not found")
		}
		if rec.GigOwnerID != freelancerID {
			return newError(ErrForbidden, "You can only submit orders for your own gigs")
		}
		if rec.Status != StatusPending {
			return newError(ErrInvalidState, "Only pending orders can be submitted")
		}
		if err := tx.SetOrderStatus(ctx, orderID, StatusCompleted); err != nil {
			return err
		}

		client, err := tx.Contact(ctx, RoleClient, rec.ClientID)
		if err != nil {
			return err
		}
		return tx.Publish(ctx, orderDeliveredEvent(rec, client))
	})
	if err != nil {
		return s.fail("submit", err, fields...)
	}

	s.log.Info("order submitted", append(fields, zap.String("status", string(StatusCompleted)))...)
	return nil
}

// Cancel retires a pending order on the client's request. The history row keeps
// the cancelled code and the live order and payment are removed in the same
// transaction.
func (s *Service) Cancel(ctx context.Context, clientID, orderID int64) error {
	fields := []zap.Field{zap.Int64("client_id", clientID), zap.Int64("order_id", orderID)}

	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return notFound(err, "Order not found")
		}
		if rec.ClientID != clientID {
			return newError(ErrNotFound, "Order not found")
		}
		if rec.Status != StatusPending {
			return newError(ErrInvalidState, "Only pending orders can be cancelled")
		}
		if err := tx.Archive(ctx, rec, StatusCancelled); err != nil {
			return err
		}

		freelancer, err := tx.Contact(ctx, RoleFreelancer, rec.FreelancerID)
		if err != nil {
			return err
		}
		return tx.Publish(ctx, orderCancelledEvent(rec, freelancer))
	})
	if err != nil {
		return s.fail("cancel", err, fields...)
	}

	s.log.Info("order cancelled", append(fields, zap.String("status", string(StatusCancelled)))...)
	return nil
}

// ConfirmCompletion archives a completed order and, for ActionGiveReview,
// records the client's review of the freelancer.
func (s *Service) ConfirmCompletion(ctx context.Context, clientID, orderID int64, action ConfirmAction, reviewText string) error {
	fields := []zap.Field{
		zap.Int64("client_id", clientID),
		zap.Int64("order_id", orderID),
		zap.String("action", string(action)),
	}

	review := strings.TrimSpace(reviewText)
	switch action {
	case ActionMarkDone:
		review = ""
	case ActionGiveReview:
		if review == "" {
			return s.fail("confirm", newError(ErrValidation, "Review text cannot be empty"), fields...)
		}
	default:
		return s.fail("confirm", newError(ErrValidation, "Unknown action %q", action), fields...)
	}

	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		rec, err := tx.LockOrder(ctx, orderID)
		if err != nil {
			return notFound(err, "Order not found")
		}
		if rec.ClientID != clientID {
			return newError(ErrNotFound, "Order not found")
		}
		if rec.Status != StatusCompleted {
			return newError(ErrInvalidState, "Only completed orders can be confirmed")
		}
		if err := tx.Archive(ctx, rec, StatusCompleted); err != nil {
			return err
		}
		if review != "" {
			err := tx.InsertReview(ctx, Review{
				Text:         review,
				ClientID:     clientID,
				FreelancerID: rec.FreelancerID,
			})
			if err != nil {
				return err
			}
		}

		freelancer, err := tx.Contact(ctx, RoleFreelancer, rec.FreelancerID)
		if err != nil {
			return err
		}
		return tx.Publish(ctx, orderCompletedEvent(rec, freelancer, review))
	})
	if err != nil {
		return s.fail("confirm", err, fields...)
	}

	s.log.Info("order confirmed", fields...)
	return nil
}

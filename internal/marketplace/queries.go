package marketplace

import (
	"context"

	"go.uber.org/zap"
)

// Projections read straight from the store on every call.

func (s *Service) Gigs(ctx context.Context) ([]GigView, error) {
	gigs, err := s.store.ListGigs(ctx)
	if err != nil {
		return nil, s.fail("list gigs", err)
	}
	return gigs, nil
}

func (s *Service) Gig(ctx context.Context, gigID int64) (GigView, error) {
	g, err := s.store.GetGigView(ctx, gigID)
	if err != nil {
		return GigView{}, s.fail("get gig", notFound(err, "Gig not found"), zap.Int64("gig_id", gigID))
	}
	return g, nil
}

func (s *Service) FreelancerGigs(ctx context.Context, freelancerID int64) ([]GigView, error) {
	gigs, err := s.store.ListFreelancerGigs(ctx, freelancerID)
	if err != nil {
		return nil, s.fail("list freelancer gigs", err, zap.Int64("freelancer_id", freelancerID))
	}
	return gigs, nil
}

func (s *Service) CountFreelancerGigs(ctx context.Context, freelancerID int64) (int, error) {
	n, err := s.store.CountFreelancerGigs(ctx, freelancerID)
	if err != nil {
		return 0, s.fail("count freelancer gigs", err, zap.Int64("freelancer_id", freelancerID))
	}
	return n, nil
}

// ClientOrders lists a client's live orders in the given status.
func (s *Service) ClientOrders(ctx context.Context, clientID int64, status OrderStatus) ([]OrderView, error) {
	if status != StatusPending && status != StatusCompleted {
		return nil, s.fail("list client orders", newError(ErrValidation, "Unknown order status %q", status))
	}
	orders, err := s.store.ListClientOrders(ctx, clientID, status)
	if err != nil {
		return nil, s.fail("list client orders", err, zap.Int64("client_id", clientID))
	}
	return orders, nil
}

func (s *Service) FreelancerOrders(ctx context.Context, freelancerID int64, status OrderStatus) ([]OrderView, error) {
	if status != StatusPending && status != StatusCompleted {
		return nil, s.fail("list freelancer orders", newError(ErrValidation, "Unknown order status %q", status))
	}
	orders, err := s.store.ListFreelancerOrders(ctx, freelancerID, status)
	if err != nil {
		return nil, s.fail("list freelancer orders", err, zap.Int64("freelancer_id", freelancerID))
	}
	return orders, nil
}

func (s *Service) ClientOrder(ctx context.Context, clientID, orderID int64) (OrderView, error) {
	o, err := s.store.ClientOrder(ctx, clientID, orderID)
	if err != nil {
		return OrderView{}, s.fail("get client order", notFound(err, "Order not found"),
			zap.Int64("client_id", clientID), zap.Int64("order_id", orderID))
	}
	return o, nil
}

func (s *Service) FreelancerOrder(ctx context.Context, freelancerID, orderID int64) (OrderView, error) {
	o, err := s.store.FreelancerOrder(ctx, freelancerID, orderID)
	if err != nil {
		return OrderView{}, s.fail("get freelancer order", notFound(err, "Order not found"),
			zap.Int64("freelancer_id", freelancerID), zap.Int64("order_id", orderID))
	}
	return o, nil
}

func (s *Service) ClientHistory(ctx context.Context, clientID int64) ([]HistoryView, error) {
	h, err := s.store.ClientHistory(ctx, clientID)
	if err != nil {
		return nil, s.fail("client history", err, zap.Int64("client_id", clientID))
	}
	return h, nil
}

func (s *Service) FreelancerHistory(ctx context.Context, freelancerID int64) ([]HistoryView, error) {
	h, err := s.store.FreelancerHistory(ctx, freelancerID)
	if err != nil {
		return nil, s.fail("freelancer history", err, zap.Int64("freelancer_id", freelancerID))
	}
	return h, nil
}

func (s *Service) FreelancerReviews(ctx context.Context, freelancerID int64) ([]ReviewView, error) {
	r, err := s.store.FreelancerReviews(ctx, freelancerID)
	if err != nil {
		return nil, s.fail("freelancer reviews", err, zap.Int64("freelancer_id", freelancerID))
	}
	return r, nil
}

package marketplace

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type GigInput struct {
	Title       string
	Description string
	Price       *decimal.Decimal
	Type        GigType
}

// GigPatch is a partial edit; nil fields keep their stored value.
type GigPatch struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	Type        *GigType
}

func (in GigInput) validate() error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Description) == "" || in.Price == nil || in.Type == "" {
		return newError(ErrValidation, "Title, description, price and type are required")
	}
	if err := checkMoney(*in.Price, "Price"); err != nil {
		return err
	}
	if !in.Type.Valid() {
		return newError(ErrValidation, "Gig type must be hourly or fixed")
	}
	return nil
}

func (p GigPatch) apply(g *Gig) error {
	if p.Title != nil {
		if strings.TrimSpace(*p.Title) == "" {
			return newError(ErrValidation, "Title cannot be empty")
		}
		g.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		if strings.TrimSpace(*p.Description) == "" {
			return newError(ErrValidation, "Description cannot be empty")
		}
		g.Description = strings.TrimSpace(*p.Description)
	}
	if p.Price != nil {
		if err := checkMoney(*p.Price, "Price"); err != nil {
			return err
		}
		g.Price = *p.Price
	}
	if p.Type != nil {
		if !p.Type.Valid() {
			return newError(ErrValidation, "Gig type must be hourly or fixed")
		}
		g.Type = *p.Type
	}
	return nil
}

// CreateGig lists a new gig for a freelancer with a registered payout card.
func (s *Service) CreateGig(ctx context.Context, freelancerID int64, in GigInput) (Gig, error) {
	fields := []zap.Field{zap.Int64("freelancer_id", freelancerID)}
	if err := in.validate(); err != nil {
		return Gig{}, s.fail("create gig", err, fields...)
	}

	var created Gig
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		ok, err := tx.HasCard(ctx, RoleFreelancer, freelancerID)
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrPaymentMethodMissing, "Please add a payout card before creating a gig")
		}
		created, err = tx.InsertGig(ctx, Gig{
			FreelancerID: freelancerID,
			Title:        strings.TrimSpace(in.Title),
			Description:  strings.TrimSpace(in.Description),
			Price:        *in.Price,
			Type:         in.Type,
		})
		return err
	})
	if err != nil {
		return Gig{}, s.fail("create gig", err, fields...)
	}

	s.log.Info("gig created", append(fields, zap.Int64("gig_id", created.ID))...)
	return created, nil
}

// EditGig applies patch to a gig that has no pending or completed orders.
func (s *Service) EditGig(ctx context.Context, freelancerID, gigID int64, patch GigPatch) (Gig, error) {
	fields := []zap.Field{zap.Int64("freelancer_id", freelancerID), zap.Int64("gig_id", gigID)}

	var updated Gig
	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		g, err := s.lockMutableGig(ctx, tx, freelancerID, gigID)
		if err != nil {
			return err
		}
		if err := patch.apply(&g); err != nil {
			return err
		}
		if err := tx.UpdateGig(ctx, g); err != nil {
			return err
		}
		updated = g
		return nil
	})
	if err != nil {
		return Gig{}, s.fail("edit gig", err, fields...)
	}

	s.log.Info("gig updated", fields...)
	return updated, nil
}

// DeleteGig removes a gig that has no pending or completed orders. History
// rows that referenced it keep their amounts.
func (s *Service) DeleteGig(ctx context.Context, freelancerID, gigID int64) error {
	fields := []zap.Field{zap.Int64("freelancer_id", freelancerID), zap.Int64("gig_id", gigID)}

	err := s.inTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := s.lockMutableGig(ctx, tx, freelancerID, gigID); err != nil {
			return err
		}
		return tx.DeleteGig(ctx, gigID)
	})
	if err != nil {
		return s.fail("delete gig", err, fields...)
	}

	s.log.Info("gig deleted", fields...)
	return nil
}

func (s *Service) lockMutableGig(ctx context.Context, tx Tx, freelancerID, gigID int64) (Gig, error) {
	g, err := tx.LockGig(ctx, gigID)
	if err != nil {
		return Gig{}, notFound(err, "Gig not found")
	}
	if g.FreelancerID != freelancerID {
		return Gig{}, newError(ErrForbidden, "You can only change your own gigs")
	}
	active, err := tx.CountActiveOrdersForGig(ctx, gigID)
	if err != nil {
		return Gig{}, err
	}
	if active > 0 {
		return Gig{}, newError(ErrInvalidState, "This gig has orders in progress and cannot be changed")
	}
	return g, nil
}

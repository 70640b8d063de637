package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

// Placeholders are filled in by the queries so a deleted gig or actor still
// produces a readable row.
var (
	deletedGig  = fmt.Sprintf("'%s'", marketplace.DeletedGigTitle)
	deletedUser = fmt.Sprintf("'%s'", marketplace.DeletedUserName)
)

var (
	gigViewSQL = `
        SELECT g.gig_id, g.title, g.description, g.price::text, g.gig_type, g.freelancer_id,
               COALESCE(f.fullname, ` + deletedUser + `), g.created_at
        FROM gigs g
        LEFT JOIN freelancer f ON f.freelancer_id = g.freelancer_id`

	orderViewSQL = `
        SELECT o.order_id, o.order_status, o.gig_id,
               COALESCE(g.title, ` + deletedGig + `),
               COALESCE(f.fullname, ` + deletedUser + `),
               COALESCE(c.fullname, ` + deletedUser + `),
               p.amount_to_pay::text, o.description, o.created_at
        FROM orders o
        JOIN payment p ON p.order_id = o.order_id
        LEFT JOIN gigs g ON g.gig_id = o.gig_id
        LEFT JOIN freelancer f ON f.freelancer_id = o.freelancer_id
        LEFT JOIN client c ON c.client_id = o.client_id`

	historyViewSQL = `
        SELECT h.order_id,
               COALESCE(g.title, ` + deletedGig + `),
               COALESCE(f.fullname, ` + deletedUser + `),
               COALESCE(c.fullname, ` + deletedUser + `),
               h.amount_to_pay::text, h.order_status, h.archived_at
        FROM gig_client_history h
        LEFT JOIN gigs g ON g.gig_id = h.gig_id
        LEFT JOIN freelancer f ON f.freelancer_id = h.freelancer_id
        LEFT JOIN client c ON c.client_id = h.client_id`
)

func scanGigView(row pgx.Row) (marketplace.GigView, error) {
	var (
		v       marketplace.GigView
		price   string
		gigType string
	)
	if err := row.Scan(&v.ID, &v.Title, &v.Description, &price, &gigType, &v.FreelancerID, &v.FreelancerName, &v.CreatedAt); err != nil {
		return marketplace.GigView{}, err
	}
	v.Type = marketplace.GigType(gigType)
	d, err := parseDecimal(price)
	if err != nil {
		return marketplace.GigView{}, err
	}
	v.Price = d
	return v, nil
}

func scanOrderView(row pgx.Row) (marketplace.OrderView, error) {
	var (
		v      marketplace.OrderView
		status string
		amount string
	)
	err := row.Scan(&v.OrderID, &status, &v.GigID, &v.GigTitle, &v.FreelancerName, &v.ClientName,
		&amount, &v.Description, &v.CreatedAt)
	if err != nil {
		return marketplace.OrderView{}, err
	}
	v.Status = marketplace.OrderStatus(status)
	if v.Amount, err = parseDecimal(amount); err != nil {
		return marketplace.OrderView{}, err
	}
	return v, nil
}

func scanHistoryView(row pgx.Row) (marketplace.HistoryView, error) {
	var (
		v      marketplace.HistoryView
		status string
		amount string
	)
	err := row.Scan(&v.OrderID, &v.GigTitle, &v.FreelancerName, &v.ClientName, &amount, &status, &v.ArchivedAt)
	if err != nil {
		return marketplace.HistoryView{}, err
	}
	v.Status = marketplace.OrderStatus(status)
	if v.Amount, err = parseDecimal(amount); err != nil {
		return marketplace.HistoryView{}, err
	}
	return v, nil
}

// collect runs sql and scans every row with scan.
func collect[T any](ctx context.Context, q querier, scan func(pgx.Row) (T, error), sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *Store) ListGigs(ctx context.Context) ([]marketplace.GigView, error) {
	gigs, err := collect(ctx, s.q, scanGigView, gigViewSQL+` ORDER BY g.created_at DESC, g.gig_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list gigs: %w", err)
	}
	return gigs, nil
}

func (s *Store) GetGigView(ctx context.Context, gigID int64) (marketplace.GigView, error) {
	v, err := scanGigView(s.q.QueryRow(ctx, gigViewSQL+` WHERE g.gig_id = $1`, gigID))
	if err != nil {
		return marketplace.GigView{}, notFound(err, "gig", gigID)
	}
	return v, nil
}

func (s *Store) ListFreelancerGigs(ctx context.Context, freelancerID int64) ([]marketplace.GigView, error) {
	gigs, err := collect(ctx, s.q, scanGigView,
		gigViewSQL+` WHERE g.freelancer_id = $1 ORDER BY g.created_at DESC, g.gig_id DESC`, freelancerID)
	if err != nil {
		return nil, fmt.Errorf("list gigs of freelancer %d: %w", freelancerID, err)
	}
	return gigs, nil
}

func (s *Store) CountFreelancerGigs(ctx context.Context, freelancerID int64) (int, error) {
	var n int
	if err := s.q.QueryRow(ctx, `SELECT COUNT(*) FROM gigs WHERE freelancer_id = $1`, freelancerID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count gigs of freelancer %d: %w", freelancerID, err)
	}
	return n, nil
}

func (s *Store) ListClientOrders(ctx context.Context, clientID int64, status marketplace.OrderStatus) ([]marketplace.OrderView, error) {
	orders, err := collect(ctx, s.q, scanOrderView,
		orderViewSQL+` WHERE o.client_id = $1 AND o.order_status = $2 ORDER BY o.order_id DESC`,
		clientID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list orders of client %d: %w", clientID, err)
	}
	return orders, nil
}

func (s *Store) ListFreelancerOrders(ctx context.Context, freelancerID int64, status marketplace.OrderStatus) ([]marketplace.OrderView, error) {
	orders, err := collect(ctx, s.q, scanOrderView,
		orderViewSQL+` WHERE o.freelancer_id = $1 AND o.order_status = $2 ORDER BY o.order_id DESC`,
		freelancerID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list orders of freelancer %d: %w", freelancerID, err)
	}
	return orders, nil
}

func (s *Store) ClientOrder(ctx context.Context, clientID, orderID int64) (marketplace.OrderView, error) {
	v, err := scanOrderView(s.q.QueryRow(ctx,
		orderViewSQL+` WHERE o.order_id = $1 AND o.client_id = $2`, orderID, clientID))
	if err != nil {
		return marketplace.OrderView{}, notFound(err, "order", orderID)
	}
	return v, nil
}

func (s *Store) FreelancerOrder(ctx context.Context, freelancerID, orderID int64) (marketplace.OrderView, error) {
	v, err := scanOrderView(s.q.QueryRow(ctx,
		orderViewSQL+` WHERE o.order_id = $1 AND o.freelancer_id = $2`, orderID, freelancerID))
	if err != nil {
		return marketplace.OrderView{}, notFound(err, "order", orderID)
	}
	return v, nil
}

func (s *Store) ClientHistory(ctx context.Context, clientID int64) ([]marketplace.HistoryView, error) {
	h, err := collect(ctx, s.q, scanHistoryView,
		historyViewSQL+` WHERE h.client_id = $1 ORDER BY h.archived_at DESC, h.gch_id DESC`, clientID)
	if err != nil {
		return nil, fmt.Errorf("history of client %d: %w", clientID, err)
	}
	return h, nil
}

func (s *Store) FreelancerHistory(ctx context.Context, freelancerID int64) ([]marketplace.HistoryView, error) {
	h, err := collect(ctx, s.q, scanHistoryView,
		historyViewSQL+` WHERE h.freelancer_id = $1 ORDER BY h.archived_at DESC, h.gch_id DESC`, freelancerID)
	if err != nil {
		return nil, fmt.Errorf("history of freelancer %d: %w", freelancerID, err)
	}
	return h, nil
}

func (s *Store) FreelancerReviews(ctx context.Context, freelancerID int64) ([]marketplace.ReviewView, error) {
	reviews, err := collect(ctx, s.q, func(row pgx.Row) (marketplace.ReviewView, error) {
		var v marketplace.ReviewView
		err := row.Scan(&v.Text, &v.ClientName, &v.CreatedAt)
		return v, err
	}, `
        SELECT r.review_text, COALESCE(c.fullname, `+deletedUser+`), r.created_at
        FROM review r
        LEFT JOIN client c ON c.client_id = r.client_id
        WHERE r.freelancer_id = $1
        ORDER BY r.created_at DESC, r.review_id DESC`, freelancerID)
	if err != nil {
		return nil, fmt.Errorf("reviews of freelancer %d: %w", freelancerID, err)
	}
	return reviews, nil
}

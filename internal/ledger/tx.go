package ledger

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
	"github.com/sudo-init-do/gigmarket/internal/marketplace"
)

type txStore struct {
	q       querier
	channel string
}

var _ marketplace.Tx = (*txStore)(nil)

func actorTable(role marketplace.Role) (table, idCol, cardTable string) {
	if role == marketplace.RoleClient {
		return "client", "client_id", "clientcardinfo"
	}
	return "freelancer", "freelancer_id", "freelancercardinfo"
}

func (t *txStore) LockClient(ctx context.Context, clientID int64) (marketplace.Contact, error) {
	c := marketplace.Contact{ID: clientID}
	err := t.q.QueryRow(ctx,
		`SELECT fullname, email FROM client WHERE client_id = $1 FOR UPDATE`,
		clientID,
	).Scan(&c.Name, &c.Email)
	if err != nil {
		return marketplace.Contact{}, notFound(err, "client", clientID)
	}
	return c, nil
}

func (t *txStore) CountPendingOrders(ctx context.Context, clientID int64) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE client_id = $1 AND order_status = 'P'`,
		clientID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending orders: %w", err)
	}
	return n, nil
}

func (t *txStore) HasCard(ctx context.Context, role marketplace.Role, actorID int64) (bool, error) {
	_, idCol, cardTable := actorTable(role)
	var ok bool
	err := t.q.QueryRow(ctx,
		fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE %s = $1)`, cardTable, idCol),
		actorID,
	).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check %s: %w", cardTable, err)
	}
	return ok, nil
}

func (t *txStore) Contact(ctx context.Context, role marketplace.Role, actorID int64) (marketplace.Contact, error) {
	table, idCol, _ := actorTable(role)
	c := marketplace.Contact{ID: actorID}
	err := t.q.QueryRow(ctx,
		fmt.Sprintf(`SELECT fullname, email FROM %s WHERE %s = $1`, table, idCol),
		actorID,
	).Scan(&c.Name, &c.Email)
	if err != nil {
		return marketplace.Contact{}, notFound(err, table, actorID)
	}
	return c, nil
}

const gigColumns = `gig_id, freelancer_id, title, description, price::text, gig_type, created_at`

func scanGig(row pgx.Row) (marketplace.Gig, error) {
	var (
		g       marketplace.Gig
		price   string
		gigType string
	)
	if err := row.Scan(&g.ID, &g.FreelancerID, &g.Title, &g.Description, &price, &gigType, &g.CreatedAt); err != nil {
		return marketplace.Gig{}, err
	}
	g.Type = marketplace.GigType(gigType)
	d, err := parseDecimal(price)
	if err != nil {
		return marketplace.Gig{}, err
	}
	g.Price = d
	return g, nil
}

// GetGig takes a share lock so the gig cannot be edited or deleted before the
// purchase commits.
func (t *txStore) GetGig(ctx context.Context, gigID int64) (marketplace.Gig, error) {
	g, err := scanGig(t.q.QueryRow(ctx,
		`SELECT `+gigColumns+` FROM gigs WHERE gig_id = $1 FOR SHARE`, gigID))
	if err != nil {
		return marketplace.Gig{}, notFound(err, "gig", gigID)
	}
	return g, nil
}

func (t *txStore) LockGig(ctx context.Context, gigID int64) (marketplace.Gig, error) {
	g, err := scanGig(t.q.QueryRow(ctx,
		`SELECT `+gigColumns+` FROM gigs WHERE gig_id = $1 FOR UPDATE`, gigID))
	if err != nil {
		return marketplace.Gig{}, notFound(err, "gig", gigID)
	}
	return g, nil
}

func (t *txStore) InsertGig(ctx context.Context, g marketplace.Gig) (marketplace.Gig, error) {
	out, err := scanGig(t.q.QueryRow(ctx,
		`INSERT INTO gigs (freelancer_id, title, description, price, gig_type)
         VALUES ($1, $2, $3, $4::numeric, $5)
         RETURNING `+gigColumns,
		g.FreelancerID, g.Title, g.Description, g.Price.String(), string(g.Type),
	))
	if err != nil {
		return marketplace.Gig{}, fmt.Errorf("insert gig: %w", err)
	}
	return out, nil
}

func (t *txStore) UpdateGig(ctx context.Context, g marketplace.Gig) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE gigs SET title = $1, description = $2, price = $3::numeric, gig_type = $4 WHERE gig_id = $5`,
		g.Title, g.Description, g.Price.String(), string(g.Type), g.ID,
	)
	if err != nil {
		return fmt.Errorf("update gig %d: %w", g.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("gig %d: %w", g.ID, marketplace.ErrNotFound)
	}
	return nil
}

func (t *txStore) DeleteGig(ctx context.Context, gigID int64) error {
	tag, err := t.q.Exec(ctx, `DELETE FROM gigs WHERE gig_id = $1`, gigID)
	if err != nil {
		return fmt.Errorf("delete gig %d: %w", gigID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("gig %d: %w", gigID, marketplace.ErrNotFound)
	}
	return nil
}

func (t *txStore) CountActiveOrdersForGig(ctx context.Context, gigID int64) (int, error) {
	var n int
	err := t.q.QueryRow(ctx,
		`SELECT COUNT(*) FROM orders WHERE gig_id = $1 AND order_status IN ('P','C')`,
		gigID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active orders for gig %d: %w", gigID, err)
	}
	return n, nil
}

func (t *txStore) InsertOrder(ctx context.Context, o marketplace.Order) (int64, error) {
	var id int64
	err := t.q.QueryRow(ctx,
		`INSERT INTO orders (order_status, gig_id, freelancer_id, client_id, description)
         VALUES ($1, $2, $3, $4, $5) RETURNING order_id`,
		string(o.Status), o.GigID, o.FreelancerID, o.ClientID, o.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert order: %w", err)
	}
	return id, nil
}

func (t *txStore) InsertPayment(ctx context.Context, orderID int64, amount decimal.Decimal) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO payment (amount_to_pay, order_id) VALUES ($1::numeric, $2)`,
		amount.String(), orderID,
	)
	if err != nil {
		return fmt.Errorf("insert payment for order %d: %w", orderID, err)
	}
	return nil
}

// LockOrder locks the order row. Payment and gig are read in the same
// statement; the gig owner is what Submit authorises against.
func (t *txStore) LockOrder(ctx context.Context, orderID int64) (marketplace.OrderRecord, error) {
	var (
		rec    marketplace.OrderRecord
		status string
		amount string
	)
	err := t.q.QueryRow(ctx,
		`SELECT o.order_id, o.gig_id, o.freelancer_id, o.client_id, o.order_status, o.description, o.created_at,
                p.amount_to_pay::text, g.title, g.freelancer_id
         FROM orders o
         JOIN payment p ON p.order_id = o.order_id
         JOIN gigs g ON g.gig_id = o.gig_id
         WHERE o.order_id = $1
         FOR UPDATE OF o`,
		orderID,
	).Scan(&rec.ID, &rec.GigID, &rec.FreelancerID, &rec.ClientID, &status, &rec.Description, &rec.CreatedAt,
		&amount, &rec.GigTitle, &rec.GigOwnerID)
	if err != nil {
		return marketplace.OrderRecord{}, notFound(err, "order", orderID)
	}
	rec.Status = marketplace.OrderStatus(status)
	if rec.Amount, err = parseDecimal(amount); err != nil {
		return marketplace.OrderRecord{}, err
	}
	return rec, nil
}

func (t *txStore) SetOrderStatus(ctx context.Context, orderID int64, status marketplace.OrderStatus) error {
	tag, err := t.q.Exec(ctx,
		`UPDATE orders SET order_status = $1 WHERE order_id = $2`,
		string(status), orderID,
	)
	if err != nil {
		return fmt.Errorf("update order %d status: %w", orderID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order %d: %w", orderID, marketplace.ErrNotFound)
	}
	return nil
}

// Archive copies the order into gig_client_history and removes the live rows.
// The unique order_id on history makes a second archival fail.
func (t *txStore) Archive(ctx context.Context, rec marketplace.OrderRecord, final marketplace.OrderStatus) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO gig_client_history (order_id, gig_id, client_id, freelancer_id, amount_to_pay, order_status)
         SELECT o.order_id, o.gig_id, o.client_id, o.freelancer_id, p.amount_to_pay, $2
         FROM orders o JOIN payment p ON p.order_id = o.order_id
         WHERE o.order_id = $1`,
		rec.ID, string(final),
	)
	if err != nil {
		return fmt.Errorf("archive order %d: %w", rec.ID, err)
	}
	if _, err := t.q.Exec(ctx, `DELETE FROM payment WHERE order_id = $1`, rec.ID); err != nil {
		return fmt.Errorf("delete payment for order %d: %w", rec.ID, err)
	}
	tag, err := t.q.Exec(ctx, `DELETE FROM orders WHERE order_id = $1`, rec.ID)
	if err != nil {
		return fmt.Errorf("delete order %d: %w", rec.ID, err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("order %d: %w", rec.ID, marketplace.ErrNotFound)
	}
	return nil
}

func (t *txStore) InsertReview(ctx context.Context, r marketplace.Review) error {
	_, err := t.q.Exec(ctx,
		`INSERT INTO review (review_text, client_id, freelancer_id) VALUES ($1, $2, $3)`,
		r.Text, r.ClientID, r.FreelancerID,
	)
	if err != nil {
		return fmt.Errorf("insert review: %w", err)
	}
	return nil
}

// Publish writes ev to the outbox and notifies its id. Both only become
// visible if the transaction commits.
func (t *txStore) Publish(ctx context.Context, ev alerts.Event) error {
	payload, err := ev.Encode()
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	_, err = t.q.Exec(ctx,
		`INSERT INTO notification_outbox (event_id, payload) VALUES ($1, $2)`,
		ev.ID, string(payload),
	)
	if err != nil {
		return fmt.Errorf("store event %s: %w", ev.ID, err)
	}
	if _, err := t.q.Exec(ctx, `SELECT pg_notify($1, $2)`, t.channel, ev.ID.String()); err != nil {
		return fmt.Errorf("publish event %s: %w", ev.ID, err)
	}
	return nil
}

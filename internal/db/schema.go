package db

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

type ensureStep struct {
	name string
	sql  string
}

// Steps run in order; later tables reference earlier ones.
var schemaSteps = []ensureStep{
	{"actors", `
        CREATE TABLE IF NOT EXISTS client (
            client_id BIGSERIAL PRIMARY KEY,
            fullname TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE TABLE IF NOT EXISTS freelancer (
            freelancer_id BIGSERIAL PRIMARY KEY,
            fullname TEXT NOT NULL,
            email TEXT NOT NULL UNIQUE,
            password TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
    `},
	{"cards", `
        CREATE TABLE IF NOT EXISTS clientcardinfo (
            card_id BIGSERIAL PRIMARY KEY,
            client_id BIGINT NOT NULL UNIQUE REFERENCES client(client_id) ON DELETE CASCADE,
            card_number TEXT NOT NULL,
            expiry_date TEXT NOT NULL
        );
        CREATE TABLE IF NOT EXISTS freelancercardinfo (
            card_id BIGSERIAL PRIMARY KEY,
            freelancer_id BIGINT NOT NULL UNIQUE REFERENCES freelancer(freelancer_id) ON DELETE CASCADE,
            card_number TEXT NOT NULL,
            expiry_date TEXT NOT NULL
        );
    `},
	{"gigs", `
        CREATE TABLE IF NOT EXISTS gigs (
            gig_id BIGSERIAL PRIMARY KEY,
            freelancer_id BIGINT NOT NULL REFERENCES freelancer(freelancer_id) ON DELETE CASCADE,
            title TEXT NOT NULL,
            description TEXT NOT NULL,
            price NUMERIC(12,2) NOT NULL CHECK (price > 0),
            gig_type TEXT NOT NULL CHECK (gig_type IN ('hourly','fixed')),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_gigs_freelancer ON gigs(freelancer_id);
    `},
	{"orders", `
        CREATE TABLE IF NOT EXISTS orders (
            order_id BIGSERIAL PRIMARY KEY,
            gig_id BIGINT NOT NULL REFERENCES gigs(gig_id),
            freelancer_id BIGINT NOT NULL REFERENCES freelancer(freelancer_id),
            client_id BIGINT NOT NULL REFERENCES client(client_id),
            order_status CHAR(1) NOT NULL DEFAULT 'P' CHECK (order_status IN ('P','C','F')),
            description TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_orders_client_status ON orders(client_id, order_status);
        CREATE INDEX IF NOT EXISTS idx_orders_freelancer_status ON orders(freelancer_id, order_status);
        CREATE INDEX IF NOT EXISTS idx_orders_gig ON orders(gig_id);
        CREATE TABLE IF NOT EXISTS payment (
            payment_id BIGSERIAL PRIMARY KEY,
            order_id BIGINT NOT NULL UNIQUE REFERENCES orders(order_id) ON DELETE CASCADE,
            amount_to_pay NUMERIC(12,2) NOT NULL CHECK (amount_to_pay > 0)
        );
    `},
	{"history", `
        CREATE TABLE IF NOT EXISTS gig_client_history (
            gch_id BIGSERIAL PRIMARY KEY,
            order_id BIGINT NOT NULL UNIQUE,
            gig_id BIGINT NULL REFERENCES gigs(gig_id) ON DELETE SET NULL,
            client_id BIGINT NULL REFERENCES client(client_id) ON DELETE SET NULL,
            freelancer_id BIGINT NULL REFERENCES freelancer(freelancer_id) ON DELETE SET NULL,
            amount_to_pay NUMERIC(12,2) NOT NULL,
            order_status CHAR(1) NOT NULL CHECK (order_status IN ('C','F')),
            archived_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_history_client ON gig_client_history(client_id, archived_at);
        CREATE INDEX IF NOT EXISTS idx_history_freelancer ON gig_client_history(freelancer_id, archived_at);
    `},
	{"reviews", `
        CREATE TABLE IF NOT EXISTS review (
            review_id BIGSERIAL PRIMARY KEY,
            review_text TEXT NOT NULL,
            client_id BIGINT NULL REFERENCES client(client_id) ON DELETE SET NULL,
            freelancer_id BIGINT NOT NULL REFERENCES freelancer(freelancer_id) ON DELETE CASCADE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_review_freelancer ON review(freelancer_id);
    `},
	// Rows live until a listener claims them; NOTIFY only carries event_id.
	{"outbox", `
        CREATE TABLE IF NOT EXISTS notification_outbox (
            event_id UUID PRIMARY KEY,
            payload TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );
        CREATE INDEX IF NOT EXISTS idx_outbox_created ON notification_outbox(created_at);
    `},
}

// EnsureSchema creates any missing table or index. It is safe to run on every start.
func EnsureSchema(ctx context.Context, conn Execer, log *zap.Logger) error {
	for _, step := range schemaSteps {
		if _, err := conn.Exec(ctx, step.sql); err != nil {
			return fmt.Errorf("ensure %s schema: %w", step.name, err)
		}
		log.Debug("schema ensured", zap.String("step", step.name))
	}
	return nil
}

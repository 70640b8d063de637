package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

// NotificationConn is the part of *pgx.Conn the listener uses.
type NotificationConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

type ConnectFunc func(ctx context.Context) (NotificationConn, error)

// PgConnect opens a dedicated connection; LISTEN cannot share pooled ones.
func PgConnect(dsn string) ConnectFunc {
	return func(ctx context.Context) (NotificationConn, error) {
		conn, err := pgx.Connect(ctx, dsn)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

// Claiming deletes the outbox row, so with several listeners on one channel
// each event is handed to exactly one queue.
const (
	claimEventSQL = `DELETE FROM notification_outbox WHERE event_id = $1 RETURNING payload`

	claimOldestSQL = `
        DELETE FROM notification_outbox
        WHERE event_id = (
            SELECT event_id FROM notification_outbox
            ORDER BY created_at
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING payload`
)

// Listener moves events from the outbox onto a Queue. Notifications carry
// only the event id. When the connection drops it reconnects after a fixed
// delay until ctx is done, and on every connect it first claims whatever was
// published while it was away.
type Listener struct {
	connect    ConnectFunc
	channel    string
	queue      Queue
	retryDelay time.Duration
	log        *zap.Logger
}

func NewListener(connect ConnectFunc, channel string, queue Queue, retryDelay time.Duration, log *zap.Logger) *Listener {
	return &Listener{
		connect:    connect,
		channel:    channel,
		queue:      queue,
		retryDelay: retryDelay,
		log:        log.With(zap.String("channel", channel)),
	}
}

// Run blocks until ctx is cancelled.
func (l *Listener) Run(ctx context.Context) {
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			l.log.Info("notification listener stopped")
			return
		}
		l.log.Error("notification listener disconnected, reconnecting",
			zap.Error(err), zap.Duration("retry_in", l.retryDelay))

		t := time.NewTimer(l.retryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			l.log.Info("notification listener stopped")
			return
		case <-t.C:
		}
	}
}

// listen holds one connection until it fails.
func (l *Listener) listen(ctx context.Context) error {
	conn, err := l.connect(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+pgx.Identifier{l.channel}.Sanitize()); err != nil {
		return err
	}
	l.log.Info("listening for order notifications")

	if err := l.drain(ctx, conn); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		id, err := uuid.Parse(n.Payload)
		if err != nil {
			l.log.Error("discarding malformed notification", zap.String("payload", n.Payload), zap.Error(err))
			continue
		}
		var payload string
		err = conn.QueryRow(ctx, claimEventSQL, id).Scan(&payload)
		if errors.Is(err, pgx.ErrNoRows) {
			l.log.Debug("event already claimed", zap.String("event_id", id.String()))
			continue
		}
		if err != nil {
			return err
		}
		l.submit(payload)
	}
}

// drain claims outbox rows oldest first until none are left.
func (l *Listener) drain(ctx context.Context, conn NotificationConn) error {
	claimed := 0
	for {
		var payload string
		err := conn.QueryRow(ctx, claimOldestSQL).Scan(&payload)
		if errors.Is(err, pgx.ErrNoRows) {
			if claimed > 0 {
				l.log.Info("claimed backlog events", zap.Int("count", claimed))
			}
			return nil
		}
		if err != nil {
			return err
		}
		claimed++
		l.submit(payload)
	}
}

func (l *Listener) submit(payload string) {
	ev, err := DecodeEvent([]byte(payload))
	if err != nil {
		l.log.Error("discarding malformed event", zap.Error(err))
		return
	}
	l.queue.Submit(ev)
}

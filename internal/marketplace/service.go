package marketplace

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxPending = 3
	DefaultTxTimeout  = 5 * time.Second
)

// Service runs the order state machine and the gig lifecycle against a Store.
// It is safe for concurrent use; all coordination happens in the store.
type Service struct {
	store      Store
	log        *zap.Logger
	maxPending int
	txTimeout  time.Duration
}

type Option func(*Service)

// WithMaxPending caps how many pending orders one client may hold.
func WithMaxPending(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxPending = n
		}
	}
}

// WithTxTimeout bounds every write transaction. Zero disables the bound.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Service) { s.txTimeout = d }
}

func NewService(store Store, log *zap.Logger, opts ...Option) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		store:      store,
		log:        log,
		maxPending: DefaultMaxPending,
		txTimeout:  DefaultTxTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) MaxPending() int { return s.maxPending }

func (s *Service) inTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	if s.txTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.txTimeout)
		defer cancel()
	}
	return s.store.WithTx(ctx, func(tx Tx) error { return fn(ctx, tx) })
}

// fail turns err into the *Error the caller sees. Business-rule errors pass
// through; anything else is logged and reported as internal.
func (s *Service) fail(op string, err error, fields ...zap.Field) error {
	var e *Error
	if errors.As(err, &e) && !errors.Is(e.Kind, ErrInternal) {
		s.log.Debug(op+" rejected", append(fields, zap.String("reason", e.Message))...)
		return e
	}
	s.log.Error(op+" failed", append(fields, zap.Error(err))...)
	return &Error{Kind: ErrInternal, Message: "An internal error occurred, please try again"}
}

// notFound replaces a store ErrNotFound with a user-facing message and passes
// every other error through untouched.
func notFound(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return newError(ErrNotFound, "%s", msg)
	}
	return err
}

package alerts

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Queue accepts events for delivery. Submit never blocks the caller.
type Queue interface {
	Submit(ev Event)
	Start() error
	Stop(ctx context.Context) error
}

const sendTimeout = 30 * time.Second

// deliver sends ev through m. Failures are logged and dropped.
func deliver(ctx context.Context, m Mailer, log *zap.Logger, ev Event) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := m.Send(ctx, ev.To, ev.Subject, ev.Body); err != nil {
		log.Error("email delivery failed",
			zap.String("event_id", ev.ID.String()),
			zap.String("kind", ev.Kind),
			zap.Int64("order_id", ev.OrderID),
			zap.String("to", ev.To),
			zap.Error(err),
		)
		return err
	}
	log.Info("email sent",
		zap.String("event_id", ev.ID.String()),
		zap.String("kind", ev.Kind),
		zap.Int64("order_id", ev.OrderID),
		zap.String("to", ev.To),
	)
	return nil
}

// Dispatcher delivers events in-process with a fixed pool of workers reading
// from a bounded buffer.
type Dispatcher struct {
	mailer  Mailer
	log     *zap.Logger
	workers int

	mu      sync.RWMutex
	events  chan Event
	started bool
	closed  bool
	wg      sync.WaitGroup
	ctx     context.Context
	cancel  context.CancelFunc
}

var _ Queue = (*Dispatcher)(nil)

func NewDispatcher(m Mailer, log *zap.Logger, queueSize, workers int) *Dispatcher {
	if queueSize < 1 {
		queueSize = 1
	}
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Dispatcher{
		mailer:  m,
		log:     log,
		workers: workers,
		events:  make(chan Event, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (d *Dispatcher) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		return nil
	}
	d.started = true
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	d.log.Info("email dispatcher started", zap.Int("workers", d.workers), zap.Int("queue_size", cap(d.events)))
	return nil
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for ev := range d.events {
		_ = deliver(d.ctx, d.mailer, d.log, ev)
	}
}

// Submit queues ev, dropping it when the buffer is full or the dispatcher is
// stopped.
func (d *Dispatcher) Submit(ev Event) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.log.Warn("email dropped, dispatcher stopped", zap.String("event_id", ev.ID.String()))
		return
	}
	select {
	case d.events <- ev:
	default:
		d.log.Error("email dropped, queue full", zap.String("event_id", ev.ID.String()), zap.String("to", ev.To))
	}
}

// Stop drains what is queued. If ctx expires first, in-flight sends are
// cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.events)
	started := d.started
	d.mu.Unlock()

	if !started {
		d.cancel()
		return nil
	}

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

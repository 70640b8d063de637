package alerts

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// AsynqQueue delivers events through Redis-backed asynq tasks, so queued
// emails survive a restart of the process.
type AsynqQueue struct {
	client *asynq.Client
	server *asynq.Server
	mailer Mailer
	log    *zap.Logger
}

var _ Queue = (*AsynqQueue)(nil)

func NewAsynqQueue(opt asynq.RedisClientOpt, m Mailer, log *zap.Logger, concurrency int) *AsynqQueue {
	if concurrency < 1 {
		concurrency = 1
	}
	return &AsynqQueue{
		client: asynq.NewClient(opt),
		server: asynq.NewServer(opt, asynq.Config{
			Concurrency: concurrency,
			Queues:      map[string]int{QueueEmails: 1},
			Logger:      zapAsynqLogger{log.Sugar()},
		}),
		mailer: m,
		log:    log,
	}
}

func (q *AsynqQueue) mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskDeliverEmail, q.handleDeliver)
	return mux
}

func (q *AsynqQueue) Start() error {
	if err := q.server.Start(q.mux()); err != nil {
		return fmt.Errorf("start asynq server: %w", err)
	}
	q.log.Info("asynq email queue started", zap.String("queue", QueueEmails))
	return nil
}

// Stop waits for running deliveries, then releases the Redis connections.
func (q *AsynqQueue) Stop(_ context.Context) error {
	q.server.Shutdown()
	return q.client.Close()
}

// handleDeliver sends one email. A failed send is logged and archived, never
// retried.
func (q *AsynqQueue) handleDeliver(ctx context.Context, t *asynq.Task) error {
	ev, err := DecodeEvent(t.Payload())
	if err != nil {
		q.log.Error("discarding malformed email task", zap.Error(err))
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if err := deliver(ctx, q.mailer, q.log, ev); err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

type zapAsynqLogger struct{ s *zap.SugaredLogger }

func (l zapAsynqLogger) Debug(args ...interface{}) { l.s.Debug(args...) }
func (l zapAsynqLogger) Info(args ...interface{})  { l.s.Info(args...) }
func (l zapAsynqLogger) Warn(args ...interface{})  { l.s.Warn(args...) }
func (l zapAsynqLogger) Error(args ...interface{}) { l.s.Error(args...) }
func (l zapAsynqLogger) Fatal(args ...interface{}) { l.s.Fatal(args...) }

package alerts

import (
	"errors"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// newDeliverTask wraps ev in a task whose id is the event id, so an event
// replayed by the listener is only enqueued once.
func newDeliverTask(ev Event) (*asynq.Task, error) {
	b, err := ev.Encode()
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDeliverEmail, b,
		asynq.Queue(QueueEmails),
		asynq.MaxRetry(0),
		asynq.TaskID(ev.ID.String()),
	), nil
}

// Submit enqueues ev. Enqueue failures are logged; the email is lost.
func (q *AsynqQueue) Submit(ev Event) {
	task, err := newDeliverTask(ev)
	if err != nil {
		q.log.Error("encode email task", zap.String("event_id", ev.ID.String()), zap.Error(err))
		return
	}
	if _, err := q.client.Enqueue(task); err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			q.log.Debug("email task already queued", zap.String("event_id", ev.ID.String()))
			return
		}
		q.log.Error("enqueue email task", zap.String("event_id", ev.ID.String()), zap.String("to", ev.To), zap.Error(err))
	}
}

package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/change-request-service/internal/events"
)

// Handler processes a single event off the queue.
type Handler func(context.Context, events.Event) error

// NotificationWorker moves notification delivery off the request path. Events
// are queued by the dispatcher subscription and handled by one goroutine.
type NotificationWorker struct {
	handle Handler
	logger *zap.Logger
	queue  chan events.Event
	wg     sync.WaitGroup
}

// NewNotificationWorker subscribes to every change request event.
func NewNotificationWorker(dispatcher events.Dispatcher, handle Handler, queueSize int, logger *zap.Logger) *NotificationWorker {
	if queueSize <= 0 {
		queueSize = 100
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &NotificationWorker{
		handle: handle,
		logger: logger,
		queue:  make(chan events.Event, queueSize),
	}
	for _, eventType := range events.ChangeRequestEvents {
		dispatcher.Subscribe(eventType, w.enqueue)
	}
	return w
}

// enqueue never blocks the publisher; a full queue drops the event.
func (w *NotificationWorker) enqueue(_ context.Context, event events.Event) error {
	select {
	case w.queue <- event:
	default:
		w.logger.Warn("notification queue full; dropping event",
			zap.String("event_type", string(event.Type)),
			zap.String("cr_number", event.CRNumber))
	}
	return nil
}

// Start runs the worker until ctx is cancelled. Queued events are drained before it stops.
func (w *NotificationWorker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case event := <-w.queue:
				w.process(ctx, event)
			case <-ctx.Done():
				w.drain()
				return
			}
		}
	}()
}

// Wait blocks until the worker has stopped.
func (w *NotificationWorker) Wait() {
	w.wg.Wait()
}

func (w *NotificationWorker) drain() {
	for {
		select {
		case event := <-w.queue:
			w.process(context.Background(), event)
		default:
			return
		}
	}
}

func (w *NotificationWorker) process(ctx context.Context, event events.Event) {
	if err := w.handle(ctx, event); err != nil {
		w.logger.Error("notification failed",
			zap.String("event_type", string(event.Type)),
			zap.String("cr_number", event.CRNumber),
			zap.Error(err))
	}
}

package worker

import (
	"context"
	"log/slog"

	"imgfilter/internal/domain"
	"imgfilter/internal/queue"
	"imgfilter/internal/scheduler"
)

// Scheduler is the part of scheduler.Scheduler the consumer drives.
type Scheduler interface {
	Submit(req domain.Request) *scheduler.Future
	CancelSession(id domain.SessionID) int
}

// Consumer feeds classify and session_ended events from the request topic
// into the scheduler. Verdicts leave through the scheduler's observers, so
// the handler never waits on the model.
type Consumer struct {
	consumer  queue.Consumer
	scheduler Scheduler
	logger    *slog.Logger
}

func NewConsumer(c queue.Consumer, s Scheduler, logger *slog.Logger) *Consumer {
	return &Consumer{
		consumer:  c,
		scheduler: s,
		logger:    logger,
	}
}

func (w *Consumer) Start(ctx context.Context) error {
	return w.consumer.Consume(ctx, w.handleEvent)
}

func (w *Consumer) handleEvent(ev domain.Event) error {
	switch ev.Type {
	case domain.EventClassify:
		if ev.URL == "" {
			w.logger.Warn("classify event without url", "id", ev.ID)
			return nil
		}
		f := w.scheduler.Submit(ev.Request())
		w.logger.Debug("request submitted", "id", f.Request().ID, "url", truncate(ev.URL, 80), "session", ev.SessionID)
	case domain.EventSessionEnded:
		n := w.scheduler.CancelSession(ev.SessionID)
		w.logger.Debug("session ended", "session", ev.SessionID, "cancelled", n)
	default:
		w.logger.Warn("unknown event type", "type", ev.Type, "id", ev.ID)
	}
	return nil
}

package queue

import (
	"context"

	"imgfilter/internal/domain"
)

type VerdictPublisher interface {
	PublishVerdict(ctx context.Context, ev domain.VerdictEvent) error
	Close() error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev domain.Event) error
	Close() error
}

type Consumer interface {
	Consume(ctx context.Context, handler func(ev domain.Event) error) error
	Close() error
}

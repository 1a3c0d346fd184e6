package notifier

import (
	"context"

	"imgfilter/internal/domain"
)

type Notification struct {
	Request domain.Request
	Verdict domain.Verdict
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

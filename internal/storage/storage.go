package storage

import (
	"context"

	"imgfilter/internal/domain"
)

type Stats struct {
	Total   int `json:"total"`
	Blocked int `json:"blocked"`
	Failed  int `json:"failed"`
}

type VerdictRepository interface {
	Save(ctx context.Context, ev domain.VerdictEvent) error
	FindAll(ctx context.Context, limit, offset int) ([]domain.VerdictEvent, error)
	FindBySession(ctx context.Context, session domain.SessionID) ([]domain.VerdictEvent, error)
	GetStats(ctx context.Context) (Stats, error)
}

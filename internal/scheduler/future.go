package scheduler

import (
	"context"

	"imgfilter/internal/domain"
)

// Future is the pending result of a submitted request. It resolves exactly
// once.
type Future struct {
	req     domain.Request
	done    chan struct{}
	verdict domain.Verdict
}

func newFuture(req domain.Request) *Future {
	return &Future{req: req, done: make(chan struct{})}
}

func resolvedFuture(req domain.Request, v domain.Verdict) *Future {
	f := newFuture(req)
	f.resolve(v)
	return f
}

// resolve must be called at most once, with the scheduler lock held for
// futures that the scheduler tracks.
func (f *Future) resolve(v domain.Verdict) {
	f.verdict = v
	close(f.done)
}

func (f *Future) Request() domain.Request {
	return f.req
}

func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Verdict blocks until the future resolves.
func (f *Future) Verdict() domain.Verdict {
	<-f.done
	return f.verdict
}

// Wait returns the verdict, or ctx.Err() if ctx ends first. Abandoning the
// wait does not cancel the request.
func (f *Future) Wait(ctx context.Context) (domain.Verdict, error) {
	select {
	case <-f.done:
		return f.verdict, nil
	case <-ctx.Done():
		return domain.Verdict{}, ctx.Err()
	}
}

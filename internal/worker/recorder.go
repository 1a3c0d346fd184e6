package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"imgfilter/internal/domain"
	"imgfilter/internal/notifier"
	"imgfilter/internal/queue"
	"imgfilter/internal/storage"
)

const recorderBuffer = 256

type Broadcaster interface {
	Broadcast(msg string)
}

// Recorder fans delivered verdicts out to the audit log, the verdict topic,
// live event subscribers and, for blocked images, the notifier. Every sink
// is optional.
//
// Observe only enqueues; Start does the I/O so the scheduler is never held
// up by a slow sink. When the buffer is full verdicts are dropped and
// logged.
type Recorder struct {
	repo        storage.VerdictRepository
	publisher   queue.VerdictPublisher
	notifier    notifier.Notifier
	broadcaster Broadcaster
	logger      *slog.Logger

	events chan record
}

type record struct {
	req     domain.Request
	verdict domain.Verdict
	at      time.Time
}

type RecorderOption func(*Recorder)

func WithRepository(r storage.VerdictRepository) RecorderOption {
	return func(rec *Recorder) { rec.repo = r }
}

func WithPublisher(p queue.VerdictPublisher) RecorderOption {
	return func(rec *Recorder) { rec.publisher = p }
}

func WithNotifier(n notifier.Notifier) RecorderOption {
	return func(rec *Recorder) { rec.notifier = n }
}

func WithBroadcaster(b Broadcaster) RecorderOption {
	return func(rec *Recorder) { rec.broadcaster = b }
}

func NewRecorder(logger *slog.Logger, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logger: logger,
		events: make(chan record, recorderBuffer),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Observe implements scheduler.Observer.
func (r *Recorder) Observe(req domain.Request, v domain.Verdict) {
	select {
	case r.events <- record{req: req, verdict: v, at: time.Now().UTC()}:
	default:
		r.logger.Warn("recorder buffer full, verdict dropped", "id", req.ID, "url", req.URL)
	}
}

// Start records verdicts until ctx is done, then drains what is already
// buffered.
func (r *Recorder) Start(ctx context.Context) {
	for {
		select {
		case rec := <-r.events:
			r.record(ctx, rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-r.events:
					r.record(context.Background(), rec)
				default:
					return
				}
			}
		}
	}
}

func (r *Recorder) record(ctx context.Context, rec record) {
	ev := domain.NewVerdictEvent(rec.req, rec.verdict)
	ev.CreatedAt = rec.at

	switch {
	case rec.verdict.Cancelled():
		r.logger.Debug("verdict", "id", ev.RequestID, "session", ev.SessionID, "result", "cancelled")
	case rec.verdict.Failed():
		r.logger.Warn("classification failed", "id", ev.RequestID, "url", truncate(ev.URL, 80), "error", ev.Error)
	default:
		r.logger.Debug("verdict", "id", ev.RequestID, "url", truncate(ev.URL, 80), "blocked", ev.Blocked)
	}

	if r.repo != nil {
		if err := r.repo.Save(ctx, ev); err != nil {
			r.logger.Error("save verdict", "id", ev.RequestID, "error", err)
		}
	}

	if r.publisher != nil {
		if err := r.publisher.PublishVerdict(ctx, ev); err != nil {
			r.logger.Error("publish verdict", "id", ev.RequestID, "error", err)
		}
	}

	if r.broadcaster != nil {
		if data, err := json.Marshal(ev); err == nil {
			r.broadcaster.Broadcast(string(data))
		}
	}

	if r.notifier != nil && rec.verdict.Blocked {
		if err := r.notifier.Notify(ctx, notifier.Notification{Request: rec.req, Verdict: rec.verdict}); err != nil {
			r.logger.Error("notify", "id", ev.RequestID, "error", err)
		}
	}
}

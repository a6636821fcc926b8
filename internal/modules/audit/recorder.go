package audit

import (
	"context"
	"time"

	"gameauth/internal/domain"
	"gameauth/internal/pkg/logger"
	"gameauth/internal/repository"

	"go.uber.org/zap"
)

const defaultWriteTimeout = 2 * time.Second

// Event is one session attempt as seen by the orchestrator.
type Event struct {
	UserID     string
	Provider   string
	ExternalID string
	DeviceID   string
	ClientIP   string
	UserAgent  string
	Action     domain.SessionAction
	Err        error
}

// Recorder appends session history rows. A failed write is logged and dropped;
// it never fails the request that produced the event.
type Recorder struct {
	store   repository.SessionHistoryStore
	logger  *zap.Logger
	now     func() time.Time
	timeout time.Duration
}

type Option func(*Recorder)

func WithLogger(l *zap.Logger) Option {
	return func(r *Recorder) { r.logger = logger.OrNop(l) }
}

func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithWriteTimeout bounds a single audit write.
func WithWriteTimeout(d time.Duration) Option {
	return func(r *Recorder) { r.timeout = d }
}

func NewRecorder(store repository.SessionHistoryStore, opts ...Option) *Recorder {
	r := &Recorder{
		store:   store,
		logger:  zap.NewNop(),
		now:     time.Now,
		timeout: defaultWriteTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record writes ev. The parent context's cancellation is ignored so that a client
// hanging up does not lose the trail of what it attempted.
func (r *Recorder) Record(ctx context.Context, ev Event) {
	entry := r.entry(ev)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.store.Append(writeCtx, entry); err != nil {
		r.logger.Error("session history write failed",
			zap.String("action", string(entry.Action)),
			zap.String("result", string(entry.Result)),
			zap.String("reason", entry.Reason),
			zap.Error(err),
		)
	}
}

// Prune deletes entries older than retention.
func (r *Recorder) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := r.store.PruneBefore(ctx, r.now().UTC().Add(-retention))
	if err != nil {
		return 0, domain.Wrap(domain.CodeStorage, err)
	}
	return n, nil
}

func (r *Recorder) entry(ev Event) *domain.SessionHistoryEntry {
	now := r.now().UTC()
	e := &domain.SessionHistoryEntry{
		UserID:     optional(ev.UserID),
		Provider:   ev.Provider,
		ExternalID: optional(ev.ExternalID),
		DeviceID:   ev.DeviceID,
		ClientIP:   ev.ClientIP,
		UserAgent:  truncate(ev.UserAgent, 512),
		Action:     ev.Action,
		Result:     domain.ResultSuccess,
		LoginAt:    now,
		CreatedAt:  now,
	}
	if ev.Err != nil {
		e.Result = domain.ResultFailure
		e.Reason = reason(ev.Err)
	}
	return e
}

// reason keeps internal detail out of the table: only the code is stored.
func reason(err error) string {
	if code := domain.CodeOf(err); code != "" {
		return string(code)
	}
	return string(domain.CodeStorage)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

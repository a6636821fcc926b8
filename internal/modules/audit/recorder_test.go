package audit

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"gameauth/internal/database/dbtest"
	"gameauth/internal/domain"
	"gameauth/internal/repository"
	"gameauth/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type brokenStore struct{}

func (brokenStore) Append(context.Context, *domain.SessionHistoryEntry) error {
	return errors.New("disk full")
}

func (brokenStore) PruneBefore(context.Context, time.Time) (int64, error) {
	return 0, errors.New("disk full")
}

func TestRecordSuccessAndFailure(t *testing.T) {
	store := memory.New()
	fixed := time.Date(2026, 4, 2, 9, 30, 0, 0, time.UTC)
	r := NewRecorder(store, WithClock(func() time.Time { return fixed }))

	r.Record(context.Background(), Event{
		UserID: "u-1", Provider: "google", ExternalID: "g-123", DeviceID: "d-1",
		ClientIP: "10.0.0.1", UserAgent: "game/1.0", Action: domain.ActionLogin,
	})
	r.Record(context.Background(), Event{
		Provider: "google", DeviceID: "d-1", Action: domain.ActionRefresh,
		Err: domain.Wrap(domain.CodeInvalidRefresh, errors.New("row 42 already used")),
	})

	h := store.History()
	require.Len(t, h, 2)

	assert.Equal(t, domain.ResultSuccess, h[0].Result)
	require.NotNil(t, h[0].UserID)
	assert.Equal(t, "u-1", *h[0].UserID)
	assert.Equal(t, "g-123", *h[0].ExternalID)
	assert.True(t, h[0].LoginAt.Equal(fixed))

	assert.Equal(t, domain.ResultFailure, h[1].Result)
	assert.Equal(t, "INVALID_REFRESH", h[1].Reason, "only the code is stored")
	assert.Nil(t, h[1].UserID)
}

func TestRecordSurvivesCancelledRequest(t *testing.T) {
	store := memory.New()
	r := NewRecorder(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Record(ctx, Event{Action: domain.ActionLogin, Err: domain.ErrInvalidAssertion})

	assert.Len(t, store.History(), 1)
}

func TestRecordLogsAndSwallowsStorageErrors(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	r := NewRecorder(brokenStore{}, WithLogger(zap.New(core)))

	assert.NotPanics(t, func() {
		r.Record(context.Background(), Event{Action: domain.ActionLogin, Err: errors.New("boom")})
	})
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "session history write failed", entry.Message)
	assert.Equal(t, "STORAGE_ERROR", entry.ContextMap()["reason"])

	_, err := r.Prune(context.Background(), time.Hour)
	assert.ErrorIs(t, err, domain.ErrStorage)
}

func TestPruneOnRelationalStore(t *testing.T) {
	db := dbtest.Open(t)
	store := repository.NewSessionHistoryRepository(db)

	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	clock := now.Add(-200 * 24 * time.Hour)
	r := NewRecorder(store, WithClock(func() time.Time { return clock }))

	r.Record(context.Background(), Event{Action: domain.ActionLogin, UserAgent: strings.Repeat("x", 600)})
	clock = now
	r.Record(context.Background(), Event{Action: domain.ActionRefresh})

	n, err := r.Prune(context.Background(), 180*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	var rows []domain.SessionHistoryEntry
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, domain.ActionRefresh, rows[0].Action)
}

package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gameauth/internal/domain"
	"gameauth/internal/repository"

	"go.uber.org/zap"
)

// Directory maps external identities to internal users and owns ban state.
type Directory struct {
	store  repository.UserStore
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Directory)

func WithLogger(l *zap.Logger) Option {
	return func(d *Directory) { d.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(d *Directory) { d.now = now }
}

func NewDirectory(store repository.UserStore, opts ...Option) *Directory {
	d := &Directory{store: store, logger: zap.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Upsert creates the user on first sight of (provider, external id) and otherwise merges
// the non-nil incoming fields and refreshes last_login.
func (d *Directory) Upsert(ctx context.Context, in domain.UpsertUser) (*domain.User, error) {
	if strings.TrimSpace(in.Provider) == "" || strings.TrimSpace(in.ExternalID) == "" {
		return nil, domain.Wrap(domain.CodeValidation, errors.New("provider and external id are required"))
	}
	u, err := d.store.Upsert(ctx, in, d.now())
	if err != nil {
		return nil, d.storageErr("upsert", err)
	}
	return u, nil
}

func (d *Directory) FindByExternalID(ctx context.Context, provider, externalID string) (*domain.User, error) {
	u, err := d.store.FindByExternalID(ctx, provider, externalID)
	if err != nil {
		return nil, d.lookupErr("find by external id", err)
	}
	return u, nil
}

func (d *Directory) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	u, err := d.store.FindByID(ctx, userID)
	if err != nil {
		return nil, d.lookupErr("find by id", err)
	}
	return u, nil
}

func (d *Directory) UpdateNickname(ctx context.Context, userID, nickname string) (*domain.User, error) {
	nickname = strings.TrimSpace(nickname)
	if nickname == "" {
		return nil, domain.Wrap(domain.CodeValidation, errors.New("nickname is required"))
	}
	u, err := d.store.UpdateNickname(ctx, userID, nickname, d.now())
	if err != nil {
		return nil, d.lookupErr("update nickname", err)
	}
	return u, nil
}

// SetBan bans or unbans a user. Unbanning clears the reason.
func (d *Directory) SetBan(ctx context.Context, userID string, banned bool, reason string) (*domain.User, error) {
	var r *string
	if reason = strings.TrimSpace(reason); banned && reason != "" {
		r = &reason
	}
	u, err := d.store.SetBan(ctx, userID, banned, r, d.now())
	if err != nil {
		return nil, d.lookupErr("set ban", err)
	}
	d.logger.Info("user ban state changed",
		zap.String("user_id", userID),
		zap.Bool("banned", banned),
		zap.String("reason", reason),
	)
	return u, nil
}

func (d *Directory) Ping(ctx context.Context) error {
	if err := d.store.Ping(ctx); err != nil {
		return domain.Wrap(domain.CodeStorage, err)
	}
	return nil
}

func (d *Directory) lookupErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return domain.Wrap(domain.CodeUserNotFound, err)
	}
	return d.storageErr(op, err)
}

func (d *Directory) storageErr(op string, err error) error {
	d.logger.Error("user directory storage failure", zap.String("op", op), zap.Error(err))
	return domain.Wrap(domain.CodeStorage, fmt.Errorf("%s: %w", op, err))
}

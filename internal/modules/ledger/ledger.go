package ledger

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"gameauth/internal/domain"
	"gameauth/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRefreshTTL      = 30 * 24 * time.Hour
	DefaultFamilyMaxTTL    = 90 * 24 * time.Hour
	DefaultMaxRefreshCount = 200

	tokenBytes = 32
)

type MismatchPolicy string

const (
	// MismatchReject reports DEVICE_MISMATCH and leaves the token usable from the bound device.
	MismatchReject MismatchPolicy = "reject"
	// MismatchRevokeFamily treats a mismatch as theft and revokes the whole family.
	MismatchRevokeFamily MismatchPolicy = "revoke_family"
)

// Revoke reasons stored on the family.
const (
	ReasonLogout         = "logout"
	ReasonBanned         = "banned"
	ReasonDeviceMismatch = "device_mismatch"
)

type Config struct {
	RefreshTTL      time.Duration
	FamilyMaxTTL    time.Duration
	MaxRefreshCount int
	// Pepper keys the one-way token hash; rows are useless without it.
	Pepper         string
	MismatchPolicy MismatchPolicy
	// AllowDeviceRebind lets a rotation move the family to a different device.
	AllowDeviceRebind bool
}

func DefaultConfig(pepper string) Config {
	return Config{
		RefreshTTL:        DefaultRefreshTTL,
		FamilyMaxTTL:      DefaultFamilyMaxTTL,
		MaxRefreshCount:   DefaultMaxRefreshCount,
		Pepper:            pepper,
		MismatchPolicy:    MismatchReject,
		AllowDeviceRebind: true,
	}
}

func (c Config) validate() error {
	switch {
	case c.RefreshTTL <= 0, c.FamilyMaxTTL <= 0:
		return errors.New("ttls must be positive")
	case c.MaxRefreshCount < 1:
		return errors.New("max refresh count must be >= 1")
	case c.Pepper == "":
		return errors.New("pepper is required")
	case c.MismatchPolicy != MismatchReject && c.MismatchPolicy != MismatchRevokeFamily:
		return fmt.Errorf("unknown device mismatch policy %q", c.MismatchPolicy)
	}
	return nil
}

// Ledger manages refresh-token families: issuance, rotation, single-use verification
// and revocation. Every operation is one store transaction.
type Ledger struct {
	store  repository.LedgerStore
	cfg    Config
	logger *zap.Logger
	now    func() time.Time
	rand   io.Reader
}

type Option func(*Ledger)

func WithLogger(l *zap.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(lg *Ledger) { lg.now = now }
}

// WithRandom replaces the token entropy source.
func WithRandom(r io.Reader) Option {
	return func(lg *Ledger) { lg.rand = r }
}

func New(store repository.LedgerStore, cfg Config, opts ...Option) (*Ledger, error) {
	if err := cfg.validate(); err != nil {
		return nil, domain.Wrap(domain.CodeConfig, err)
	}
	l := &Ledger{
		store:  store,
		cfg:    cfg,
		logger: zap.NewNop(),
		now:    time.Now,
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Issued is the result of a rotation. Token is the raw value and is never stored.
type Issued struct {
	Token        string
	ExpiresAt    time.Time
	FamilyID     string
	RefreshCount int
}

// Verified identifies the owner of a consumed refresh token.
type Verified struct {
	FamilyID    string
	UserID      string
	Provider    string
	ExternalID  string
	ExpiresAt   time.Time
	BoundDevice string
}

// Rotate issues a new refresh token. With an empty familyID a new family is created;
// otherwise the family is continued, its counter bumped and its hard cap kept.
func (l *Ledger) Rotate(ctx context.Context, userID, deviceID, familyID string) (*Issued, error) {
	var issued *Issued
	err := l.store.WithinTx(ctx, func(tx repository.LedgerTx) error {
		now := l.now().UTC()

		var fam *domain.TokenFamily
		if familyID == "" {
			fam = &domain.TokenFamily{
				FamilyID:        uuid.NewString(),
				UserID:          userID,
				DeviceID:        optional(deviceID),
				CreatedAt:       now,
				ExpiresAt:       now.Add(l.cfg.FamilyMaxTTL),
				MaxRefreshCount: l.cfg.MaxRefreshCount,
			}
			if err := tx.CreateFamily(fam); err != nil {
				return err
			}
		} else {
			var err error
			fam, err = tx.GetFamilyForUpdate(familyID)
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Wrap(domain.CodeInvalidRefresh, errors.New("unknown family"))
			}
			if err != nil {
				return err
			}
			if err := l.checkContinuable(fam, userID, deviceID, now); err != nil {
				return err
			}
		}

		raw, hash, err := l.newToken()
		if err != nil {
			return err
		}
		tok := &domain.RefreshToken{
			TokenID:   uuid.NewString(),
			FamilyID:  fam.FamilyID,
			UserID:    userID,
			TokenHash: hash,
			JTI:       uuid.NewString(),
			ExpiresAt: earliest(now.Add(l.cfg.RefreshTTL), fam.ExpiresAt),
			IsValid:   true,
			CreatedAt: now,
		}
		if err := tx.InsertToken(tok); err != nil {
			return err
		}

		fam.RefreshCount++
		fam.LastRefreshedAt = &now
		if deviceID != "" {
			fam.DeviceID = optional(deviceID)
		}
		fam.ExpiresAt = earliest(fam.ExpiresAt, now.Add(l.cfg.FamilyMaxTTL))
		if err := tx.SaveFamily(fam); err != nil {
			return err
		}

		issued = &Issued{
			Token:        raw,
			ExpiresAt:    tok.ExpiresAt,
			FamilyID:     fam.FamilyID,
			RefreshCount: fam.RefreshCount,
		}
		return nil
	})
	if err != nil {
		if domain.CodeOf(err) != "" {
			return nil, err
		}
		l.logger.Error("refresh token rotation failed",
			zap.String("user_id", userID),
			zap.String("family_id", familyID),
			zap.Error(err),
		)
		return nil, domain.Wrap(domain.CodeRotationFailed, err)
	}
	return issued, nil
}

func (l *Ledger) checkContinuable(fam *domain.TokenFamily, userID, deviceID string, now time.Time) error {
	switch {
	case fam.UserID != userID:
		return domain.Wrap(domain.CodeInvalidRefresh, errors.New("family belongs to another user"))
	case fam.IsRevoked():
		return domain.Wrap(domain.CodeInvalidRefresh, errors.New("family revoked"))
	case fam.IsExpired(now):
		return domain.Wrap(domain.CodeRefreshExpired, errors.New("family past hard cap"))
	case fam.IsExhausted():
		return domain.Wrap(domain.CodeRefreshExpired, errors.New("family refresh count exhausted"))
	}
	bound := fam.BoundDevice()
	if !l.cfg.AllowDeviceRebind && bound != "" && deviceID != "" && deviceID != bound {
		return domain.Wrap(domain.CodeDeviceMismatch, errors.New("rebinding family to another device is disabled"))
	}
	return nil
}

// Verify resolves a presented refresh token and consumes it. The lookup and the
// conditional invalidation share one transaction, so of any number of concurrent
// calls with the same value at most one succeeds.
func (l *Ledger) Verify(ctx context.Context, rawToken, deviceID string) (*Verified, error) {
	hash := l.hash(rawToken)

	var (
		out     *Verified
		outcome error
	)
	err := l.store.WithinTx(ctx, func(tx repository.LedgerTx) error {
		now := l.now().UTC()

		lookup, err := tx.FindValidToken(hash)
		if errors.Is(err, repository.ErrNotFound) {
			return domain.ErrInvalidRefresh
		}
		if err != nil {
			return err
		}
		tok, fam := lookup.Token, lookup.Family

		switch {
		case fam.IsRevoked():
			return domain.Wrap(domain.CodeInvalidRefresh, errors.New("family revoked"))
		case tok.IsExpired(now):
			return domain.ErrRefreshExpired
		case fam.IsExpired(now), fam.IsExhausted():
			return domain.Wrap(domain.CodeRefreshExpired, errors.New("family is dead"))
		}

		bound := fam.BoundDevice()
		if bound != "" && deviceID != "" && deviceID != bound {
			if l.cfg.MismatchPolicy != MismatchRevokeFamily {
				return domain.ErrDeviceMismatch
			}
			if err := tx.RevokeFamily(fam.FamilyID, now, ReasonDeviceMismatch); err != nil {
				return err
			}
			l.logger.Warn("refresh token presented from another device, family revoked",
				zap.String("family_id", fam.FamilyID),
				zap.String("user_id", tok.UserID),
			)
			// commit the revocation, then report the mismatch
			outcome = domain.ErrDeviceMismatch
			return nil
		}

		consumed, err := tx.ConsumeToken(tok.TokenID, now)
		if err != nil {
			return err
		}
		if !consumed {
			return domain.Wrap(domain.CodeInvalidRefresh, errors.New("token already used"))
		}

		out = &Verified{
			FamilyID:    fam.FamilyID,
			UserID:      tok.UserID,
			Provider:    lookup.Provider,
			ExternalID:  lookup.ExternalID,
			ExpiresAt:   tok.ExpiresAt,
			BoundDevice: bound,
		}
		return nil
	})
	if err != nil {
		if domain.CodeOf(err) != "" {
			return nil, err
		}
		l.logger.Error("refresh token verification failed", zap.Error(err))
		return nil, domain.Wrap(domain.CodeStorage, err)
	}
	if outcome != nil {
		return nil, outcome
	}
	return out, nil
}

// RevokeFamily permanently kills a family and every live token in it.
func (l *Ledger) RevokeFamily(ctx context.Context, familyID, reason string) error {
	err := l.store.WithinTx(ctx, func(tx repository.LedgerTx) error {
		return tx.RevokeFamily(familyID, l.now().UTC(), reason)
	})
	if err != nil {
		l.logger.Error("family revocation failed", zap.String("family_id", familyID), zap.Error(err))
		return domain.Wrap(domain.CodeStorage, err)
	}
	return nil
}

// RevokeByToken revokes the family of a presented token in any state. Unknown tokens
// are ignored so logout stays idempotent; the revoked family id (or "") is returned.
func (l *Ledger) RevokeByToken(ctx context.Context, rawToken, reason string) (string, error) {
	hash := l.hash(rawToken)
	var familyID string
	err := l.store.WithinTx(ctx, func(tx repository.LedgerTx) error {
		tok, err := tx.FindTokenByHash(hash)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		familyID = tok.FamilyID
		return tx.RevokeFamily(tok.FamilyID, l.now().UTC(), reason)
	})
	if err != nil {
		l.logger.Error("revoke by token failed", zap.Error(err))
		return "", domain.Wrap(domain.CodeStorage, err)
	}
	return familyID, nil
}

// PurgeSpent removes token rows that can no longer be redeemed and are older than retention.
func (l *Ledger) PurgeSpent(ctx context.Context, retention time.Duration) (int64, error) {
	n, err := l.store.PurgeSpentTokens(ctx, l.now().UTC().Add(-retention))
	if err != nil {
		return 0, domain.Wrap(domain.CodeStorage, err)
	}
	return n, nil
}

func (l *Ledger) newToken() (raw, hash string, err error) {
	b := make([]byte, tokenBytes)
	if _, err := io.ReadFull(l.rand, b); err != nil {
		return "", "", fmt.Errorf("read random: %w", err)
	}
	raw = hex.EncodeToString(b)
	return raw, l.hash(raw), nil
}

func (l *Ledger) hash(raw string) string {
	mac := hmac.New(sha256.New, []byte(l.cfg.Pepper))
	mac.Write([]byte(raw))
	return hex.EncodeToString(mac.Sum(nil))
}

func earliest(a, b time.Time) time.Time {
	if b.Before(a) {
		return b
	}
	return a
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

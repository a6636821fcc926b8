package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"gameauth/internal/domain"
	"gameauth/internal/modules/audit"
	"gameauth/internal/modules/ledger"
	"gameauth/internal/pkg/jwt"

	"go.uber.org/zap"
)

// Service runs the two session protocols, Login and Refresh, plus the thin
// operations around them. It holds no state of its own.
type Service struct {
	identities IdentityVerifier
	users      UserDirectory
	tokens     AccessTokens
	ledger     RefreshLedger
	audit      Auditor
	logger     *zap.Logger
}

type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func NewService(
	identities IdentityVerifier,
	users UserDirectory,
	tokens AccessTokens,
	refresh RefreshLedger,
	auditor Auditor,
	opts ...Option,
) *Service {
	s := &Service{
		identities: identities,
		users:      users,
		tokens:     tokens,
		ledger:     refresh,
		audit:      auditor,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Client describes the caller for device binding and the audit trail.
type Client struct {
	DeviceID  string
	ClientIP  string
	UserAgent string
}

type LoginInput struct {
	Provider  string
	Assertion string
	Client
}

type RefreshInput struct {
	RefreshToken string
	Client
}

// Result is a freshly issued token pair.
type Result struct {
	AccessToken      string
	RefreshToken     string
	UserID           string
	FamilyID         string
	RefreshCount     int
	IssuedAt         time.Time
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Login verifies the assertion, upserts the user and opens a new token family.
// A banned user is rejected before any token is issued.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Result, error) {
	ev := audit.Event{
		Provider:  strings.ToLower(strings.TrimSpace(in.Provider)),
		DeviceID:  in.DeviceID,
		ClientIP:  in.ClientIP,
		UserAgent: in.UserAgent,
		Action:    domain.ActionLogin,
	}

	ext, err := s.identities.Verify(ctx, in.Provider, in.Assertion)
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}
	ev.Provider = ext.Provider
	ev.ExternalID = ext.ProviderUserID

	upsert := domain.UpsertUser{Provider: ext.Provider, ExternalID: ext.ProviderUserID}
	// unverified addresses are never attached to the account
	if ext.EmailVerified && ext.Email != "" {
		email := ext.Email
		upsert.Email = &email
	}
	user, err := s.users.Upsert(ctx, upsert)
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}
	ev.UserID = user.UserID

	if user.IsBanned {
		return nil, s.fail(ctx, ev, domain.ErrBanned)
	}

	res, err := s.issue(ctx, user, in.DeviceID, in.DeviceID, "")
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}
	s.audit.Record(ctx, ev)
	return res, nil
}

// Refresh consumes a refresh token and continues its family. The ban flag is read
// again from the directory so that a live token cannot outlast a ban.
func (s *Service) Refresh(ctx context.Context, in RefreshInput) (*Result, error) {
	ev := audit.Event{
		DeviceID:  in.DeviceID,
		ClientIP:  in.ClientIP,
		UserAgent: in.UserAgent,
		Action:    domain.ActionRefresh,
	}

	v, err := s.ledger.Verify(ctx, strings.TrimSpace(in.RefreshToken), in.DeviceID)
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}
	ev.UserID = v.UserID
	ev.Provider = v.Provider
	ev.ExternalID = v.ExternalID

	user, err := s.users.FindByID(ctx, v.UserID)
	if errors.Is(err, domain.ErrUserNotFound) {
		err = domain.Wrap(domain.CodeInvalidRefresh, err)
	}
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}

	if user.IsBanned {
		// the presented token is already spent; take the rest of the family with it
		if rerr := s.ledger.RevokeFamily(ctx, v.FamilyID, ledger.ReasonBanned); rerr != nil {
			s.logger.Warn("revoking banned user's family failed",
				zap.String("family_id", v.FamilyID),
				zap.Error(rerr),
			)
		}
		return nil, s.fail(ctx, ev, domain.ErrBanned)
	}

	accessDevice := in.DeviceID
	if accessDevice == "" {
		accessDevice = v.BoundDevice
	}
	res, err := s.issue(ctx, user, accessDevice, in.DeviceID, v.FamilyID)
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}
	s.audit.Record(ctx, ev)
	return res, nil
}

func (s *Service) issue(ctx context.Context, user *domain.User, accessDevice, bindDevice, familyID string) (*Result, error) {
	access, claims, err := s.tokens.GenerateToken(user.UserID, user.ExternalID, accessDevice)
	if err != nil {
		return nil, err
	}
	issued, err := s.ledger.Rotate(ctx, user.UserID, bindDevice, familyID)
	if err != nil {
		return nil, err
	}
	return &Result{
		AccessToken:      access,
		RefreshToken:     issued.Token,
		UserID:           user.UserID,
		FamilyID:         issued.FamilyID,
		RefreshCount:     issued.RefreshCount,
		IssuedAt:         claims.IssuedAt.Time,
		AccessExpiresAt:  claims.ExpiresAt.Time,
		RefreshExpiresAt: issued.ExpiresAt,
	}, nil
}

// VerifyAccess validates an access token without rotating anything and re-checks the ban.
func (s *Service) VerifyAccess(ctx context.Context, accessToken string, client Client) (*domain.User, error) {
	ev := audit.Event{
		DeviceID:  client.DeviceID,
		ClientIP:  client.ClientIP,
		UserAgent: client.UserAgent,
		Action:    domain.ActionVerify,
	}

	claims, err := s.tokens.ValidateToken(strings.TrimSpace(accessToken))
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}
	ev.UserID = claims.UserID
	ev.ExternalID = claims.ExternalID
	if ev.DeviceID == "" {
		ev.DeviceID = claims.DeviceID
	}

	user, err := s.activeUser(ctx, claims.UserID)
	if user != nil {
		ev.Provider = user.Provider
	}
	if err != nil {
		return nil, s.fail(ctx, ev, err)
	}
	s.audit.Record(ctx, ev)
	return user, nil
}

// activeUser loads the subject of an access token. A deleted subject makes the token
// invalid; a banned one is returned together with ErrBanned.
func (s *Service) activeUser(ctx context.Context, userID string) (*domain.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.Wrap(domain.CodeTokenInvalid, err)
	}
	if err != nil {
		return nil, err
	}
	if user.IsBanned {
		return user, domain.ErrBanned
	}
	return user, nil
}

// Logout revokes the family of the presented refresh token. Unknown tokens succeed.
func (s *Service) Logout(ctx context.Context, refreshToken string, client Client) error {
	ev := audit.Event{
		DeviceID:  client.DeviceID,
		ClientIP:  client.ClientIP,
		UserAgent: client.UserAgent,
		Action:    domain.ActionLogout,
	}
	if _, err := s.ledger.RevokeByToken(ctx, strings.TrimSpace(refreshToken), ledger.ReasonLogout); err != nil {
		return s.fail(ctx, ev, err)
	}
	s.audit.Record(ctx, ev)
	return nil
}

// Authenticate resolves the caller of an access token.
func (s *Service) Authenticate(accessToken string) (*jwt.Claims, error) {
	return s.tokens.ValidateToken(strings.TrimSpace(accessToken))
}

// UpdateNickname sets the nickname of the access token's owner unless they are banned.
func (s *Service) UpdateNickname(ctx context.Context, accessToken, nickname string) (*domain.User, error) {
	claims, err := s.Authenticate(accessToken)
	if err != nil {
		return nil, err
	}
	if _, err := s.activeUser(ctx, claims.UserID); err != nil {
		return nil, err
	}
	return s.users.UpdateNickname(ctx, claims.UserID, nickname)
}

func (s *Service) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.FindByID(ctx, userID)
}

// fail audits a failed attempt and returns err tagged for the client.
func (s *Service) fail(ctx context.Context, ev audit.Event, err error) error {
	if domain.CodeOf(err) == "" {
		s.logger.Error("session operation failed",
			zap.String("action", string(ev.Action)),
			zap.Error(err),
		)
		err = domain.Wrap(domain.CodeStorage, err)
	}
	ev.Err = err
	s.audit.Record(ctx, ev)
	return err
}

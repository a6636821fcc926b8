// Package memory is an in-process implementation of the repository interfaces
// for tests and local development. It keeps no global state; each Store is independent.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"gameauth/internal/domain"
	"gameauth/internal/repository"

	"github.com/google/uuid"
)

// Store serialises every operation on one mutex. A ledger transaction works on a copy
// of the ledger maps that replaces the live state only when the callback succeeds.
type Store struct {
	mu sync.Mutex

	users      map[string]domain.User
	userByExt  map[string]string
	families   map[string]domain.TokenFamily
	tokens     map[string]domain.RefreshToken
	tokenByHsh map[string]string
	history    []domain.SessionHistoryEntry
	historySeq int64
}

func New() *Store {
	return &Store{
		users:      make(map[string]domain.User),
		userByExt:  make(map[string]string),
		families:   make(map[string]domain.TokenFamily),
		tokens:     make(map[string]domain.RefreshToken),
		tokenByHsh: make(map[string]string),
	}
}

var (
	_ repository.UserStore           = (*Store)(nil)
	_ repository.LedgerStore         = (*Store)(nil)
	_ repository.SessionHistoryStore = (*Store)(nil)
)

func extKey(provider, externalID string) string {
	return provider + "\x00" + externalID
}

// users

func (s *Store) Upsert(ctx context.Context, in domain.UpsertUser, at time.Time) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	at = at.UTC()
	provider := strings.TrimSpace(in.Provider)
	externalID := strings.TrimSpace(in.ExternalID)
	email := normalizeEmail(in.Email)

	key := extKey(provider, externalID)
	if id, ok := s.userByExt[key]; ok {
		u := s.users[id]
		if email != nil {
			u.Email = cloneString(email)
		}
		if in.Nickname != nil {
			u.Nickname = cloneString(in.Nickname)
		}
		u.LastLogin = at
		u.UpdatedAt = at
		s.users[id] = u
		return copyUser(u), nil
	}

	u := domain.User{
		UserID:     uuid.NewString(),
		Provider:   provider,
		ExternalID: externalID,
		Email:      cloneString(email),
		Nickname:   cloneString(in.Nickname),
		LastLogin:  at,
		CreatedAt:  at,
		UpdatedAt:  at,
	}
	s.users[u.UserID] = u
	s.userByExt[key] = u.UserID
	return copyUser(u), nil
}

func (s *Store) FindByExternalID(ctx context.Context, provider, externalID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.userByExt[extKey(provider, externalID)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

func (s *Store) FindByID(ctx context.Context, userID string) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) UpdateNickname(ctx context.Context, userID, nickname string, at time.Time) (*domain.User, error) {
	return s.updateUser(ctx, userID, func(u *domain.User) {
		u.Nickname = &nickname
		u.UpdatedAt = at.UTC()
	})
}

func (s *Store) SetBan(ctx context.Context, userID string, banned bool, reason *string, at time.Time) (*domain.User, error) {
	return s.updateUser(ctx, userID, func(u *domain.User) {
		u.IsBanned = banned
		u.BanReason = nil
		if banned {
			u.BanReason = cloneString(reason)
		}
		u.UpdatedAt = at.UTC()
	})
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Store) updateUser(ctx context.Context, userID string, mutate func(u *domain.User)) (*domain.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	mutate(&u)
	s.users[userID] = u
	return copyUser(u), nil
}

// ledger

func (s *Store) WithinTx(ctx context.Context, fn func(tx repository.LedgerTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &ledgerTx{
		store:      s,
		families:   make(map[string]domain.TokenFamily, len(s.families)),
		tokens:     make(map[string]domain.RefreshToken, len(s.tokens)),
		tokenByHsh: make(map[string]string, len(s.tokenByHsh)),
	}
	for k, v := range s.families {
		tx.families[k] = v
	}
	for k, v := range s.tokens {
		tx.tokens[k] = v
	}
	for k, v := range s.tokenByHsh {
		tx.tokenByHsh[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}
	// a cancelled request must not commit
	if err := ctx.Err(); err != nil {
		return err
	}
	s.families = tx.families
	s.tokens = tx.tokens
	s.tokenByHsh = tx.tokenByHsh
	return nil
}

func (s *Store) PurgeSpentTokens(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		if t.ExpiresAt.Before(before) || (!t.IsValid && t.CreatedAt.Before(before)) {
			delete(s.tokens, id)
			delete(s.tokenByHsh, t.TokenHash)
			n++
		}
	}
	return n, nil
}

type ledgerTx struct {
	store      *Store
	families   map[string]domain.TokenFamily
	tokens     map[string]domain.RefreshToken
	tokenByHsh map[string]string
}

func (t *ledgerTx) CreateFamily(f *domain.TokenFamily) error {
	if _, ok := t.families[f.FamilyID]; ok {
		return fmt.Errorf("%w: jwt_families.family_id", repository.ErrDuplicate)
	}
	t.families[f.FamilyID] = *f
	return nil
}

func (t *ledgerTx) GetFamilyForUpdate(familyID string) (*domain.TokenFamily, error) {
	f, ok := t.families[familyID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &f, nil
}

func (t *ledgerTx) SaveFamily(f *domain.TokenFamily) error {
	if _, ok := t.families[f.FamilyID]; !ok {
		return repository.ErrNotFound
	}
	t.families[f.FamilyID] = *f
	return nil
}

func (t *ledgerTx) InsertToken(tok *domain.RefreshToken) error {
	if _, ok := t.tokenByHsh[tok.TokenHash]; ok {
		return fmt.Errorf("%w: jwt_tokens.token_hash", repository.ErrDuplicate)
	}
	if _, ok := t.tokens[tok.TokenID]; ok {
		return fmt.Errorf("%w: jwt_tokens.token_id", repository.ErrDuplicate)
	}
	t.tokens[tok.TokenID] = *tok
	t.tokenByHsh[tok.TokenHash] = tok.TokenID
	return nil
}

func (t *ledgerTx) FindValidToken(hash string) (*domain.TokenLookup, error) {
	id, ok := t.tokenByHsh[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	tok := t.tokens[id]
	if !tok.IsValid {
		return nil, repository.ErrNotFound
	}
	fam, ok := t.families[tok.FamilyID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	// users live outside the transaction copy; the store mutex is already held
	user, ok := t.store.users[tok.UserID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &domain.TokenLookup{
		Token:      tok,
		Family:     fam,
		Provider:   user.Provider,
		ExternalID: user.ExternalID,
	}, nil
}

func (t *ledgerTx) FindTokenByHash(hash string) (*domain.RefreshToken, error) {
	id, ok := t.tokenByHsh[hash]
	if !ok {
		return nil, repository.ErrNotFound
	}
	tok := t.tokens[id]
	return &tok, nil
}

func (t *ledgerTx) ConsumeToken(tokenID string, at time.Time) (bool, error) {
	tok, ok := t.tokens[tokenID]
	if !ok || !tok.IsValid {
		return false, nil
	}
	at = at.UTC()
	tok.IsValid = false
	tok.IsUsed = true
	tok.UsedAt = &at
	t.tokens[tokenID] = tok
	return true, nil
}

func (t *ledgerTx) RevokeFamily(familyID string, at time.Time, reason string) error {
	f, ok := t.families[familyID]
	if !ok {
		return nil
	}
	if f.RevokedAt == nil {
		at = at.UTC()
		f.RevokedAt = &at
		f.RevokeReason = &reason
		t.families[familyID] = f
	}
	for id, tok := range t.tokens {
		if tok.FamilyID == familyID && tok.IsValid {
			tok.IsValid = false
			t.tokens[id] = tok
		}
	}
	return nil
}

// session history

func (s *Store) Append(ctx context.Context, e *domain.SessionHistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.historySeq++
	e.ID = s.historySeq
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.history = append(s.history, *e)
	return nil
}

func (s *Store) PruneBefore(ctx context.Context, before time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.history[:0]
	var n int64
	for _, e := range s.history {
		if e.LoginAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.history = kept
	return n, nil
}

// History returns a copy of the recorded audit entries, oldest first.
func (s *Store) History() []domain.SessionHistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.SessionHistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Family returns a snapshot of a committed family, for inspection in tests and tooling.
func (s *Store) Family(familyID string) (domain.TokenFamily, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.families[familyID]
	return f, ok
}

// FamilyCount reports how many families have been created.
func (s *Store) FamilyCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.families)
}

func copyUser(u domain.User) *domain.User {
	u.Email = cloneString(u.Email)
	u.Nickname = cloneString(u.Nickname)
	u.BanReason = cloneString(u.BanReason)
	return &u
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func normalizeEmail(email *string) *string {
	if email == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*email))
	if v == "" {
		return nil
	}
	return &v
}

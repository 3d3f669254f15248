package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BradenHooton/warden/internal/models"
)

// memStore is an in-memory credential store with the same atomicity as the
// PostgreSQL repositories. Transactions are serialized and roll back by
// restoring a snapshot.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	accounts map[string]models.Account
	tokens   map[string]models.RefreshToken // by hash
	otps     map[string]models.OTPCode      // by id
}

type memTxKey struct{}

func newMemStore() *memStore {
	return &memStore{
		accounts: make(map[string]models.Account),
		tokens:   make(map[string]models.RefreshToken),
		otps:     make(map[string]models.OTPCode),
	}
}

func (s *memStore) Accounts() *memAccounts { return &memAccounts{s} }
func (s *memStore) Tokens() *memTokens { return &memTokens{s} }
func (s *memStore) OTPs() *memOTPs { return &memOTPs{s} }
func (s *memStore) lock() func() { s.mu.Lock(); return s.mu.Unlock }
func (s *memStore) inTx(ctx context.Context) bool { return ctx.Value(memTxKey{}) != nil }

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.inTx(ctx) {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	accounts := cloneMap(s.accounts)
	tokens := cloneMap(s.tokens)
	otps := cloneMap(s.otps)
	s.mu.Unlock()

	if err := fn(context.WithValue(ctx, memTxKey{}, true)); err != nil {
		s.mu.Lock()
		s.accounts, s.tokens, s.otps = accounts, tokens, otps
		s.mu.Unlock()
		return err
	}
	return nil
}

func cloneMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// tokenCount returns how many refresh tokens accountID holds
func (s *memStore) tokenCount(accountID string) int {
	defer s.lock()()
	n := 0
	for _, t := range s.tokens {
		if t.AccountID == accountID {
			n++
		}
	}
	return n
}

// account returns a copy of the stored account
func (s *memStore) account(id string) (models.Account, bool) {
	defer s.lock()()
	a, ok := s.accounts[id]
	return a, ok
}

// expireTokens moves every stored refresh token's expiry to at
func (s *memStore) expireTokens(at time.Time) {
	defer s.lock()()
	for hash, t := range s.tokens {
		t.ExpiresAt = at
		s.tokens[hash] = t
	}
}

type memAccounts struct{ s *memStore }

func (r *memAccounts) Create(_ context.Context, account *models.Account) (*models.Account, error) {
	defer r.s.lock()()
	for _, a := range r.s.accounts {
		// the unique indexes: per column only
		if strings.EqualFold(a.Username, account.Username) || strings.EqualFold(a.Email, account.Email) ||
			(account.Phone != nil && a.Phone != nil && *a.Phone == *account.Phone) {
			return nil, models.ErrConflict
		}
	}
	created := *account
	if created.ID == "" {
		created.ID = uuid.New().String()
	}
	if created.Status == "" {
		created.Status = models.AccountStatusActive
	}
	created.UpdatedAt = created.CreatedAt
	r.s.accounts[created.ID] = created
	return &created, nil
}

func (r *memAccounts) find(match func(models.Account) bool) (*models.Account, error) {
	defer r.s.lock()()
	for _, a := range r.s.accounts {
		if match(a) {
			found := a
			return &found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return a.ID == id })
}

func (r *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return strings.EqualFold(a.Email, email) })
}

func (r *memAccounts) GetByIdentifier(_ context.Context, identifier string) (*models.Account, error) {
	matchers := []func(models.Account) bool{
		func(a models.Account) bool { return strings.EqualFold(a.Username, identifier) },
		func(a models.Account) bool { return strings.EqualFold(a.Email, identifier) },
		func(a models.Account) bool { return a.Phone != nil && *a.Phone == identifier },
	}
	for _, match := range matchers {
		if found, err := r.find(match); err == nil {
			return found, nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *memAccounts) FindConflict(_ context.Context, excludeID, username, email string, phone *string) (string, error) {
	defer r.s.lock()()
	taken := func(value string) bool {
		for _, a := range r.s.accounts {
			if a.ID == excludeID {
				continue
			}
			if strings.EqualFold(a.Username, value) || (a.Phone != nil && *a.Phone == value) {
				return true
			}
		}
		return false
	}
	if taken(username) {
		return "username", nil
	}
	for _, a := range r.s.accounts {
		if a.ID != excludeID && strings.EqualFold(a.Email, email) {
			return "email", nil
		}
	}
	if phone != nil && taken(*phone) {
		return "phone", nil
	}
	return "", nil
}

func (r *memAccounts) UpdateProfile(_ context.Context, account *models.Account, now time.Time) (*models.Account, error) {
	defer r.s.lock()()
	a, ok := r.s.accounts[account.ID]
	if !ok {
		return nil, models.ErrNotFound
	}
	for id, other := range r.s.accounts {
		if id != account.ID && (strings.EqualFold(other.Email, account.Email) ||
			(account.Phone != nil && other.Phone != nil && *other.Phone == *account.Phone)) {
			return nil, models.ErrConflict
		}
	}
	a.Email = account.Email
	a.Phone = account.Phone
	a.FullName = account.FullName
	a.DateOfBirth = account.DateOfBirth
	a.Address = account.Address
	a.Gender = account.Gender
	a.UpdatedAt = now
	r.s.accounts[a.ID] = a
	return &a, nil
}

func (r *memAccounts) IncrementFailedAttempts(_ context.Context, id string, maxFailed int, now time.Time) (int, bool, error) {
	defer r.s.lock()()
	a, ok := r.s.accounts[id]
	if !ok {
		return 0, false, models.ErrNotFound
	}
	if a.FailedAttempts >= maxFailed {
		return a.FailedAttempts, false, nil
	}
	a.FailedAttempts++
	if a.FailedAttempts >= maxFailed {
		a.Status = models.AccountStatusLocked
		a.LockedAt = &now
	}
	a.UpdatedAt = now
	r.s.accounts[id] = a
	return a.FailedAttempts, true, nil
}

func (r *memAccounts) ResetFailedAttempts(_ context.Context, id string, maxFailed int, now time.Time) (int64, error) {
	defer r.s.lock()()
	a, ok := r.s.accounts[id]
	if !ok || a.Status != models.AccountStatusActive || a.FailedAttempts >= maxFailed {
		return 0, nil
	}
	if a.FailedAttempts > 0 {
		a.FailedAttempts = 0
		a.UpdatedAt = now
		r.s.accounts[id] = a
	}
	return 1, nil
}

func (r *memAccounts) UpdatePassword(_ context.Context, id, passwordHash string, now time.Time) error {
	defer r.s.lock()()
	a, ok := r.s.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.PasswordHash = passwordHash
	a.PasswordChangedAt = &now
	a.FailedAttempts = 0
	a.Status = models.AccountStatusActive
	a.LockedAt = nil
	a.UpdatedAt = now
	r.s.accounts[id] = a
	return nil
}

func (r *memAccounts) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	if _, ok := r.s.accounts[id]; !ok {
		return models.ErrNotFound
	}
	delete(r.s.accounts, id)
	for hash, t := range r.s.tokens {
		if t.AccountID == id {
			delete(r.s.tokens, hash)
		}
	}
	for otpID, o := range r.s.otps {
		if o.AccountID == id {
			delete(r.s.otps, otpID)
		}
	}
	return nil
}

type memTokens struct{ s *memStore }

func (r *memTokens) Create(_ context.Context, token *models.RefreshToken) error {
	defer r.s.lock()()
	if _, ok := r.s.accounts[token.AccountID]; !ok {
		return models.ErrValidation
	}
	if _, ok := r.s.tokens[token.TokenHash]; ok {
		return models.ErrConflict
	}
	stored := *token
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	r.s.tokens[stored.TokenHash] = stored
	return nil
}

func (r *memTokens) GetByHash(_ context.Context, tokenHash string) (*models.RefreshToken, error) {
	defer r.s.lock()()
	t, ok := r.s.tokens[tokenHash]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &t, nil
}

func (r *memTokens) DeleteByHash(_ context.Context, tokenHash string) (int64, error) {
	defer r.s.lock()()
	if _, ok := r.s.tokens[tokenHash]; !ok {
		return 0, nil
	}
	delete(r.s.tokens, tokenHash)
	return 1, nil
}

func (r *memTokens) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	defer r.s.lock()()
	var n int64
	for hash, t := range r.s.tokens {
		if t.AccountID == accountID {
			delete(r.s.tokens, hash)
			n++
		}
	}
	return n, nil
}

type memOTPs struct{ s *memStore }

func (r *memOTPs) CreateIfNoneActive(ctx context.Context, otp *models.OTPCode) error {
	return r.s.WithTransaction(ctx, func(ctx context.Context) error {
		defer r.s.lock()()
		if _, ok := r.s.accounts[otp.AccountID]; !ok {
			return models.ErrNotFound
		}
		for _, o := range r.s.otps {
			if o.AccountID == otp.AccountID && !o.Used && !o.ExpiresAt.Before(otp.CreatedAt) {
				return models.ErrTooManyRequests
			}
		}
		if otp.ID == "" {
			otp.ID = uuid.New().String()
		}
		r.s.otps[otp.ID] = *otp
		return nil
	})
}

func (r *memOTPs) FindUnusedForUpdate(_ context.Context, accountID, purpose, code string) (*models.OTPCode, error) {
	defer r.s.lock()()
	var newest *models.OTPCode
	for _, o := range r.s.otps {
		if o.AccountID != accountID || o.Purpose != purpose || o.Code != code || o.Used {
			continue
		}
		if newest == nil || o.CreatedAt.After(newest.CreatedAt) {
			found := o
			newest = &found
		}
	}
	if newest == nil {
		return nil, models.ErrNotFound
	}
	return newest, nil
}

func (r *memOTPs) MarkUsed(_ context.Context, id string, now time.Time) error {
	defer r.s.lock()()
	o, ok := r.s.otps[id]
	if !ok || o.Used {
		return models.ErrNotFound
	}
	o.Used = true
	o.UsedAt = &now
	r.s.otps[id] = o
	return nil
}

func (r *memOTPs) Delete(_ context.Context, id string) error {
	defer r.s.lock()()
	delete(r.s.otps, id)
	return nil
}

// count returns how many code rows exist for accountID
func (r *memOTPs) count(accountID string) int {
	defer r.s.lock()()
	n := 0
	for _, o := range r.s.otps {
		if o.AccountID == accountID {
			n++
		}
	}
	return n
}

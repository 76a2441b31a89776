package identity

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/authgraph/internal/autherr"
	"github.com/congo-pay/authgraph/internal/password"
)

const (
	defaultMaxAttempts     = 5
	defaultLockoutDuration = 15 * time.Minute
)

// Policy configures lockout and MFA gating.
type Policy struct {
	MaxAttempts     int
	LockoutDuration time.Duration
	// RequireMFA makes a plain password login fail with MFA_REQUIRED for
	// accounts that have MFA enabled.
	RequireMFA bool
}

// DefaultPolicy returns 5 attempts, a 15 minute lockout and enforced MFA.
func DefaultPolicy() Policy {
	return Policy{MaxAttempts: defaultMaxAttempts, LockoutDuration: defaultLockoutDuration, RequireMFA: true}
}

// CodeVerifier checks a one-time code against a shared secret.
type CodeVerifier interface {
	VerifyTokenAt(secret, code string, at time.Time) bool
}

// Service runs registration and the login state machine:
// Active → Locked after MaxAttempts failures, Locked → Active once the lock
// expires or an admin unlocks, and the MfaRequired check after a correct password.
type Service struct {
	repo   Repository
	hasher *password.Hasher
	codes  CodeVerifier
	policy Policy
	logger *slog.Logger
	now    func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates the identity service.
func NewService(repo Repository, hasher *password.Hasher, codes CodeVerifier, policy Policy, logger *slog.Logger) *Service {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = defaultMaxAttempts
	}
	if policy.LockoutDuration <= 0 {
		policy.LockoutDuration = defaultLockoutDuration
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, hasher: hasher, codes: codes, policy: policy, logger: logger, now: time.Now}
}

// WithClock replaces the wall clock used for lock decisions.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Register creates a new user with a hashed password.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Profile, error) {
	if strings.TrimSpace(in.Email) == "" {
		return Profile{}, autherr.BadInput("Email is required")
	}
	if res := password.Validate(in.Password); !res.Valid {
		return Profile{}, autherr.BadInput("Invalid password: " + strings.Join(res.Errors, ", "))
	}

	_, err := s.repo.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		return Profile{}, autherr.ErrDuplicateEmail
	case !errors.Is(err, ErrNotFound):
		return Profile{}, s.internal(ctx, "register lookup", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return Profile{}, s.internal(ctx, "register hash", err)
	}

	user := User{
		ID:           uuid.New().String(),
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.repo.Insert(ctx, user); err != nil {
		if errors.Is(err, ErrDuplicateEmail) {
			return Profile{}, autherr.ErrDuplicateEmail
		}
		return Profile{}, s.internal(ctx, "register insert", err)
	}

	s.logger.InfoContext(ctx, "user registered", slog.String("user_id", user.ID))
	return user.Profile(), nil
}

// Login authenticates with email and password.
func (s *Service) Login(ctx context.Context, email, pw string) (Profile, error) {
	user, err := s.checkPassword(ctx, email, pw)
	if err != nil {
		return Profile{}, err
	}
	if s.policy.RequireMFA && user.MFAEnabled {
		return Profile{}, autherr.ErrMFARequired
	}
	if err := s.resetAttempts(ctx, user); err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

// LoginWithMFA authenticates with email, password and a TOTP code. A wrong
// code never touches the attempt counter.
func (s *Service) LoginWithMFA(ctx context.Context, email, pw, code string) (Profile, error) {
	user, err := s.checkPassword(ctx, email, pw)
	if err != nil {
		return Profile{}, err
	}
	if !user.MFAEnabled || user.MFASecret == "" {
		return Profile{}, autherr.ErrMFANotEnabled
	}
	if !s.codes.VerifyTokenAt(user.MFASecret, code, s.now()) {
		return Profile{}, autherr.ErrInvalidMFAToken
	}
	if err := s.resetAttempts(ctx, user); err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

// UnlockAccount clears attempts and lock for email. It reports whether a
// record was actually modified.
func (s *Service) UnlockAccount(ctx context.Context, email string) (bool, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, s.internal(ctx, "unlock lookup", err)
	}
	if user.LoginAttempts == 0 && user.LockedUntil == nil {
		return false, nil
	}
	zero := 0
	matched, err := s.repo.UpdateFields(ctx, user.ID, Changes{LoginAttempts: &zero, ClearLock: true})
	if err != nil {
		return false, s.internal(ctx, "unlock update", err)
	}
	if matched {
		s.logger.InfoContext(ctx, "account unlocked", slog.String("user_id", user.ID))
	}
	return matched, nil
}

// FindByID returns the profile for id, or ErrNotFound.
func (s *Service) FindByID(ctx context.Context, id string) (Profile, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Profile{}, err
	}
	return user.Profile(), nil
}

// checkPassword runs lookup, lock check and password verification with
// failure accounting. Unknown emails and wrong passwords fail identically.
func (s *Service) checkPassword(ctx context.Context, email, pw string) (User, error) {
	user, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		s.burnHash(pw)
		return User{}, autherr.ErrInvalidCredentials
	}
	if err != nil {
		return User{}, s.internal(ctx, "login lookup", err)
	}

	now := s.now()
	if user.LockedAt(now) {
		return User{}, autherr.Locked(ceilMinutes(user.LockedUntil.Sub(now)))
	}

	ok, err := s.hasher.Verify(user.PasswordHash, pw)
	if err != nil {
		return User{}, s.internal(ctx, "login verify", err)
	}
	if !ok {
		return User{}, s.recordFailure(ctx, user, now)
	}
	return user, nil
}

// recordFailure increments the counter and persists the lock before the
// error is returned.
func (s *Service) recordFailure(ctx context.Context, user User, now time.Time) error {
	attempts, err := s.repo.IncrementLoginAttempts(ctx, user.ID)
	if err != nil {
		return s.internal(ctx, "record failed attempt", err)
	}
	if attempts < s.policy.MaxAttempts {
		return autherr.ErrInvalidCredentials
	}

	until := now.Add(s.policy.LockoutDuration)
	if _, err := s.repo.UpdateFields(ctx, user.ID, Changes{LockedUntil: &until}); err != nil {
		return s.internal(ctx, "lock account", err)
	}
	s.logger.WarnContext(ctx, "account locked",
		slog.String("user_id", user.ID),
		slog.Int("attempts", attempts),
		slog.Time("locked_until", until),
	)
	return autherr.LockTripped(ceilMinutes(s.policy.LockoutDuration))
}

func (s *Service) resetAttempts(ctx context.Context, user User) error {
	if user.LoginAttempts == 0 && user.LockedUntil == nil {
		return nil
	}
	zero := 0
	if _, err := s.repo.UpdateFields(ctx, user.ID, Changes{LoginAttempts: &zero, ClearLock: true}); err != nil {
		return s.internal(ctx, "reset attempts", err)
	}
	return nil
}

// burnHash spends one bcrypt comparison so unknown emails cost the same as
// known ones.
func (s *Service) burnHash(pw string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash(uuid.NewString())
	})
	if s.dummyHash != "" {
		_, _ = s.hasher.Verify(s.dummyHash, pw)
	}
}

func (s *Service) internal(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "identity store failure", slog.String("op", op), slog.Any("error", err))
	return autherr.ErrInternal
}

func ceilMinutes(d time.Duration) int {
	return int(math.Ceil(d.Minutes()))
}

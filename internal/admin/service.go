package admin

import (
	"context"
	"time"

	"go.uber.org/zap"

	"gradportal/internal/apperr"
	"gradportal/internal/auth"
	"gradportal/internal/metrics"
)

// SessionIssuer mints sessions for Active admins.
type SessionIssuer interface {
	Issue(username string) (auth.Session, error)
}

// AuthResult is the outcome of a successful credential check.
type AuthResult struct {
	// Granted is true only for Active accounts; a session accompanies it.
	Granted          bool
	RequiresRotation bool
	Profile          Profile
	Session          *auth.Session
}

// Service is the admin credential state machine.
type Service struct {
	store       Store
	hasher      Hasher
	sessions    SessionIssuer
	crossBranch string
	logger      *zap.Logger
	now         func() time.Time
}

// NewService wires the state machine. crossBranch is the branch value whose
// holders see every branch.
func NewService(store Store, hasher Hasher, sessions SessionIssuer, crossBranch string, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:       store,
		hasher:      hasher,
		sessions:    sessions,
		crossBranch: crossBranch,
		logger:      logger,
		now:         time.Now,
	}
}

func (s *Service) roleFor(branch string) Role {
	if s.crossBranch != "" && branch == s.crossBranch {
		return RoleCrossBranch
	}
	return RoleBranch
}

func (s *Service) profile(a *Account) Profile {
	return Profile{
		ID:           a.ID,
		Username:     a.Username,
		Branch:       a.Branch,
		IsFirstLogin: a.FirstLogin,
		Role:         s.roleFor(a.Branch),
	}
}

// Authenticate checks credential against the account's current state.
// FirstLogin accounts are compared as plaintext and never granted a session;
// Active accounts are compared against their hash only.
func (s *Service) Authenticate(ctx context.Context, username, credential string) (AuthResult, error) {
	if username == "" || credential == "" {
		metrics.AdminLogins.WithLabelValues("invalid").Inc()
		return AuthResult{}, apperr.Validation("", "Username and password are required")
	}
	acct, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return AuthResult{}, apperr.Infrastructure("Database error occurred", err)
	}
	if acct == nil {
		metrics.AdminLogins.WithLabelValues("denied").Inc()
		s.logger.Info("admin login denied", zap.String("username", username), zap.String("reason", "unknown account"))
		return AuthResult{}, apperr.Auth("Invalid credentials")
	}

	state := acct.State()
	if !verifierFor(state).Verify(acct.Credential, credential) {
		metrics.AdminLogins.WithLabelValues("denied").Inc()
		s.logger.Info("admin login denied", zap.String("username", acct.Username), zap.Stringer("state", state))
		if state == StateFirstLogin {
			return AuthResult{}, apperr.Auth("Invalid credentials for first-time login. Please check the password.")
		}
		return AuthResult{}, apperr.Auth("Invalid credentials")
	}

	if state == StateFirstLogin {
		metrics.AdminLogins.WithLabelValues("rotation_required").Inc()
		s.logger.Info("admin first login, rotation required", zap.String("username", acct.Username))
		return AuthResult{RequiresRotation: true, Profile: s.profile(acct)}, nil
	}

	res := AuthResult{Granted: true, Profile: s.profile(acct)}
	if s.sessions != nil {
		sess, err := s.sessions.Issue(acct.Username)
		if err != nil {
			return AuthResult{}, apperr.Infrastructure("Authentication error", err)
		}
		res.Session = &sess
	}
	metrics.AdminLogins.WithLabelValues("granted").Inc()
	s.logger.Info("admin login granted", zap.String("username", acct.Username), zap.String("branch", acct.Branch))
	return res, nil
}

// RotatePassword verifies current against the account's state and replaces it
// with a hash of next, moving FirstLogin accounts to Active.
func (s *Service) RotatePassword(ctx context.Context, username, current, next, confirm string) error {
	if err := ValidateRotation(username, current, next, confirm); err != nil {
		metrics.PasswordRotations.WithLabelValues("invalid").Inc()
		return err
	}
	acct, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return apperr.Infrastructure("Database error occurred", err)
	}
	if acct == nil {
		metrics.PasswordRotations.WithLabelValues("not_found").Inc()
		return apperr.NotFound("User not found")
	}
	if !verifierFor(acct.State()).Verify(acct.Credential, current) {
		metrics.PasswordRotations.WithLabelValues("denied").Inc()
		return apperr.Auth("Current password is incorrect")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return apperr.Infrastructure("Failed to change password", err)
	}
	ok, err := s.store.CompleteRotation(ctx, acct.ID, acct.Credential, hash, s.now().UTC())
	if err != nil {
		return apperr.Infrastructure("Failed to update password", err)
	}
	if !ok {
		metrics.PasswordRotations.WithLabelValues("conflict").Inc()
		return apperr.NotFound("User not found or password not updated")
	}
	metrics.PasswordRotations.WithLabelValues("success").Inc()
	s.logger.Info("admin password rotated",
		zap.String("username", acct.Username),
		zap.Stringer("from_state", acct.State()),
	)
	return nil
}

// Scope re-derives the caller's visibility from the store. It is called on
// every protected request and never cached.
func (s *Service) Scope(ctx context.Context, username string) (Scope, error) {
	acct, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		return Scope{}, apperr.Infrastructure("Database error occurred", err)
	}
	if acct == nil {
		return Scope{}, apperr.NotFound("Admin user not found")
	}
	if acct.State() == StateFirstLogin {
		return Scope{}, apperr.Forbidden("Password change required. Please change your password to continue.")
	}
	return Scope{Username: acct.Username, Branch: acct.Branch, Role: s.roleFor(acct.Branch)}, nil
}

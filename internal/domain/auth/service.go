package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	apperrors "github.com/yanqian/todoauth/pkg/errors"
	"github.com/yanqian/todoauth/pkg/metrics"
	"github.com/yanqian/todoauth/pkg/util"
)

// Service exposes authentication workflows.
type Service interface {
	Register(ctx context.Context, req RegisterRequest) (Session, error)
	Login(ctx context.Context, req LoginRequest) (Session, error)
	GoogleAuthURL(state, codeChallenge string) (string, error)
	GoogleCallback(ctx context.Context, code, codeVerifier string) (Session, error)
	Refresh(ctx context.Context, refreshToken string) (Session, error)
	Authenticate(ctx context.Context, accessToken string) (Principal, error)
	Profile(ctx context.Context, userID string) (UserView, error)
	ListUsers(ctx context.Context) ([]UserView, error)
	SetRole(ctx context.Context, userID string, role Role) (UserView, error)
}

type service struct {
	codec    *TokenCodec
	repo     Repository
	hasher   *PasswordHasher
	oauth    *oauthResolver
	password passwordResolver
	refresh  refreshResolver
	now      util.Clock
	metrics  *metrics.Auth
	logger   *slog.Logger
}

const (
	minPasswordLen = 6
	maxPasswordLen = 72
	minNameLen     = 3
)

// NewService constructs a Service instance. provider may be nil, in which case the OAuth
// flow reports that it is not configured.
func NewService(codec *TokenCodec, repo Repository, provider IdentityProvider, clock util.Clock, m *metrics.Auth, logger *slog.Logger) Service {
	if clock == nil {
		clock = util.NowUTC
	}
	logger = logger.With("component", "auth.service")
	hasher := NewPasswordHasher()
	svc := &service{
		codec:    codec,
		repo:     repo,
		hasher:   hasher,
		password: passwordResolver{repo: repo, hasher: hasher, now: clock, logger: logger},
		refresh:  refreshResolver{codec: codec},
		now:      clock,
		metrics:  m,
		logger:   logger,
	}
	// Warm the dummy hash so the first unknown-email login costs one comparison.
	svc.password.dummyHash()
	if provider != nil {
		svc.oauth = &oauthResolver{provider: provider, repo: repo, now: clock, logger: logger}
	}
	return svc
}

func (s *service) Register(ctx context.Context, req RegisterRequest) (Session, error) {
	session, err := s.register(ctx, req)
	s.metrics.Registration(err)
	return session, err
}

func (s *service) register(ctx context.Context, req RegisterRequest) (Session, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid email address", err)
	}
	name, err := normalizeName(req.Name)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeInvalidInput, err.Error(), nil)
	}
	if err := validatePassword(req.Password); err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeInvalidInput, err.Error(), nil)
	}
	_, exists, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return Session{}, storeError("failed to check user", err)
	}
	if exists {
		return Session{}, apperrors.Wrap(apperrors.CodeConflict, "email already registered", nil)
	}
	hashed, err := s.hasher.Hash(req.Password)
	if err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeInternal, "failed to hash password", err)
	}
	user, err := s.repo.Create(ctx, NewUser{
		Email:        email,
		Name:         name,
		Role:         RoleUser,
		PasswordHash: hashed,
		LastLoginAt:  s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			return Session{}, apperrors.Wrap(apperrors.CodeConflict, "email already registered", err)
		}
		return Session{}, storeError("failed to create user", err)
	}
	s.logger.Info("user registered", "user_id", user.ID)
	return s.establish(identityOf(user), true)
}

func (s *service) Login(ctx context.Context, req LoginRequest) (Session, error) {
	id, err := s.password.resolve(ctx, req)
	s.metrics.Login("password", err)
	if err != nil {
		return Session{}, err
	}
	return s.establish(id, true)
}

func (s *service) GoogleAuthURL(state, codeChallenge string) (string, error) {
	if s.oauth == nil {
		return "", errOAuthNotConfigured()
	}
	return s.oauth.provider.AuthCodeURL(state, codeChallenge), nil
}

func (s *service) GoogleCallback(ctx context.Context, code, codeVerifier string) (Session, error) {
	if s.oauth == nil {
		return Session{}, errOAuthNotConfigured()
	}
	id, err := s.oauth.resolve(ctx, oauthCallback{code: code, codeVerifier: codeVerifier})
	s.metrics.Login(s.oauth.provider.Name(), err)
	if err != nil {
		return Session{}, err
	}
	return s.establish(id, true)
}

func (s *service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	id, err := s.refresh.resolve(ctx, refreshToken)
	s.metrics.Verification(tokenTypeRefresh, err)
	s.metrics.Refresh(err)
	if err != nil {
		return Session{}, err
	}
	return s.establish(id, false)
}

func (s *service) Authenticate(ctx context.Context, accessToken string) (Principal, error) {
	claims, err := s.codec.VerifyAccess(accessToken)
	s.metrics.Verification(tokenTypeAccess, err)
	if err != nil {
		return Principal{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid or expired access token", err)
	}
	// The role is re-read so a change in the store applies without waiting for expiry.
	user, found, err := s.repo.FindByID(ctx, claims.Subject)
	if err != nil {
		return Principal{}, storeError("failed to resolve principal", err)
	}
	if !found {
		return Principal{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "principal no longer exists", nil)
	}
	return principalOf(user), nil
}

func (s *service) Profile(ctx context.Context, userID string) (UserView, error) {
	user, found, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return UserView{}, storeError("failed to load profile", err)
	}
	if !found {
		return UserView{}, apperrors.Wrap(apperrors.CodeNotFound, "user not found", nil)
	}
	return toView(user), nil
}

func (s *service) ListUsers(ctx context.Context) ([]UserView, error) {
	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, storeError("failed to list users", err)
	}
	views := make([]UserView, 0, len(users))
	for _, user := range users {
		views = append(views, toView(user))
	}
	return views, nil
}

func (s *service) SetRole(ctx context.Context, userID string, role Role) (UserView, error) {
	if !role.Valid() {
		return UserView{}, apperrors.Wrap(apperrors.CodeInvalidInput, "unknown role", nil)
	}
	user, found, err := s.repo.Update(ctx, userID, UserUpdate{Role: &role})
	if err != nil {
		return UserView{}, storeError("failed to update role", err)
	}
	if !found {
		return UserView{}, apperrors.Wrap(apperrors.CodeNotFound, "user not found", nil)
	}
	s.logger.Info("role changed", "user_id", user.ID, "role", role)
	return toView(user), nil
}

// establish mints tokens for a resolved identity. The refresh token is only issued when
// withRefresh is set.
func (s *service) establish(id identity, withRefresh bool) (Session, error) {
	claims := PrincipalClaims{Subject: id.principal.ID, Role: id.principal.Role}
	access, err := s.codec.SignAccess(claims)
	if err != nil {
		return Session{}, err
	}
	session := Session{Principal: id.principal, AccessToken: access}
	if withRefresh {
		refresh, err := s.codec.SignRefresh(claims)
		if err != nil {
			return Session{}, err
		}
		session.RefreshToken = refresh
	}
	if id.user != nil {
		view := toView(*id.user)
		session.User = &view
	}
	return session, nil
}

func errOAuthNotConfigured() error {
	return apperrors.Wrap(apperrors.CodeConfig, "google oauth is not configured", nil)
}

func toView(user User) UserView {
	return UserView{
		ID:          user.ID,
		Email:       user.Email,
		Name:        user.Name,
		Role:        user.Role,
		PictureURL:  user.PictureURL,
		CreatedAt:   user.CreatedAt,
		LastLoginAt: user.LastLoginAt,
	}
}

func normalizeEmail(raw string) (string, error) {
	email := strings.TrimSpace(strings.ToLower(raw))
	if email == "" {
		return "", errors.New("email cannot be empty")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return "", err
	}
	if addr.Address != email {
		return "", errors.New("email must be a bare address")
	}
	return email, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	if len([]rune(name)) < minNameLen {
		return "", fmt.Errorf("name must be at least %d characters", minNameLen)
	}
	return name, nil
}

func displayName(name, email string) string {
	if trimmed := strings.TrimSpace(name); trimmed != "" {
		return trimmed
	}
	return strings.Split(email, "@")[0]
}

func validatePassword(password string) error {
	if len(password) < minPasswordLen {
		return fmt.Errorf("password must be at least %d characters", minPasswordLen)
	}
	if len(password) > maxPasswordLen {
		return fmt.Errorf("password must be at most %d bytes", maxPasswordLen)
	}
	return nil
}

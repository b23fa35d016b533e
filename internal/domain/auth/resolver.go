package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	apperrors "github.com/yanqian/todoauth/pkg/errors"
	"github.com/yanqian/todoauth/pkg/util"
)

// identity is what a resolver establishes. user is nil when the resolver never touched
// the store (refresh).
type identity struct {
	principal Principal
	user      *User
}

func identityOf(user User) identity {
	return identity{principal: principalOf(user), user: &user}
}

// oauthResolver completes the provider callback and maps the external account onto a
// credential record, creating it on first sign-in.
type oauthResolver struct {
	provider IdentityProvider
	repo     Repository
	now      util.Clock
	logger   *slog.Logger
}

type oauthCallback struct {
	code         string
	codeVerifier string
}

func (r oauthResolver) resolve(ctx context.Context, in oauthCallback) (identity, error) {
	if strings.TrimSpace(in.code) == "" || strings.TrimSpace(in.codeVerifier) == "" {
		return identity{}, apperrors.Wrap(apperrors.CodeInvalidInput, "missing oauth code or verifier", nil)
	}
	profile, err := r.provider.Exchange(ctx, in.code, in.codeVerifier)
	if err != nil {
		if apperrors.CodeOf(err) != "" {
			return identity{}, err
		}
		return identity{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "failed to exchange oauth code", err)
	}
	if err := checkProfile(profile); err != nil {
		return identity{}, err
	}
	email, err := normalizeEmail(profile.Email)
	if err != nil {
		return identity{}, apperrors.Wrap(apperrors.CodeProviderDataIncomplete, "provider returned an invalid email", err)
	}

	now := r.now()
	user, found, err := r.repo.FindByExternalID(ctx, profile.ExternalID)
	if err != nil {
		return identity{}, storeError("failed to fetch user by provider id", err)
	}
	if found {
		return r.login(ctx, user.ID, now)
	}

	created, err := r.repo.Create(ctx, NewUser{
		Email:       email,
		Name:        displayName(profile.Name, email),
		Role:        RoleUser,
		GoogleID:    profile.ExternalID,
		PictureURL:  profile.PictureURL,
		LastLoginAt: now,
	})
	if err != nil {
		if errors.Is(err, ErrExternalIDExists) || errors.Is(err, ErrEmailExists) {
			return r.afterCreateConflict(ctx, profile.ExternalID, now, err)
		}
		return identity{}, storeError("failed to create user", err)
	}
	r.logger.Info("oauth account created", "provider", r.provider.Name(), "user_id", created.ID)
	return identityOf(created), nil
}

// afterCreateConflict handles a failed insert. When a concurrent first login already
// linked the provider account, the caller continues as that returning user; a record
// owning only the email is a conflict.
func (r oauthResolver) afterCreateConflict(ctx context.Context, externalID string, now time.Time, createErr error) (identity, error) {
	user, found, err := r.repo.FindByExternalID(ctx, externalID)
	if err != nil {
		return identity{}, storeError("failed to fetch user by provider id", err)
	}
	if found {
		return r.login(ctx, user.ID, now)
	}
	if errors.Is(createErr, ErrExternalIDExists) {
		return identity{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "account no longer exists", nil)
	}
	return identity{}, apperrors.Wrap(apperrors.CodeConflict, "email already registered", createErr)
}

func (r oauthResolver) login(ctx context.Context, userID string, now time.Time) (identity, error) {
	updated, ok, err := r.repo.Update(ctx, userID, UserUpdate{LastLoginAt: &now})
	if err != nil {
		return identity{}, storeError("failed to record login", err)
	}
	if !ok {
		return identity{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "account no longer exists", nil)
	}
	r.logger.Info("oauth login", "provider", r.provider.Name(), "user_id", updated.ID)
	return identityOf(updated), nil
}

// checkProfile rejects profiles without an email or photo. The photo requirement is a
// policy of this service, not of the provider.
func checkProfile(profile ProviderProfile) error {
	switch {
	case strings.TrimSpace(profile.ExternalID) == "":
		return apperrors.Wrap(apperrors.CodeProviderDataIncomplete, "provider did not return an account id", nil)
	case strings.TrimSpace(profile.Email) == "":
		return apperrors.Wrap(apperrors.CodeProviderDataIncomplete, "provider did not return an email", nil)
	case strings.TrimSpace(profile.PictureURL) == "":
		return apperrors.Wrap(apperrors.CodeProviderDataIncomplete, "provider did not return a photo", nil)
	}
	return nil
}

// passwordResolver verifies local credentials. Unknown email, an account without a
// password and a wrong password produce the same error, and all three pay for one
// bcrypt comparison.
type passwordResolver struct {
	repo   Repository
	hasher *PasswordHasher
	now    util.Clock
	logger *slog.Logger
}

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

func (r passwordResolver) resolve(ctx context.Context, req LoginRequest) (identity, error) {
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return identity{}, apperrors.Wrap(apperrors.CodeInvalidInput, "invalid email address", err)
	}
	if req.Password == "" {
		return identity{}, apperrors.Wrap(apperrors.CodeInvalidInput, "password cannot be empty", nil)
	}
	user, found, err := r.repo.FindByEmail(ctx, email)
	if err != nil {
		return identity{}, storeError("failed to fetch user", err)
	}
	if !found || user.PasswordHash == "" {
		r.hasher.Verify(r.dummyHash(), req.Password)
		return identity{}, errInvalidCredentials()
	}
	if !r.hasher.Verify(user.PasswordHash, req.Password) {
		return identity{}, errInvalidCredentials()
	}
	if r.hasher.NeedsRehash(user.PasswordHash) {
		r.rehash(ctx, user.ID, req.Password)
	}

	now := r.now()
	updated, ok, err := r.repo.Update(ctx, user.ID, UserUpdate{LastLoginAt: &now})
	if err != nil {
		return identity{}, storeError("failed to record login", err)
	}
	if !ok {
		return identity{}, errInvalidCredentials()
	}
	return identityOf(updated), nil
}

func (r passwordResolver) rehash(ctx context.Context, userID, password string) {
	hashed, err := r.hasher.Hash(password)
	if err != nil {
		r.logger.Warn("password rehash failed", "user_id", userID, "error", err)
		return
	}
	if err := r.repo.SetPasswordHash(ctx, userID, hashed); err != nil {
		r.logger.Warn("password rehash not persisted", "user_id", userID, "error", err)
	}
}

func (r passwordResolver) dummyHash() string {
	dummyHashOnce.Do(func() {
		hashed, err := r.hasher.Hash("todoauth-unknown-account")
		if err == nil {
			dummyHash = hashed
		}
	})
	return dummyHash
}

func errInvalidCredentials() error {
	return apperrors.Wrap(apperrors.CodeInvalidCredentials, "invalid email or password", nil)
}

// refreshResolver trusts only the refresh token; it never reads the store.
type refreshResolver struct {
	codec *TokenCodec
}

func (r refreshResolver) resolve(_ context.Context, refreshToken string) (identity, error) {
	claims, err := r.codec.VerifyRefresh(refreshToken)
	if err != nil {
		return identity{}, apperrors.Wrap(apperrors.CodeUnauthenticated, "invalid or expired refresh token", err)
	}
	return identity{principal: Principal{ID: claims.Subject, Role: claims.Role}}, nil
}

func storeError(message string, err error) error {
	return apperrors.Wrap(apperrors.CodeStoreUnavailable, message, err)
}

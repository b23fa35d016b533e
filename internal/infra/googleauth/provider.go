package googleauth

import (
	"context"
	"strings"
	"sync"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/yanqian/todoauth/internal/domain/auth"
	apperrors "github.com/yanqian/todoauth/pkg/errors"
)

const (
	providerName = "google"
	issuerURL    = "https://accounts.google.com"
)

// Config holds the Google OAuth client registration.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Provider implements auth.IdentityProvider against Google's OpenID Connect endpoints.
type Provider struct {
	oauth    *oauth2.Config
	clientID string
	issuer   string

	mu       sync.Mutex
	verifier *oidc.IDTokenVerifier
}

// New builds a Provider. The OIDC discovery document is fetched on first use.
func New(cfg Config) *Provider {
	return &Provider{
		oauth:    oauthConfig(cfg, google.Endpoint),
		clientID: cfg.ClientID,
		issuer:   issuerURL,
	}
}

func oauthConfig(cfg Config, endpoint oauth2.Endpoint) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.CallbackURL,
		Scopes:       []string{oidc.ScopeOpenID, "email", "profile"},
		Endpoint:     endpoint,
	}
}

func (p *Provider) Name() string {
	return providerName
}

// AuthCodeURL returns the consent screen URL bound to state and the PKCE challenge.
func (p *Provider) AuthCodeURL(state, codeChallenge string) string {
	return p.oauth.AuthCodeURL(state,
		oauth2.SetAuthURLParam("prompt", "select_account"),
		oauth2.SetAuthURLParam("code_challenge", codeChallenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// Exchange trades the authorization code for tokens and returns the profile carried by
// the verified ID token.
func (p *Provider) Exchange(ctx context.Context, code, codeVerifier string) (auth.ProviderProfile, error) {
	token, err := p.oauth.Exchange(ctx, code, oauth2.SetAuthURLParam("code_verifier", codeVerifier))
	if err != nil {
		return auth.ProviderProfile{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "failed to exchange oauth code", err)
	}
	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return auth.ProviderProfile{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "missing id_token in oauth response", nil)
	}
	claims, err := p.verifyIDToken(ctx, rawIDToken)
	if err != nil {
		return auth.ProviderProfile{}, err
	}
	if claims.Email != "" && !claims.EmailVerified {
		return auth.ProviderProfile{}, apperrors.Wrap(apperrors.CodeProviderDataIncomplete, "google account email not verified", nil)
	}
	return auth.ProviderProfile{
		ExternalID: claims.Subject,
		Email:      strings.TrimSpace(claims.Email),
		Name:       strings.TrimSpace(claims.Name),
		PictureURL: strings.TrimSpace(claims.Picture),
	}, nil
}

func (p *Provider) verifyIDToken(ctx context.Context, rawToken string) (googleClaims, error) {
	verifier, err := p.idTokenVerifier(ctx)
	if err != nil {
		return googleClaims{}, err
	}
	idToken, err := verifier.Verify(ctx, rawToken)
	if err != nil {
		return googleClaims{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "failed to verify id token", err)
	}
	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return googleClaims{}, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "failed to parse id token claims", err)
	}
	return claims, nil
}

func (p *Provider) idTokenVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.verifier != nil {
		return p.verifier, nil
	}
	provider, err := oidc.NewProvider(ctx, p.issuer)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeOAuthExchangeFailed, "failed to initialize oidc provider", err)
	}
	p.verifier = provider.Verifier(&oidc.Config{ClientID: p.clientID})
	return p.verifier, nil
}

var _ auth.IdentityProvider = (*Provider)(nil)

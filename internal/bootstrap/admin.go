package bootstrap

import (
	"context"
	"log/slog"
	"strings"

	"github.com/yanqian/todoauth/internal/domain/auth"
	apperrors "github.com/yanqian/todoauth/pkg/errors"
)

// AdminTool runs one-off account operations against the configured store.
type AdminTool struct {
	repo   auth.Repository
	svc    auth.Service
	logger *slog.Logger
}

// NewAdminTool is used by Wire to build the command line admin tool.
func NewAdminTool(repo auth.Repository, svc auth.Service, logger *slog.Logger) *AdminTool {
	return &AdminTool{repo: repo, svc: svc, logger: logger.With("component", "admin")}
}

// SetRoleByEmail looks the account up by email and assigns role to it.
func (a *AdminTool) SetRoleByEmail(ctx context.Context, email string, role auth.Role) (auth.UserView, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, found, err := a.repo.FindByEmail(ctx, email)
	if err != nil {
		return auth.UserView{}, apperrors.Wrap(apperrors.CodeStoreUnavailable, "lookup failed", err)
	}
	if !found {
		return auth.UserView{}, apperrors.Wrap(apperrors.CodeNotFound, "no account for "+email, nil)
	}
	view, err := a.svc.SetRole(ctx, user.ID, role)
	if err != nil {
		return auth.UserView{}, err
	}
	a.logger.Info("role assigned from command line", "user_id", view.ID, "role", view.Role)
	return view, nil
}

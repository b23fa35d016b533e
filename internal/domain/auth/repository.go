package auth

import "context"

// Repository abstracts credential record persistence. Lookups report absence through the
// boolean rather than an error; errors mean the store itself failed.
type Repository interface {
	FindByEmail(ctx context.Context, email string) (User, bool, error)
	FindByExternalID(ctx context.Context, externalID string) (User, bool, error)
	FindByID(ctx context.Context, id string) (User, bool, error)
	// Create returns ErrEmailExists when the email is taken.
	Create(ctx context.Context, user NewUser) (User, error)
	Update(ctx context.Context, id string, update UserUpdate) (User, bool, error)
	SetPasswordHash(ctx context.Context, id, passwordHash string) error
	List(ctx context.Context) ([]User, error)
}

package auth

import "time"

// Token lifetimes are fixed; cookie lifetimes in the transport layer mirror them.
const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Config drives authentication behavior.
type Config struct {
	AccessSecret  string
	RefreshSecret string
}

// User is the credential record owned by the store.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"-"`
	GoogleID     string    `json:"-"`
	PictureURL   string    `json:"pictureUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	LastLoginAt  time.Time `json:"lastLoginAt"`
}

// NewUser carries the fields required to create a credential record.
type NewUser struct {
	Email        string
	Name         string
	Role         Role
	PasswordHash string
	GoogleID     string
	PictureURL   string
	LastLoginAt  time.Time
}

// UserUpdate lists the mutable fields of a record; nil fields are left untouched.
type UserUpdate struct {
	Name        *string
	Role        *Role
	PictureURL  *string
	LastLoginAt *time.Time
}

// UserView trims sensitive fields.
type UserView struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	Name        string    `json:"name"`
	Role        Role      `json:"role"`
	PictureURL  string    `json:"pictureUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	LastLoginAt time.Time `json:"lastLoginAt"`
}

// RegisterRequest captures the registration payload.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest captures login details.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Session is the outcome of an identity resolver: the established principal and the
// tokens minted for it. RefreshToken is empty when only an access token was issued.
type Session struct {
	Principal    Principal
	User         *UserView
	AccessToken  string
	RefreshToken string
}

// ProviderProfile is the subset of an external identity the OAuth flow relies on.
type ProviderProfile struct {
	ExternalID string
	Email      string
	Name       string
	PictureURL string
}

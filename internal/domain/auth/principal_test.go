package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAuthorize(t *testing.T) {
	user := &Principal{ID: "u1", Role: RoleUser}
	admin := &Principal{ID: "a1", Role: RoleAdmin}

	cases := []struct {
		name      string
		principal *Principal
		required  Role
		want      Decision
	}{
		{"no principal, user route", nil, RoleUser, DenyUnauthenticated},
		{"no principal, admin route", nil, RoleAdmin, DenyUnauthenticated},
		{"empty principal", &Principal{}, RoleUser, DenyUnauthenticated},
		{"user on user route", user, RoleUser, Allow},
		{"user on admin route", user, RoleAdmin, DenyForbidden},
		{"admin on user route", admin, RoleUser, Allow},
		{"admin on admin route", admin, RoleAdmin, Allow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, Authorize(tc.principal, tc.required))
		})
	}
}

func TestParseRole(t *testing.T) {
	role, ok := ParseRole("admin")
	require.True(t, ok)
	require.Equal(t, RoleAdmin, role)

	_, ok = ParseRole("Admin")
	require.False(t, ok)
	_, ok = ParseRole("")
	require.False(t, ok)
}

func TestPrincipalContext(t *testing.T) {
	_, ok := PrincipalFromContext(context.Background())
	require.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{ID: "u1", Role: RoleAdmin})
	got, ok := PrincipalFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, Principal{ID: "u1", Role: RoleAdmin}, got)
}

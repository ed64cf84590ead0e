// Package session models the authenticated user and the read-only views
// navigation components derive from it.
package session

import (
	"context"
	"strings"
)

// RoleAdmin unlocks the admin dashboard.
const RoleAdmin = "admin"

// User is the identity attached to a request by the auth middleware.
type User struct {
	ID        string `json:"_id"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
}

// DisplayName prefers the full name and falls back to the username.
func (u User) DisplayName() string {
	full := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if full != "" {
		return full
	}
	return u.Username
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// NavigationView is what the navigation bar renders for a user.
type NavigationView struct {
	UserID             string `json:"userId"`
	DisplayName        string `json:"displayName"`
	Role               string `json:"role,omitempty"`
	ShowAdminDashboard bool   `json:"showAdminDashboard"`
	ShowMessages       bool   `json:"showMessages"`
}

func (u User) Navigation() NavigationView {
	return NavigationView{
		UserID:             u.ID,
		DisplayName:        u.DisplayName(),
		Role:               u.Role,
		ShowAdminDashboard: u.IsAdmin(),
		ShowMessages:       u.ID != "",
	}
}

type userKey struct{}

// NewContext attaches u to ctx. Only the authentication layer calls this.
func NewContext(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

// FromContext returns the user attached by NewContext.
func FromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(userKey{}).(User)
	return u, ok
}

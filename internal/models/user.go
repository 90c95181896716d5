package models

import "time"

const (
	RoleAdmin   = "admin"
	RoleViewer  = "viewer"
	RoleTracked = "tracked"
)

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleViewer, RoleTracked:
		return true
	}
	return false
}

type User struct {
	ID                   string    `json:"id"`
	Username             string    `json:"username"`
	Email                string    `json:"email,omitempty"`
	DisplayName          string    `json:"display_name,omitempty"`
	PasswordHash         string    `json:"-"`
	Role                 string    `json:"role"`
	NotificationsEnabled bool      `json:"notifications"`
	AutoRefresh          bool      `json:"auto_refresh"`
	CreatedAt            time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	Role         string `json:"role"`
	User         *User  `json:"user,omitempty"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// ChangePasswordRequest is shared by the profile form and the reset form.
type ChangePasswordRequest struct {
	Token           string `json:"token,omitempty"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// ProfileUpdate holds the optional fields of PATCH /api/profile.
type ProfileUpdate struct {
	Username      *string `json:"username,omitempty"`
	Notifications *bool   `json:"notifications,omitempty"`
	AutoRefresh   *bool   `json:"auto_refresh,omitempty"`
}

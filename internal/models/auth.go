package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued token and user info.
type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresIn   int64     `json:"expires_in"`
	User        UserInfo  `json:"user"`
	IssuedAt    time.Time `json:"issued_at"`
}

// UpdateTimezoneRequest stores the viewer timezone used for display projection.
type UpdateTimezoneRequest struct {
	Timezone string `json:"timezone" validate:"omitempty,iana_zone"`
}

// UserInfo describes the authenticated user in responses.
type UserInfo struct {
	ID       string   `json:"id"`
	CustomID string   `json:"custom_id,omitempty"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Role     UserRole `json:"role"`
	Timezone string   `json:"timezone"`
}

// NewUserInfo projects a stored user into its public shape.
func NewUserInfo(user *User) UserInfo {
	return UserInfo{
		ID:       user.ID,
		CustomID: user.CustomID,
		Email:    user.Email,
		Name:     user.Name,
		Role:     user.Role,
		Timezone: user.Timezone,
	}
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	Email  string   `json:"email"`
	Name   string   `json:"name"`
	jwt.RegisteredClaims
}

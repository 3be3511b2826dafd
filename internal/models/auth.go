package models

import "github.com/golang-jwt/jwt/v5"

// SignupRequest holds the payload for account registration.
type SignupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// AuthResponse returns the issued token and the public user view.
type AuthResponse struct {
	Token string   `json:"token"`
	User  UserInfo `json:"user"`
}

// TokenClaims is the JWT payload. The token carries only the account id;
// callers resolve it to a full user on every request.
type TokenClaims struct {
	UserID string `json:"id"`
	jwt.RegisteredClaims
}

package transfer

import "github.com/golang-jwt/jwt/v5"

const RoleAdmin = "admin"

type CustomClaims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

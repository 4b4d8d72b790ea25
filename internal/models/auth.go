package models

import "github.com/golang-jwt/jwt/v5"

// UserRole represents marketplace actor roles.
type UserRole string

const (
	RoleBuyer  UserRole = "BUYER"
	RoleSeller UserRole = "SELLER"
	RoleAdmin  UserRole = "ADMIN"
)

// JWTClaims represents the JWT payload for access tokens issued by the
// marketplace identity service. This API only validates tokens; issuance
// lives elsewhere.
type JWTClaims struct {
	UserID   string   `json:"userId"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"fullName"`
	jwt.RegisteredClaims
}

package models

import (
	"github.com/golang-jwt/jwt/v5"
)

// JWTClaims is the identity attached to an authenticated request.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email,omitempty"`
	FullName string   `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// IsStaff reports whether the caller has moderation rights.
func (c *JWTClaims) IsStaff() bool {
	return c != nil && c.Role.Staff()
}

// OwnsItem reports whether the caller authored the item.
func (c *JWTClaims) OwnsItem(item *ArchiveItem) bool {
	if c == nil || item == nil || c.UserID == "" {
		return false
	}
	return item.AuthorID == c.UserID
}

// CanView reports whether the caller may read the item in its current status.
func (c *JWTClaims) CanView(item *ArchiveItem) bool {
	if item == nil {
		return false
	}
	if item.Status == StatusPublished {
		return true
	}
	return c.IsStaff() || c.OwnsItem(item)
}

package accounts

import (
	"time"

	"github.com/google/uuid"

	"github.com/medora/medora/pkg/auth"
)

// Account is a login of the platform. Root accounts are providers; member
// accounts point at their provider through AccountProviderID.
type Account struct {
	ID                uuid.UUID  `json:"id"`
	Email             string     `json:"email"`
	Phone             *string    `json:"phone"`
	Name              string     `json:"name"`
	Kind              auth.Kind  `json:"kind"`
	Verified          bool       `json:"is_verified"`
	ProviderVerified  bool       `json:"is_provider_verified"`
	AccountProviderID *uuid.UUID `json:"account_provider_id"`
	RoleID            *uuid.UUID `json:"role_id"`
	ProfileID         *uuid.UUID `json:"profile_id"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ProviderID is the tenant root of the account
func (a *Account) ProviderID() uuid.UUID {
	if a.AccountProviderID != nil {
		return *a.AccountProviderID
	}
	return a.ID
}

// Identity is the identity carried in the account's tokens
func (a *Account) Identity() auth.Identity {
	return auth.Identity{
		AccountID:  a.ID,
		RoleID:     a.RoleID,
		ProviderID: a.ProviderID(),
		Kind:       a.Kind,
		Verified:   a.Verified,
		ProfileID:  a.ProfileID,
	}
}

// RegisterRequest is the body of POST /auth/register
type RegisterRequest struct {
	Email       string    `json:"email" validate:"required,email,max=255"`
	Password    string    `json:"password" validate:"required,min=8,max=72"`
	Name        string    `json:"name" validate:"max=255"`
	Phone       *string   `json:"phone" validate:"omitempty,max=32"`
	Kind        auth.Kind `json:"kind" validate:"required,oneof=1 2 3"`
	DisplayName string    `json:"display_name" validate:"max=255"`
}

// LoginRequest is the body of POST /auth/login
type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse carries an issued access token
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Account   *Account  `json:"account"`
}

// CreateMemberRequest is the body of POST /accounts
type CreateMemberRequest struct {
	Email    string    `json:"email" validate:"required,email,max=255"`
	Password string    `json:"password" validate:"required,min=8,max=72"`
	Name     string    `json:"name" validate:"max=255"`
	Phone    *string   `json:"phone" validate:"omitempty,max=32"`
	RoleID   uuid.UUID `json:"role_id" validate:"required"`
}

// NewAccount holds the columns of an account insert
type NewAccount struct {
	Email            string
	Phone            *string
	Name             string
	PasswordHash     string
	Kind             auth.Kind
	ProviderVerified bool
	ProviderID       *uuid.UUID
	RoleID           *uuid.UUID
	ProfileID        *uuid.UUID
}

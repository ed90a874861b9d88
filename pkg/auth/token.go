package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ErrInvalidToken indicates the token failed signature, expiry or claim checks
var ErrInvalidToken = errors.New("invalid token")

// Claims are the JWT claims issued at login
type Claims struct {
	RoleID     string `json:"role_id,omitempty"`
	Verified   bool   `json:"is_verified"`
	Kind       Kind   `json:"kind"`
	ProviderID string `json:"provider_id"`
	ProfileID  string `json:"profile_id,omitempty"`
	jwt.RegisteredClaims
}

// Identity decodes the identity carried by the claims
func (c *Claims) Identity() (Identity, error) {
	accountID, err := uuid.Parse(c.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("subject: %w", err)
	}
	providerID, err := uuid.Parse(c.ProviderID)
	if err != nil {
		return Identity{}, fmt.Errorf("provider_id: %w", err)
	}
	roleID, err := parseOptionalUUID(c.RoleID)
	if err != nil {
		return Identity{}, fmt.Errorf("role_id: %w", err)
	}
	profileID, err := parseOptionalUUID(c.ProfileID)
	if err != nil {
		return Identity{}, fmt.Errorf("profile_id: %w", err)
	}
	if !c.Kind.Valid() {
		return Identity{}, fmt.Errorf("kind: unknown value %d", int(c.Kind))
	}

	return Identity{
		AccountID:  accountID,
		RoleID:     roleID,
		ProviderID: providerID,
		Kind:       c.Kind,
		Verified:   c.Verified,
		ProfileID:  profileID,
	}, nil
}

func parseOptionalUUID(s string) (*uuid.UUID, error) {
	if s == "" {
		return nil, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func optionalString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

// TokenManager signs and verifies HS256 access tokens
type TokenManager struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager. The secret must not be empty.
func NewTokenManager(secret, issuer string, ttl time.Duration) (*TokenManager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("token ttl must be greater than zero")
	}
	return &TokenManager{
		secret: []byte(secret),
		issuer: issuer,
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// Issue signs a token for id and returns it with its expiry
func (tm *TokenManager) Issue(id Identity) (string, time.Time, error) {
	if id.AccountID == uuid.Nil {
		return "", time.Time{}, errors.New("account id is required")
	}

	now := tm.now().UTC()
	expiresAt := now.Add(tm.ttl)
	claims := Claims{
		RoleID:     optionalString(id.RoleID),
		Verified:   id.Verified,
		Kind:       id.Kind,
		ProviderID: id.ProviderID.String(),
		ProfileID:  optionalString(id.ProfileID),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tm.issuer,
			Subject:   id.AccountID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt, nil
}

// Parse verifies the signature, issuer and expiry of token and decodes the
// identity it carries. Every failure is reported as ErrInvalidToken.
func (tm *TokenManager) Parse(token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tm.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(tm.now),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	id, err := claims.Identity()
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return id, nil
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value. It returns "" when the header is absent or malformed.
func BearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// InternalTokenTTL bounds an internal token's lifetime: these are
// short-lived credentials minted per tool call, never shared, never
// renewed.
const InternalTokenTTL = 5 * time.Minute

// ErrInvalidInternalToken is returned by Resolve for any token that fails
// signature verification, has expired, or omits the subject claim.
var ErrInvalidInternalToken = errors.New("invalid internal token")

// internalClaims is the wire shape of an InternalToken: {sub, tenant_id,
// user_role, email, internal, exp}.
type internalClaims struct {
	TenantUUID string `json:"tenant_id"`
	UserRole   string `json:"user_role,omitempty"`
	Email      string `json:"email,omitempty"`
	Internal   bool   `json:"internal"`
	jwt.RegisteredClaims
}

// InternalTokenMinter mints and resolves short-lived internal tokens
// (C2). It carries the caller's true role verbatim so that
// backend-initiated work preserves the caller's resource-layer visibility
// scope; Resolve defaults an absent role to RoleEmployee rather than ever
// inferring elevated access.
type InternalTokenMinter struct {
	secret []byte
}

// NewInternalTokenMinter builds a minter over a symmetric signing secret.
// The secret is the INTERNAL_JWT_SECRET configuration value; rotation is
// out of scope (callers must invalidate in-flight tokens across a
// rotation themselves).
func NewInternalTokenMinter(secret string) *InternalTokenMinter {
	return &InternalTokenMinter{secret: []byte(secret)}
}

// Mint issues an opaque signed token for id, fixed at InternalTokenTTL.
func (m *InternalTokenMinter) Mint(id CallerIdentity) (string, error) {
	if m == nil || len(m.secret) == 0 {
		return "", ErrAuthDisabled
	}
	if strings.TrimSpace(id.ID) == "" {
		return "", errors.New("caller id required")
	}

	now := time.Now()
	claims := internalClaims{
		TenantUUID: id.TenantUUID,
		UserRole:   string(id.Role),
		Email:      strings.TrimSpace(id.Email),
		Internal:   true,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(InternalTokenTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(m.secret)
}

// Resolve parses and validates an internal token, returning the
// CallerIdentity it carries. An absent or unrecognized user_role claim
// resolves to RoleEmployee — never to an elevated role — per the role
// fidelity invariant.
func (m *InternalTokenMinter) Resolve(token string) (CallerIdentity, error) {
	if m == nil || len(m.secret) == 0 {
		return CallerIdentity{}, ErrAuthDisabled
	}

	parsed, err := jwt.ParseWithClaims(token, &internalClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return CallerIdentity{}, ErrInvalidInternalToken
	}

	claims, ok := parsed.Claims.(*internalClaims)
	if !ok || !parsed.Valid {
		return CallerIdentity{}, ErrInvalidInternalToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return CallerIdentity{}, ErrInvalidInternalToken
	}

	id := CallerIdentity{
		ID:         claims.Subject,
		Email:      claims.Email,
		Role:       Role(claims.UserRole),
		TenantUUID: claims.TenantUUID,
		Internal:   claims.Internal,
	}
	return id.WithDefaultedRole(), nil
}

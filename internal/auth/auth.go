// Package auth issues and validates bearer tokens and hashes operator
// credential verifiers. Per spec.md §1, full login/session issuance lives
// outside the core; this package is the minimal reference implementation
// needed to actually serve the Register/Authenticate operations spec.md
// §4.7 names — no SSO, no MFA, no password reset.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/dreadnought-systems/airwatch/internal/apierr"
	"github.com/dreadnought-systems/airwatch/internal/model"
)

// Claims is the JWT payload: the operator id, email, and role, the last of
// which every admin-gated route checks.
type Claims struct {
	OperatorID int64             `json:"operator_id"`
	Email      string            `json:"email"`
	Role       model.OperatorRole `json:"role"`
	jwt.RegisteredClaims
}

// Issuer mints and validates bearer tokens signed with a single HMAC key.
type Issuer struct {
	signingKey []byte
	ttl        time.Duration
}

// NewIssuer constructs an Issuer. signingKey must be non-empty.
func NewIssuer(signingKey string, ttl time.Duration) *Issuer {
	return &Issuer{signingKey: []byte(signingKey), ttl: ttl}
}

// Issue mints a bearer token for the given operator.
func (iss *Issuer) Issue(op model.Operator) (string, error) {
	now := time.Now()
	claims := Claims{
		OperatorID: op.ID,
		Email:      op.Email,
		Role:       op.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(iss.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(iss.signingKey)
}

// Validate parses and verifies a bearer token, returning its claims.
// Expired or malformed tokens return an Unauthenticated apierr.
func (iss *Issuer) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return iss.signingKey, nil
	})
	if err != nil || !token.Valid {
		return nil, apierr.New(apierr.Unauthenticated, "invalid or expired token")
	}
	return claims, nil
}

// HashCredential produces the opaque verifier stored against an operator
// account.
func HashCredential(plaintext string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plaintext), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyCredential reports whether plaintext matches the stored verifier.
func VerifyCredential(verifier, plaintext string) bool {
	return bcrypt.CompareHashAndPassword([]byte(verifier), []byte(plaintext)) == nil
}

// RequireRole reports whether claims authorize an operation gated to
// requiredRole. Admins satisfy any gate; analysts only satisfy analyst
// gates.
func RequireRole(claims *Claims, requiredRole model.OperatorRole) bool {
	if claims.Role == model.RoleAdmin {
		return true
	}
	return claims.Role == requiredRole
}

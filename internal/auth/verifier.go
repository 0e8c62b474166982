package auth

import (
	"context"
	"fmt"

	"github.com/edulane/insights-api/internal/models"
	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Verifier verifies bearer tokens issued by the platform's identity service
// and resolves them to an operator. The identity service owns login flows;
// this API only checks signatures and claims.
type Verifier struct {
	jwksManager *JWKSManager
	issuer      string
	jwksURL     string
}

// NewVerifier creates a new token verifier.
func NewVerifier(jwksManager *JWKSManager, issuer, jwksURL string) *Verifier {
	return &Verifier{
		jwksManager: jwksManager,
		issuer:      issuer,
		jwksURL:     jwksURL,
	}
}

// Verify verifies a token and extracts the operator. The subject claim must
// be the operator's UUID; the role claim must name a known operator role.
func (v *Verifier) Verify(ctx context.Context, tokenString string) (*models.Operator, error) {
	keys, err := v.jwksManager.GetJWKS(ctx, v.jwksURL)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWKS: %w", err)
	}

	token, err := jwt.Parse([]byte(tokenString), jwt.WithKeySet(keys), jwt.WithValidate(true))
	if err != nil {
		return nil, fmt.Errorf("failed to parse/verify token: %w", err)
	}

	iss, ok := token.Get("iss")
	if !ok {
		return nil, fmt.Errorf("token missing issuer claim")
	}
	if issStr, ok := iss.(string); !ok || issStr != v.issuer {
		return nil, fmt.Errorf("token issuer mismatch: expected %s, got %v", v.issuer, iss)
	}

	operatorID, err := uuid.Parse(token.Subject())
	if err != nil {
		return nil, fmt.Errorf("token subject is not a valid operator id: %w", err)
	}

	roleClaim, ok := token.Get("role")
	if !ok {
		return nil, fmt.Errorf("token missing role claim")
	}
	roleStr, ok := roleClaim.(string)
	if !ok {
		return nil, fmt.Errorf("token role claim is not a string")
	}
	role := models.OperatorRole(roleStr)
	if !role.Valid() {
		return nil, fmt.Errorf("unknown operator role %q", roleStr)
	}

	return &models.Operator{
		ID:   operatorID,
		Role: role,
	}, nil
}

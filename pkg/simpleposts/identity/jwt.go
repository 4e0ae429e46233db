// Package identity resolves bearer tokens into principals using
// go-chi/jwtauth.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

// DefaultEmailClaim is the claim holding the principal's email address.
const DefaultEmailClaim = "email"

// Resolver verifies HS256 tokens and reads the subject and email claims.
type Resolver struct {
	auth       *jwtauth.JWTAuth
	emailClaim string
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithEmailClaim reads the email from a claim other than "email".
func WithEmailClaim(claim string) Option {
	return func(r *Resolver) {
		if claim != "" {
			r.emailClaim = claim
		}
	}
}

// New creates a resolver that signs and verifies tokens with secret.
func New(secret string, opts ...Option) (*Resolver, error) {
	if secret == "" {
		return nil, errors.New("jwt secret is required")
	}
	r := &Resolver{
		auth:       jwtauth.New("HS256", []byte(secret), nil),
		emailClaim: DefaultEmailClaim,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve implements simpleposts.IdentityResolver.
func (r *Resolver) Resolve(ctx context.Context, creds simpleposts.Credentials) (*simpleposts.Principal, error) {
	tokenString := strings.TrimSpace(creds.Token)
	if tokenString == "" {
		return nil, simpleposts.ErrUnauthenticated
	}

	token, err := jwtauth.VerifyToken(r.auth, tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", simpleposts.ErrUnauthenticated, err)
	}

	principal := &simpleposts.Principal{Subject: token.Subject()}
	if v, ok := token.Get(r.emailClaim); ok {
		if email, ok := v.(string); ok {
			principal.Email = strings.TrimSpace(email)
		}
	}
	if principal.Email == "" {
		return nil, fmt.Errorf("%w: token has no %s claim", simpleposts.ErrUnauthenticated, r.emailClaim)
	}
	return principal, nil
}

// IssueToken signs a token for subject and email that expires after ttl.
// A zero ttl produces a token without expiry.
func (r *Resolver) IssueToken(subject, email string, ttl time.Duration) (string, error) {
	claims := map[string]interface{}{
		"sub":        subject,
		r.emailClaim: email,
	}
	jwtauth.SetIssuedNow(claims)
	if ttl > 0 {
		jwtauth.SetExpiryIn(claims, ttl)
	}

	_, tokenString, err := r.auth.Encode(claims)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

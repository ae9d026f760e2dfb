package linkage

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// ContinuationTTL is how long a redirect continuation stays valid.
const ContinuationTTL = 15 * time.Minute

// DefaultReturnPath is used whenever a continuation cannot be honored.
const DefaultReturnPath = "/register"

var (
	ErrUnsafeReturnPath = errors.New("return location must be a same-site relative path")
	ErrMissingSecret    = errors.New("continuation signing secret is required")
)

// Continuation restores flow state after an identity-provider redirect.
type Continuation struct {
	ID       string
	ReturnTo string
	IssuedAt time.Time
}

type continuationClaims struct {
	jwt.RegisteredClaims
	ReturnTo string `json:"rt"`
}

// ContinuationSigner issues and verifies continuation tokens.
type ContinuationSigner struct {
	Secret []byte
	Now    func() time.Time
}

// NewContinuationSigner returns a signer using secret and the wall clock.
func NewContinuationSigner(secret []byte) *ContinuationSigner {
	return &ContinuationSigner{Secret: secret, Now: time.Now}
}

func (s *ContinuationSigner) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Issue signs a continuation for returnTo.
// PRE: returnTo is a same-site relative path
// POST: Returns an HS256 token that expires ContinuationTTL after issue
func (s *ContinuationSigner) Issue(returnTo string) (string, error) {
	if len(s.Secret) == 0 {
		return "", ErrMissingSecret
	}
	if !SafeReturnPath(returnTo) {
		return "", ErrUnsafeReturnPath
	}
	now := s.now().UTC()
	claims := continuationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ContinuationTTL)),
		},
		ReturnTo: returnTo,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("sign continuation: %w", err)
	}
	return signed, nil
}

// Resume checks a continuation token returned from a redirect.
// Missing, forged, stale or unsafe tokens all report ok=false; callers then start a fresh session.
// POST: ok is true only for a well-signed token younger than ContinuationTTL
func (s *ContinuationSigner) Resume(token string) (Continuation, bool) {
	token = strings.TrimSpace(token)
	if token == "" || len(s.Secret) == 0 {
		return Continuation{}, false
	}
	var parsed continuationClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return s.Secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || parsed.IssuedAt == nil || parsed.ExpiresAt == nil {
		return Continuation{}, false
	}

	now := s.now().UTC()
	issued := parsed.IssuedAt.Time.UTC()
	if !parsed.ExpiresAt.Time.After(now) || now.Sub(issued) >= ContinuationTTL || issued.After(now.Add(time.Minute)) {
		return Continuation{}, false
	}
	if !SafeReturnPath(parsed.ReturnTo) {
		return Continuation{}, false
	}
	return Continuation{ID: parsed.ID, ReturnTo: parsed.ReturnTo, IssuedAt: issued}, true
}

// SafeReturnPath reports whether p is a relative path on this site.
func SafeReturnPath(p string) bool {
	if p == "" || !strings.HasPrefix(p, "/") || strings.HasPrefix(p, "//") || strings.ContainsAny(p, "\\\r\n") {
		return false
	}
	u, err := url.Parse(p)
	if err != nil {
		return false
	}
	return u.Scheme == "" && u.Host == "" && u.User == nil
}

/*
auth.go - Bearer token identity

PURPOSE:
  Resolves the acting account from an HS256 JWT issued by the external
  identity provider. Handlers never read identity from anywhere else.

CLAIMS:
  sub   account id (fan or artist)
  name  display name, used as artist name on upload
  role  "fan" or "artist"

BEHAVIOR:
  - No Authorization header: request continues anonymously
  - Malformed or invalid token: 401
  - Valid token: Identity stored in the request context
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/warp/fanfund/market"
)

const (
	RoleFan    = "fan"
	RoleArtist = "artist"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller.
type Identity struct {
	ID   market.AccountID
	Name string
	Role string
}

func (i Identity) IsArtist() bool { return i.Role == RoleArtist }

// Claims is the token payload.
type Claims struct {
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Authenticator verifies bearer tokens.
type Authenticator struct {
	secret []byte
	log    *zap.Logger
}

func NewAuthenticator(secret string, log *zap.Logger) *Authenticator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Authenticator{secret: []byte(secret), log: log}
}

// Issue signs a token for id. Used by the CLI and tests; production tokens
// come from the identity provider.
func (a *Authenticator) Issue(id Identity, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Name: id.Name,
		Role: id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(id.ID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// Verify parses and validates a raw token.
func (a *Authenticator) Verify(raw string) (Identity, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("invalid token: %w", err)
	}
	id := Identity{ID: market.AccountID(claims.Subject), Name: claims.Name, Role: claims.Role}
	if id.ID.Blank() {
		return Identity{}, errors.New("invalid token: missing subject")
	}
	if id.Role == "" {
		id.Role = RoleFan
	}
	return id, nil
}

// Middleware attaches the caller's Identity when a bearer token is present.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "bearer") {
			writeError(w, http.StatusUnauthorized, "invalid Authorization header", nil)
			return
		}
		id, err := a.Verify(strings.TrimSpace(token))
		if err != nil {
			a.log.Warn("authentication failed",
				zap.Error(err),
				zap.String("path", r.URL.Path),
			)
			writeError(w, http.StatusUnauthorized, "authentication failed", err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// IdentityFrom returns the caller, or ok=false for anonymous requests.
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}

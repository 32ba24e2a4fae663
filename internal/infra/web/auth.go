package web

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const sessionCookie = "studio_session"

// AuthManager mints and verifies the signed session cookie. Tokens are HS256
// JWTs; the cookie is HttpOnly so the browser only ever replays it.
type AuthManager struct {
	secret []byte
	domain string
	secure bool
	ttl    time.Duration
}

func NewAuthManager(secret string, secure bool, domain string, ttl time.Duration) *AuthManager {
	return &AuthManager{
		secret: []byte(secret),
		domain: domain, // empty means host-only cookie
		secure: secure,
		ttl:    ttl,
	}
}

type SessionClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

// Mint signs a session token for userID and sets it as a cookie so the
// event stream can authenticate without headers.
func (a *AuthManager) Mint(w http.ResponseWriter, userID string) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   userID,
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", err
	}
	a.writeCookie(w, signed, int(a.ttl.Seconds()))
	return signed, nil
}

// Clear expires the cookie immediately.
func (a *AuthManager) Clear(w http.ResponseWriter) {
	a.writeCookie(w, "", -1)
}

func (a *AuthManager) writeCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    value,
		Path:     "/",
		Domain:   a.domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   a.secure,
		SameSite: http.SameSiteStrictMode,
	})
}

// ParseFromRequest accepts either an Authorization bearer header or the
// session cookie. The header wins when both are present.
func (a *AuthManager) ParseFromRequest(r *http.Request) (*SessionClaims, error) {
	if hdr := r.Header.Get("Authorization"); hdr != "" {
		if strings.HasPrefix(strings.ToLower(hdr), "bearer ") {
			return a.parse(strings.TrimSpace(hdr[7:]))
		}
	}
	if c, err := r.Cookie(sessionCookie); err == nil {
		return a.parse(c.Value)
	}
	return nil, errors.New("missing token")
}

func (a *AuthManager) parse(tok string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	})
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.UserID == "" {
		return nil, errors.New("token carries no user")
	}
	return claims, nil
}

type ctxKey string

const ctxSessionUser ctxKey = "session_user"

func withSessionUser(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxSessionUser, userID)
}

// sessionUser returns the authenticated user id the middleware stashed on
// the request context. Empty outside authenticated routes.
func sessionUser(ctx context.Context) string {
	if v := ctx.Value(ctxSessionUser); v != nil {
		return v.(string)
	}
	return ""
}

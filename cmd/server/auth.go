package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/Simplici0/printbill/internal/session"
)

const sessionCookieName = "printbill_session"

type authService struct {
	db            *sql.DB
	sessionSecret []byte
}

func newAuthService(db *sql.DB, sessionSecret string) *authService {
	return &authService{db: db, sessionSecret: []byte(sessionSecret)}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// lookupUser returns the identity stored for email and its password hash.
func (a *authService) lookupUser(ctx context.Context, email string) (session.User, string, error) {
	var (
		u    session.User
		hash string
	)
	err := a.db.QueryRowContext(ctx, `
		SELECT email, password_hash, role, client_id, client_name
		FROM users
		WHERE email = ?
	`, normalizeEmail(email)).Scan(&u.Email, &hash, &u.Role, &u.ClientID, &u.ClientName)
	if err != nil {
		return session.User{}, "", err
	}
	return u, hash, nil
}

func (a *authService) validateCredentials(ctx context.Context, email, password string) (session.User, bool, error) {
	u, hash, err := a.lookupUser(ctx, email)
	if errors.Is(err, sql.ErrNoRows) {
		return session.User{}, false, nil
	}
	if err != nil {
		return session.User{}, false, fmt.Errorf("query user credentials: %w", err)
	}

	err = bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return session.User{}, false, nil
	}
	if err != nil {
		return session.User{}, false, fmt.Errorf("compare password hash: %w", err)
	}
	return u, true, nil
}

// userFromRequest resolves the signed cookie to a user that still exists.
func (a *authService) userFromRequest(r *http.Request) (session.User, bool) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return session.User{}, false
	}
	email, ok := a.verifySessionValue(cookie.Value)
	if !ok {
		return session.User{}, false
	}
	u, _, err := a.lookupUser(r.Context(), email)
	if err != nil {
		return session.User{}, false
	}
	return u, true
}

func (a *authService) createSessionValue(email string) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(email))
	mac := hmac.New(sha256.New, a.sessionSecret)
	_, _ = mac.Write([]byte(payload))
	signature := hex.EncodeToString(mac.Sum(nil))
	return payload + "." + signature
}

func (a *authService) verifySessionValue(value string) (string, bool) {
	parts := strings.Split(value, ".")
	if len(parts) != 2 {
		return "", false
	}

	payload := parts[0]
	signature := parts[1]

	mac := hmac.New(sha256.New, a.sessionSecret)
	_, _ = mac.Write([]byte(payload))
	expected := mac.Sum(nil)

	provided, err := hex.DecodeString(signature)
	if err != nil {
		return "", false
	}
	if !hmac.Equal(provided, expected) {
		return "", false
	}

	decoded, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return "", false
	}
	if len(decoded) == 0 {
		return "", false
	}

	return string(decoded), true
}

func (a *authService) setSessionCookie(w http.ResponseWriter, email string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    a.createSessionValue(email),
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *authService) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type userKey struct{}

func withUser(ctx context.Context, u session.User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func userFrom(ctx context.Context) session.User {
	u, _ := ctx.Value(userKey{}).(session.User)
	return u
}

func (s *server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := s.auth.userFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), u)))
	})
}

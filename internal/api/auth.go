package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ScopeAdmin lets a JWT reach the admin routes and the director message list.
const ScopeAdmin = "admin"

type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type contextKey string

const claimsKey contextKey = "claims"

// claimsFrom returns the JWT claims of the request, or nil when it was
// authenticated with the static service token.
func claimsFrom(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey).(*Claims)
	return c
}

func (a *API) issueToken(subject, scope string) (string, time.Time, error) {
	now := time.Now()
	expires := now.Add(a.opts.TokenTTL)
	claims := &Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    serviceName,
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.jwtSecret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("failed to create token: %w", err)
	}
	return signed, expires, nil
}

// handleIssueToken exchanges the caller's credentials for a short-lived JWT.
// Only callers holding the service token may issue.
func (a *API) handleIssueToken(w http.ResponseWriter, r *http.Request) {
	if claimsFrom(r.Context()) != nil {
		writeError(w, http.StatusForbidden, "service token required")
		return
	}
	if len(a.jwtSecret) == 0 {
		writeError(w, http.StatusServiceUnavailable, "token issuing is disabled")
		return
	}

	var req struct {
		Subject string `json:"subject"`
		Scope   string `json:"scope"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Subject == "" {
		req.Subject = "service"
	}
	if req.Scope != "" && req.Scope != ScopeAdmin {
		writeError(w, http.StatusBadRequest, "unknown scope")
		return
	}

	signed, expires, err := a.issueToken(req.Subject, req.Scope)
	if err != nil {
		a.logger.WithError(err).Error("token issue failed")
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"access_token": signed,
		"token_type":   "bearer",
		"expires_at":   expires.UTC().Format(time.RFC3339),
	})
}

// Middleware
func (a *API) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization header")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader || tokenString == "" {
			writeError(w, http.StatusUnauthorized, "invalid authorization header")
			return
		}

		if a.opts.ServiceToken != "" &&
			subtle.ConstantTimeCompare([]byte(tokenString), []byte(a.opts.ServiceToken)) == 1 {
			next.ServeHTTP(w, r)
			return
		}

		if len(a.jwtSecret) == 0 {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		claims := &Claims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method")
			}
			return a.jwtSecret, nil
		})

		if err != nil || !token.Valid {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireAdmin passes service token callers and JWTs with the admin scope.
func (a *API) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if c := claimsFrom(r.Context()); c != nil && c.Scope != ScopeAdmin {
			writeError(w, http.StatusForbidden, "admin scope required")
			return
		}
		next(w, r)
	}
}

/**
 * @description
 * This file contains custom middleware for the HTTP router: bearer-token
 * authentication for tenant-facing billing endpoints, and Redis-backed rate
 * limiting for the public checkout endpoint.
 *
 * @dependencies
 * - github.com/golang-jwt/jwt/v5: JWT parsing and validation.
 */
package api

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/pawsuite/billing-service/internal/app"
)

// tenantIDContextKey is a custom type for the context key to avoid collisions.
type tenantIDContextKey string

const tenantIDKey tenantIDContextKey = "tenantID"

// TenantAuthMiddleware validates HS256 bearer tokens issued to tenant admins.
// The subject claim carries the tenant id.
func TenantAuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondWithError(w, http.StatusUnauthorized, "Authorization header required")
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				respondWithError(w, http.StatusUnauthorized, "Invalid Authorization header format")
				return
			}

			token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				respondWithError(w, http.StatusUnauthorized, "Invalid token")
				return
			}

			claims, ok := token.Claims.(jwt.MapClaims)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "Invalid token claims")
				return
			}

			subject, err := claims.GetSubject()
			if err != nil || subject == "" {
				respondWithError(w, http.StatusUnauthorized, "Tenant ID not found in token")
				return
			}
			tenantID, err := uuid.Parse(subject)
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid tenant ID in token")
				return
			}

			ctx := context.WithValue(r.Context(), tenantIDKey, tenantID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// TenantFromContext retrieves the authenticated tenant id from the request
// context. Handlers use this to scope billing queries.
func TenantFromContext(ctx context.Context) (uuid.UUID, bool) {
	tenantID, ok := ctx.Value(tenantIDKey).(uuid.UUID)
	return tenantID, ok
}

// RateLimitMiddleware applies a per-client-IP fixed-window limit to the
// wrapped routes. Limiter errors fail open: a broken Redis must not take the
// checkout flow down with it.
func RateLimitMiddleware(limiter *app.RedisRateLimiter, scope string, limit int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			count, retryAfter, err := limiter.ConsumeRateLimit(r.Context(), scope, clientIP(r), limit, window)
			if err != nil {
				log.Printf("level=warn component=rate_limiter scope=%s msg=\"limiter unavailable; allowing request\" err=%v", scope, err)
			} else if limit > 0 && count > limit {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				respondWithError(w, http.StatusTooManyRequests, "Too many requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx > 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

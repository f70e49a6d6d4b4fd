package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"bayanat/internal/access"
	dErrors "bayanat/pkg/domain-errors"
	"bayanat/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// CallerLoader resolves a token's user into the caller used by access checks.
type CallerLoader interface {
	Caller(ctx context.Context, userID int) (*access.Caller, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID int
	JTI    string
}

// writeJSONError writes a JSON error response with the given status code and error details.
func writeJSONError(w http.ResponseWriter, status int, errCode, errDesc string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(fmt.Appendf(nil, `{"error":%q,"error_description":%q}`, errCode, errDesc))
}

// RequireAuth validates the bearer token and binds the user's caller to the request.
// Inactive or unknown users are refused like an invalid token.
func RequireAuth(validator JWTValidator, callers CallerLoader, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
				return
			}

			caller, err := callers.Caller(ctx, claims.UserID)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeNotFound) || dErrors.HasCode(err, dErrors.CodeUnauthorized) {
					logger.WarnContext(ctx, "unauthorized access - unknown or inactive user",
						"user_id", claims.UserID,
						"request_id", requestID,
					)
					writeJSONError(w, http.StatusUnauthorized, "unauthorized", "Invalid or expired token")
					return
				}
				logger.ErrorContext(ctx, "failed to load caller",
					"user_id", claims.UserID,
					"error", err,
					"request_id", requestID,
				)
				writeJSONError(w, http.StatusInternalServerError, string(dErrors.CodeInternal), "internal error")
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithCaller(ctx, caller)))
		})
	}
}

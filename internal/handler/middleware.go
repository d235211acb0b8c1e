package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/boddenberg/acquiring-core-go/internal/domain"
	"github.com/boddenberg/acquiring-core-go/internal/service"

	"go.uber.org/zap"
)

type contextKey string

const claimsKey contextKey = "serviceClaims"

// ServiceAuthMiddleware validates Bearer tokens and injects the caller claims into context.
func ServiceAuthMiddleware(tokens *service.TokenService, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Warn("auth: missing token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				logger.Warn("auth: invalid token format",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				writeError(w, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			claims, err := tokens.Validate(parts[1])
			if err != nil {
				logger.Warn("auth: invalid or expired token",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
					zap.Error(err),
				)
				writeError(w, http.StatusUnauthorized, err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClaimsFromContext returns the authenticated caller, or nil.
func ClaimsFromContext(ctx context.Context) *service.ServiceClaims {
	c, _ := ctx.Value(claimsKey).(*service.ServiceClaims)
	return c
}

// CompanyIDFromContext returns the authenticated company id.
func CompanyIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

// authorizeCompany fails with *domain.ErrForbidden unless the caller may act
// on companyID.
func authorizeCompany(ctx context.Context, companyID, action string) error {
	c := ClaimsFromContext(ctx)
	if c == nil || !c.CanAccess(companyID) {
		return &domain.ErrForbidden{Action: action}
	}
	return nil
}

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"gameauth/internal/domain"
	"gameauth/internal/pkg/jwt"
	"gameauth/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// JWTAuth requires a valid access token and exposes its claims as user_id,
// external_id and device_id on the context.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			response.AbortError(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.AbortError(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			return
		}

		claims, err := jwtService.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			if errors.Is(err, domain.ErrTokenExpired) {
				response.AbortError(c, http.StatusUnauthorized, string(domain.CodeTokenExpired), "Access token expired")
				return
			}
			response.AbortError(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or malformed token")
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("external_id", claims.ExternalID)
		c.Set("device_id", claims.DeviceID)
		c.Next()
	}
}

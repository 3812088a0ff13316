package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-kratos/kratos/v2/log"

	"gamestore/api/utils"
)

const (
	APIKeyHeader   = "X-API-KEY"
	authCookieName = "jwt_token"
)

// AuthRequired accepts either the static service key (when one is
// configured) or a valid JWT from the jwt_token cookie or a Bearer header.
// On JWT success the user's id and email are stored on the context.
func AuthRequired(jwtManager *utils.JWTManager, apiKey string, logger log.Logger) gin.HandlerFunc {
	helper := log.NewHelper(log.With(logger, "module", "middleware/auth"))

	return func(c *gin.Context) {
		if apiKey != "" {
			provided := c.GetHeader(APIKeyHeader)
			if provided != "" && subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) == 1 {
				c.Next()
				return
			}
		}

		tokenString, err := c.Cookie(authCookieName)
		if err != nil || tokenString == "" {
			tokenString = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
			return
		}

		claims, err := jwtManager.ValidateJWT(tokenString)
		if err != nil {
			helper.WithContext(c.Request.Context()).Debugw("msg", "rejected JWT", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Next()
	}
}

package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const appIDKey = "app_id"

// AppClaims are the claims carried by a merchant API token.
type AppClaims struct {
	AppID int64 `json:"app_id"`
	jwt.RegisteredClaims
}

// AppAuth validates the merchant JWT and stores the app id in the context.
// Webhook routes are not behind this middleware; platforms authenticate
// with their own signatures.
func AppAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": "missing bearer token"},
			})
			return
		}

		tokenStr := strings.TrimPrefix(header, "Bearer ")
		claims := &AppClaims{}
		token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid || claims.AppID <= 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "UNAUTHORIZED", "message": "invalid token"},
			})
			return
		}

		c.Set(appIDKey, claims.AppID)
		c.Next()
	}
}

// AppID returns the authenticated app id from the context, or 0.
func AppID(c *gin.Context) int64 {
	v, ok := c.Get(appIDKey)
	if !ok {
		return 0
	}
	id, _ := v.(int64)
	return id
}

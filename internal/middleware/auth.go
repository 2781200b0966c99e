package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// OwnerKey is the gin context key holding the identified user id
const OwnerKey = "user_id"

// Claims is the bearer token payload
type Claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// Owner identifies the trail owner from an HS256 bearer token. Requests
// without a token pass through anonymously; an invalid token is rejected.
// An empty secret disables identification.
func Owner(secret string) gin.HandlerFunc {
	if secret == "" {
		return func(c *gin.Context) { c.Next() }
	}
	secretBytes := []byte(secret)
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}

		token := bearerFromHeader(header)
		if token == "" {
			abortUnauthorized(c, "malformed authorization header")
			return
		}

		parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
			return secretBytes, nil
		}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			abortUnauthorized(c, err.Error())
			return
		}

		claims, ok := parsed.Claims.(*Claims)
		if !ok || !parsed.Valid {
			abortUnauthorized(c, "token invalid")
			return
		}

		userID := claims.UserID
		if userID == "" {
			userID = claims.Subject
		}
		c.Set(OwnerKey, userID)
		c.Next()
	}
}

// OwnerID returns the identified user id, or "" for anonymous requests
func OwnerID(c *gin.Context) string {
	return c.GetString(OwnerKey)
}

func bearerFromHeader(header string) string {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"code":    http.StatusUnauthorized,
		"message": message,
	})
}

package middleware

import (
	"fmt"
	"net/http"
	"strings"

	"bookstore-payment/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const principalKey = "principal"

type Claims struct {
	Email string `json:"email"`
	Admin bool   `json:"admin"`
	jwt.RegisteredClaims
}

// NewAuthMiddleware turns a bearer token issued by the auth service into a
// domain.Principal. Credentials themselves are never checked here. Without
// a secret every request is rejected.
func NewAuthMiddleware(secret string) gin.HandlerFunc {
	key := []byte(secret)
	if len(key) == 0 {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: authentication is not configured"})
		}
	}
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: missed header"})
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid header format"})
			return
		}

		var claims Claims
		token, err := jwt.ParseWithClaims(parts[1], &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key, nil
		})
		if err != nil || !token.Valid {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid token"})
			return
		}

		c.Set(principalKey, domain.Principal{
			UserID: claims.Subject,
			Email:  claims.Email,
			Admin:  claims.Admin,
		})
		c.Next()
	}
}

func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !Principal(c).Admin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only", "kind": domain.KindForbidden})
			return
		}
		c.Next()
	}
}

// Principal returns the caller set by the auth middleware, or the zero
// principal on public routes.
func Principal(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}

// IssueToken signs a token the middleware accepts. Used by tooling and tests.
func IssueToken(secret string, p domain.Principal, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = p.UserID
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Email:            p.Email,
		Admin:            p.Admin,
		RegisteredClaims: claims,
	})
	return token.SignedString([]byte(secret))
}

package stubapi

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const subjectKey = "stubapi.subject"

// requestLogger logs request metadata only, never payloads or tokens.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("dur", time.Since(start)),
			zap.String("peer", c.ClientIP()),
		)
	}
}

type accessClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
	Gen  int64  `json:"gen"` // token generation; bumping it revokes all access tokens
}

// requireAuth validates the bearer token and stores the subject in the
// request context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if raw == "" || raw == c.GetHeader("Authorization") {
			c.AbortWithStatusJSON(401, gin.H{"detail": "missing bearer token"})
			return
		}
		var claims accessClaims
		tok, err := jwt.ParseWithClaims(raw, &claims, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.cfg.JWTKey, nil
		})
		if err != nil || !tok.Valid {
			c.AbortWithStatusJSON(401, gin.H{"detail": "token invalid or expired"})
			return
		}
		if claims.Gen != s.tokenGen.Load() {
			c.AbortWithStatusJSON(401, gin.H{"detail": "token revoked"})
			return
		}
		c.Set(subjectKey, claims.Subject)
		c.Next()
	}
}

func subject(c *gin.Context) string {
	return c.GetString(subjectKey)
}

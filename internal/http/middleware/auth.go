// README: Firebase ID-token auth middleware; populates the caller's uid and role.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gogo/internal/infra"
)

const (
	ctxUID  = "caller_uid"
	ctxRole = "caller_role"

	// DebugUserHeader names the caller when anonymous mode is on and no
	// token is sent.
	DebugUserHeader = "X-Debug-User"

	defaultRole   = "passenger"
	anonymousUser = "anonymous"
)

// Auth verifies "Authorization: Bearer <id token>". With allowAnonymous a
// request without the header is let through as DebugUserHeader or
// "anonymous"; a bad token is still rejected.
func Auth(verifier infra.TokenVerifier, allowAnonymous bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" && allowAnonymous {
			uid := strings.TrimSpace(c.GetHeader(DebugUserHeader))
			if uid == "" {
				uid = anonymousUser
			}
			c.Set(ctxUID, uid)
			c.Set(ctxRole, defaultRole)
			c.Next()
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" || verifier == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		verified, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		role := defaultRole
		if r, ok := verified.Claims["role"].(string); ok && r != "" {
			role = r
		}
		c.Set(ctxUID, verified.UID)
		c.Set(ctxRole, role)
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

func CallerRole(c *gin.Context) string {
	return c.GetString(ctxRole)
}

package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// HeaderAdminUsername identifies the calling admin on branch-scoped reads.
const HeaderAdminUsername = "X-Admin-Username"

// ContextAdminUsername is the gin context key holding the resolved username.
const ContextAdminUsername = "admin_username"

// AdminIdentity resolves who is calling from a bearer token and/or the
// X-Admin-Username header. It only establishes identity; scope and
// first-login state are checked against the store downstream.
func AdminIdentity(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader(HeaderAdminUsername))

		username := header
		if authz := c.GetHeader("Authorization"); authz != "" {
			if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "malformed authorization header"})
				return
			}
			claims, err := issuer.Parse(strings.TrimSpace(authz[len("bearer "):]))
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid or expired session"})
				return
			}
			if header != "" && !strings.EqualFold(header, claims.Username) {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"success": false, "message": "session does not match admin username"})
				return
			}
			username = claims.Username
		}

		if username == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"success": false,
				"message": "Admin username is required in headers (x-admin-username)",
			})
			return
		}
		c.Set(ContextAdminUsername, username)
		c.Next()
	}
}

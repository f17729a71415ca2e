package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/session"
)

const claimsKey = "authkeeper/claims"

// RequireAuth verifies the access token on the Authorization header and
// attaches its claims to the request.
func (s *Server) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := session.BearerToken(c)
		if token == "" {
			s.abortError(c, auth.ErrTokenMalformed)
			return
		}
		claims, err := s.auth.Decode(token)
		if err != nil {
			s.abortError(c, err)
			return
		}
		c.Set(claimsKey, claims)
	}
}

// RequireRole guards a route group behind a role carried by the token.
// Must run after RequireAuth.
func (s *Server) RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := claimsFromContext(c)
		if claims == nil || !claims.HasRole(role) {
			s.abortError(c, auth.ErrInsufficientPermissions)
			return
		}
	}
}

func claimsFromContext(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		return v.(*auth.Claims)
	}
	return nil
}

// Package httpapi exposes the trust and session core over HTTP: login and
// token endpoints, the password-reset flow, admin user management and
// session-scoped file handling.
package httpapi

import (
	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/session"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

type Server struct {
	auth     *auth.Service
	users    *users.Service
	sessions *session.Manager
	logger   logging.Logger
}

func NewServer(authSvc *auth.Service, userSvc *users.Service, sessions *session.Manager, logger logging.Logger) *Server {
	return &Server{
		auth:     authSvc,
		users:    userSvc,
		sessions: sessions,
		logger:   logger,
	}
}

// Router builds the gin engine. Every route runs behind the session
// middleware; token-protected and admin routes add their own guards.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.sessions.Middleware())

	api := r.Group("/api")

	api.POST("/login", s.login)
	api.POST("/logout", s.logout)
	api.POST("/token-refresh", s.refreshToken)
	api.POST("/register", s.register)
	api.POST("/reset-password-request", s.resetPasswordRequest)
	api.POST("/reset-password", s.resetPassword)

	api.POST("/session/files", s.uploadSessionFile)
	api.DELETE("/session/files/:name", s.deleteSessionFile)
	api.POST("/session/logout", s.logoutSession)

	authed := api.Group("", s.RequireAuth())
	authed.POST("/change-password", s.changePassword)

	admin := authed.Group("", s.RequireRole("admin"))
	admin.GET("/users", s.listUsers)
	admin.GET("/users/:username", s.getUser)
	admin.PUT("/users/:username", s.updateUser)
	admin.DELETE("/users/:username", s.deleteUser)

	return r
}

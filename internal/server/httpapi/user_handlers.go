package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/server/models"
	"github.com/dmitrijs2005/authkeeper/internal/server/session"
)

type registerRequest struct {
	Username string   `json:"username" binding:"required"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Password string   `json:"password" binding:"required"`
	Roles    []string `json:"roles"`
}

// register creates an account and binds the current session to it.
func (s *Server) register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
		Roles:    req.Roles,
	}
	if err := s.users.Register(c.Request.Context(), user); err != nil {
		s.respondError(c, err)
		return
	}

	if sess := session.FromContext(c); sess != nil {
		sess.User = &models.SessionUser{
			Username: user.Username,
			Email:    user.Email,
			Name:     user.Name,
			Roles:    user.Roles,
		}
	}
	c.JSON(http.StatusCreated, user.Header())
}

func (s *Server) listUsers(c *gin.Context) {
	headers, err := s.users.List(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, headers)
}

func (s *Server) getUser(c *gin.Context) {
	user, err := s.users.Get(c.Request.Context(), c.Param("username"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Header())
}

type updateUserRequest struct {
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Disabled bool     `json:"disabled"`
	Roles    []string `json:"roles"`
	Password string   `json:"password"`
}

// updateUser replaces the profile fields of an account. An empty password
// keeps the stored hash.
func (s *Server) updateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	username := c.Param("username")
	user := &models.User{
		Username: username,
		Email:    req.Email,
		Name:     req.Name,
		Disabled: req.Disabled,
		Roles:    req.Roles,
		Password: req.Password,
	}
	if err := s.users.Update(c.Request.Context(), username, user); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user.Header())
}

func (s *Server) deleteUser(c *gin.Context) {
	if err := s.users.Delete(c.Request.Context(), c.Param("username")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/session"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

type loginRequest struct {
	Username string `json:"username" form:"username" binding:"required"`
	Password string `json:"password" form:"password" binding:"required"`
}

// login accepts either a JSON body or OAuth2-style form data.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	pair, err := s.auth.Authorize(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

// logout revokes the refresh token presented as the bearer token. A token
// that was already revoked counts as success, so retries are harmless.
func (s *Server) logout(c *gin.Context) {
	token := session.BearerToken(c)
	if token == "" {
		s.respondError(c, auth.ErrTokenMalformed)
		return
	}

	err := s.auth.Logout(c.Request.Context(), token)
	if err != nil && !errors.Is(err, auth.ErrInvalidRefreshToken) {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// refreshToken exchanges the bearer refresh token for a fresh pair.
func (s *Server) refreshToken(c *gin.Context) {
	token := session.BearerToken(c)
	if token == "" {
		s.respondError(c, auth.ErrTokenMalformed)
		return
	}

	pair, err := s.auth.Refresh(c.Request.Context(), token)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, pair)
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (s *Server) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims := claimsFromContext(c)
	if err := s.auth.ChangePassword(c.Request.Context(), claims.Subject, req.OldPassword, req.NewPassword); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type resetPasswordRequestBody struct {
	Email string `json:"email" binding:"required"`
}

// resetPasswordRequest dispatches a reset code. An unknown address is a
// 404; any later failure still produces the generic response, so the body
// leaks nothing about the account.
func (s *Server) resetPasswordRequest(c *gin.Context) {
	var req resetPasswordRequestBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.auth.RequestPasswordReset(c.Request.Context(), req.Email); err != nil {
		if errors.Is(err, users.ErrUserNotFound) {
			s.respondError(c, err)
			return
		}
		s.logger.Warn(c.Request.Context(), "password reset dispatch failed", "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": "check your email"})
}

type resetPasswordBody struct {
	Email       string `json:"email" binding:"required"`
	ResetCode   string `json:"reset_code" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

func (s *Server) resetPassword(c *gin.Context) {
	var req resetPasswordBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := s.auth.ResetPassword(c.Request.Context(), req.Email, req.ResetCode, req.NewPassword); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

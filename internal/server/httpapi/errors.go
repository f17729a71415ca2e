package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/blob"
	"github.com/dmitrijs2005/authkeeper/internal/kvstore"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/session"
	"github.com/dmitrijs2005/authkeeper/internal/server/users"
)

// statusForError is the single place where domain errors become HTTP
// status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, users.ErrIncorrectCredentials),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenMalformed),
		errors.Is(err, auth.ErrInvalidRefreshToken):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrInsufficientPermissions),
		errors.Is(err, session.ErrInvalidSession):
		return http.StatusForbidden
	case errors.Is(err, users.ErrUserNotFound),
		errors.Is(err, blob.ErrBlobNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrResetCode),
		errors.Is(err, auth.ErrResetCodeExpired),
		errors.Is(err, users.ErrIncorrectOldPassword),
		errors.Is(err, kvstore.ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, users.ErrUserExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondError(c *gin.Context, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		// internal detail stays in the log
		s.logger.Error(c.Request.Context(), "request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (s *Server) abortError(c *gin.Context, err error) {
	s.respondError(c, err)
	c.Abort()
}

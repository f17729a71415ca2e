package httpapi

import (
	"errors"
	"io"
	"net/http"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/authkeeper/internal/server/session"
)

// uploadSessionFile stores a multipart upload in the blob folder of the
// current session. The file appears in the session record, so the cascade
// on session removal cleans it up.
func (s *Server) uploadSessionFile(c *gin.Context) {
	sess := session.FromContext(c)

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f, err := header.Open()
	if err != nil {
		s.respondError(c, err)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		s.respondError(c, err)
		return
	}

	name := filepath.Base(header.Filename)
	mimeType := header.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := s.sessions.UploadFile(c.Request.Context(), sess, name, data, mimeType); err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"name": name, "mime_type": mimeType})
}

func (s *Server) deleteSessionFile(c *gin.Context) {
	sess := session.FromContext(c)

	if err := s.sessions.DeleteFile(c.Request.Context(), sess, c.Param("name")); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// logoutSession removes the session record with its files and clears the
// cookie. A session that was never persisted just loses its cookie.
func (s *Server) logoutSession(c *gin.Context) {
	sess := session.FromContext(c)

	if err := s.sessions.Delete(c.Request.Context(), sess.ID); err != nil && !errors.Is(err, session.ErrInvalidSession) {
		s.respondError(c, err)
		return
	}
	session.Drop(c)
	c.Status(http.StatusNoContent)
}

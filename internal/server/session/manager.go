package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dmitrijs2005/authkeeper/internal/blob"
	"github.com/dmitrijs2005/authkeeper/internal/kvstore"
	"github.com/dmitrijs2005/authkeeper/internal/logging"
	"github.com/dmitrijs2005/authkeeper/internal/server/auth"
	"github.com/dmitrijs2005/authkeeper/internal/server/config"
	"github.com/dmitrijs2005/authkeeper/internal/server/models"
)

const sessionCollection = "sessions"

// Manager resolves, persists and removes sessions. Records live in the
// key-value store; files attached to a session live in the blob store under
// a per-session folder so removal can cascade.
type Manager struct {
	sessions     *kvstore.Collection[models.Session]
	blobs        blob.Storage
	auth         *auth.Service
	codec        *Codec
	logger       logging.Logger
	cookieSecure bool
}

func NewManager(factory kvstore.Factory, blobs blob.Storage, authSvc *auth.Service, logger logging.Logger, cfg *config.Config) *Manager {
	return &Manager{
		sessions:     kvstore.NewCollection[models.Session](factory.CreateStorage(sessionCollection)),
		blobs:        blobs,
		auth:         authSvc,
		codec:        NewCodec(cfg.SessionSecret),
		logger:       logger,
		cookieSecure: cfg.CookieSecure,
	}
}

func folderFor(id string) string {
	return "session-" + id + "/"
}

// Resolve maps an incoming request onto a session. A verified cookie loads
// the stored record; a valid cookie pointing at a purged record is an
// invalid session, not a silent new one. Without a cookie a fresh unsaved
// session is synthesized, bound to the bearer identity when one is
// presented and decodable. The persisted result reports whether a record
// already exists in the store.
func (m *Manager) Resolve(ctx context.Context, cookieValue, bearer string) (sess *models.Session, persisted bool, err error) {
	if cookieValue != "" {
		id, err := m.codec.Decode(cookieValue)
		if err != nil {
			return nil, false, err
		}
		sess, err := m.sessions.Get(ctx, id)
		if err != nil {
			if errors.Is(err, kvstore.ErrKeyNotFound) {
				return nil, false, ErrInvalidSession
			}
			return nil, false, err
		}
		return sess, true, nil
	}

	sess = &models.Session{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
	if bearer != "" {
		if claims, err := m.auth.Decode(bearer); err == nil {
			sess.User = &models.SessionUser{
				Username: claims.Subject,
				Email:    claims.Email,
				Name:     claims.Name,
				Roles:    claims.Roles,
			}
		}
	}
	return sess, false, nil
}

// Save persists current when it differs from the snapshot taken at request
// entry. Unchanged sessions cost zero writes. Returns whether a write
// happened.
func (m *Manager) Save(ctx context.Context, snapshot, current *models.Session, persisted bool) (bool, error) {
	before, err := json.Marshal(snapshot)
	if err != nil {
		return false, fmt.Errorf("marshalling session snapshot: %w", err)
	}
	after, err := json.Marshal(current)
	if err != nil {
		return false, fmt.Errorf("marshalling session: %w", err)
	}
	if string(before) == string(after) {
		return false, nil
	}

	if persisted {
		return true, m.sessions.Put(ctx, current.ID, current)
	}
	if err := m.sessions.Create(ctx, current.ID, current); err != nil {
		// a concurrent request already created the record
		if errors.Is(err, kvstore.ErrKeyExists) {
			return true, m.sessions.Put(ctx, current.ID, current)
		}
		return false, err
	}
	return true, nil
}

// Delete removes a session record and cascade-deletes its blob folder.
func (m *Manager) Delete(ctx context.Context, id string) error {
	if err := m.sessions.Delete(ctx, id); err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return ErrInvalidSession
		}
		return err
	}
	return m.blobs.DeleteFolder(ctx, folderFor(id))
}

// UploadFile stores a blob under the session folder and mirrors it in the
// session record. Uploading under an existing name replaces the content.
func (m *Manager) UploadFile(ctx context.Context, sess *models.Session, name string, data []byte, mimeType string) error {
	if err := m.blobs.Upload(ctx, folderFor(sess.ID)+name, data, mimeType); err != nil {
		return err
	}
	file := models.SessionFile{Name: name, MimeType: mimeType}
	for i, f := range sess.Files {
		if f.Name == name {
			sess.Files[i] = file
			return nil
		}
	}
	sess.Files = append(sess.Files, file)
	return nil
}

// DeleteFile removes a session-scoped blob and its record entry.
func (m *Manager) DeleteFile(ctx context.Context, sess *models.Session, name string) error {
	for i, f := range sess.Files {
		if f.Name == name {
			if err := m.blobs.Delete(ctx, folderFor(sess.ID)+name); err != nil {
				return err
			}
			sess.Files = append(sess.Files[:i], sess.Files[i+1:]...)
			return nil
		}
	}
	return blob.ErrBlobNotFound
}

const stateKey = "authkeeper/session"

type requestState struct {
	session   *models.Session
	snapshot  *models.Session
	persisted bool
	dropped   bool
}

// FromContext returns the session attached to the request by Middleware.
func FromContext(c *gin.Context) *models.Session {
	if v, ok := c.Get(stateKey); ok {
		return v.(*requestState).session
	}
	return nil
}

// Drop tells the middleware the handler removed the session: nothing is
// written back and the cookie is cleared on the response.
func Drop(c *gin.Context) {
	if v, ok := c.Get(stateKey); ok {
		v.(*requestState).dropped = true
	}
}

// BearerToken extracts the token from the Authorization header, if any.
func BearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if token, found := strings.CutPrefix(h, "Bearer "); found {
		return token
	}
	return ""
}

// Middleware resolves the session before the handler runs and persists it
// afterwards, but only when it changed. Cookies must go out with the
// response headers, so the write-back is hooked in front of the first body
// write instead of after c.Next().
func (m *Manager) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		cookieValue, _ := c.Cookie(CookieName)
		sess, persisted, err := m.Resolve(c.Request.Context(), cookieValue, BearerToken(c))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": ErrInvalidSession.Error()})
			return
		}

		state := &requestState{
			session:   sess,
			snapshot:  sess.Clone(),
			persisted: persisted,
		}
		c.Set(stateKey, state)

		w := &flushWriter{ResponseWriter: c.Writer, flush: func() {
			m.finish(c, state)
		}}
		c.Writer = w

		c.Next()

		// handlers that never wrote a body still need the write-back
		w.before()
	}
}

func (m *Manager) finish(c *gin.Context, state *requestState) {
	ctx := c.Request.Context()

	if state.dropped {
		m.clearCookie(c)
		return
	}

	saved, err := m.Save(ctx, state.snapshot, state.session, state.persisted)
	if err != nil {
		m.logger.Error(ctx, "saving session failed", "session_id", state.session.ID, "error", err)
		return
	}
	if saved && !state.persisted {
		m.setCookie(c, state.session.ID)
	}
}

func (m *Manager) setCookie(c *gin.Context, id string) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    m.codec.Encode(id),
		Path:     "/",
		Secure:   m.cookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (m *Manager) clearCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   m.cookieSecure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// flushWriter runs flush once, right before headers are committed.
type flushWriter struct {
	gin.ResponseWriter
	flush func()
	done  bool
}

func (w *flushWriter) before() {
	if !w.done {
		w.done = true
		w.flush()
	}
}

func (w *flushWriter) WriteHeader(code int) {
	w.before()
	w.ResponseWriter.WriteHeader(code)
}

func (w *flushWriter) Write(b []byte) (int, error) {
	w.before()
	return w.ResponseWriter.Write(b)
}

func (w *flushWriter) WriteString(s string) (int, error) {
	w.before()
	return w.ResponseWriter.WriteString(s)
}

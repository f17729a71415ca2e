package models

import "time"

// SessionUser is the identity resolved for a session, copied out of a
// verified bearer token. Nil on the Session means anonymous.
type SessionUser struct {
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// SessionFile references a temporary upload scoped to the session; the blob
// itself lives under the "session-<id>/" folder of the blob store.
type SessionFile struct {
	Name     string `json:"name"`
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type"`
}

// Session is the record behind a session cookie. Handlers mutate an
// in-request copy; the manager persists it only when the copy differs from
// the snapshot taken at request entry.
type Session struct {
	ID        string            `json:"session_id"`
	CreatedAt time.Time         `json:"timestamp"`
	User      *SessionUser      `json:"user,omitempty"`
	Files     []SessionFile     `json:"files,omitempty"`
	Data      map[string]string `json:"data,omitempty"`
}

// Clone returns a deep copy so concurrent requests for the same session
// never share mutable state.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := &Session{
		ID:        s.ID,
		CreatedAt: s.CreatedAt,
	}
	if s.User != nil {
		u := *s.User
		u.Roles = append([]string(nil), s.User.Roles...)
		out.User = &u
	}
	if s.Files != nil {
		out.Files = append([]SessionFile(nil), s.Files...)
	}
	if s.Data != nil {
		out.Data = make(map[string]string, len(s.Data))
		for k, v := range s.Data {
			out.Data[k] = v
		}
	}
	return out
}

package models

import "time"

// User is the credential record stored in the "users" collection, keyed by
// username.
//
// Password carries a transient plaintext on the way in (registration,
// update, reset) and is excluded from JSON so it can never reach storage;
// write paths hash it into HashedPassword and clear it.
type User struct {
	Username       string     `json:"username"`
	Email          string     `json:"email,omitempty"`
	Name           string     `json:"name,omitempty"`
	Disabled       bool       `json:"disabled,omitempty"`
	Roles          []string   `json:"roles,omitempty"`
	Password       string     `json:"-"`
	HashedPassword string     `json:"hashed_password,omitempty"`
	ResetCode      string     `json:"reset_code,omitempty"`
	ResetCodeExp   *time.Time `json:"reset_code_exp,omitempty"`
}

// Header is the public projection of a user: everything except password
// material and reset state. Admin listings and profile responses use it.
type Header struct {
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Name     string   `json:"name,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

func (u *User) Header() Header {
	return Header{
		Username: u.Username,
		Email:    u.Email,
		Name:     u.Name,
		Disabled: u.Disabled,
		Roles:    u.Roles,
	}
}

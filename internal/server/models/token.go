package models

import "time"

// TokenPair is the response of a successful login or refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	TokenType    string `json:"token_type"`
}

// BlacklistEntry marks a refresh token as spent. It is keyed by the token
// string itself; Exp is the token's own expiry, after which the entry can be
// evicted since the token could no longer be replayed anyway.
type BlacklistEntry struct {
	Token string    `json:"token"`
	Exp   time.Time `json:"exp"`
}

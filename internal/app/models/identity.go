package models

import "time"

// Identity is the principal issued by the identity provider. A nil *Identity
// means the client is not signed in.
type Identity struct {
	UID           string    `json:"uid"`
	Email         string    `json:"email"`
	DisplayName   string    `json:"displayName,omitempty"`
	PhotoURL      string    `json:"photoURL,omitempty"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
	LastLoginAt   time.Time `json:"lastLoginAt"`
}

// Clone returns a copy that callers can keep without sharing state.
func (i *Identity) Clone() *Identity {
	if i == nil {
		return nil
	}
	c := *i
	return &c
}

// ProfileUpdate carries the attributes a signed-in user may change. Nil fields
// are left untouched.
type ProfileUpdate struct {
	DisplayName *string
	PhotoURL    *string
}

// FederatedCredential is the token returned by an external sign-in popup.
type FederatedCredential struct {
	IDToken string
}

// Package oauth abstracts the identity providers users can log in with.
package oauth

import "context"

// User is what a provider knows about the logged-in account.
type User struct {
	// provider-scoped id, without our "<provider>-" namespace prefix
	ID   string
	Name string
}

type Provider interface {
	// Name is the namespace prefix for user ids ("google" -> "google-<uid>").
	Name() string
	// AuthURL builds the consent-screen URL carrying the CSRF state.
	AuthURL(state string) string
	// Exchange trades the authorization code for a verified user.
	Exchange(ctx context.Context, code string) (*User, error)
}

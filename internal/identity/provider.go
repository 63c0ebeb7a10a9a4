// Package identity answers the single question the sync engine asks about
// authentication: the current user id, or none. Sign-in flows live outside
// this process; what arrives here is an already-issued session token.
package identity

// Provider reports the currently signed-in user.
type Provider interface {
	// CurrentUserID returns the user id and true, or "" and false when no
	// user is signed in.
	CurrentUserID() (string, bool)
}

// Static is a fixed-identity provider for tests and single-user deployments.
type Static string

// CurrentUserID implements Provider.
func (s Static) CurrentUserID() (string, bool) {
	if s == "" {
		return "", false
	}
	return string(s), true
}

package auth

import "time"

// Session is the capability token returned by a successful login.
//
// It proves an authenticated actor to the social-graph service and is passed
// to every authenticated call. Expiry policy is owned by the service; the
// client only checks the advertised deadline before reusing a cached session.
type Session struct {
	// AccessToken is the bearer token attached to authenticated requests.
	AccessToken string `json:"accessToken"`
	// RefreshToken can be exchanged for a new access token after expiry.
	RefreshToken string `json:"refreshToken"`
	// AuthenticationID identifies this session for server-side revocation.
	AuthenticationID string `json:"authenticationId"`
	// Account is the account address this session is bound to. Empty for
	// onboarding sessions that are not yet bound to an account.
	Account string `json:"account"`
	// ExpiresAt is the access token deadline advertised by the service.
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the access token deadline has passed.
func (s *Session) Expired() bool {
	return !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt)
}

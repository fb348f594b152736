package identity

import "errors"

var (
	// ErrInvalidToken indicates a bearer token that failed verification.
	ErrInvalidToken = errors.New("invalid token")

	// ErrIdentityExists indicates the provider already holds an identity
	// for the email being provisioned.
	ErrIdentityExists = errors.New("identity already exists")

	// ErrWrongPassword indicates the provider rejected the current
	// password during a change-password call.
	ErrWrongPassword = errors.New("current password is incorrect")
)

// Identity is a verified session identity.
type Identity struct {
	// Subject is the provider-side stable id; accounts link to it via
	// external_id.
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

// ExternalID returns the provider-side id. It satisfies the interface the
// authorization gate reads identities through.
func (i *Identity) ExternalID() string {
	if i == nil {
		return ""
	}
	return i.Subject
}

package model

// Credential is the stored session credential: the signed token issued by the
// license authority, the subject email, and a license marker recording how the
// credential was obtained. The marker is the raw license key for direct
// exchange, "PATREON_ACTIVE" for delegated exchange, or "APP_SESSION" when a
// host shell forwarded an existing session.
type Credential struct {
	Token         string
	Email         string
	LicenseMarker string
}

// License marker values written by the exchange paths.
const (
	MarkerPatreon    = "PATREON_ACTIVE"
	MarkerAppSession = "APP_SESSION"
)

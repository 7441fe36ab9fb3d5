package driven

import "context"

// VerifyResult is the authority's answer to a direct email+key exchange.
// Success requires an explicit true flag and a non-empty token; Message
// carries the server-provided failure text when present.
type VerifyResult struct {
	Success bool
	Token   string
	Message string
}

// LicenseClient defines the driven port for the remote license authority.
//
// ValidateToken reports (true, nil) only when the authority explicitly
// confirmed the token. An explicit rejection or a malformed body is
// (false, nil); a transport failure is (false, err) so the caller's policy
// decides whether to fail open or closed.
type LicenseClient interface {
	Verify(ctx context.Context, email, licenseKey string) (*VerifyResult, error)
	ValidateToken(ctx context.Context, token string) (bool, error)
}

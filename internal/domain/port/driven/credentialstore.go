// Package driven defines secondary port interfaces for external adapters.
package driven

import (
	"context"
	"errors"

	"github.com/analyticspro/walletlens/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when
// WALLETLENS_SECRET_KEY has not been configured.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set WALLETLENS_SECRET_KEY")

// CredentialStore defines the driven port for the persisted session
// credential. The adapter layer is responsible for encryption at rest; this
// interface operates on plaintext values at the domain boundary. The store
// holds at most one credential.
type CredentialStore interface {
	// Save stores or replaces the credential.
	Save(ctx context.Context, cred model.Credential) error

	// Load retrieves the stored credential. Returns (nil, nil) when none is
	// stored or the token field is empty.
	Load(ctx context.Context) (*model.Credential, error)

	// Clear removes the stored credential. Clearing an empty store is not an
	// error.
	Clear(ctx context.Context) error
}

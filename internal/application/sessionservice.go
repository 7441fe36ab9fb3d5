package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/analyticspro/walletlens/internal/domain/model"
	"github.com/analyticspro/walletlens/internal/domain/port/driven"
)

// ValidatePolicy decides how a heartbeat treats a transport failure while
// re-validating an already-accepted session. The unlock path is always
// fail-closed; only the recurring heartbeat consults this policy. The
// fail-open setting reproduces the native-host behavior of tolerating flaky
// connectivity instead of forcing spurious logouts.
type ValidatePolicy int

const (
	// PolicyFailClosed logs the session out when the authority is unreachable.
	PolicyFailClosed ValidatePolicy = iota
	// PolicyFailOpen keeps the session active when the authority is
	// unreachable; only an explicit rejection logs it out.
	PolicyFailOpen
)

func (p ValidatePolicy) String() string {
	if p == PolicyFailOpen {
		return "fail_open"
	}
	return "fail_closed"
}

// User-facing messages surfaced by forced logouts, one per trigger.
const (
	MsgSessionExpired = "Session expired. Please log in again."
	MsgAccessInactive = "Access inactive. Please check your membership."
	MsgLicenseRevoked = "License revoked or expired."
)

// Delegated completion message types emitted by the authority's OAuth flow.
const (
	DelegatedSuccess = "PATREON_SUCCESS"
	DelegatedError   = "PATREON_ERROR"
)

// ErrUnexpectedOrigin is returned when a delegated-login completion arrives
// from an origin other than the license authority. The session state is left
// untouched.
var ErrUnexpectedOrigin = errors.New("delegated completion from unexpected origin")

// ExchangeError is a user-facing credential exchange failure. Message is the
// server-provided text when available, otherwise a generic fallback.
type ExchangeError struct {
	Message string
}

func (e *ExchangeError) Error() string { return e.Message }

// DelegatedResult is the completion signal of the delegated (Patreon) OAuth
// flow, relayed by the browsing context that hosted it.
type DelegatedResult struct {
	Type    string
	Token   string
	Email   string
	Message string
}

// SessionStatus is the externally visible session state plus the message of
// the most recent forced logout, if any.
type SessionStatus struct {
	State   model.SessionState
	Message string
}

// SessionService owns the token lifecycle: local validity, server
// confirmation, the recurring heartbeat, forced logout, and both credential
// exchange paths. At most one heartbeat timer is live at a time; starting a
// new one always cancels the previous one first.
type SessionService struct {
	creds           driven.CredentialStore
	license         driven.LicenseClient
	authorityOrigin string
	interval        time.Duration
	policy          ValidatePolicy

	// baseCtx bounds the heartbeat goroutine's lifetime. It is set by Start
	// and outlives the request contexts that trigger exchanges.
	baseCtx context.Context

	mu            sync.Mutex
	state         model.SessionState
	message       string
	stopHeartbeat context.CancelFunc
}

// NewSessionService creates a SessionService. authorityOrigin is the exact
// origin delegated completions must arrive from; interval is the heartbeat
// period; policy governs heartbeat transport failures.
func NewSessionService(
	creds driven.CredentialStore,
	license driven.LicenseClient,
	authorityOrigin string,
	interval time.Duration,
	policy ValidatePolicy,
) *SessionService {
	return &SessionService{
		creds:           creds,
		license:         license,
		authorityOrigin: authorityOrigin,
		interval:        interval,
		policy:          policy,
		baseCtx:         context.Background(),
		state:           model.StateUnauthenticated,
	}
}

// Start binds the service to the application lifetime context and evaluates
// the stored credential once. It returns only storage errors; validation
// failures resolve to a stable Unauthenticated state, never an error.
func (s *SessionService) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	return s.Resume(ctx)
}

// Resume re-evaluates the stored credential from a clean state: local expiry
// check, then server confirmation, then Active with a fresh heartbeat. Any
// rejection is a forced logout with the matching user message.
func (s *SessionService) Resume(ctx context.Context) error {
	cred, err := s.creds.Load(ctx)
	if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
		// Store disabled: nothing stored to evaluate. The session stays
		// locked until a key is configured, but the process still runs.
		slog.Warn("credential store disabled, session locked", "error", err)
		err = nil
		cred = nil
	}
	if err != nil {
		return err
	}

	if cred == nil {
		s.mu.Lock()
		s.state = model.StateUnauthenticated
		s.mu.Unlock()
		return nil
	}

	if !TokenLocallyValid(cred.Token, time.Now()) {
		s.ForceLogout(ctx, MsgSessionExpired)
		return nil
	}
	s.setState(model.StateLocallyValid)

	// Unlock is always fail-closed: a transport failure reads as inactive.
	valid, err := s.license.ValidateToken(ctx, cred.Token)
	if err != nil {
		slog.Error("unlock validation failed", "error", err)
	}
	if !valid {
		s.ForceLogout(ctx, MsgAccessInactive)
		return nil
	}
	s.setState(model.StateServerConfirmed)

	s.activate()
	slog.Info("session active", "email", cred.Email, "heartbeat_interval", s.interval)
	return nil
}

// LoginWithKey performs the direct email+license exchange. On success the
// credential is persisted and the lifecycle re-evaluates from the stored
// state, mirroring the original host's full-surface reload.
func (s *SessionService) LoginWithKey(ctx context.Context, email, licenseKey string) error {
	res, err := s.license.Verify(ctx, email, licenseKey)
	if err != nil {
		slog.Error("verify request failed", "error", err)
		return &ExchangeError{Message: "Server error. Please try again later."}
	}

	if !res.Success || res.Token == "" {
		msg := res.Message
		if msg == "" {
			msg = "Invalid Credentials"
		}
		return &ExchangeError{Message: msg}
	}

	cred := model.Credential{Token: res.Token, Email: email, LicenseMarker: licenseKey}
	if err := s.creds.Save(ctx, cred); err != nil {
		return err
	}

	return s.Resume(ctx)
}

// CompleteDelegated consumes the completion signal of the delegated OAuth
// flow. origin must match the authority origin exactly; anything else returns
// ErrUnexpectedOrigin without touching state. Unknown message types are
// ignored.
func (s *SessionService) CompleteDelegated(ctx context.Context, origin string, res DelegatedResult) error {
	if origin != s.authorityOrigin {
		slog.Warn("delegated completion rejected", "origin", origin)
		return ErrUnexpectedOrigin
	}

	switch res.Type {
	case DelegatedSuccess:
		if res.Token == "" {
			return &ExchangeError{Message: "Login did not return a token"}
		}
		cred := model.Credential{Token: res.Token, Email: res.Email, LicenseMarker: model.MarkerPatreon}
		if err := s.creds.Save(ctx, cred); err != nil {
			return err
		}
		return s.Resume(ctx)
	case DelegatedError:
		msg := res.Message
		if msg == "" {
			msg = "Patreon login failed"
		}
		return &ExchangeError{Message: msg}
	default:
		return nil
	}
}

// ForceLogout cancels any live heartbeat, clears the stored credential, and
// returns the session to Unauthenticated with the triggering message. Calling
// it twice has no additional effect.
func (s *SessionService) ForceLogout(ctx context.Context, msg string) {
	s.mu.Lock()
	cancel := s.stopHeartbeat
	s.stopHeartbeat = nil
	s.state = model.StateUnauthenticated
	s.message = msg
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if err := s.creds.Clear(ctx); err != nil {
		slog.Error("clearing credential failed", "error", err)
	}

	slog.Info("forced logout", "reason", msg)
}

// Status returns the current state and the last forced-logout message.
func (s *SessionService) Status() SessionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SessionStatus{State: s.state, Message: s.message}
}

// Active reports whether the session is unlocked.
func (s *SessionService) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == model.StateActive
}

func (s *SessionService) lifetimeCtx() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

func (s *SessionService) setState(state model.SessionState) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}

// activate transitions to Active and replaces the heartbeat: the previous
// timer, if any, is cancelled before the new one starts so duplicate
// validation races cannot occur.
func (s *SessionService) activate() {
	s.mu.Lock()
	if s.stopHeartbeat != nil {
		s.stopHeartbeat()
	}
	hbCtx, cancel := context.WithCancel(s.baseCtx)
	s.stopHeartbeat = cancel
	s.state = model.StateActive
	s.message = ""
	s.mu.Unlock()

	go s.heartbeatLoop(hbCtx)
}

// heartbeatLoop re-validates the stored token on the configured interval
// while the session is active.
func (s *SessionService) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cred, err := s.creds.Load(ctx)
			if err != nil || cred == nil {
				slog.Warn("heartbeat found no credential, stopping", "error", err)
				return
			}

			valid, err := s.license.ValidateToken(ctx, cred.Token)
			if err != nil {
				if s.policy == PolicyFailOpen {
					slog.Warn("heartbeat transport failure, staying active", "error", err)
					continue
				}
				slog.Error("heartbeat transport failure", "error", err)
				// Logout must outlive this loop's context: cancelling the
				// heartbeat is part of the logout itself.
				s.ForceLogout(s.lifetimeCtx(), MsgLicenseRevoked)
				return
			}
			if !valid {
				s.ForceLogout(s.lifetimeCtx(), MsgLicenseRevoked)
				return
			}
		}
	}
}

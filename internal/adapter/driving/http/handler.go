// Package httphandler is the HTTP driving adapter that serves the REST API.
package httphandler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/analyticspro/walletlens/internal/application"
)

// maxSnapshotBytes bounds an ingested page snapshot. The wallet page's full
// transaction history stays well under this.
const maxSnapshotBytes = 8 << 20

// HealthPath is the liveness route, shared with the healthcheck probe.
const HealthPath = "/api/v1/health"

// Handler is the HTTP driving adapter. All analytics routes sit behind the
// session gate; session and exchange routes are open.
type Handler struct {
	sessionSvc      *application.SessionService
	refreshSvc      *application.RefreshService
	countdown       *application.Countdown
	authorityURL    string
	authorityOrigin string
	logger          *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. authorityURL
// is the license authority base URL; authorityOrigin is the exact origin
// delegated completions must declare.
func NewHandler(
	sessionSvc *application.SessionService,
	refreshSvc *application.RefreshService,
	countdown *application.Countdown,
	authorityURL string,
	authorityOrigin string,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		sessionSvc:      sessionSvc,
		refreshSvc:      refreshSvc,
		countdown:       countdown,
		authorityURL:    authorityURL,
		authorityOrigin: authorityOrigin,
		logger:          logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/session/login", h.Login)
	mux.HandleFunc("POST /api/v1/session/logout", h.Logout)
	mux.HandleFunc("GET /api/v1/session", h.Session)
	mux.HandleFunc("GET /api/v1/auth/patreon/start", h.DelegatedStart)
	mux.HandleFunc("POST /api/v1/auth/patreon/complete", h.DelegatedComplete)
	mux.HandleFunc("POST /api/v1/snapshot", h.requireActive(h.IngestSnapshot))
	mux.HandleFunc("GET /api/v1/summary", h.requireActive(h.Summary))
	mux.HandleFunc("GET /api/v1/withdrawals", h.requireActive(h.Withdrawals))
	mux.HandleFunc("GET /api/v1/thaw", h.requireActive(h.Thaw))
	mux.HandleFunc("GET "+HealthPath, h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Login performs the direct email+license exchange and re-evaluates the
// session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Email == "" || req.LicenseKey == "" {
		writeError(w, http.StatusBadRequest, "email and license_key are required")
		return
	}

	if err := h.sessionSvc.LoginWithKey(r.Context(), req.Email, req.LicenseKey); err != nil {
		var exchErr *application.ExchangeError
		if errors.As(err, &exchErr) {
			writeError(w, http.StatusUnauthorized, exchErr.Message)
			return
		}
		h.logger.Error("login failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, h.sessionStatus())
}

// Logout forces a logout. Idempotent: logging out a locked session is still
// a 204.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessionSvc.ForceLogout(r.Context(), "")
	w.WriteHeader(http.StatusNoContent)
}

// Session reports the current lifecycle state.
func (h *Handler) Session(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.sessionStatus())
}

// DelegatedStart redirects the caller into the authority's interactive OAuth
// entry point.
func (h *Handler) DelegatedStart(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, h.authorityURL+"/auth/patreon", http.StatusFound)
}

// DelegatedComplete consumes the OAuth completion signal. The declared Origin
// must match the authority origin exactly; a mismatch is rejected outright
// and leaves the session untouched.
func (h *Handler) DelegatedComplete(w http.ResponseWriter, r *http.Request) {
	var req DelegatedCompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	err := h.sessionSvc.CompleteDelegated(r.Context(), r.Header.Get("Origin"), application.DelegatedResult{
		Type:    req.Type,
		Token:   req.Token,
		Email:   req.Email,
		Message: req.Message,
	})
	if err != nil {
		if errors.Is(err, application.ErrUnexpectedOrigin) {
			writeError(w, http.StatusForbidden, "origin not allowed")
			return
		}
		var exchErr *application.ExchangeError
		if errors.As(err, &exchErr) {
			writeError(w, http.StatusUnauthorized, exchErr.Message)
			return
		}
		h.logger.Error("delegated completion failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// IngestSnapshot stores a captured copy of the host page and refreshes the
// ledger from it immediately.
func (h *Handler) IngestSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxSnapshotBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty snapshot")
		return
	}

	id, err := h.refreshSvc.Ingest(r.Context(), body)
	if err != nil {
		h.logger.Error("snapshot ingest failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusAccepted, SnapshotResponse{ID: id})
}

// Summary projects the current ledger over the requested filter window
// (?filter=all|last7|<month key>, defaulting to all).
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	filter := application.Filter(r.URL.Query().Get("filter"))
	if filter == "" {
		filter = application.FilterAll
	}

	sum, ok := h.refreshSvc.Summary(filter)
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot ingested yet")
		return
	}

	var countdown *application.CountdownStatus
	if status, running := h.countdown.Snapshot(); running {
		countdown = &status
	}

	writeJSON(w, http.StatusOK, toSummaryResponse(sum, countdown))
}

// Withdrawals returns the lifetime withdrawal list.
func (h *Handler) Withdrawals(w http.ResponseWriter, _ *http.Request) {
	sum, ok := h.refreshSvc.Summary(application.FilterAll)
	if !ok {
		writeError(w, http.StatusNotFound, "no snapshot ingested yet")
		return
	}

	withdrawals := h.refreshSvc.Withdrawals()
	resp := make([]WithdrawalResponse, 0, len(withdrawals))
	for _, rec := range withdrawals {
		resp = append(resp, toWithdrawalResponse(rec, sum.Rate))
	}

	writeJSON(w, http.StatusOK, resp)
}

// Thaw reports the live freeze countdown, or 404 when nothing is maturing.
func (h *Handler) Thaw(w http.ResponseWriter, _ *http.Request) {
	status, running := h.countdown.Snapshot()
	if !running {
		writeError(w, http.StatusNotFound, "no frozen amount maturing")
		return
	}

	writeJSON(w, http.StatusOK, toThawResponse(status))
}

// Health reports process liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) sessionStatus() SessionResponse {
	status := h.sessionSvc.Status()
	return SessionResponse{
		State:   status.State.String(),
		Message: status.Message,
	}
}

package httphandler_test

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/analyticspro/walletlens/internal/adapter/driving/http"
	"github.com/analyticspro/walletlens/internal/application"
	"github.com/analyticspro/walletlens/internal/domain/model"
	"github.com/analyticspro/walletlens/internal/domain/port/driven"
)

const (
	authorityURL    = "https://revpro.onrender.com"
	authorityOrigin = "https://revpro.onrender.com"
)

func futureToken(t *testing.T) string {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"exp": time.Now().Add(time.Hour).Unix()})
	require.NoError(t, err)
	return "h." + base64.RawURLEncoding.EncodeToString(payload) + ".s"
}

type fakeCredStore struct {
	mu   sync.Mutex
	cred *model.Credential
}

func (f *fakeCredStore) Save(_ context.Context, cred model.Credential) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := cred
	f.cred = &c
	return nil
}

func (f *fakeCredStore) Load(_ context.Context) (*model.Credential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cred == nil {
		return nil, nil
	}
	c := *f.cred
	return &c, nil
}

func (f *fakeCredStore) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cred = nil
	return nil
}

type fakeLicense struct {
	verifyRes driven.VerifyResult
	verifyErr error
}

func (f *fakeLicense) Verify(context.Context, string, string) (*driven.VerifyResult, error) {
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	res := f.verifyRes
	return &res, nil
}

func (f *fakeLicense) ValidateToken(context.Context, string) (bool, error) {
	return true, nil
}

type fakeSnapshots struct {
	mu     sync.Mutex
	latest *model.Snapshot
}

func (f *fakeSnapshots) Put(_ context.Context, snap model.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := snap
	f.latest = &s
	return nil
}

func (f *fakeSnapshots) Latest(_ context.Context) (*model.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return nil, nil
	}
	s := *f.latest
	return &s, nil
}

func (f *fakeSnapshots) Prune(context.Context, int) error { return nil }

type fakeExtractor struct {
	records []model.TransactionRecord
	balance *model.WalletBalance
}

func (f *fakeExtractor) Extract([]byte) ([]model.TransactionRecord, error) {
	return f.records, nil
}

func (f *fakeExtractor) Balance([]byte) (*model.WalletBalance, error) {
	return f.balance, nil
}

type env struct {
	server    http.Handler
	session   *application.SessionService
	countdown *application.Countdown
	license   *fakeLicense
	creds     *fakeCredStore
	extractor *fakeExtractor
}

// newEnv wires the full handler stack over in-memory port fakes. active
// preloads a valid credential so the session starts unlocked.
func newEnv(t *testing.T, active bool, records []model.TransactionRecord) *env {
	t.Helper()

	creds := &fakeCredStore{}
	if active {
		creds.cred = &model.Credential{Token: futureToken(t), Email: "user@example.com"}
	}
	license := &fakeLicense{}

	session := application.NewSessionService(creds, license, authorityOrigin, time.Hour, application.PolicyFailClosed)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	require.NoError(t, session.Start(ctx))

	countdown := application.NewCountdown()
	extractor := &fakeExtractor{records: records}
	refresh := application.NewRefreshService(&fakeSnapshots{}, extractor, session, countdown, time.Hour, 10, 0.1)

	done := make(chan struct{})
	go func() {
		refresh.Start(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := httphandler.NewHandler(session, refresh, countdown, authorityURL, authorityOrigin, logger)

	return &env{
		server:    httphandler.NewServeMux(handler, logger),
		session:   session,
		countdown: countdown,
		license:   license,
		creds:     creds,
		extractor: extractor,
	}
}

func (e *env) do(method, path string, body []byte, origin string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestHealth(t *testing.T) {
	e := newEnv(t, false, nil)

	rec := e.do(http.MethodGet, "/api/v1/health", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[httphandler.HealthResponse](t, rec)
	assert.Equal(t, "ok", body.Status)
}

func TestSession_Locked(t *testing.T) {
	e := newEnv(t, false, nil)

	rec := e.do(http.MethodGet, "/api/v1/session", nil, "")

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody[httphandler.SessionResponse](t, rec)
	assert.Equal(t, "unauthenticated", body.State)
}

func TestGatedRoutesRequireActiveSession(t *testing.T) {
	e := newEnv(t, false, nil)

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/snapshot"},
		{http.MethodGet, "/api/v1/summary"},
		{http.MethodGet, "/api/v1/withdrawals"},
		{http.MethodGet, "/api/v1/thaw"},
	}

	for _, p := range paths {
		rec := e.do(p.method, p.path, []byte("x"), "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", p.method, p.path)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "Pro Access Required", body["error"])
	}
}

func TestGatedRouteCarriesLogoutMessage(t *testing.T) {
	e := newEnv(t, true, nil)
	e.session.ForceLogout(context.Background(), application.MsgLicenseRevoked)

	rec := e.do(http.MethodGet, "/api/v1/summary", nil, "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, application.MsgLicenseRevoked, body["error"])
}

func TestLogin(t *testing.T) {
	t.Run("success unlocks the session", func(t *testing.T) {
		e := newEnv(t, false, nil)
		e.license.verifyRes = driven.VerifyResult{Success: true, Token: futureToken(t)}

		rec := e.do(http.MethodPost, "/api/v1/session/login",
			[]byte(`{"email":"user@example.com","license_key":"KEY-123"}`), "")

		assert.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[httphandler.SessionResponse](t, rec)
		assert.Equal(t, "active", body.State)
		assert.True(t, e.session.Active())
	})

	t.Run("rejection surfaces the authority message", func(t *testing.T) {
		e := newEnv(t, false, nil)
		e.license.verifyRes = driven.VerifyResult{Success: false, Message: "License key not found"}

		rec := e.do(http.MethodPost, "/api/v1/session/login",
			[]byte(`{"email":"user@example.com","license_key":"BAD"}`), "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "License key not found", body["error"])
	})

	t.Run("malformed body", func(t *testing.T) {
		e := newEnv(t, false, nil)

		rec := e.do(http.MethodPost, "/api/v1/session/login", []byte("{"), "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing fields", func(t *testing.T) {
		e := newEnv(t, false, nil)

		rec := e.do(http.MethodPost, "/api/v1/session/login", []byte(`{"email":"user@example.com"}`), "")

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestLogout(t *testing.T) {
	e := newEnv(t, true, nil)
	require.True(t, e.session.Active())

	rec := e.do(http.MethodPost, "/api/v1/session/logout", nil, "")

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.False(t, e.session.Active())

	// Logging out again is still a 204.
	rec = e.do(http.MethodPost, "/api/v1/session/logout", nil, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestDelegatedStart(t *testing.T) {
	e := newEnv(t, false, nil)

	rec := e.do(http.MethodGet, "/api/v1/auth/patreon/start", nil, "")

	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, authorityURL+"/auth/patreon", rec.Header().Get("Location"))
}

func TestDelegatedComplete(t *testing.T) {
	t.Run("foreign origin is forbidden", func(t *testing.T) {
		e := newEnv(t, false, nil)

		rec := e.do(http.MethodPost, "/api/v1/auth/patreon/complete",
			[]byte(`{"type":"PATREON_SUCCESS","token":"tok"}`), "https://evil.example")

		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.False(t, e.session.Active())
	})

	t.Run("success unlocks the session", func(t *testing.T) {
		e := newEnv(t, false, nil)
		body, err := json.Marshal(map[string]string{
			"type":  "PATREON_SUCCESS",
			"token": futureToken(t),
			"email": "patron@example.com",
		})
		require.NoError(t, err)

		rec := e.do(http.MethodPost, "/api/v1/auth/patreon/complete", body, authorityOrigin)

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.True(t, e.session.Active())
	})

	t.Run("error message maps to unauthorized", func(t *testing.T) {
		e := newEnv(t, false, nil)

		rec := e.do(http.MethodPost, "/api/v1/auth/patreon/complete",
			[]byte(`{"type":"PATREON_ERROR","message":"Not an active patron"}`), authorityOrigin)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		body := decodeBody[map[string]string](t, rec)
		assert.Equal(t, "Not an active patron", body["error"])
	})
}

func TestSnapshotAndSummaryFlow(t *testing.T) {
	records := []model.TransactionRecord{
		{DateKey: "06/01/2024", Time: "10:30", Description: "Chat Revenue", Amount: 120},
		{DateKey: "06/01/2024", Time: "11:00", Description: "Withdrawal to bank", Amount: -50, Withdrawal: true},
	}
	e := newEnv(t, true, records)

	rec := e.do(http.MethodGet, "/api/v1/summary", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code, "no summary before the first snapshot")

	rec = e.do(http.MethodPost, "/api/v1/snapshot", []byte("<html>wallet</html>"), "")
	require.Equal(t, http.StatusAccepted, rec.Code)
	snap := decodeBody[httphandler.SnapshotResponse](t, rec)
	assert.NotEmpty(t, snap.ID)

	rec = e.do(http.MethodGet, "/api/v1/summary?filter=all", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[httphandler.SummaryResponse](t, rec)
	assert.Equal(t, "all", sum.Filter)
	assert.InDelta(t, 120.0, sum.Revenue.Coins, 1e-9)
	assert.Equal(t, "12.00", sum.Revenue.USD)
	assert.InDelta(t, 50.0, sum.Withdrawn.Coins, 1e-9)
	require.Len(t, sum.Months, 1)
	assert.Equal(t, "June 2024", sum.Months[0].Key)
	require.Len(t, sum.Months[0].Days, 1)
	require.Len(t, sum.Months[0].Days[0].Transactions, 2)
	assert.Equal(t, "10:30 AM", sum.Months[0].Days[0].Transactions[0].Time)

	rec = e.do(http.MethodGet, "/api/v1/withdrawals", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	withdrawals := decodeBody[[]httphandler.WithdrawalResponse](t, rec)
	require.Len(t, withdrawals, 1)
	assert.InDelta(t, 50.0, withdrawals[0].Amount.Coins, 1e-9)
	assert.Equal(t, "5.00", withdrawals[0].Amount.USD)
}

func TestSummary_CarriesWalletHeaderFigures(t *testing.T) {
	records := []model.TransactionRecord{
		{DateKey: "06/01/2024", Time: "10:30", Description: "Chat Revenue", Amount: 120},
	}
	e := newEnv(t, true, records)
	e.extractor.balance = &model.WalletBalance{Coins: 1250, Earnings: 9800}

	rec := e.do(http.MethodPost, "/api/v1/snapshot", []byte("<html></html>"), "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[httphandler.SummaryResponse](t, rec)
	require.NotNil(t, sum.WalletBalance)
	assert.InDelta(t, 1250.0, sum.WalletBalance.Coins, 1e-9)
	assert.Equal(t, "125.00", sum.WalletBalance.USD)
	require.NotNil(t, sum.WalletEarnings)
	assert.InDelta(t, 9800.0, sum.WalletEarnings.Coins, 1e-9)
}

func TestSummary_OmitsHeaderFiguresWhenAbsent(t *testing.T) {
	records := []model.TransactionRecord{
		{DateKey: "06/01/2024", Time: "10:30", Description: "Chat Revenue", Amount: 120},
	}
	e := newEnv(t, true, records)

	rec := e.do(http.MethodPost, "/api/v1/snapshot", []byte("<html></html>"), "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[httphandler.SummaryResponse](t, rec)
	assert.Nil(t, sum.WalletBalance)
	assert.Nil(t, sum.WalletEarnings)
}

func TestSnapshot_EmptyBody(t *testing.T) {
	e := newEnv(t, true, nil)

	rec := e.do(http.MethodPost, "/api/v1/snapshot", nil, "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSummary_SanitizesDescriptions(t *testing.T) {
	records := []model.TransactionRecord{
		{DateKey: "06/01/2024", Time: "10:30", Description: `<script>alert(1)</script>Chat Revenue`, Amount: 10},
	}
	e := newEnv(t, true, records)

	rec := e.do(http.MethodPost, "/api/v1/snapshot", []byte("<html></html>"), "")
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = e.do(http.MethodGet, "/api/v1/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	sum := decodeBody[httphandler.SummaryResponse](t, rec)
	desc := sum.Months[0].Days[0].Transactions[0].Description
	assert.NotContains(t, desc, "<script>")
	assert.Contains(t, desc, "Chat Revenue")
}

func TestThaw(t *testing.T) {
	t.Run("404 when nothing is maturing", func(t *testing.T) {
		e := newEnv(t, true, nil)

		rec := e.do(http.MethodGet, "/api/v1/thaw", nil, "")

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("reports the live countdown after ingest", func(t *testing.T) {
		thaw := time.Now().Add(48 * time.Hour).UTC().Truncate(time.Second)
		records := []model.TransactionRecord{
			{DateKey: "06/01/2024", Time: "10:00", Description: "Stream Revenue", Amount: 500, Frozen: true, ThawAt: &thaw},
		}
		e := newEnv(t, true, records)

		rec := e.do(http.MethodPost, "/api/v1/snapshot", []byte("<html></html>"), "")
		require.Equal(t, http.StatusAccepted, rec.Code)

		rec = e.do(http.MethodGet, "/api/v1/thaw", nil, "")
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody[httphandler.ThawResponse](t, rec)
		assert.Equal(t, thaw.Format(time.RFC3339), body.Target)
		assert.InDelta(t, 500.0, body.Amount, 1e-9)
		assert.False(t, body.Processing)
		assert.Equal(t, 1, body.Days)
	})
}

package authhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"erpadmin/internal/domain/audit"
	"erpadmin/internal/domain/auth"
	"erpadmin/internal/domain/perm"
	"erpadmin/internal/platform/metrics"
	"erpadmin/internal/transport/http/api"
	"erpadmin/internal/transport/http/middleware"
)

type stubService struct {
	loginErr   error
	meErr      error
	refreshErr error
	logoutErr  error
	loggedOut  []auth.UserContext
	lastLogin  auth.LoginInput
}

func (s *stubService) Login(_ context.Context, in auth.LoginInput) (auth.LoginResult, error) {
	s.lastLogin = in
	if s.loginErr != nil {
		return auth.LoginResult{}, s.loginErr
	}
	return auth.LoginResult{
		User:      auth.Profile{ID: "u1", Email: in.Email, Permissions: []string{}},
		Token:     "tok",
		SessionID: "sid",
		ExpiresAt: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC),
	}, nil
}

func (s *stubService) Logout(_ context.Context, user auth.UserContext) error {
	s.loggedOut = append(s.loggedOut, user)
	return s.logoutErr
}

func (s *stubService) Me(_ context.Context, user auth.UserContext) (auth.Profile, error) {
	if s.meErr != nil {
		return auth.Profile{}, s.meErr
	}
	return auth.Profile{ID: user.UserID, Permissions: []string{perm.UsersView}}, nil
}

func (s *stubService) Refresh(_ context.Context, _ auth.UserContext) (auth.TokenResult, error) {
	if s.refreshErr != nil {
		return auth.TokenResult{}, s.refreshErr
	}
	return auth.TokenResult{Token: "tok2", ExpiresAt: time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) api.RawEnvelope {
	t.Helper()
	var env api.RawEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error: %v (%s)", err, rec.Body.String())
	}
	return env
}

func postLogin(h *Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.HandleLogin(rec, req)
	return rec
}

func TestHandleLoginSuccess(t *testing.T) {
	svc := &stubService{}
	h := NewHandler(svc, metrics.New(), nil)

	rec := postLogin(h, `{"email":"admin@acme.test","password":"pw","remember":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out loginResponse
	if err := decode(t, rec).Decode(&out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if out.Token != "tok" || out.SessionID != "sid" || out.User.ID != "u1" {
		t.Fatalf("unexpected response %+v", out)
	}
	if !svc.lastLogin.Remember {
		t.Fatal("expected remember flag to reach the service")
	}
}

func TestHandleLoginErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest, wantCode: "invalid_payload"},
		{name: "missing fields", body: `{}`, wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "bad email", body: `{"email":"nope","password":"x"}`, wantStatus: http.StatusBadRequest, wantCode: "validation_error"},
		{name: "wrong password", body: `{"email":"a@b.co","password":"x"}`, err: auth.ErrInvalidCredentials, wantStatus: http.StatusUnauthorized, wantCode: "invalid_credentials"},
		{name: "mfa required", body: `{"email":"a@b.co","password":"x"}`, err: auth.ErrMFARequired, wantStatus: http.StatusUnauthorized, wantCode: "mfa_required"},
		{name: "mfa invalid", body: `{"email":"a@b.co","password":"x","mfaCode":"1"}`, err: auth.ErrMFAInvalid, wantStatus: http.StatusUnauthorized, wantCode: "mfa_invalid"},
		{name: "store down", body: `{"email":"a@b.co","password":"x"}`, err: errors.New("db down"), wantStatus: http.StatusInternalServerError, wantCode: "internal_error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(&stubService{loginErr: tc.err}, nil, nil)
			rec := postLogin(h, tc.body)
			if rec.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, rec.Code)
			}
			env := decode(t, rec)
			if env.Success || env.Error == nil || env.Error.Code != tc.wantCode {
				t.Fatalf("expected %s, got %+v", tc.wantCode, env.Error)
			}
		})
	}
}

func TestHandlersRequireUser(t *testing.T) {
	h := NewHandler(&stubService{}, nil, nil)
	for name, fn := range map[string]http.HandlerFunc{"me": h.HandleMe, "refresh": h.HandleRefresh} {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401 without user, got %d", name, rec.Code)
		}
	}
}

func authed(method string) *http.Request {
	req := httptest.NewRequest(method, "/", nil)
	return req.WithContext(middleware.WithUser(req.Context(), auth.UserContext{UserID: "u1", SessionID: "sid"}))
}

func TestHandleMe(t *testing.T) {
	h := NewHandler(&stubService{}, nil, nil)
	rec := httptest.NewRecorder()
	h.HandleMe(rec, authed(http.MethodGet))
	var profile auth.Profile
	if err := decode(t, rec).Decode(&profile); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if profile.ID != "u1" || len(profile.Permissions) != 1 {
		t.Fatalf("unexpected profile %+v", profile)
	}

	h = NewHandler(&stubService{meErr: auth.ErrUserInactive}, nil, nil)
	rec = httptest.NewRecorder()
	h.HandleMe(rec, authed(http.MethodGet))
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for inactive user, got %d", rec.Code)
	}
}

func TestHandleRefresh(t *testing.T) {
	h := NewHandler(&stubService{}, nil, nil)
	rec := httptest.NewRecorder()
	h.HandleRefresh(rec, authed(http.MethodPost))
	var out tokenResponse
	if err := decode(t, rec).Decode(&out); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if out.Token != "tok2" {
		t.Fatalf("unexpected token %q", out.Token)
	}

	h = NewHandler(&stubService{refreshErr: auth.ErrSessionRevoked}, nil, nil)
	rec = httptest.NewRecorder()
	h.HandleRefresh(rec, authed(http.MethodPost))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked session, got %d", rec.Code)
	}
}

func TestHandleLogoutAlwaysSucceeds(t *testing.T) {
	svc := &stubService{logoutErr: errors.New("db down")}
	h := NewHandler(svc, nil, nil)

	rec := httptest.NewRecorder()
	h.HandleLogout(rec, authed(http.MethodPost))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 even when revoke fails, got %d", rec.Code)
	}
	if len(svc.loggedOut) != 1 || svc.loggedOut[0].SessionID != "sid" {
		t.Fatalf("expected one revoke for sid, got %+v", svc.loggedOut)
	}

	rec = httptest.NewRecorder()
	h.HandleLogout(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	if rec.Code != http.StatusOK || len(svc.loggedOut) != 1 {
		t.Fatalf("anonymous logout should succeed without revoking, got %d", rec.Code)
	}
}

func TestHandlersRecordAuditTrail(t *testing.T) {
	trail := audit.New(audit.NewMemoryStore())
	h := NewHandler(&stubService{}, nil, trail)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"admin@acme.test","password":"pw"}`))
	req.RemoteAddr = "10.0.0.7:5000"
	h.HandleLogin(httptest.NewRecorder(), req)

	h.Service = &stubService{loginErr: auth.ErrInvalidCredentials}
	h.HandleLogin(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewBufferString(`{"email":"x@acme.test","password":"pw"}`)))

	h.HandleLogout(httptest.NewRecorder(), authed(http.MethodPost))

	events, err := trail.List(context.Background(), audit.Filter{}, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %+v", events)
	}
	logout, failed, login := events[0], events[1], events[2]
	if login.Action != audit.ActionLogin || login.Outcome != "ok" || login.ActorID != "u1" || login.IP != "10.0.0.7" {
		t.Fatalf("unexpected login event %+v", login)
	}
	if failed.Outcome != "invalid_credentials" || failed.Subject != "x@acme.test" || failed.ActorID != "" {
		t.Fatalf("unexpected failed login event %+v", failed)
	}
	if logout.Action != audit.ActionLogout || logout.Outcome != "ok" {
		t.Fatalf("unexpected logout event %+v", logout)
	}
}

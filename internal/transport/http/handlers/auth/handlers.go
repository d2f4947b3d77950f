package authhandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"erpadmin/internal/domain/audit"
	"erpadmin/internal/domain/auth"
	"erpadmin/internal/platform/metrics"
	"erpadmin/internal/platform/requestctx"
	"erpadmin/internal/transport/http/api"
	"erpadmin/internal/transport/http/middleware"
	"erpadmin/internal/transport/http/shared"
)

// Service is the slice of auth.Service the handlers call.
type Service interface {
	Login(ctx context.Context, in auth.LoginInput) (auth.LoginResult, error)
	Logout(ctx context.Context, user auth.UserContext) error
	Me(ctx context.Context, user auth.UserContext) (auth.Profile, error)
	Refresh(ctx context.Context, user auth.UserContext) (auth.TokenResult, error)
}

type Handler struct {
	Service Service
	Metrics *metrics.Collector
	Audit   *audit.Service
}

func NewHandler(service Service, collector *metrics.Collector, trail *audit.Service) *Handler {
	return &Handler{Service: service, Metrics: collector, Audit: trail}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
	MFACode  string `json:"mfaCode"`
}

type loginResponse struct {
	User      auth.Profile `json:"user"`
	Token     string       `json:"token"`
	SessionID string       `json:"sessionId"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	reqID := requestctx.GetRequestID(r.Context())
	var payload loginRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.Metrics.AuthEvent("login", "invalid_payload")
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", reqID)
		return
	}

	v := shared.NewValidator()
	v.Required("email", payload.Email, "is required")
	v.Email("email", payload.Email)
	v.Required("password", payload.Password, "is required")
	v.MaxLen("mfaCode", payload.MFACode, 16)
	if v.Reject(w, reqID) {
		h.Metrics.AuthEvent("login", "validation_error")
		return
	}

	res, err := h.Service.Login(r.Context(), auth.LoginInput{
		Email:    payload.Email,
		Password: payload.Password,
		MFACode:  payload.MFACode,
		Remember: payload.Remember,
	})
	if err != nil {
		_, code, _ := classify(err)
		h.record(r, audit.Event{Action: audit.ActionLogin, Outcome: code, Subject: payload.Email})
		h.fail(w, r, "login", err)
		return
	}
	h.Metrics.AuthEvent("login", "ok")
	h.record(r, audit.Event{
		Action:    audit.ActionLogin,
		Outcome:   "ok",
		Subject:   payload.Email,
		ActorID:   res.User.ID,
		CompanyID: res.User.CompanyID,
	})
	slog.Info("login", "userId", res.User.ID, "companyId", res.User.CompanyID, "remember", payload.Remember, "requestId", reqID)

	api.Success(w, loginResponse{
		User:      res.User,
		Token:     res.Token,
		SessionID: res.SessionID,
		ExpiresAt: res.ExpiresAt,
	}, reqID)
}

// HandleLogout always succeeds so a client holding a stale token can still
// finish its local teardown.
func (h *Handler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if user, ok := middleware.GetUser(r.Context()); ok && user.SessionID != "" {
		outcome := "ok"
		if err := h.Service.Logout(r.Context(), user); err != nil {
			outcome = "revoke_failed"
			slog.Warn("logout session revoke failed", "userId", user.UserID, "err", err)
		}
		h.Metrics.AuthEvent("logout", outcome)
		h.record(r, audit.Event{Action: audit.ActionLogout, Outcome: outcome, ActorID: user.UserID, CompanyID: user.CompanyID})
	}
	api.Success(w, map[string]string{"status": "logged_out"}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		h.fail(w, r, "me", auth.ErrSessionRevoked)
		return
	}
	profile, err := h.Service.Me(r.Context(), user)
	if err != nil {
		h.fail(w, r, "me", err)
		return
	}
	h.Metrics.AuthEvent("me", "ok")
	api.Success(w, profile, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok {
		h.fail(w, r, "refresh", auth.ErrSessionRevoked)
		return
	}
	res, err := h.Service.Refresh(r.Context(), user)
	if err != nil {
		_, code, _ := classify(err)
		h.record(r, audit.Event{Action: audit.ActionRefresh, Outcome: code, ActorID: user.UserID, CompanyID: user.CompanyID})
		h.fail(w, r, "refresh", err)
		return
	}
	h.Metrics.AuthEvent("refresh", "ok")
	h.record(r, audit.Event{Action: audit.ActionRefresh, Outcome: "ok", ActorID: user.UserID, CompanyID: user.CompanyID})
	api.Success(w, tokenResponse{Token: res.Token, ExpiresAt: res.ExpiresAt}, requestctx.GetRequestID(r.Context()))
}

func (h *Handler) record(r *http.Request, evt audit.Event) {
	evt.RequestID = requestctx.GetRequestID(r.Context())
	evt.IP = middleware.ClientIP(r)
	h.Audit.Record(r.Context(), evt)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, event string, err error) {
	status, code, message := classify(err)
	h.Metrics.AuthEvent(event, code)
	if status >= http.StatusInternalServerError {
		slog.Error("auth request failed", "event", event, "err", err, "requestId", requestctx.GetRequestID(r.Context()))
	}
	api.Fail(w, status, code, message, requestctx.GetRequestID(r.Context()))
}

func classify(err error) (int, string, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid credentials"
	case errors.Is(err, auth.ErrMFARequired):
		return http.StatusUnauthorized, "mfa_required", "mfa code required"
	case errors.Is(err, auth.ErrMFAInvalid):
		return http.StatusUnauthorized, "mfa_invalid", "invalid mfa code"
	case errors.Is(err, auth.ErrSessionRevoked):
		return http.StatusUnauthorized, "unauthorized", "session expired"
	case errors.Is(err, auth.ErrUserInactive):
		return http.StatusForbidden, "user_inactive", "account is not active"
	default:
		return http.StatusInternalServerError, "internal_error", "request failed"
	}
}

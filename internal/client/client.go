// Package client talks to the auth backend over its JSON envelope API.
// It implements session.AuthBackend and access.Registry.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"erpadmin/internal/domain/access"
	"erpadmin/internal/platform/requestctx"
	"erpadmin/internal/session"
	"erpadmin/internal/transport/http/api"
)

const maxResponseBytes = 1 << 20

var (
	_ session.AuthBackend = (*Client)(nil)
	_ access.Registry     = (*Client)(nil)
)

type Options struct {
	BaseURL            string
	HTTPClient         *http.Client
	Timeout            time.Duration
	RatePerSecond      float64
	RateBurst          int
	BreakerMaxFailures uint32
	BreakerOpenTimeout time.Duration
	Logger             *slog.Logger
}

type Client struct {
	base    *url.URL
	http    *http.Client
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker[*reply]
	logger  *slog.Logger
}

// reply is a response the backend produced on purpose: anything below 500
// that made it back over the wire.
type reply struct {
	status    int
	env       api.RawEnvelope
	decodeErr error
}

func New(opts Options) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(opts.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", opts.BaseURL)
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit, burst := rate.Inf, opts.RateBurst
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}
	if burst <= 0 {
		burst = 1
	}

	maxFailures := opts.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	openTimeout := opts.BreakerOpenTimeout
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}

	c := &Client{
		base:    base,
		http:    httpClient,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker[*reply](gobreaker.Settings{
		Name:        "auth-backend",
		MaxRequests: 1,
		Timeout:     openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		// A caller giving up says nothing about backend health.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGaveUp)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	return c, nil
}

// BreakerState reports the circuit breaker state for diagnostics.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}

var errCallerGaveUp = errors.New("caller context done")

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
	MFACode  string `json:"mfaCode,omitempty"`
}

func (c *Client) Login(ctx context.Context, creds session.Credentials) (session.LoginResponse, error) {
	rep, err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", "", loginRequest{
		Email:    creds.Email,
		Password: creds.Password,
		Remember: creds.Remember,
		MFACode:  creds.MFACode,
	})
	if err != nil {
		return session.LoginResponse{}, err
	}
	if err := loginStatusError(rep); err != nil {
		return session.LoginResponse{}, err
	}
	var out session.LoginResponse
	if err := rep.decode(&out); err != nil {
		return session.LoginResponse{}, err
	}
	return out, nil
}

func (c *Client) Logout(ctx context.Context, token string) error {
	rep, err := c.do(ctx, http.MethodPost, "/api/v1/auth/logout", token, nil)
	if err != nil {
		return err
	}
	if rep.status >= http.StatusBadRequest {
		return fmt.Errorf("logout: unexpected status %d", rep.status)
	}
	return nil
}

func (c *Client) Me(ctx context.Context, token string) (session.User, error) {
	rep, err := c.do(ctx, http.MethodGet, "/api/v1/auth/me", token, nil)
	if err != nil {
		return session.User{}, err
	}
	if err := sessionStatusError(rep); err != nil {
		return session.User{}, err
	}
	var out session.User
	if err := rep.decode(&out); err != nil {
		return session.User{}, err
	}
	return out, nil
}

func (c *Client) Refresh(ctx context.Context, token string) (session.TokenResponse, error) {
	rep, err := c.do(ctx, http.MethodPost, "/api/v1/auth/refresh", token, nil)
	if err != nil {
		return session.TokenResponse{}, err
	}
	if err := sessionStatusError(rep); err != nil {
		return session.TokenResponse{}, err
	}
	var out session.TokenResponse
	if err := rep.decode(&out); err != nil {
		return session.TokenResponse{}, err
	}
	if out.Token == "" {
		return session.TokenResponse{}, fmt.Errorf("%w: refresh returned no token", session.ErrMalformedResponse)
	}
	return out, nil
}

func (c *Client) Systems(ctx context.Context, token string) ([]access.SystemDescriptor, error) {
	rep, err := c.do(ctx, http.MethodGet, "/api/v1/systems", token, nil)
	if err != nil {
		return nil, err
	}
	if err := sessionStatusError(rep); err != nil {
		return nil, err
	}
	var out []access.SystemDescriptor
	if err := rep.decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

// do paces, breaks and sends one call. The returned error is always
// session.ErrNetwork based; status handling is left to the caller.
func (c *Client) do(ctx context.Context, method, path, token string, body any) (*reply, error) {
	ctx, reqID := requestctx.EnsureRequestID(ctx)

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		payload = raw
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}

	rep, err := c.breaker.Execute(func() (*reply, error) {
		return c.send(ctx, method, path, token, reqID, payload)
	})
	if err != nil {
		c.logger.Debug("backend call failed", "method", method, "path", path, "requestId", reqID, "err", err)
		if errors.Is(err, session.ErrNetwork) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}
	c.logger.Debug("backend call", "method", method, "path", path, "status", rep.status, "requestId", reqID)
	return rep, nil
}

func (c *Client) send(ctx context.Context, method, path, token, reqID string, payload []byte) (*reply, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(requestctx.HeaderRequestID, reqID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %w: %w", session.ErrNetwork, errCallerGaveUp, err)
		}
		return nil, fmt.Errorf("%w: %w", session.ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", session.ErrNetwork, err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: status %d", session.ErrNetwork, resp.StatusCode)
	}

	rep := &reply{status: resp.StatusCode}
	if err := json.Unmarshal(raw, &rep.env); err != nil {
		rep.decodeErr = err
	}
	return rep, nil
}

func (r *reply) apiError() *api.Error {
	if r.decodeErr == nil && r.env.Error != nil {
		return r.env.Error
	}
	return &api.Error{Code: "http_" + strconv.Itoa(r.status), Message: http.StatusText(r.status)}
}

func (r *reply) decode(out any) error {
	if r.decodeErr != nil {
		return fmt.Errorf("%w: %w", session.ErrMalformedResponse, r.decodeErr)
	}
	if r.status < 200 || r.status > 299 {
		return fmt.Errorf("%w: unexpected status %d", session.ErrMalformedResponse, r.status)
	}
	if err := r.env.Decode(out); err != nil {
		return fmt.Errorf("%w: %w", session.ErrMalformedResponse, err)
	}
	return nil
}

func loginStatusError(r *reply) error {
	switch {
	case r.status < http.StatusBadRequest:
		return nil
	case r.status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", session.ErrNetwork, r.apiError())
	case r.apiError().Code == "mfa_required":
		return fmt.Errorf("%w: %w", session.ErrMFARequired, r.apiError())
	default:
		return fmt.Errorf("%w: %w", session.ErrAuthenticationFailed, r.apiError())
	}
}

func sessionStatusError(r *reply) error {
	switch {
	case r.status < http.StatusBadRequest:
		return nil
	case r.status == http.StatusUnauthorized, r.status == http.StatusForbidden:
		return fmt.Errorf("%w: %w", session.ErrSessionInvalid, r.apiError())
	case r.status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", session.ErrNetwork, r.apiError())
	default:
		return fmt.Errorf("%w: unexpected status %d", session.ErrMalformedResponse, r.status)
	}
}

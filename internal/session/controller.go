package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type State int

const (
	Anonymous State = iota
	Authenticating
	Authenticated
	Refreshing
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticating:
		return "authenticating"
	case Authenticated:
		return "authenticated"
	case Refreshing:
		return "refreshing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
	MFACode  string `json:"mfaCode,omitempty"`
}

type LoginResponse struct {
	User      User      `json:"user"`
	Token     string    `json:"token"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AuthBackend is the remote auth service.
type AuthBackend interface {
	Login(ctx context.Context, creds Credentials) (LoginResponse, error)
	Logout(ctx context.Context, token string) error
	Me(ctx context.Context, token string) (User, error)
	Refresh(ctx context.Context, token string) (TokenResponse, error)
}

// Result is what every lifecycle operation settles into. Err is nil on
// success; on failure State says where the session ended up.
type Result struct {
	State State
	Err   error
}

func (r Result) OK() bool { return r.Err == nil }

// Controller is the only writer of the Store. Every operation takes a new
// generation when it starts; a completion whose generation is no longer
// the latest leaves the store alone and reports ErrSuperseded.
type Controller struct {
	store   *Store
	backend AuthBackend
	logger  *slog.Logger

	mu         sync.Mutex
	state      State
	generation uint64
	onChange   func(from, to State)
}

type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStateHook registers fn to be called on every state transition. fn
// runs with the controller lock held and must not call back into it.
func WithStateHook(fn func(from, to State)) Option {
	return func(c *Controller) {
		c.onChange = fn
	}
}

func NewController(store *Store, backend AuthBackend, opts ...Option) *Controller {
	c := &Controller{
		store:   store,
		backend: backend,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if _, ok := store.Get(); ok {
		c.state = Authenticated
	}
	return c
}

func (c *Controller) Store() *Store {
	return c.store
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Login authenticates and, on success, replaces any existing session.
// On failure no session is left behind.
func (c *Controller) Login(ctx context.Context, creds Credentials) Result {
	gen := c.begin(Authenticating)
	resp, err := c.backend.Login(ctx, creds)
	if err != nil {
		c.logger.Info("login failed", "email", creds.Email, "err", err)
		return c.teardown(gen, err)
	}
	sess := Session{
		User:      resp.User,
		Token:     resp.Token,
		SessionID: resp.SessionID,
		ExpiresAt: resp.ExpiresAt,
	}
	res := c.commit(gen, sess)
	if res.OK() {
		c.logger.Info("login succeeded", "userId", sess.User.ID, "sessionId", sess.SessionID)
	}
	return res
}

// Logout always ends Anonymous. The revoke call is best effort; its failure
// is reported as ErrLogoutTransport after local state is already gone.
func (c *Controller) Logout(ctx context.Context) Result {
	token := c.store.Token()
	gen := c.begin(Anonymous)
	return c.logout(ctx, gen, token)
}

// logout revokes token, the one the calling operation started with. A
// superseded operation revokes nothing: the token may already belong to
// a newer session.
func (c *Controller) logout(ctx context.Context, gen uint64, token string) Result {
	res := c.teardown(gen, nil)
	if token == "" || errors.Is(res.Err, ErrSuperseded) {
		return res
	}
	if err := c.backend.Logout(ctx, token); err != nil {
		c.logger.Warn("logout revoke failed", "err", err)
		res.Err = errors.Join(res.Err, fmt.Errorf("%w: %w", ErrLogoutTransport, err))
	}
	return res
}

// Initialize restores a persisted session and confirms it with the backend.
// Any failure clears local state.
func (c *Controller) Initialize(ctx context.Context) Result {
	gen := c.begin(Authenticating)
	sess, ok, err := c.store.Load()
	if err != nil {
		c.logger.Warn("discarded persisted session", "err", err)
		return c.teardown(gen, err)
	}
	if !ok {
		return c.teardown(gen, nil)
	}

	user, err := c.backend.Me(ctx, sess.Token)
	if err != nil {
		c.logger.Info("persisted session rejected", "err", err)
		return c.teardown(gen, err)
	}
	sess.User = user
	return c.commit(gen, sess)
}

// RefreshUser reloads the profile, keeping the token. Failure logs out.
func (c *Controller) RefreshUser(ctx context.Context) Result {
	sess, ok := c.store.Get()
	if !ok {
		return Result{State: c.State(), Err: ErrNoSession}
	}
	gen := c.begin(Refreshing)
	user, err := c.backend.Me(ctx, sess.Token)
	if err != nil {
		c.logger.Info("user refresh failed", "userId", sess.User.ID, "err", err)
		res := c.logout(ctx, gen, sess.Token)
		res.Err = errors.Join(err, res.Err)
		return res
	}
	sess.User = user
	return c.commit(gen, sess)
}

// RefreshToken swaps in a new token and expiry; the profile is untouched.
func (c *Controller) RefreshToken(ctx context.Context) Result {
	sess, ok := c.store.Get()
	if !ok {
		return Result{State: c.State(), Err: ErrNoSession}
	}
	gen := c.begin(Refreshing)
	resp, err := c.backend.Refresh(ctx, sess.Token)
	if err != nil {
		c.logger.Info("token refresh failed", "userId", sess.User.ID, "err", err)
		res := c.logout(ctx, gen, sess.Token)
		res.Err = errors.Join(err, res.Err)
		return res
	}
	sess.Token = resp.Token
	sess.ExpiresAt = resp.ExpiresAt
	return c.commit(gen, sess)
}

func (c *Controller) begin(state State) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.transition(state)
	return c.generation
}

// commit publishes sess if gen is still current. A session the store
// refuses is treated like a rejected one.
func (c *Controller) commit(gen uint64, sess Session) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return Result{State: c.state, Err: ErrSuperseded}
	}
	if err := c.store.Set(sess); err != nil {
		err = fmt.Errorf("%w: %w", ErrMalformedResponse, err)
		if clearErr := c.store.Clear(); clearErr != nil {
			err = errors.Join(err, clearErr)
		}
		c.transition(Anonymous)
		return Result{State: Anonymous, Err: err}
	}
	c.transition(Authenticated)
	return Result{State: Authenticated}
}

// teardown clears the store if gen is still current and settles Anonymous.
func (c *Controller) teardown(gen uint64, cause error) Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.generation {
		return Result{State: c.state, Err: errors.Join(cause, ErrSuperseded)}
	}
	if err := c.store.Clear(); err != nil {
		c.logger.Error("clear session storage failed", "err", err)
		cause = errors.Join(cause, err)
	}
	c.transition(Anonymous)
	return Result{State: Anonymous, Err: cause}
}

func (c *Controller) transition(to State) {
	from := c.state
	c.state = to
	if from != to && c.onChange != nil {
		c.onChange(from, to)
	}
}

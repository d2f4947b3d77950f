package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"erpadmin/internal/platform/storage"
)

type fakeBackend struct {
	mu sync.Mutex

	loginResp  LoginResponse
	loginErr   error
	meUser     User
	meErr      error
	refreshErr error
	logoutErr  error

	// loginGate, when set, blocks Login until closed; loginEntered is
	// closed once Login is waiting on it.
	loginGate    chan struct{}
	loginEntered chan struct{}
	// meGate and refreshGate hold Me and Refresh the same way.
	meGate         chan struct{}
	meEntered      chan struct{}
	refreshGate    chan struct{}
	refreshEntered chan struct{}

	logoutTokens []string
	meCalls      int
}

func (f *fakeBackend) Login(ctx context.Context, creds Credentials) (LoginResponse, error) {
	if f.loginGate != nil {
		close(f.loginEntered)
		<-f.loginGate
	}
	return f.loginResp, f.loginErr
}

func (f *fakeBackend) Logout(ctx context.Context, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logoutTokens = append(f.logoutTokens, token)
	return f.logoutErr
}

func (f *fakeBackend) Me(ctx context.Context, token string) (User, error) {
	if f.meGate != nil {
		close(f.meEntered)
		<-f.meGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.meCalls++
	return f.meUser, f.meErr
}

func (f *fakeBackend) Refresh(ctx context.Context, token string) (TokenResponse, error) {
	if f.refreshGate != nil {
		close(f.refreshEntered)
		<-f.refreshGate
	}
	if f.refreshErr != nil {
		return TokenResponse{}, f.refreshErr
	}
	return TokenResponse{Token: token + "-2", ExpiresAt: time.Now().Add(2 * time.Hour).UTC()}, nil
}

func okLogin() LoginResponse {
	s := testSession()
	return LoginResponse{User: s.User, Token: s.Token, SessionID: s.SessionID, ExpiresAt: s.ExpiresAt}
}

func newController(t *testing.T, backend *fakeBackend) (*Controller, *storage.MemoryKV) {
	t.Helper()
	kv := storage.NewMemory()
	return NewController(NewStore(kv), backend), kv
}

func TestLoginSuccess(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin()}
	var transitions []State
	kv := storage.NewMemory()
	ctrl := NewController(NewStore(kv), backend, WithStateHook(func(from, to State) {
		transitions = append(transitions, to)
	}))

	res := ctrl.Login(context.Background(), Credentials{Email: "admin@x.com", Password: "right"})
	if !res.OK() || res.State != Authenticated {
		t.Fatalf("unexpected result %+v", res)
	}
	sess, ok := ctrl.Store().Get()
	if !ok || sess.Token != "tok" || sess.User.Permissions[0] != "core.users.view" {
		t.Fatalf("unexpected session %+v", sess)
	}
	if kv.Len() != len(allKeys) {
		t.Fatalf("expected session persisted, got %d keys", kv.Len())
	}
	if len(transitions) != 2 || transitions[0] != Authenticating || transitions[1] != Authenticated {
		t.Fatalf("unexpected transitions %v", transitions)
	}
}

func TestLoginFailureClearsExistingSession(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin()}
	ctrl, kv := newController(t, backend)
	if res := ctrl.Login(context.Background(), Credentials{}); !res.OK() {
		t.Fatalf("first login: %v", res.Err)
	}

	backend.loginErr = ErrAuthenticationFailed
	res := ctrl.Login(context.Background(), Credentials{Email: "admin@x.com", Password: "wrong"})
	if !errors.Is(res.Err, ErrAuthenticationFailed) || res.State != Anonymous {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := ctrl.Store().Get(); ok {
		t.Fatal("expected no session after failed login")
	}
	if kv.Len() != 0 {
		t.Fatalf("expected storage cleared, %d keys remain", kv.Len())
	}
}

func TestLoginRejectsIncompleteResponse(t *testing.T) {
	resp := okLogin()
	resp.User.Permissions = nil
	ctrl, _ := newController(t, &fakeBackend{loginResp: resp})

	res := ctrl.Login(context.Background(), Credentials{})
	if !errors.Is(res.Err, ErrMalformedResponse) || res.State != Anonymous {
		t.Fatalf("expected malformed response, got %+v", res)
	}
	if _, ok := ctrl.Store().Get(); ok {
		t.Fatal("partial session must never be observable")
	}
}

func TestLogoutWithFailingRevoke(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin(), logoutErr: ErrNetwork}
	ctrl, kv := newController(t, backend)
	ctrl.Login(context.Background(), Credentials{})

	res := ctrl.Logout(context.Background())
	if res.State != Anonymous || ctrl.State() != Anonymous {
		t.Fatalf("logout must end anonymous, got %+v", res)
	}
	if !errors.Is(res.Err, ErrLogoutTransport) || !errors.Is(res.Err, ErrNetwork) {
		t.Fatalf("expected revoke failure to be reported, got %v", res.Err)
	}
	if _, ok := ctrl.Store().Get(); ok || kv.Len() != 0 {
		t.Fatal("expected local session gone despite revoke failure")
	}
	if len(backend.logoutTokens) != 1 || backend.logoutTokens[0] != "tok" {
		t.Fatalf("expected revoke with the old token, got %v", backend.logoutTokens)
	}
}

func TestLogoutWithoutSessionSkipsBackend(t *testing.T) {
	backend := &fakeBackend{}
	ctrl, _ := newController(t, backend)
	res := ctrl.Logout(context.Background())
	if !res.OK() || res.State != Anonymous {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(backend.logoutTokens) != 0 {
		t.Fatal("no revoke expected without a token")
	}
}

func seedPersisted(t *testing.T, kv storage.KV) {
	t.Helper()
	if err := NewStore(kv).Set(testSession()); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestInitializeConfirmsPersistedSession(t *testing.T) {
	fresh := testSession().User
	fresh.Permissions = []string{"core.users.view", "hr.employees.view"}
	backend := &fakeBackend{meUser: fresh}
	kv := storage.NewMemory()
	seedPersisted(t, kv)

	ctrl := NewController(NewStore(kv), backend)
	res := ctrl.Initialize(context.Background())
	if !res.OK() || res.State != Authenticated {
		t.Fatalf("unexpected result %+v", res)
	}
	sess, _ := ctrl.Store().Get()
	if len(sess.User.Permissions) != 2 || sess.Token != "tok" {
		t.Fatalf("expected refreshed profile with old token, got %+v", sess)
	}
}

func TestInitializeWithRejectedToken(t *testing.T) {
	backend := &fakeBackend{meErr: ErrSessionInvalid}
	kv := storage.NewMemory()
	seedPersisted(t, kv)

	ctrl := NewController(NewStore(kv), backend)
	res := ctrl.Initialize(context.Background())
	if !errors.Is(res.Err, ErrSessionInvalid) || res.State != Anonymous {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := ctrl.Store().Get(); ok || kv.Len() != 0 {
		t.Fatal("expected session and storage cleared")
	}
}

func TestInitializeWithoutPersistedSession(t *testing.T) {
	backend := &fakeBackend{}
	ctrl, _ := newController(t, backend)
	res := ctrl.Initialize(context.Background())
	if !res.OK() || res.State != Anonymous {
		t.Fatalf("unexpected result %+v", res)
	}
	if backend.meCalls != 0 {
		t.Fatal("no backend call expected without a persisted session")
	}
}

func TestInitializeWithCorruptStorage(t *testing.T) {
	kv := storage.NewMemory()
	seedPersisted(t, kv)
	_ = kv.Put(map[string][]byte{KeyUser: []byte("not json")})

	backend := &fakeBackend{}
	ctrl := NewController(NewStore(kv), backend)
	res := ctrl.Initialize(context.Background())
	if !errors.Is(res.Err, ErrCorruptSession) || res.State != Anonymous {
		t.Fatalf("unexpected result %+v", res)
	}
	if backend.meCalls != 0 || kv.Len() != 0 {
		t.Fatal("corrupt storage must be cleared without calling the backend")
	}
}

func TestRefreshUserFailureLogsOut(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin()}
	ctrl, _ := newController(t, backend)
	ctrl.Login(context.Background(), Credentials{})

	backend.meErr = ErrSessionInvalid
	res := ctrl.RefreshUser(context.Background())
	if !errors.Is(res.Err, ErrSessionInvalid) || res.State != Anonymous {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(backend.logoutTokens) != 1 {
		t.Fatalf("expected best-effort revoke, got %v", backend.logoutTokens)
	}
}

func TestRefreshUserWithoutSession(t *testing.T) {
	ctrl, _ := newController(t, &fakeBackend{})
	if res := ctrl.RefreshUser(context.Background()); !errors.Is(res.Err, ErrNoSession) {
		t.Fatalf("expected no session, got %+v", res)
	}
	if res := ctrl.RefreshToken(context.Background()); !errors.Is(res.Err, ErrNoSession) {
		t.Fatalf("expected no session, got %+v", res)
	}
}

func TestRefreshTokenKeepsProfile(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin()}
	ctrl, _ := newController(t, backend)
	ctrl.Login(context.Background(), Credentials{})
	before, _ := ctrl.Store().Get()

	res := ctrl.RefreshToken(context.Background())
	if !res.OK() || res.State != Authenticated {
		t.Fatalf("unexpected result %+v", res)
	}
	after, _ := ctrl.Store().Get()
	if after.Token != "tok-2" || after.SessionID != before.SessionID || after.User.ID != before.User.ID {
		t.Fatalf("unexpected refreshed session %+v", after)
	}
	if !after.ExpiresAt.After(before.ExpiresAt) {
		t.Fatal("expected later expiry")
	}
}

func TestRefreshTokenFailureLogsOut(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin(), refreshErr: ErrSessionInvalid}
	ctrl, _ := newController(t, backend)
	ctrl.Login(context.Background(), Credentials{})

	res := ctrl.RefreshToken(context.Background())
	if !errors.Is(res.Err, ErrSessionInvalid) || res.State != Anonymous {
		t.Fatalf("unexpected result %+v", res)
	}
	if _, ok := ctrl.Store().Get(); ok {
		t.Fatal("expected session dropped")
	}
}

func TestSupersededLoginDoesNotOverwrite(t *testing.T) {
	backend := &fakeBackend{
		loginResp:    okLogin(),
		loginGate:    make(chan struct{}),
		loginEntered: make(chan struct{}),
	}
	ctrl, kv := newController(t, backend)

	done := make(chan Result, 1)
	go func() {
		done <- ctrl.Login(context.Background(), Credentials{})
	}()
	<-backend.loginEntered

	if res := ctrl.Logout(context.Background()); res.State != Anonymous {
		t.Fatalf("unexpected logout result %+v", res)
	}
	close(backend.loginGate)

	res := <-done
	if !errors.Is(res.Err, ErrSuperseded) {
		t.Fatalf("expected superseded login, got %+v", res)
	}
	if _, ok := ctrl.Store().Get(); ok || kv.Len() != 0 {
		t.Fatal("superseded login must not write the store")
	}
	if ctrl.State() != Anonymous {
		t.Fatalf("expected anonymous, got %s", ctrl.State())
	}
}

func newerLogin() LoginResponse {
	resp := okLogin()
	resp.Token = "newer-tok"
	resp.SessionID = "newer-sid"
	return resp
}

// assertNewerSessionKept checks that a stale completion left the session
// from the second login alone, locally and on the backend.
func assertNewerSessionKept(t *testing.T, ctrl *Controller, kv *storage.MemoryKV, backend *fakeBackend, res Result) {
	t.Helper()
	if !errors.Is(res.Err, ErrSuperseded) {
		t.Fatalf("expected superseded result, got %+v", res)
	}
	if res.State != Authenticated || ctrl.State() != Authenticated {
		t.Fatalf("expected authenticated, got result %s controller %s", res.State, ctrl.State())
	}
	sess, ok := ctrl.Store().Get()
	if !ok || sess.Token != "newer-tok" || sess.SessionID != "newer-sid" {
		t.Fatalf("expected newer session kept, got %+v", sess)
	}
	if kv.Len() != len(allKeys) {
		t.Fatalf("expected newer session still persisted, got %d keys", kv.Len())
	}
	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.logoutTokens) != 0 {
		t.Fatalf("superseded operation must not revoke anything, got %v", backend.logoutTokens)
	}
}

func TestSupersededRefreshUserKeepsNewerSession(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin()}
	ctrl, kv := newController(t, backend)
	if res := ctrl.Login(context.Background(), Credentials{}); !res.OK() {
		t.Fatalf("first login: %v", res.Err)
	}

	backend.meErr = ErrNetwork
	backend.meGate = make(chan struct{})
	backend.meEntered = make(chan struct{})
	backend.loginResp = newerLogin()

	done := make(chan Result, 1)
	go func() {
		done <- ctrl.RefreshUser(context.Background())
	}()
	<-backend.meEntered

	if res := ctrl.Login(context.Background(), Credentials{}); !res.OK() {
		t.Fatalf("second login: %v", res.Err)
	}
	close(backend.meGate)

	res := <-done
	if !errors.Is(res.Err, ErrNetwork) {
		t.Fatalf("expected the refresh failure to be reported, got %v", res.Err)
	}
	assertNewerSessionKept(t, ctrl, kv, backend, res)
}

func TestSupersededRefreshTokenKeepsNewerSession(t *testing.T) {
	tests := []struct {
		name       string
		refreshErr error
	}{
		{name: "refresh fails", refreshErr: ErrSessionInvalid},
		{name: "refresh succeeds", refreshErr: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{loginResp: okLogin()}
			ctrl, kv := newController(t, backend)
			if res := ctrl.Login(context.Background(), Credentials{}); !res.OK() {
				t.Fatalf("first login: %v", res.Err)
			}

			backend.refreshErr = tt.refreshErr
			backend.refreshGate = make(chan struct{})
			backend.refreshEntered = make(chan struct{})
			backend.loginResp = newerLogin()

			done := make(chan Result, 1)
			go func() {
				done <- ctrl.RefreshToken(context.Background())
			}()
			<-backend.refreshEntered

			if res := ctrl.Login(context.Background(), Credentials{}); !res.OK() {
				t.Fatalf("second login: %v", res.Err)
			}
			close(backend.refreshGate)

			assertNewerSessionKept(t, ctrl, kv, backend, <-done)
		})
	}
}

func TestSupersededInitializeKeepsNewerSession(t *testing.T) {
	backend := &fakeBackend{
		loginResp: newerLogin(),
		meErr:     ErrSessionInvalid,
		meGate:    make(chan struct{}),
		meEntered: make(chan struct{}),
	}
	kv := storage.NewMemory()
	seedPersisted(t, kv)
	ctrl := NewController(NewStore(kv), backend)

	done := make(chan Result, 1)
	go func() {
		done <- ctrl.Initialize(context.Background())
	}()
	<-backend.meEntered

	if res := ctrl.Login(context.Background(), Credentials{}); !res.OK() {
		t.Fatalf("login: %v", res.Err)
	}
	close(backend.meGate)

	assertNewerSessionKept(t, ctrl, kv, backend, <-done)
}

func TestRefreshFailureRevokesItsOwnToken(t *testing.T) {
	backend := &fakeBackend{loginResp: okLogin(), refreshErr: ErrNetwork}
	ctrl, _ := newController(t, backend)
	ctrl.Login(context.Background(), Credentials{})

	ctrl.RefreshToken(context.Background())
	if len(backend.logoutTokens) != 1 || backend.logoutTokens[0] != "tok" {
		t.Fatalf("expected revoke of the refreshed token, got %v", backend.logoutTokens)
	}
}

func TestNewControllerPicksUpLoadedSession(t *testing.T) {
	kv := storage.NewMemory()
	seedPersisted(t, kv)
	store := NewStore(kv)
	if _, _, err := store.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if ctrl := NewController(store, &fakeBackend{}); ctrl.State() != Authenticated {
		t.Fatalf("expected authenticated, got %s", ctrl.State())
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		Anonymous:      "anonymous",
		Authenticating: "authenticating",
		Authenticated:  "authenticated",
		Refreshing:     "refreshing",
		State(9):       "state(9)",
	} {
		if state.String() != want {
			t.Fatalf("expected %q, got %q", want, state.String())
		}
	}
}

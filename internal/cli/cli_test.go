package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"erpadmin/internal/app/server"
	"erpadmin/internal/domain/access"
	"erpadmin/internal/domain/auth"
	"erpadmin/internal/domain/perm"
	"erpadmin/internal/platform/config"
	"erpadmin/internal/platform/storage"
	"erpadmin/internal/session"
)

const (
	adminEmail    = "admin@acme.test"
	adminPassword = "Admin123!"
)

type console struct {
	t          *testing.T
	configPath string
	dataDir    string
}

type outcome struct {
	code   int
	stdout string
	stderr string
}

func newBackend(t *testing.T) *httptest.Server {
	t.Helper()
	store := auth.NewMemoryStore()
	if err := auth.Seed(context.Background(), store, auth.SeedInput{
		CompanyName:   "Acme",
		AdminEmail:    adminEmail,
		AdminPassword: adminPassword,
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	cfg := config.Config{
		JWTSecret:          "cli-test-secret",
		MaxBodyBytes:       1 << 20,
		RateLimitPerMinute: 1000,
		LoginRatePerMinute: 100,
	}
	srv := httptest.NewServer(server.NewRouter(server.Deps{
		Config: cfg,
		Auth:   auth.NewService(store, cfg.JWTSecret, nil),
	}))
	t.Cleanup(srv.Close)
	return srv
}

// newConsole writes a config file pointing at serverURL with a fresh data
// directory. extra lines are appended to the YAML.
func newConsole(t *testing.T, serverURL string, extra ...string) *console {
	t.Helper()
	dir := t.TempDir()
	c := &console{t: t, configPath: filepath.Join(dir, "config.yaml"), dataDir: filepath.Join(dir, "session")}
	lines := append([]string{
		"server_url: " + serverURL,
		"data_dir: " + c.dataDir,
		"timeout: 2s",
	}, extra...)
	if err := os.WriteFile(c.configPath, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return c
}

func (c *console) run(stdin string, args ...string) outcome {
	c.t.Helper()
	var stdout, stderr bytes.Buffer
	args = append([]string{"--config", c.configPath}, args...)
	code := run(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return outcome{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func (c *console) login(t *testing.T) {
	t.Helper()
	out := c.run(adminPassword+"\n", "login", "--email", adminEmail, "--password-stdin")
	if out.code != 0 {
		t.Fatalf("login exited %d: %s", out.code, out.stderr)
	}
}

func TestLoginSessionSurvivesInvocations(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)

	out := c.run(adminPassword+"\n", "login", "--email", adminEmail, "--password-stdin")
	if out.code != 0 || !strings.Contains(out.stdout, "Logged in as Administrator <"+adminEmail+">") {
		t.Fatalf("unexpected login outcome %+v", out)
	}

	out = c.run("", "whoami")
	if out.code != 0 || !strings.Contains(out.stdout, adminEmail) || !strings.Contains(out.stdout, "admin, hr_manager") {
		t.Fatalf("unexpected whoami outcome %+v", out)
	}

	out = c.run("", "--json", "whoami")
	var view struct {
		User      session.User `json:"user"`
		SessionID string       `json:"sessionId"`
		Token     string       `json:"token"`
	}
	if err := json.Unmarshal([]byte(out.stdout), &view); err != nil {
		t.Fatalf("decode whoami json: %v\n%s", err, out.stdout)
	}
	if view.User.Email != adminEmail || view.SessionID == "" || view.Token != "" {
		t.Fatalf("unexpected json view %+v", view)
	}
}

func TestAccessQueries(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)
	c.login(t)

	tests := []struct {
		name     string
		args     []string
		wantCode int
		wantOut  string
	}{
		{name: "held permission", args: []string{"can", perm.UsersView}, wantCode: 0, wantOut: "yes"},
		{name: "missing permission", args: []string{"can", perm.PayrollRead}, wantCode: exitDenied, wantOut: "no"},
		{name: "all of mixed", args: []string{"can", perm.UsersView, perm.PayrollRead}, wantCode: exitDenied, wantOut: "no"},
		{name: "any of mixed", args: []string{"can", "--any", perm.PayrollRead, perm.EmployeesView}, wantCode: 0, wantOut: "yes"},
		{name: "wildcard is literal", args: []string{"can", "core.*"}, wantCode: exitDenied, wantOut: "no"},
		{name: "held role", args: []string{"roles", "--has", auth.RoleHRManager}, wantCode: 0, wantOut: "yes"},
		{name: "missing role", args: []string{"roles", "--has", auth.RoleManager}, wantCode: exitDenied, wantOut: "no"},
		{name: "module permissions", args: []string{"permissions", "--module", "leave"}, wantCode: 0, wantOut: "leave.approve\nleave.read\nleave.write\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := c.run("", tc.args...)
			if out.code != tc.wantCode {
				t.Fatalf("expected exit %d, got %d (%s)", tc.wantCode, out.code, out.stderr)
			}
			if !strings.Contains(out.stdout, tc.wantOut) {
				t.Fatalf("expected output %q, got %q", tc.wantOut, out.stdout)
			}
		})
	}
}

func TestRolesByModule(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)
	c.login(t)

	out := c.run("", "--json", "roles", "--module", perm.ModuleHR)
	var roles []session.Role
	if err := json.Unmarshal([]byte(out.stdout), &roles); err != nil {
		t.Fatalf("decode roles: %v\n%s", err, out.stdout)
	}
	if len(roles) != 1 || roles[0].Name != auth.RoleHRManager {
		t.Fatalf("expected only the hr role, got %+v", roles)
	}
}

func TestSystemsListsUnlockedInOrder(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)
	c.login(t)

	out := c.run("", "--json", "systems")
	if out.code != 0 {
		t.Fatalf("systems exited %d: %s", out.code, out.stderr)
	}
	var systems []access.SystemDescriptor
	if err := json.Unmarshal([]byte(out.stdout), &systems); err != nil {
		t.Fatalf("decode systems: %v", err)
	}
	var keys []string
	for _, d := range systems {
		keys = append(keys, d.Key)
	}
	if want := []string{"core", "hr", "leave", "reports", "profile", "admin"}; !slices.Equal(keys, want) {
		t.Fatalf("expected %v, got %v", want, keys)
	}
}

func TestRefreshExtendsSession(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)
	c.login(t)

	out := c.run("", "--json", "refresh")
	if out.code != 0 {
		t.Fatalf("refresh exited %d: %s", out.code, out.stderr)
	}
	var body struct {
		ExpiresAt time.Time `json:"expiresAt"`
	}
	if err := json.Unmarshal([]byte(out.stdout), &body); err != nil || body.ExpiresAt.Before(time.Now()) {
		t.Fatalf("unexpected refresh output %q (%v)", out.stdout, err)
	}
}

func TestLogoutForgetsSession(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)
	c.login(t)

	if out := c.run("", "logout"); out.code != 0 || !strings.Contains(out.stdout, "Logged out") {
		t.Fatalf("unexpected logout outcome %+v", out)
	}
	out := c.run("", "whoami")
	if out.code != exitNotLoggedIn || !strings.Contains(out.stderr, "not logged in") {
		t.Fatalf("expected not-logged-in exit, got %+v", out)
	}
	if out := c.run("", "logout"); out.code != 0 {
		t.Fatalf("second logout should be a no-op, got %+v", out)
	}
}

func TestLoginRejected(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)

	out := c.run("wrong\n", "login", "--email", adminEmail, "--password-stdin")
	if out.code != 1 || !strings.Contains(out.stderr, "invalid email, password or code") {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out := c.run("", "whoami"); out.code != exitNotLoggedIn {
		t.Fatalf("expected no session after failed login, got %+v", out)
	}
	if out := c.run("", "login", "--password-stdin"); out.code != 1 || !strings.Contains(out.stderr, "email") {
		t.Fatalf("expected missing --email to fail, got %+v", out)
	}
}

func TestUnreachableServer(t *testing.T) {
	srv := newBackend(t)
	c := newConsole(t, srv.URL)
	c.login(t)
	srv.Close()

	out := c.run("", "whoami")
	if out.code != 1 || !strings.Contains(out.stderr, "restore session") {
		t.Fatalf("expected network failure, got %+v", out)
	}
	out = c.run(adminPassword+"\n", "login", "--email", adminEmail, "--password-stdin")
	if out.code != 1 {
		t.Fatalf("expected login to fail, got %+v", out)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	c := newConsole(t, newBackend(t).URL)

	out := c.run("", "--server", "not a url", "whoami")
	if out.code != 1 || !strings.Contains(out.stderr, "server_url") {
		t.Fatalf("expected invalid --server to fail config validation, got %+v", out)
	}

	// An ephemeral console never touches the data directory.
	if out := c.run("", "--ephemeral", "whoami"); out.code != exitNotLoggedIn {
		t.Fatalf("expected not logged in, got %+v", out)
	}
	if _, err := os.Stat(c.dataDir); !os.IsNotExist(err) {
		t.Fatalf("expected no data dir, stat err %v", err)
	}
}

func TestEncryptedSessionStorage(t *testing.T) {
	key := strings.Repeat("ab", 32)
	c := newConsole(t, newBackend(t).URL, "encryption_key: "+key)
	c.login(t)

	kv, err := storage.OpenBadger(c.dataDir)
	if err != nil {
		t.Fatalf("open badger: %v", err)
	}
	raw, err := kv.Get(session.KeyUser)
	kv.Close()
	if err != nil {
		t.Fatalf("read user key: %v", err)
	}
	if bytes.Contains(raw, []byte(adminEmail)) {
		t.Fatal("expected the stored profile to be encrypted")
	}

	if out := c.run("", "whoami"); out.code != 0 {
		t.Fatalf("expected sealed session to load, got %+v", out)
	}
}

func TestHelpSkipsSetup(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"--server", "not a url", "help"}, strings.NewReader(""), &stdout, &stderr)
	if code != 0 || !strings.Contains(stdout.String(), "whoami") {
		t.Fatalf("unexpected help outcome %d %q %q", code, stdout.String(), stderr.String())
	}
}

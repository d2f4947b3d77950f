package cli

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"erpadmin/internal/session"
)

// Exit codes beyond the generic 1.
const (
	exitNotLoggedIn = 2
	exitDenied      = 3
)

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string {
	if e.msg == "" {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.msg
}

var errNotLoggedIn = &exitError{code: exitNotLoggedIn, msg: "not logged in; run 'erpctl login'"}

// restore brings back the persisted session and confirms it with the
// server. A missing or rejected session is errNotLoggedIn.
func (a *app) restore(cmd *cobra.Command) (session.Session, error) {
	res := a.session.Initialize(cmd.Context())
	if res.Err != nil {
		a.logger.Info("session restore failed", "err", res.Err)
		if errors.Is(res.Err, session.ErrNetwork) {
			return session.Session{}, fmt.Errorf("restore session: %w", res.Err)
		}
	}
	sess, ok := a.session.Store().Get()
	if !ok {
		return session.Session{}, errNotLoggedIn
	}
	return sess, nil
}

func newLoginCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	var (
		email         string
		passwordStdin bool
		remember      bool
		mfaCode       string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Example: `  erpctl login --email admin@acme.test
  printf '%s' "$PASSWORD" | erpctl login --email admin@acme.test --password-stdin`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			password, err := readPassword(cmd, passwordStdin)
			if err != nil {
				return err
			}
			res := a.session.Login(cmd.Context(), session.Credentials{
				Email:    strings.TrimSpace(email),
				Password: password,
				Remember: remember,
				MFACode:  mfaCode,
			})
			switch {
			case errors.Is(res.Err, session.ErrMFARequired):
				return fmt.Errorf("login: a one-time code is required (use --mfa-code)")
			case errors.Is(res.Err, session.ErrAuthenticationFailed):
				return fmt.Errorf("login: invalid email, password or code")
			case res.Err != nil:
				return fmt.Errorf("login: %w", res.Err)
			}

			sess, _ := a.session.Store().Get()
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), sessionView(sess))
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s <%s>\n", sess.User.DisplayName, sess.User.Email)
			fmt.Fprintf(cmd.OutOrStdout(), "Session expires %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "account email")
	cmd.Flags().BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	cmd.Flags().BoolVar(&remember, "remember", false, "ask for a long-lived session")
	cmd.Flags().StringVar(&mfaCode, "mfa-code", "", "one-time code for accounts with MFA")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newLogoutCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Revoke the session and forget it locally",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if _, _, err := a.session.Store().Load(); err != nil {
				a.logger.Info("discarded persisted session", "err", err)
			}
			res := a.session.Logout(cmd.Context())
			if errors.Is(res.Err, session.ErrLogoutTransport) {
				a.logger.Warn("server did not confirm logout; local session removed", "err", res.Err)
			} else if res.Err != nil {
				return fmt.Errorf("logout: %w", res.Err)
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), map[string]string{"state": res.State.String()})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := appFn().restore(cmd)
			if err != nil {
				return err
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), sessionView(sess))
			}
			u := sess.User
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Name:\t%s\n", u.DisplayName)
			fmt.Fprintf(w, "Email:\t%s\n", u.Email)
			fmt.Fprintf(w, "User ID:\t%s\n", u.ID)
			fmt.Fprintf(w, "Company:\t%s\n", u.CompanyID)
			if u.DepartmentID != "" {
				fmt.Fprintf(w, "Department:\t%s\n", u.DepartmentID)
			}
			fmt.Fprintf(w, "Super admin:\t%t\n", u.IsSuperAdmin)
			fmt.Fprintf(w, "Roles:\t%s\n", strings.Join(roleNames(u.Roles), ", "))
			fmt.Fprintf(w, "Session:\t%s\n", sess.SessionID)
			fmt.Fprintf(w, "Expires:\t%s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			return w.Flush()
		},
	}
}

func newRefreshCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Extend the session with a new token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if _, err := a.restore(cmd); err != nil {
				return err
			}
			res := a.session.RefreshToken(cmd.Context())
			if res.Err != nil {
				if res.State == session.Anonymous {
					return fmt.Errorf("refresh failed, session ended: %w", res.Err)
				}
				return fmt.Errorf("refresh: %w", res.Err)
			}
			sess, _ := a.session.Store().Get()
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"expiresAt": sess.ExpiresAt})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Session extended until %s\n", sess.ExpiresAt.Local().Format(time.RFC1123))
			return nil
		},
	}
}

func newSystemsCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "systems",
		Short: "List the systems the session unlocks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if _, err := a.restore(cmd); err != nil {
				return err
			}
			if err := a.resolver.Sync(cmd.Context(), a.backend); err != nil {
				a.logger.Warn("system registry unavailable; using built-in catalog", "err", err)
			}
			systems := a.resolver.AvailableSystems()
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), systems)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "KEY\tNAME\tPATH")
			for _, d := range systems {
				fmt.Fprintf(w, "%s\t%s\t%s\n", d.Key, d.DisplayName, d.URLPrefix)
			}
			return w.Flush()
		},
	}
}

func newCanCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	var anyOf bool
	cmd := &cobra.Command{
		Use:   "can PERMISSION...",
		Short: "Check permissions; exits 3 when denied",
		Long: `can checks the given permission keys against the session. By default
every key must be held; with --any one is enough. Keys match exactly.`,
		Example: `  erpctl can core.users.view
  erpctl can --any payroll.read payroll.run`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			if _, err := a.restore(cmd); err != nil {
				return err
			}
			var granted bool
			if anyOf {
				granted = a.evaluator.HasAnyPermission(args...)
			} else {
				granted = a.evaluator.HasAllPermissions(args...)
			}
			if flags.json {
				if err := writeJSON(cmd.OutOrStdout(), map[string]any{"permissions": args, "any": anyOf, "granted": granted}); err != nil {
					return err
				}
			} else if granted {
				fmt.Fprintln(cmd.OutOrStdout(), "yes")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "no")
			}
			if !granted {
				return &exitError{code: exitDenied}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&anyOf, "any", false, "grant when any one permission is held")
	return cmd
}

func newRolesCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	var (
		module string
		has    []string
	)
	cmd := &cobra.Command{
		Use:   "roles",
		Short: "List the session's roles, or check them with --has",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			sess, err := a.restore(cmd)
			if err != nil {
				return err
			}
			if len(has) > 0 {
				granted := a.evaluator.HasAnyRole(has...)
				if flags.json {
					if err := writeJSON(cmd.OutOrStdout(), map[string]any{"roles": has, "granted": granted}); err != nil {
						return err
					}
				} else if granted {
					fmt.Fprintln(cmd.OutOrStdout(), "yes")
				} else {
					fmt.Fprintln(cmd.OutOrStdout(), "no")
				}
				if !granted {
					return &exitError{code: exitDenied}
				}
				return nil
			}

			roles := sess.User.Roles
			if cmd.Flags().Changed("module") {
				roles = a.evaluator.RolesByModule(module)
			}
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), roles)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDISPLAY NAME\tMODULE")
			for _, r := range roles {
				mod := r.Module
				if mod == "" {
					mod = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\n", r.Name, r.DisplayName, mod)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "only roles scoped to this module or global")
	cmd.Flags().StringSliceVar(&has, "has", nil, "exit 3 unless one of these roles is held")
	return cmd
}

func newPermissionsCommand(appFn func() *app, flags *rootFlags) *cobra.Command {
	var module string
	cmd := &cobra.Command{
		Use:   "permissions",
		Short: "List the session's permission keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := appFn()
			sess, err := a.restore(cmd)
			if err != nil {
				return err
			}
			perms := slices.Clone(sess.User.Permissions)
			if module != "" {
				perms = a.evaluator.PermissionsByModule(module)
			}
			slices.Sort(perms)
			if flags.json {
				return writeJSON(cmd.OutOrStdout(), map[string]any{"superAdmin": sess.User.IsSuperAdmin, "permissions": perms})
			}
			if sess.User.IsSuperAdmin {
				fmt.Fprintln(cmd.ErrOrStderr(), "super admin: every permission check passes")
			}
			for _, p := range perms {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&module, "module", "", "only keys under this module prefix")
	return cmd
}

type sessionJSON struct {
	User      session.User `json:"user"`
	SessionID string       `json:"sessionId"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

// sessionView drops the bearer token from printed output.
func sessionView(sess session.Session) sessionJSON {
	return sessionJSON{User: sess.User, SessionID: sess.SessionID, ExpiresAt: sess.ExpiresAt}
}

func roleNames(roles []session.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

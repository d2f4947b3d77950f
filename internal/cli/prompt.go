package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// readPassword takes the first line of stdin with --password-stdin, and
// otherwise prompts on the terminal with echo off.
func readPassword(cmd *cobra.Command, fromStdin bool) (string, error) {
	if fromStdin {
		password, err := readLine(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		if password == "" {
			return "", errors.New("empty password on stdin")
		}
		return password, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("no terminal for the password prompt (use --password-stdin)")
	}
	fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(raw), nil
}

package devenv

import (
	"fmt"
	"os"

	"golang.org/x/term"
)

const PasswordEnv = "FIXTURES_ADMIN_PASSWORD"

// AdminPassword returns the password of the admin account from the
// environment, otherwise prompts for it without echo.
func AdminPassword(account string) (string, error) {
	if password, ok := os.LookupEnv(PasswordEnv); ok {
		return password, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%s is not set and stdin is not a terminal", PasswordEnv)
	}
	fmt.Fprintf(os.Stderr, "password for %s: ", account)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(password), nil
}

package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// readSecret returns the shared JWT secret from envVar, prompting on the
// terminal when the variable is unset.
func readSecret(envVar string, prompt io.Writer) (string, error) {
	if value, ok := os.LookupEnv(envVar); ok {
		if strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%s is set but empty", envVar)
		}
		return value, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("JWT secret required; set %s or run interactively", envVar)
	}
	fmt.Fprint(prompt, "Enter stakingd JWT secret: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(prompt)
	if err != nil {
		return "", fmt.Errorf("read secret: %w", err)
	}
	secret := string(raw)
	if strings.TrimSpace(secret) == "" {
		return "", errors.New("JWT secret cannot be empty")
	}
	return secret, nil
}

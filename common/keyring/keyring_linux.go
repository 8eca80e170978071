//go:build linux

package keyring

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"unicode"
)

// keyringGet shells out to secret-tool (libsecret), the de-facto Linux
// desktop keyring CLI. Headless servers typically lack it, in which case the
// caller falls back to the file-based key store.
func keyringGet(service, account string) (string, error) {
	if _, err := exec.LookPath("secret-tool"); err != nil {
		return "", os.ErrNotExist
	}
	service, err := validateAttr("service", service)
	if err != nil {
		return "", err
	}
	account, err = validateAttr("account", account)
	if err != nil {
		return "", err
	}
	// #nosec G204 -- args are validated above and exec.Command never invokes a shell.
	cmd := exec.Command("secret-tool", "lookup", "service", service, "account", account)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
			return "", os.ErrNotExist
		}
		return "", err
	}
	secret := strings.TrimSpace(string(out))
	if secret == "" {
		return "", os.ErrNotExist
	}
	return secret, nil
}

func keyringSet(service, account, secret string) error {
	if _, err := exec.LookPath("secret-tool"); err != nil {
		return fmt.Errorf("secret-tool not found: %w", err)
	}
	service, err := validateAttr("service", service)
	if err != nil {
		return err
	}
	account, err = validateAttr("account", account)
	if err != nil {
		return err
	}
	// #nosec G204 -- args are validated above and exec.Command never invokes a shell.
	cmd := exec.Command("secret-tool", "store", "--label=agent master key", "service", service, "account", account)
	cmd.Stdin = bytes.NewBufferString(secret)
	return cmd.Run()
}

func validateAttr(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("%s required", name)
	}
	for _, r := range value {
		if r == 0 || r == '\n' || r == '\r' || unicode.IsSpace(r) || !unicode.IsPrint(r) {
			return "", fmt.Errorf("invalid %s: contains forbidden character", name)
		}
	}
	return value, nil
}

//go:build darwin

package keyring

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// keyringGet shells out to the macOS `security` CLI against the login
// keychain. No cgo / Keychain Services bindings are required.
func keyringGet(service, account string) (string, error) {
	if _, err := exec.LookPath("security"); err != nil {
		return "", errNotExist(err)
	}
	// #nosec G204 -- service/account come from fixed internal callers, not user input.
	cmd := exec.Command("security", "find-generic-password", "-s", service, "-a", account, "-w")
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", errNotExist(err)
	}
	secret := strings.TrimSpace(out.String())
	if secret == "" {
		return "", errNotExist(nil)
	}
	return secret, nil
}

func keyringSet(service, account, secret string) error {
	if _, err := exec.LookPath("security"); err != nil {
		return fmt.Errorf("security CLI not found: %w", err)
	}
	// Delete any existing item first; `security add-generic-password` fails
	// on a duplicate rather than overwriting it.
	// #nosec G204
	_ = exec.Command("security", "delete-generic-password", "-s", service, "-a", account).Run()
	// #nosec G204
	cmd := exec.Command("security", "add-generic-password", "-s", service, "-a", account, "-w", secret, "-U")
	return cmd.Run()
}

func errNotExist(cause error) error {
	if cause == nil {
		return os.ErrNotExist
	}
	return fmt.Errorf("%w: %v", os.ErrNotExist, cause)
}

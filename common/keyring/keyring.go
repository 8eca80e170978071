// Package keyring provides best-effort OS keychain access for the master
// encryption key, with platform-specific backends selected at build time.
//
// Get returns os.ErrNotExist when the platform has no keychain backend
// available or the item has never been stored. Callers are expected to fall
// back to a file-based key store in that case.
package keyring

// Get retrieves the secret stored under (service, account) in the platform
// keychain. Returns os.ErrNotExist if no backend is available or no such
// item exists.
func Get(service, account string) (string, error) {
	return keyringGet(service, account)
}

// Set stores secret under (service, account) in the platform keychain.
// Returns an error if no backend is available on this platform.
func Set(service, account, secret string) error {
	return keyringSet(service, account, secret)
}

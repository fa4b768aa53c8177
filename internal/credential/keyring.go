// Package credential looks up mail-store passwords in the OS keyring.
package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "gomailstat"

// ErrNotFound is returned when the keyring holds no entry for a key.
var ErrNotFound = errors.New("credential not found")

// Getter returns a stored secret by key.
type Getter interface {
	Get(key string) (string, error)
}

// Keyring reads secrets from the system keyring.
type Keyring struct {
	open func() (keyring.Keyring, error)
}

// New returns a Keyring that opens the platform backends on first use.
func New() *Keyring {
	return &Keyring{open: openKeyring}
}

// NewWith wraps an already opened keyring.
func NewWith(ring keyring.Keyring) *Keyring {
	return &Keyring{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/gomailstat/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("gomailstat-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Get retrieves a secret by key.
func (k *Keyring) Get(key string) (string, error) {
	ring, err := k.open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a secret under key.
func (k *Keyring) Set(key, value string) error {
	ring, err := k.open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: key, Data: []byte(value)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Resolve returns password when it is set, otherwise the keyring entry
// stored under key.
func Resolve(g Getter, key, password string) (string, error) {
	if password != "" {
		return password, nil
	}
	if g == nil {
		return "", fmt.Errorf("%q: %w", key, ErrNotFound)
	}
	return g.Get(key)
}

package keyring

import (
	"errors"

	"github.com/zalando/go-keyring"
)

const serviceName = "cloak"

// ErrNotFound is returned when no password is stored for a container
var ErrNotFound = errors.New("password not found in keyring")

// SavePassword stores a password in the OS keyring under the container ID
func SavePassword(containerID string, password []byte) error {
	return keyring.Set(serviceName, containerID, string(password))
}

// GetPassword retrieves a password from the OS keyring
func GetPassword(containerID string) ([]byte, error) {
	password, err := keyring.Get(serviceName, containerID)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(password), nil
}

// DeletePassword removes a password from the OS keyring
func DeletePassword(containerID string) error {
	err := keyring.Delete(serviceName, containerID)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// HasPassword checks if a password is stored in the keyring
func HasPassword(containerID string) bool {
	_, err := keyring.Get(serviceName, containerID)
	return err == nil
}

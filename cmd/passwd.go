package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/cloak/internal/core"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/keyring"
	"github.com/illarion/cloak/internal/vault"
)

// Passwd changes the main password of the container
func Passwd(file string) {
	c := OpenCloak(file)
	defer c.Close()
	if !c.Engine().Exists() {
		Fail(c, core.ErrNotInitialized)
	}

	id := c.ID()
	currentPassword, _, err := GetPasswordWithRetry("Enter current password: ", id, func(p []byte) error {
		_, err := c.Open(p)
		return err
	})
	if err != nil {
		Fail(c, err)
	}
	defer crypto.ClearBytes(currentPassword)

	if c.Engine().Kind() != vault.MainVault {
		Fail(c, vault.ErrDecoyPasswordChange)
	}

	newPassword, err := GetNewPassword(core.EnvNewPassword, "Enter new password: ")
	if err != nil {
		Fail(c, err)
	}
	defer crypto.ClearBytes(newPassword)

	if err := c.ChangePassword(currentPassword, newPassword); err != nil {
		Fail(c, err)
	}

	// Refresh a cached entry so the keyring does not go stale
	if keyring.HasPassword(id) {
		if err := keyring.SavePassword(id, newPassword); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to update keyring: %s\n", err)
		} else {
			fmt.Println("Keyring updated with new password")
		}
	}

	fmt.Println("password changed successfully")
}

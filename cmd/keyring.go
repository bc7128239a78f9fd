package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/cloak/internal/core"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/keyring"
)

// KeyringSave verifies a password and saves it to the OS keyring
func KeyringSave(file string) {
	c := OpenCloak(file)
	defer c.Close()
	if !c.Engine().Exists() {
		Fail(c, core.ErrNotInitialized)
	}

	password, err := core.ReadPassword("Enter password: ")
	if err != nil {
		Fail(c, err)
	}
	defer crypto.ClearBytes(password)

	if _, err := c.Open(password); err != nil {
		Fail(c, err)
	}

	if err := keyring.SavePassword(c.ID(), password); err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to save to keyring: %s\n", err)
		c.Close()
		Exit(1)
	}

	fmt.Println("Password saved to keyring")
}

// KeyringDelete removes the password from the OS keyring
func KeyringDelete(file string) {
	c := OpenCloak(file)
	defer c.Close()

	if err := keyring.DeletePassword(c.ID()); err != nil {
		fmt.Println("No password stored in keyring")
		return
	}

	fmt.Println("Password removed from keyring")
}

// KeyringStatus checks if a password is stored in the keyring
func KeyringStatus(file string) {
	c := OpenCloak(file)
	defer c.Close()

	if keyring.HasPassword(c.ID()) {
		fmt.Println("Password: stored in keyring")
	} else {
		fmt.Println("Password: not stored")
	}
}

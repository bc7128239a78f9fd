package cmd

import (
	"fmt"
	"os"

	"github.com/illarion/cloak/internal/core"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/git"
	"github.com/illarion/cloak/internal/vault"
)

// Init creates a new container, optionally with a decoy payload
func Init(file string, decoy bool) {
	c := OpenCloak(file)
	defer c.Close()

	if c.Engine().Exists() {
		Fail(c, vault.ErrExists)
	}

	password, err := GetNewPassword(core.EnvPassword, "Enter password: ")
	if err != nil {
		Fail(c, err)
	}
	defer crypto.ClearBytes(password)

	var decoyPassword []byte
	if decoy {
		decoyPassword, err = GetNewPassword(core.EnvDecoyPassword, "Enter decoy password: ")
		if err != nil {
			Fail(c, err)
		}
		defer crypto.ClearBytes(decoyPassword)
	}

	if err := c.Init(password, decoyPassword); err != nil {
		Fail(c, err)
	}

	fmt.Printf("initialized: %s\n", c.Path())
	if decoy {
		fmt.Println("decoy payload: present")
	}

	if exposure, err := git.CheckExposure(c.Path()); err == nil && exposure.Exposed() {
		fmt.Fprint(os.Stderr, git.FormatExposure(exposure))
	}
}

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/illarion/cloak/internal/core"
	"github.com/illarion/cloak/internal/git"
)

// Status shows what can be learned about the container without a password
func Status(file string) {
	c := OpenCloak(file)
	defer c.Close()

	status, err := c.Status()
	if errors.Is(err, core.ErrNotInitialized) {
		fmt.Printf("No container found at %s\n", c.Path())
		fmt.Println("Run 'cloak init' to create one")
		return
	}
	if err != nil {
		Fail(c, err)
	}

	info := status.Info
	fmt.Printf("Container: %s\n", info.Path)
	fmt.Printf("  size:    %s\n", formatSize(info.Size))
	fmt.Printf("  version: %d\n", info.Version)
	fmt.Printf("  created: %s\n", info.Created.Format(time.RFC3339))
	if info.Disguised {
		fmt.Println("  header:  disguised")
	}

	switch {
	case status.LockedUntil.After(time.Now()):
		fmt.Printf("\nLocked out until %s (%d failed attempts)\n",
			status.LockedUntil.Format(time.RFC3339), status.FailedAttempts)
	case status.FailedAttempts > 0:
		fmt.Printf("\nFailed attempts: %d\n", status.FailedAttempts)
	}

	if exposure, err := git.CheckExposure(c.Path()); err == nil {
		fmt.Print(git.FormatExposure(exposure))
	}
}

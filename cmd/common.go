package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/awnumar/memguard"

	"github.com/illarion/cloak/internal/config"
	"github.com/illarion/cloak/internal/core"
	"github.com/illarion/cloak/internal/crypto"
	"github.com/illarion/cloak/internal/keyring"
	"github.com/illarion/cloak/internal/lockout"
	"github.com/illarion/cloak/internal/security"
	"github.com/illarion/cloak/internal/stego"
	"github.com/illarion/cloak/internal/vault"
	"github.com/illarion/cloak/internal/vfs"
)

// PasswordSource tells where a password came from
type PasswordSource int

const (
	SourceEnv PasswordSource = iota
	SourceKeyring
	SourcePrompt
)

// Exit purges guarded key material and exits
func Exit(code int) {
	memguard.SafeExit(code)
}

// LoadConfig loads the configuration, with file overriding vault.file
// when set
func LoadConfig(file string) *config.Config {
	cfg, err := config.Load()
	if err != nil {
		HandleError(err)
	}
	if file != "" {
		cfg.Vault.File = file
	}
	return cfg
}

// OpenCloak prepares a Cloak without unlocking it
func OpenCloak(file string) *core.Cloak {
	c, err := core.New(LoadConfig(file), nil)
	if err != nil {
		HandleError(err)
	}
	return c
}

// UnlockCloak prepares a Cloak and opens it with a password from the
// environment, the keyring or a prompt. The caller must Close it.
func UnlockCloak(file string) (*core.Cloak, vault.Kind) {
	c := OpenCloak(file)
	if !c.Engine().Exists() {
		c.Close()
		HandleError(core.ErrNotInitialized)
	}

	var kind vault.Kind
	password, source, err := GetPasswordWithRetry("Enter password: ", c.ID(), func(p []byte) error {
		var err error
		kind, err = c.Open(p)
		return err
	})
	if err != nil {
		c.Close()
		HandleError(err)
	}
	defer crypto.ClearBytes(password)

	if source == SourcePrompt {
		OfferToSavePassword(c.ID(), password)
	}
	return c, kind
}

// GetPasswordWithRetry tries CLOAK_PASSWORD, then the keyring, then a
// prompt. A keyring entry that no longer opens the container is reported
// as stale and the user is prompted instead. The caller must clear the
// returned password.
func GetPasswordWithRetry(prompt, id string, try func([]byte) error) ([]byte, PasswordSource, error) {
	if password := core.PasswordFromEnv(core.EnvPassword); password != nil {
		if err := try(password); err != nil {
			crypto.ClearBytes(password)
			return nil, SourceEnv, err
		}
		return password, SourceEnv, nil
	}

	if id != "" {
		if password, err := keyring.GetPassword(id); err == nil {
			err := try(password)
			if err == nil {
				return password, SourceKeyring, nil
			}
			crypto.ClearBytes(password)
			if !errors.Is(err, vault.ErrInvalidCredentials) {
				return nil, SourceKeyring, err
			}
			fmt.Fprintln(os.Stderr, "warning: password stored in keyring is stale")
		}
	}

	password, err := core.ReadPassword(prompt)
	if err != nil {
		return nil, SourcePrompt, err
	}
	if err := try(password); err != nil {
		crypto.ClearBytes(password)
		return nil, SourcePrompt, err
	}
	return password, SourcePrompt, nil
}

// GetNewPassword reads a new password from envName or a confirmed prompt
func GetNewPassword(envName, prompt string) ([]byte, error) {
	if password := core.PasswordFromEnv(envName); password != nil {
		return password, nil
	}
	return core.ReadPasswordConfirm(prompt)
}

// OfferToSavePassword asks once whether to cache a prompted password in
// the OS keyring
func OfferToSavePassword(id string, password []byte) {
	if !core.IsTerminal() || keyring.HasPassword(id) {
		return
	}
	fmt.Fprint(os.Stderr, "Save password to OS keyring? [y/N] ")
	answer, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return
	}
	if a := strings.ToLower(strings.TrimSpace(answer)); a != "y" && a != "yes" {
		return
	}
	if err := keyring.SavePassword(id, password); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save to keyring: %s\n", err)
		return
	}
	fmt.Fprintln(os.Stderr, "Password saved to keyring")
}

// Commit saves file system changes or exits
func Commit(c *core.Cloak) {
	if err := c.Commit(); err != nil {
		c.Close()
		HandleError(err)
	}
}

// Fail closes c and reports err
func Fail(c *core.Cloak, err error) {
	c.Close()
	HandleError(err)
}

// HandleError prints a message for err and exits
func HandleError(err error) {
	var locked *lockout.LockedError
	switch {
	case errors.As(err, &locked):
		fmt.Fprintf(os.Stderr, "Error: too many failed attempts, try again in %s\n",
			locked.Remaining(time.Now()).Round(time.Second))
	case errors.Is(err, core.ErrNotInitialized), errors.Is(err, vault.ErrNotExist):
		fmt.Fprintf(os.Stderr, "Error: no container found\n")
		fmt.Fprintf(os.Stderr, "Run 'cloak init' first, or pass -f <file>\n")
	case errors.Is(err, vault.ErrExists):
		fmt.Fprintf(os.Stderr, "Error: container already exists\n")
		fmt.Fprintf(os.Stderr, "Use 'cloak status' to inspect it\n")
	case errors.Is(err, vault.ErrInvalidCredentials):
		fmt.Fprintf(os.Stderr, "Error: wrong password\n")
	case errors.Is(err, vault.ErrWipeNotConfirmed):
		fmt.Fprintf(os.Stderr, "Error: wipe not confirmed\n")
		fmt.Fprintf(os.Stderr, "Pass --confirm %s to destroy the container\n", vault.WipeConfirmation)
	case errors.Is(err, stego.ErrCapacityExceeded):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use a larger carrier or more bits per unit (-bits)\n")
	case errors.Is(err, stego.ErrNoPayload):
		fmt.Fprintf(os.Stderr, "Error: no hidden data found\n")
	case errors.Is(err, security.ErrPathEscapes):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Paths may not contain '..'\n")
	case errors.Is(err, vfs.ErrNotEmpty):
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		fmt.Fprintf(os.Stderr, "Use -r to remove it with its contents\n")
	default:
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
	}
	Exit(1)
}

// formatSize formats a file size in human-readable form
func formatSize(size int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case size >= GB:
		return fmt.Sprintf("%.1f GB", float64(size)/GB)
	case size >= MB:
		return fmt.Sprintf("%.1f MB", float64(size)/MB)
	case size >= KB:
		return fmt.Sprintf("%.1f KB", float64(size)/KB)
	default:
		return fmt.Sprintf("%d bytes", size)
	}
}

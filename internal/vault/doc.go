// Package vault implements the encrypted container engine.
//
// A container holds a main payload and an optional decoy payload, each
// opened by its own password. Unlock reports which payload opened; callers
// must not reveal that distinction to anyone watching the terminal or logs.
// Files are encrypted individually inside the payload and the container is
// always rewritten atomically.
package vault

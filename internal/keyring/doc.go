// Package keyring caches container passwords in the OS keyring, keyed by
// the container ID so a moved container does not pick up a stale entry.
//
// Only the CLI uses it, and only after the user opts in.
package keyring

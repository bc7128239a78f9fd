// Package vfs maps a POSIX-like namespace onto the flat encrypted file
// store of an unlocked vault.
//
// Every path is validated with security.CleanVirtual. The path index is
// itself stored encrypted in the vault metadata under IndexKey, and file
// contents are stored under random blob keys so renames never touch
// ciphertext. Host trees are bridged through absfs.FileSystem.
package vfs

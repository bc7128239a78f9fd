// Package core wires the cloak building blocks together for the CLI.
//
// A Cloak owns:
//   - the lockout store (bbolt primary, JSON fallback) and its Guard
//   - the vault Engine for the configured container file
//   - the mounted vfs.FileSystem once a password has been accepted
//
// It also bridges host directories through hostfs for import and export,
// builds stego codecs and the free-space wiper from the configuration, and
// reads passwords from the environment or a no-echo terminal prompt.
package core

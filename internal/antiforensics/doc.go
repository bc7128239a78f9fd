// Package antiforensics provides independent defensive file operations:
// multi-pass secure deletion, timestamp manipulation, decoy file
// generation, free-space wiping and best-effort environment probes
// (debugger, virtual machine, forensic tooling).
//
// Secure deletion on journaling or copy-on-write filesystems and on SSDs
// with wear levelling cannot guarantee the old blocks are gone. The probes
// are heuristics and never a security boundary.
package antiforensics

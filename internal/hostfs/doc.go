// Package hostfs exposes a host directory as an absfs.FileSystem whose
// operations cannot leave that directory. The vault file system uses it as
// the host side of tree import and export.
package hostfs

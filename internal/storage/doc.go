// Package storage provides durable local persistence for cloak.
//
// The BBolt database holds state that must survive process restarts
// but does not belong inside a container, currently the lockout
// bucket keyed by container identity. BBolt provides ACID transactions,
// file locking, and corruption detection.
//
// WriteFileAtomic is the shared write-temp, fsync, rename primitive used
// for container files and plain-file state.
package storage

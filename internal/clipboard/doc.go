// Package clipboard copies secrets to the system clipboard and clears them
// again after a timeout.
package clipboard

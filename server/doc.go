// Package server accepts connections on a UNIX domain socket and serves
// the binary request protocol against a shared ordered key/value store.
// Each accepted connection gets its own goroutine and its own buffered
// socket and scratch space; the store is the only state shared between
// connections.
package server

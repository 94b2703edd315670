// Package e2e spins up the full server — a Pebble-backed store behind the
// UNIX-socket request loop — and drives it with raw protocol bytes, the
// way a real client process would.
package e2e

// Package storage contains the OrderedKV interface for working with an
// embedded ordered key/value store, a Pebble-backed implementation used in
// production, and an in-memory implementation for tests. Note that the
// storage package isn't designed to represent _what_ is stored, and deals
// only in opaque binary keys and values ordered bytewise.
package storage

// Package store provides the token-to-URL sources the server reads from: a
// flat file (JSON, TOML or YAML), a SQLite database, or a Redis hash.
//
// Every backend serves lookups from an in-memory snapshot that Refresh
// swaps wholesale. A failed refresh never disturbs the snapshot being
// served; the server keeps answering from the last good mapping.
package store

// Store is the read side the server drives. The server owns the store from
// a single goroutine, so implementations need no locking of their own.
type Store interface {
	// HasChanged reports whether the backing data moved since the last
	// successful Refresh. An error is not fatal: callers treat it as "no
	// change" and carry on.
	HasChanged() (bool, error)

	// Refresh reloads the snapshot from the backing data. On error the
	// previous snapshot stays in place.
	Refresh() error

	// Len is the number of links in the current snapshot.
	Len() int

	// Get resolves a token to its destination URL. Absence is not an
	// error; any token a client can utter is safe to look up.
	Get(token string) (string, bool)
}

// Editor is the write side the management commands use. The server never
// mutates a store; edits always come from a separate process and reach the
// server through HasChanged.
type Editor interface {
	Put(token, url string) error
	Delete(token string) error
	Entries() (map[string]string, error)
}

// Package msqlite is a low-level interface onto SQLite without cgo.
//
// It wraps the transpiled SQLite C API from modernc.org/sqlite/lib
// with functions that are Go-friendly and satisfy the sqliteh
// interfaces. Apart from extended result codes being enabled at open,
// it has as few opinions as possible.
//
// Callers never see a uintptr. Memory that belongs to the engine is
// exposed as []byte views that are valid only until the next call on
// the same statement, exactly as in the C API.
package msqlite

// Copyright (c) 2021 Tailscale Inc & AUTHORS All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqdb is a small handle layer over an embedded SQLite engine.
//
// It has three handle types. A DB is an open connection. A Stmt is a
// compiled statement. A Blob is an immutable byte buffer copied out of
// a row. Each handle can be aliased with Clone, and the engine resource
// behind it is released exactly once, when the last alias is closed:
//
//	db, err := sqdb.Open("file:app.db")
//	if err != nil {
//		// handle err
//	}
//	defer db.Close()
//
//	stmt, err := db.Query("SELECT name, avatar FROM users WHERE id = ?;")
//	if err != nil {
//		// handle err
//	}
//	defer stmt.Close()
//	for _, id := range ids {
//		stmt.BindInt64(1, id) // resets the previous run
//		for {
//			row, err := stmt.Next()
//			if err != nil {
//				// handle err
//			}
//			if !row {
//				break
//			}
//			name := stmt.Field(0).String()
//			avatar := stmt.Field(1).Blob()
//			// ...
//			avatar.Close()
//		}
//	}
//
// # Statement state
//
// A Stmt is either fresh or stepped. Next moves it to stepped. Any bind
// on a stepped statement first resets it, so a statement can be rebound
// in a loop without calling Reset.
//
// # Concurrency
//
// Handles do no locking. A DB, the statements compiled on it, their
// Columns and Blobs belong to one goroutine at a time.
//
// # Engine
//
// The engine is reached through the sqliteh interfaces. By default it is
// msqlite, a pure-Go build of SQLite. Set Options.Engine to use another.
package sqdb

import (
	"expvar"

	"github.com/sqdb-go/sqdb/msqlite"
	"github.com/sqdb-go/sqdb/sqliteh"
)

// TimeFormat is the string format Bind uses to store
// millisecond-precision time in SQLite in text format.
const TimeFormat = "2006-01-02 15:04:05.000-0700"

// DefaultEngine opens connections when Options.Engine is nil.
var DefaultEngine sqliteh.OpenFunc = msqlite.OpenDB

// UsesAfterClose is a metric that is incremented every time an operation is
// attempted on a handle after Close has already been called on it. The keys
// are the names of the methods that were called.
var UsesAfterClose expvar.Map

package sqdb

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/sqdb-go/sqdb/sqlfmt"
	"github.com/sqdb-go/sqdb/sqliteh"
)

var maxConnID atomic.Int32

// connState is shared by every alias of a DB and by the statements
// compiled on it.
type connState struct {
	db     sqliteh.DB
	id     sqliteh.TraceConnID
	path   string
	logger *slog.Logger
	tracer sqliteh.Tracer
}

// DB is an open database connection.
//
// Clone returns an alias sharing the same engine connection. The engine
// connection is closed when the last alias is closed. Statements compiled
// on a DB should be closed before its last alias.
type DB struct {
	refs refCount
	c    *connState
}

// Open opens or creates the database at filename with default Options.
// The filename may be a file: URI.
func Open(filename string) (*DB, error) {
	return OpenOptions(filename, Options{})
}

// OpenOptions opens the database at filename as configured by opts.
// All failures are reported as a ConnectionError.
func OpenOptions(filename string, opts Options) (*DB, error) {
	flags := opts.flags()
	sdb, err := opts.engine()(filename, flags, opts.VFS)
	if err != nil {
		err = reserr(sdb, ConnectionError, "Open", filename, err)
		if sdb != nil {
			sdb.Close()
		}
		return nil, err
	}
	if sdb == nil {
		return nil, misuse(ConnectionError, "Open", filename, "engine returned no connection")
	}
	if opts.BusyTimeout > 0 {
		sdb.BusyTimeout(opts.BusyTimeout)
	}

	logger := opts.logger()
	db := &DB{c: &connState{
		db:     sdb,
		id:     sqliteh.TraceConnID(maxConnID.Add(1)),
		path:   filename,
		logger: logger,
		tracer: opts.Tracer,
	}}
	db.refs.acquire()

	if err := db.prepareConnection(opts); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("sqdb connection opened",
		"path", filename,
		"conn_id", db.c.id,
		"flags", flags.String(),
	)
	return db, nil
}

// prepareConnection applies the configured pragmas and then calls the
// optional OnConnect callback.
func (db *DB) prepareConnection(opts Options) error {
	for _, pragma := range opts.Pragmas {
		if err := db.Exec(pragma); err != nil {
			if e, ok := err.(*Error); ok {
				e := *e
				e.Kind = ConnectionError
				return &e
			}
			return err
		}
	}
	if opts.OnConnect != nil {
		if err := opts.OnConnect(db); err != nil {
			return &Error{
				Kind: ConnectionError,
				Code: -1,
				Loc:  "Open",
				Msg:  fmt.Sprintf("OnConnect: %v", err),
			}
		}
	}
	return nil
}

func (db *DB) conn(op string) (*connState, error) {
	if db.c == nil {
		UsesAfterClose.Add(op, 1)
		return nil, ErrClosed
	}
	return db.c, nil
}

// Query compiles one SQL statement. Text after the first statement,
// other than whitespace, is a CompileError; use ExecScript to run
// several statements.
func (db *DB) Query(query string) (*Stmt, error) {
	c, err := db.conn("DB.Query")
	if err != nil {
		return nil, err
	}
	s, err := c.prepare("DB.Query", query)
	if err != nil {
		if c.tracer != nil {
			c.tracer.Query(c.id, query, 0, err)
		}
		return nil, err
	}
	return s, nil
}

func (c *connState) prepare(loc, query string) (*Stmt, error) {
	cstmt, rem, err := c.db.Prepare(query)
	if err != nil {
		return nil, reserr(c.db, CompileError, loc, query, err)
	}
	if cstmt == nil {
		return nil, misuse(CompileError, loc, query, "query contains no statement")
	}
	if strings.TrimSpace(rem) != "" {
		if err := cstmt.Finalize(); err != nil {
			c.logger.Warn("sqdb statement finalize failed", "conn_id", c.id, "query", query, "error", err)
		}
		return nil, misuse(CompileError, loc, query, fmt.Sprintf("query has trailing text: %q", rem))
	}
	return newStmt(c, cstmt, query), nil
}

// Exec compiles query, binds args to positions 1 through len(args), and
// steps the statement until it is done. Rows are discarded.
func (db *DB) Exec(query string, args ...any) error {
	s, err := db.Query(query)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.BindAll(args...); err != nil {
		return err
	}
	for {
		row, err := s.Next()
		if err != nil {
			return err
		}
		if !row {
			return nil
		}
	}
}

// ExecScript executes a set of SQL statements, one after another.
// It stops on the first error.
// It is recommended you wrap your script in a BEGIN; ... COMMIT; block.
func (db *DB) ExecScript(queries string) error {
	c, err := db.conn("DB.ExecScript")
	if err != nil {
		return err
	}
	for {
		queries = strings.TrimSpace(queries)
		if queries == "" {
			return nil
		}
		cstmt, rem, err := c.db.Prepare(queries)
		if err != nil {
			return reserr(c.db, CompileError, "DB.ExecScript", queries, err)
		}
		if cstmt == nil {
			// Only comments remain.
			return nil
		}
		query := cstmt.SQL()
		queries = rem
		s := newStmt(c, cstmt, query)
		for {
			var row bool
			row, err = s.Next()
			if err != nil || !row {
				break
			}
		}
		s.Close()
		if err != nil {
			if e, ok := err.(*Error); ok {
				e.Loc = "DB.ExecScript"
			}
			return err
		}
	}
}

// execOnce compiles query and steps it a single time.
func (db *DB) execOnce(loc, query string) error {
	c, err := db.conn(loc)
	if err != nil {
		return err
	}
	s, err := c.prepare(loc, query)
	if err != nil {
		return err
	}
	defer s.Close()
	_, err = s.Next()
	return err
}

// BeginTransaction runs BEGIN. Transactions do not nest: a second
// BeginTransaction before a commit or rollback fails in the engine.
func (db *DB) BeginTransaction() error {
	err := db.execOnce("DB.BeginTransaction", "BEGIN;")
	if db.c != nil && db.c.tracer != nil {
		db.c.tracer.BeginTx(db.c.id, err)
	}
	return err
}

// CommitTransaction runs COMMIT.
func (db *DB) CommitTransaction() error {
	err := db.execOnce("DB.CommitTransaction", "COMMIT;")
	if db.c != nil && db.c.tracer != nil {
		db.c.tracer.Commit(db.c.id, err)
	}
	return err
}

// RollbackTransaction runs ROLLBACK.
func (db *DB) RollbackTransaction() error {
	err := db.execOnce("DB.RollbackTransaction", "ROLLBACK;")
	if db.c != nil && db.c.tracer != nil {
		db.c.tracer.Rollback(db.c.id, err)
	}
	return err
}

// TableExists reports whether the main schema has a table called name.
// A name containing a NUL byte never names a table.
func (db *DB) TableExists(name string) (bool, error) {
	if strings.IndexByte(name, 0) >= 0 {
		if _, err := db.conn("DB.TableExists"); err != nil {
			return false, err
		}
		return false, nil
	}
	s, err := db.Query(sqlfmt.Format("SELECT count(*) FROM sqlite_master WHERE type='table' AND name=%Q;", name))
	if err != nil {
		return false, err
	}
	defer s.Close()
	row, err := s.Next()
	if err != nil || !row {
		return false, err
	}
	return s.Field(0).Int() > 0, nil
}

// LastInsertedID is sqlite3_last_insert_rowid: the rowid of the most
// recent successful INSERT on this connection.
func (db *DB) LastInsertedID() int64 {
	c, err := db.conn("DB.LastInsertedID")
	if err != nil {
		return 0
	}
	return c.db.LastInsertRowid()
}

// Changes is sqlite3_changes: the rows modified by the most recent
// INSERT, UPDATE or DELETE on this connection.
func (db *DB) Changes() int {
	c, err := db.conn("DB.Changes")
	if err != nil {
		return 0
	}
	return c.db.Changes()
}

// Filename reports the name the connection was opened with.
func (db *DB) Filename() string {
	if db.c == nil {
		return ""
	}
	return db.c.path
}

// ID reports the identifier the connection uses in Tracer calls.
func (db *DB) ID() sqliteh.TraceConnID {
	if db.c == nil {
		return 0
	}
	return db.c.id
}

// Clone returns a new alias of db.
// Cloning a closed DB returns a closed DB.
func (db *DB) Clone() *DB {
	if db.c == nil {
		UsesAfterClose.Add("DB.Clone", 1)
		return &DB{}
	}
	return &DB{refs: db.refs.share(), c: db.c}
}

// Close releases this alias. The last Close closes the engine connection;
// a failure to close is logged, not returned. Closing a closed alias
// does nothing.
func (db *DB) Close() {
	c := db.c
	if c == nil {
		UsesAfterClose.Add("DB.Close", 1)
		return
	}
	db.c = nil
	if db.refs.release() > 0 {
		return
	}
	if err := c.db.Close(); err != nil {
		c.logger.Warn("sqdb connection close failed",
			"path", c.path,
			"conn_id", c.id,
			"error", err,
		)
		return
	}
	c.logger.Info("sqdb connection closed", "path", c.path, "conn_id", c.id)
}

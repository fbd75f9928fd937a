// Package fakesqlite is a scripted sqliteh engine for tests.
//
// It runs no SQL. A statement yields the rows scripted for its query
// text in Engine.Results, and every engine primitive called is appended
// to Engine.Log, so tests can assert on exactly which calls a handle
// made and in what order.
package fakesqlite

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sqdb-go/sqdb/sqliteh"
)

// Engine is a fake SQLite library. Configure it before opening.
type Engine struct {
	// Results maps query text to the rows its statement produces.
	// Values are nil, int64, float64, string or []byte.
	Results map[string][][]any
	// PrepareErr maps query text to a compile failure.
	PrepareErr map[string]sqliteh.Code
	// StepErr maps query text to a failure returned once its rows
	// are exhausted, in place of SQLITE_DONE.
	StepErr map[string]sqliteh.Code
	// BindErr maps a parameter position to a bind failure.
	BindErr map[int]sqliteh.Code
	// OpenErr, if set, fails Open after returning a handle.
	OpenErr sqliteh.Code
	// CloseErr, if set, is returned by DB.Close.
	CloseErr sqliteh.Code

	// Log records every call made on the engine.
	Log []string

	open  int // open connections
	stmts int // live statements
}

// New returns an empty Engine.
func New() *Engine {
	return &Engine{
		Results:    make(map[string][][]any),
		PrepareErr: make(map[string]sqliteh.Code),
		StepErr:    make(map[string]sqliteh.Code),
		BindErr:    make(map[int]sqliteh.Code),
	}
}

func (e *Engine) logf(format string, args ...any) {
	e.Log = append(e.Log, fmt.Sprintf(format, args...))
}

// Count reports how many logged calls start with op.
func (e *Engine) Count(op string) int {
	n := 0
	for _, l := range e.Log {
		if l == op || strings.HasPrefix(l, op+" ") {
			n++
		}
	}
	return n
}

// OpenConns reports the connections opened and not yet closed.
func (e *Engine) OpenConns() int { return e.open }

// LiveStmts reports the statements prepared and not yet finalized.
func (e *Engine) LiveStmts() int { return e.stmts }

// ClearLog forgets all logged calls.
func (e *Engine) ClearLog() { e.Log = nil }

// Open implements sqliteh.OpenFunc.
func (e *Engine) Open(filename string, flags sqliteh.OpenFlags, vfs string) (sqliteh.DB, error) {
	e.logf("open %s", filename)
	e.open++
	db := &DB{e: e, name: filename}
	if e.OpenErr != 0 {
		db.errMsg = "fake: unable to open database file"
		return db, sqliteh.ErrCode(e.OpenErr)
	}
	return db, nil
}

// DB is a fake connection.
type DB struct {
	e       *Engine
	name    string
	closed  bool
	errMsg  string
	errCode sqliteh.Code
	lastID  int64
	changes int
	total   int
	busy    time.Duration
}

func (db *DB) fail(code sqliteh.Code, msg string) error {
	db.errCode = code
	db.errMsg = msg
	return sqliteh.ErrCode(code)
}

func (db *DB) Close() error {
	db.e.logf("close")
	if db.closed {
		return sqliteh.ErrCode(sqliteh.SQLITE_MISUSE)
	}
	db.closed = true
	db.e.open--
	if db.e.CloseErr != 0 {
		return sqliteh.ErrCode(db.e.CloseErr)
	}
	return nil
}

func (db *DB) ErrMsg() string                { return db.errMsg }
func (db *DB) ExtendedErrCode() sqliteh.Code { return db.errCode }
func (db *DB) Changes() int                  { return db.changes }
func (db *DB) TotalChanges() int             { return db.total }
func (db *DB) LastInsertRowid() int64        { return db.lastID }
func (db *DB) BusyTimeout(d time.Duration) {
	db.e.logf("busy_timeout %v", d)
	db.busy = d
}

// Prepare compiles the first statement of query: everything up to and
// including the first ';'.
func (db *DB) Prepare(query string) (sqliteh.Stmt, string, error) {
	first, rem := query, ""
	if i := strings.IndexByte(query, ';'); i >= 0 {
		first, rem = query[:i+1], query[i+1:]
	}
	if strings.TrimSpace(first) == "" {
		return nil, rem, nil
	}
	db.e.logf("prepare %s", first)
	if code, ok := db.e.PrepareErr[first]; ok {
		return nil, "", db.fail(code, "fake: near "+strconv.Quote(first)+": syntax error")
	}
	db.e.stmts++
	return &Stmt{db: db, query: first, params: parseParams(first), binds: make(map[int]any)}, rem, nil
}

// parseParams lists a query's parameters in order. Anonymous ? are "".
func parseParams(q string) []string {
	var params []string
	for i := 0; i < len(q); i++ {
		switch q[i] {
		case '?', ':', '@', '$':
			j := i + 1
			for j < len(q) && (q[j] == '_' || q[j] >= 'a' && q[j] <= 'z' || q[j] >= 'A' && q[j] <= 'Z' || q[j] >= '0' && q[j] <= '9') {
				j++
			}
			name := q[i:j]
			if name == "?" {
				name = ""
			}
			params = append(params, name)
			i = j - 1
		}
	}
	return params
}

// Stmt is a fake prepared statement.
type Stmt struct {
	db        *DB
	query     string
	params    []string
	binds     map[int]any
	cursor    int // rows stepped so far
	running   bool
	failed    bool
	finalized bool
}

func (s *Stmt) rows() [][]any { return s.db.e.Results[s.query] }

func (s *Stmt) row() []any {
	rows := s.rows()
	if s.cursor == 0 || s.cursor > len(rows) {
		return nil
	}
	return rows[s.cursor-1]
}

func (s *Stmt) SQL() string { return s.query }

func (s *Stmt) Reset() error {
	s.db.e.logf("reset")
	s.cursor = 0
	s.running = false
	if s.failed {
		s.failed = false
		return sqliteh.ErrCode(s.db.errCode)
	}
	return nil
}

func (s *Stmt) ClearBindings() error {
	s.db.e.logf("clear_bindings")
	s.binds = make(map[int]any)
	return nil
}

func (s *Stmt) Finalize() error {
	s.db.e.logf("finalize %s", s.query)
	if s.finalized {
		return sqliteh.ErrCode(sqliteh.SQLITE_MISUSE)
	}
	s.finalized = true
	s.db.e.stmts--
	return nil
}

func (s *Stmt) Step() (bool, error) {
	s.db.e.logf("step")
	if s.failed {
		return false, sqliteh.ErrCode(sqliteh.SQLITE_MISUSE)
	}
	s.running = true
	rows := s.rows()
	if s.cursor < len(rows) {
		s.cursor++
		return true, nil
	}
	if code, ok := s.db.e.StepErr[s.query]; ok {
		s.failed = true
		return false, s.db.fail(code, "fake: step failed")
	}
	if s.cursor == len(rows) {
		s.cursor++
		if strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s.query)), "INSERT") {
			s.db.lastID++
			s.db.changes = 1
			s.db.total++
		}
	}
	return false, nil
}

func (s *Stmt) bind(op string, col int, v any) error {
	s.db.e.logf("%s %d", op, col)
	if s.running {
		return s.db.fail(sqliteh.SQLITE_MISUSE, "fake: bind on a running statement")
	}
	if col < 1 || col > len(s.params) {
		return s.db.fail(sqliteh.SQLITE_RANGE, "fake: column index out of range")
	}
	if code, ok := s.db.e.BindErr[col]; ok {
		return s.db.fail(code, "fake: bind rejected")
	}
	s.binds[col] = v
	return nil
}

func (s *Stmt) BindInt(col int, val int32) error     { return s.bind("bind_int", col, int64(val)) }
func (s *Stmt) BindInt64(col int, val int64) error   { return s.bind("bind_int64", col, val) }
func (s *Stmt) BindDouble(col int, val float64) error { return s.bind("bind_double", col, val) }
func (s *Stmt) BindText(col int, val string) error   { return s.bind("bind_text", col, val) }
func (s *Stmt) BindNull(col int) error               { return s.bind("bind_null", col, nil) }
func (s *Stmt) BindBlob(col int, val []byte) error {
	return s.bind("bind_blob", col, append([]byte{}, val...))
}

// Bound reports the value bound at position col.
func (s *Stmt) Bound(col int) any { return s.binds[col] }

func (s *Stmt) BindParameterCount() int { return len(s.params) }

func (s *Stmt) BindParameterIndex(name string) int {
	for i, p := range s.params {
		if p != "" && p == name {
			return i + 1
		}
	}
	return 0
}

func (s *Stmt) ColumnCount() int {
	if rows := s.rows(); len(rows) > 0 {
		return len(rows[0])
	}
	return 0
}

func (s *Stmt) ColumnName(col int) string { return "c" + strconv.Itoa(col) }

func (s *Stmt) value(col int) any {
	row := s.row()
	if col < 0 || col >= len(row) {
		return nil
	}
	return row[col]
}

func (s *Stmt) ColumnType(col int) sqliteh.ColumnType {
	switch s.value(col).(type) {
	case int64:
		return sqliteh.SQLITE_INTEGER
	case float64:
		return sqliteh.SQLITE_FLOAT
	case string:
		return sqliteh.SQLITE_TEXT
	case []byte:
		return sqliteh.SQLITE_BLOB
	default:
		return sqliteh.SQLITE_NULL
	}
}

func (s *Stmt) ColumnInt(col int) int32 { return int32(s.ColumnInt64(col)) }

func (s *Stmt) ColumnInt64(col int) int64 {
	switch v := s.value(col).(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

func (s *Stmt) ColumnDouble(col int) float64 {
	switch v := s.value(col).(type) {
	case int64:
		return float64(v)
	case float64:
		return v
	case string:
		f, _ := strconv.ParseFloat(v, 64)
		return f
	}
	return 0
}

func (s *Stmt) ColumnText(col int) []byte {
	switch v := s.value(col).(type) {
	case int64:
		return strconv.AppendInt(nil, v, 10)
	case float64:
		return strconv.AppendFloat(nil, v, 'g', -1, 64)
	case string:
		return []byte(v)
	case []byte:
		return v
	}
	return nil
}

func (s *Stmt) ColumnBlob(col int) []byte { return s.ColumnText(col) }

func (s *Stmt) ColumnBytes(col int) int { return len(s.ColumnText(col)) }

var (
	_ sqliteh.DB   = (*DB)(nil)
	_ sqliteh.Stmt = (*Stmt)(nil)
)

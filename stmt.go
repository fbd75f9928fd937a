package sqdb

import (
	"database/sql/driver"
	"encoding"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/sqdb-go/sqdb/sqliteh"
)

// stmtState is shared by every alias of a Stmt.
type stmtState struct {
	conn  *connState
	stmt  sqliteh.Stmt // nil once finalized
	query string

	// needReset is set by every step and cleared by reset.
	needReset bool
	start     time.Time // first step of the current run, zero once traced
}

// Stmt is a compiled statement.
//
// Clone returns an alias sharing the same engine statement and the same
// bind/step state. The engine statement is finalized when the last alias
// is closed.
type Stmt struct {
	refs refCount
	st   *stmtState
}

func newStmt(c *connState, s sqliteh.Stmt, query string) *Stmt {
	stmt := &Stmt{st: &stmtState{conn: c, stmt: s, query: query}}
	stmt.refs.acquire()
	return stmt
}

func (s *Stmt) state(op string) (*stmtState, error) {
	if s.st == nil {
		UsesAfterClose.Add(op, 1)
		return nil, ErrClosed
	}
	return s.st, nil
}

// Next steps the statement. It reports true when a row is available and
// false when the statement has run to completion. Any other outcome is a
// StepError.
func (s *Stmt) Next() (bool, error) {
	st, err := s.state("Stmt.Next")
	if err != nil {
		return false, err
	}
	if !st.needReset {
		st.start = time.Now()
	}
	row, err := st.stmt.Step()
	st.needReset = true
	if err != nil {
		err = reserr(st.conn.db, StepError, "Stmt.Next", st.query, err)
		st.trace(err)
		return false, err
	}
	return row, nil
}

// Reset returns a stepped statement to the fresh state, keeping its
// bindings. Resetting a fresh statement does nothing.
func (s *Stmt) Reset() error {
	st, err := s.state("Stmt.Reset")
	if err != nil {
		return err
	}
	st.resetIfStepped()
	return nil
}

// Stepped reports whether Next has been called since the last reset.
func (s *Stmt) Stepped() bool {
	return s.st != nil && s.st.needReset
}

func (st *stmtState) resetIfStepped() {
	if !st.needReset {
		return
	}
	// sqlite3_reset repeats the error of a failed step, which
	// Next has already reported.
	if err := st.stmt.Reset(); err != nil {
		st.conn.logger.Debug("sqdb statement reset", "conn_id", st.conn.id, "query", st.query, "error", err)
	}
	st.needReset = false
	st.trace(nil)
}

// trace reports the end of a run to the tracer, once.
func (st *stmtState) trace(err error) {
	if st.start.IsZero() {
		return
	}
	if st.conn.tracer != nil {
		st.conn.tracer.Query(st.conn.id, st.query, time.Since(st.start), err)
	}
	st.start = time.Time{}
}

func (st *stmtState) finalize() {
	st.trace(nil)
	err := st.stmt.Finalize()
	st.stmt = nil
	if err != nil {
		st.conn.logger.Warn("sqdb statement finalize failed", "conn_id", st.conn.id, "query", st.query, "error", err)
		return
	}
	st.conn.logger.Debug("sqdb statement finalized", "conn_id", st.conn.id, "query", st.query)
}

// bindable returns the statement state ready for a bind.
func (s *Stmt) bindable(op string) (*stmtState, error) {
	st, err := s.state(op)
	if err != nil {
		return nil, err
	}
	st.resetIfStepped()
	return st, nil
}

func (st *stmtState) bindErr(loc string, err error) error {
	return reserr(st.conn.db, BindError, loc, st.query, err)
}

// BindInt is sqlite3_bind_int. Parameter positions start at 1.
func (s *Stmt) BindInt(pos int, v int32) error {
	st, err := s.bindable("Stmt.BindInt")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.BindInt", st.stmt.BindInt(pos, v))
}

// BindInt64 is sqlite3_bind_int64.
func (s *Stmt) BindInt64(pos int, v int64) error {
	st, err := s.bindable("Stmt.BindInt64")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.BindInt64", st.stmt.BindInt64(pos, v))
}

// BindFloat is sqlite3_bind_double.
func (s *Stmt) BindFloat(pos int, v float64) error {
	st, err := s.bindable("Stmt.BindFloat")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.BindFloat", st.stmt.BindDouble(pos, v))
}

// BindText is sqlite3_bind_text. The engine keeps its own copy of v.
func (s *Stmt) BindText(pos int, v string) error {
	st, err := s.bindable("Stmt.BindText")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.BindText", st.stmt.BindText(pos, v))
}

// BindBlob is sqlite3_bind_blob. The engine keeps its own copy of v.
// An empty or nil v binds a zero-length blob; use BindNull for NULL.
func (s *Stmt) BindBlob(pos int, v []byte) error {
	st, err := s.bindable("Stmt.BindBlob")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.BindBlob", st.stmt.BindBlob(pos, v))
}

// BindBuffer binds the bytes of b as a blob. A nil b binds NULL.
func (s *Stmt) BindBuffer(pos int, b *Blob) error {
	if b == nil {
		return s.BindNull(pos)
	}
	if b.refs.n == nil {
		UsesAfterClose.Add("Stmt.BindBuffer", 1)
		return ErrClosed
	}
	st, err := s.bindable("Stmt.BindBuffer")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.BindBuffer", st.stmt.BindBlob(pos, b.data))
}

// BindNull is sqlite3_bind_null.
func (s *Stmt) BindNull(pos int) error {
	st, err := s.bindable("Stmt.BindNull")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.BindNull", st.stmt.BindNull(pos))
}

// ClearBindings is sqlite3_clear_bindings: every parameter becomes NULL.
func (s *Stmt) ClearBindings() error {
	st, err := s.bindable("Stmt.ClearBindings")
	if err != nil {
		return err
	}
	return st.bindErr("Stmt.ClearBindings", st.stmt.ClearBindings())
}

// Bind binds v at pos with the typed bind matching v's Go type:
//
//	nil                        BindNull
//	int8, int16, int32, uint8,
//	uint16, bool               BindInt (bool as 0 or 1)
//	int, int64, uint32         BindInt64
//	float32, float64           BindFloat
//	string                     BindText
//	[]byte                     BindBlob
//	*Blob                      BindBuffer
//	time.Time                  BindText, formatted with TimeFormat
//	driver.Valuer              Bind of the returned value
//	encoding.TextMarshaler     BindText of the marshaled text
//
// Named types with one of the basic kinds above bind like their kind.
// uint and uint64 are rejected since SQLite integers are signed.
func (s *Stmt) Bind(pos int, v any) error {
	return s.bind(pos, pos, v)
}

func (s *Stmt) bind(debugName any, pos int, v any) error {
	switch v := v.(type) {
	case nil:
		return s.BindNull(pos)
	case int32:
		return s.BindInt(pos, v)
	case int:
		return s.BindInt64(pos, int64(v))
	case int64:
		return s.BindInt64(pos, v)
	case float64:
		return s.BindFloat(pos, v)
	case string:
		return s.BindText(pos, v)
	case []byte:
		return s.BindBlob(pos, v)
	case *Blob:
		return s.BindBuffer(pos, v)
	case bool:
		if v {
			return s.BindInt(pos, 1)
		}
		return s.BindInt(pos, 0)
	case time.Time:
		// Shortest of:
		//	YYYY-MM-DD HH:MM
		// 	YYYY-MM-DD HH:MM:SS
		//	YYYY-MM-DD HH:MM:SS.SSS
		str := v.Format(TimeFormat)
		str = strings.TrimSuffix(str, "-0000")
		str = strings.TrimSuffix(str, ".000")
		str = strings.TrimSuffix(str, ":00")
		return s.BindText(pos, str)
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return s.misuse(fmt.Sprintf("Bind:%v: %T.Value: %v", debugName, v, err))
		}
		if _, again := dv.(driver.Valuer); again {
			return s.misuse(fmt.Sprintf("Bind:%v: %T.Value returned another driver.Valuer", debugName, v))
		}
		return s.bind(debugName, pos, dv)
	case encoding.TextMarshaler:
		b, err := v.MarshalText()
		if err != nil {
			return s.misuse(fmt.Sprintf("Bind:%v: cannot marshal %T: %v", debugName, v, err))
		}
		return s.BindText(pos, string(b))
	}

	// Look for named basic types or other convertible types.
	val := reflect.ValueOf(v)
	switch val.Kind() {
	case reflect.Bool:
		return s.bind(debugName, pos, val.Bool())
	case reflect.Int8, reflect.Int16, reflect.Int32:
		return s.BindInt(pos, int32(val.Int()))
	case reflect.Int, reflect.Int64:
		return s.BindInt64(pos, val.Int())
	case reflect.Uint8, reflect.Uint16:
		return s.BindInt(pos, int32(val.Uint()))
	case reflect.Uint32:
		return s.BindInt64(pos, int64(val.Uint()))
	case reflect.Uint, reflect.Uint64:
		return s.misuse(fmt.Sprintf("Bind:%v: sqlite does not support uint64 (try a string or TextMarshaler)", debugName))
	case reflect.Float32, reflect.Float64:
		return s.BindFloat(pos, val.Float())
	case reflect.String:
		return s.BindText(pos, val.String())
	case reflect.Slice:
		if val.Type().Elem().Kind() == reflect.Uint8 {
			return s.BindBlob(pos, val.Bytes())
		}
	case reflect.Pointer:
		if val.IsNil() {
			return s.BindNull(pos)
		}
		return s.bind(debugName, pos, val.Elem().Interface())
	}
	return s.misuse(fmt.Sprintf("Bind:%v: unknown value type %T (try a string or TextMarshaler)", debugName, v))
}

// misuse reports a Bind call that never reached the engine. Like any
// bind, it first resets a stepped statement.
func (s *Stmt) misuse(msg string) error {
	st, err := s.bindable("Stmt.Bind")
	if err != nil {
		return err
	}
	return misuse(BindError, "Stmt.Bind", st.query, msg)
}

// BindAll binds args to positions 1 through len(args).
func (s *Stmt) BindAll(args ...any) error {
	for i, arg := range args {
		if err := s.Bind(i+1, arg); err != nil {
			return err
		}
	}
	return nil
}

// BindNamed binds v to the parameter called name. A name without a
// prefix is looked up as :name, @name, $name and ?name in turn.
func (s *Stmt) BindNamed(name string, v any) error {
	st, err := s.state("Stmt.BindNamed")
	if err != nil {
		return err
	}
	pos := paramIndexSearch(st.stmt, name)
	if pos == 0 {
		return &Error{
			Kind:  BindError,
			Code:  sqliteh.SQLITE_RANGE,
			Loc:   "Stmt.BindNamed",
			Query: st.query,
			Msg:   fmt.Sprintf("no parameter named %q", name),
		}
	}
	return s.bind(name, pos, v)
}

func paramIndexSearch(stmt sqliteh.Stmt, name string) int {
	if name == "" {
		return 0
	}
	switch name[0] {
	case ':', '@', '$', '?':
		return stmt.BindParameterIndex(name)
	}
	for _, prefix := range []string{":", "@", "$", "?"} {
		if i := stmt.BindParameterIndex(prefix + name); i > 0 {
			return i
		}
	}
	return 0
}

// Field returns column i, starting at 0, of the current row.
// It is only meaningful after Next has returned true.
func (s *Stmt) Field(i int) Column {
	if s.st == nil {
		UsesAfterClose.Add("Stmt.Field", 1)
		return Column{}
	}
	return Column{st: s.st, col: i}
}

// ColumnCount is sqlite3_column_count.
func (s *Stmt) ColumnCount() int {
	st, err := s.state("Stmt.ColumnCount")
	if err != nil {
		return 0
	}
	return st.stmt.ColumnCount()
}

// ColumnName is sqlite3_column_name.
func (s *Stmt) ColumnName(i int) string {
	st, err := s.state("Stmt.ColumnName")
	if err != nil {
		return ""
	}
	return st.stmt.ColumnName(i)
}

// ParamCount is sqlite3_bind_parameter_count.
func (s *Stmt) ParamCount() int {
	st, err := s.state("Stmt.ParamCount")
	if err != nil {
		return 0
	}
	return st.stmt.BindParameterCount()
}

// SQL returns the query text the statement was compiled from.
func (s *Stmt) SQL() string {
	if s.st == nil {
		return ""
	}
	return s.st.query
}

// Clone returns a new alias of s.
// Cloning a closed Stmt returns a closed Stmt.
func (s *Stmt) Clone() *Stmt {
	if s.st == nil {
		UsesAfterClose.Add("Stmt.Clone", 1)
		return &Stmt{}
	}
	return &Stmt{refs: s.refs.share(), st: s.st}
}

// Close releases this alias. The last Close finalizes the statement;
// a failure to finalize is logged, not returned. Closing a closed alias
// does nothing.
func (s *Stmt) Close() {
	st := s.st
	if st == nil {
		UsesAfterClose.Add("Stmt.Close", 1)
		return
	}
	s.st = nil
	if s.refs.release() == 0 {
		st.finalize()
	}
}

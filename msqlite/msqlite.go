package msqlite

import (
	"math"
	"time"
	"unsafe"

	"github.com/sqdb-go/sqdb/sqliteh"
	"modernc.org/libc"
	"modernc.org/libc/sys/types"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteTransient is SQLITE_TRANSIENT: the engine copies bound
// text and blobs before the bind call returns.
const sqliteTransient = ^uintptr(0)

const ptrSize = unsafe.Sizeof(uintptr(0))

// DB is an sqlite3* database connection object.
// https://sqlite.org/c3ref/sqlite3.html
type DB struct {
	tls *libc.TLS
	db  uintptr // *sqlite3.Xsqlite3

	// The TLS outlives the connection until every statement
	// prepared on it has been finalized.
	stmts  int
	closed bool
}

// Stmt is an sqlite3_stmt* prepared statement object.
// https://sqlite.org/c3ref/stmt.html
type Stmt struct {
	db   *DB
	stmt uintptr // *sqlite3.Xsqlite3_stmt
}

var (
	_ sqliteh.OpenFunc = OpenDB
	_ sqliteh.DB       = (*DB)(nil)
	_ sqliteh.Stmt     = (*Stmt)(nil)
)

// Open is sqlite3_open_v2.
//
// Surprisingly: an error opening the DB can return a non-nil handle.
// Call Close on it.
//
// https://sqlite.org/c3ref/open.html
func Open(filename string, flags sqliteh.OpenFlags, vfs string) (db *DB, err error) {
	tls := libc.NewTLS()

	var ppdb, cfilename, cvfs uintptr
	defer func() {
		free(tls, ppdb)
		free(tls, cfilename)
		free(tls, cvfs)
		if db == nil {
			tls.Close()
		}
	}()

	if ppdb, err = malloc(tls, int(ptrSize)); err != nil {
		return nil, err
	}
	if cfilename, err = libc.CString(filename); err != nil {
		return nil, sqliteh.ErrCode(sqliteh.SQLITE_NOMEM)
	}
	if vfs != "" {
		if cvfs, err = libc.CString(vfs); err != nil {
			return nil, sqliteh.ErrCode(sqliteh.SQLITE_NOMEM)
		}
	}

	res := sqlite3.Xsqlite3_open_v2(tls, cfilename, ppdb, int32(flags), cvfs)
	cdb := *(*uintptr)(unsafe.Pointer(ppdb))
	if cdb == 0 {
		return nil, errCode(res)
	}
	db = &DB{tls: tls, db: cdb}
	if res == sqlite3.SQLITE_OK {
		res = sqlite3.Xsqlite3_extended_result_codes(tls, cdb, 1)
	}
	return db, errCode(res)
}

// OpenDB is Open returning the sqliteh.DB interface.
// A nil *DB becomes a nil interface.
func OpenDB(filename string, flags sqliteh.OpenFlags, vfs string) (sqliteh.DB, error) {
	db, err := Open(filename, flags, vfs)
	if db == nil {
		return nil, err
	}
	return db, err
}

// Close is sqlite3_close_v2.
//
// Statements still open on db keep the connection alive inside the
// engine until they are finalized.
//
// https://sqlite.org/c3ref/close.html
func (db *DB) Close() error {
	if db.closed {
		return sqliteh.ErrCode(sqliteh.SQLITE_MISUSE)
	}
	res := sqlite3.Xsqlite3_close_v2(db.tls, db.db)
	db.closed = true
	db.releaseTLS()
	return errCode(res)
}

func (db *DB) releaseTLS() {
	if db.closed && db.stmts == 0 && db.tls != nil {
		db.tls.Close()
		db.tls = nil
	}
}

// ErrMsg is sqlite3_errmsg.
// https://sqlite.org/c3ref/errcode.html
func (db *DB) ErrMsg() string {
	if db.tls == nil {
		return "database is closed"
	}
	return libc.GoString(sqlite3.Xsqlite3_errmsg(db.tls, db.db))
}

// ExtendedErrCode is sqlite3_extended_errcode.
// https://sqlite.org/c3ref/errcode.html
func (db *DB) ExtendedErrCode() sqliteh.Code {
	return sqliteh.Code(sqlite3.Xsqlite3_extended_errcode(db.tls, db.db))
}

// Changes is sqlite3_changes.
// https://sqlite.org/c3ref/changes.html
func (db *DB) Changes() int {
	return int(sqlite3.Xsqlite3_changes(db.tls, db.db))
}

// TotalChanges is sqlite3_total_changes.
// https://sqlite.org/c3ref/total_changes.html
func (db *DB) TotalChanges() int {
	return int(sqlite3.Xsqlite3_total_changes(db.tls, db.db))
}

// LastInsertRowid is sqlite3_last_insert_rowid.
// https://sqlite.org/c3ref/last_insert_rowid.html
func (db *DB) LastInsertRowid() int64 {
	return sqlite3.Xsqlite3_last_insert_rowid(db.tls, db.db)
}

// BusyTimeout is sqlite3_busy_timeout.
// https://www.sqlite.org/c3ref/busy_timeout.html
func (db *DB) BusyTimeout(d time.Duration) {
	ms := d / time.Millisecond
	if ms > math.MaxInt32 {
		ms = math.MaxInt32
	}
	sqlite3.Xsqlite3_busy_timeout(db.tls, db.db, int32(ms))
}

// Prepare is sqlite3_prepare_v2.
//
// A query holding only whitespace or comments returns a nil Stmt
// and no error, as the C API does.
//
// https://www.sqlite.org/c3ref/prepare.html
func (db *DB) Prepare(query string) (stmt sqliteh.Stmt, remainingQuery string, err error) {
	if len(query) >= math.MaxInt32 {
		return nil, "", sqliteh.ErrCode(sqliteh.SQLITE_TOOBIG)
	}
	var csql, ppstmt, pptail uintptr
	defer func() {
		free(db.tls, csql)
		free(db.tls, ppstmt)
		free(db.tls, pptail)
	}()
	if csql, err = libc.CString(query); err != nil {
		return nil, "", sqliteh.ErrCode(sqliteh.SQLITE_NOMEM)
	}
	if ppstmt, err = malloc(db.tls, int(ptrSize)); err != nil {
		return nil, "", err
	}
	if pptail, err = malloc(db.tls, int(ptrSize)); err != nil {
		return nil, "", err
	}

	res := sqlite3.Xsqlite3_prepare_v2(db.tls, db.db, csql, int32(len(query))+1, ppstmt, pptail)
	if err := errCode(res); err != nil {
		return nil, "", err
	}
	tail := *(*uintptr)(unsafe.Pointer(pptail))
	if tail != 0 {
		remainingQuery = query[tail-csql:]
	}
	cstmt := *(*uintptr)(unsafe.Pointer(ppstmt))
	if cstmt == 0 {
		return nil, remainingQuery, nil
	}
	db.stmts++
	return &Stmt{db: db, stmt: cstmt}, remainingQuery, nil
}

// SQL is sqlite3_sql.
// https://www.sqlite.org/c3ref/expanded_sql.html
func (stmt *Stmt) SQL() string {
	return libc.GoString(sqlite3.Xsqlite3_sql(stmt.db.tls, stmt.stmt))
}

// Reset is sqlite3_reset.
// https://www.sqlite.org/c3ref/reset.html
func (stmt *Stmt) Reset() error {
	return errCode(sqlite3.Xsqlite3_reset(stmt.db.tls, stmt.stmt))
}

// Finalize is sqlite3_finalize.
// https://sqlite.org/c3ref/finalize.html
func (stmt *Stmt) Finalize() error {
	if stmt.stmt == 0 {
		return sqliteh.ErrCode(sqliteh.SQLITE_MISUSE)
	}
	res := sqlite3.Xsqlite3_finalize(stmt.db.tls, stmt.stmt)
	stmt.stmt = 0
	stmt.db.stmts--
	stmt.db.releaseTLS()
	return errCode(res)
}

// ClearBindings is sqlite3_clear_bindings.
// https://www.sqlite.org/c3ref/clear_bindings.html
func (stmt *Stmt) ClearBindings() error {
	return errCode(sqlite3.Xsqlite3_clear_bindings(stmt.db.tls, stmt.stmt))
}

// Step is sqlite3_step.
// 	For SQLITE_ROW, Step returns (true, nil).
// 	For SQLITE_DONE, Step returns (false, nil).
// 	For any error, Step returns (false, err).
// https://www.sqlite.org/c3ref/step.html
func (stmt *Stmt) Step() (row bool, err error) {
	switch res := sqlite3.Xsqlite3_step(stmt.db.tls, stmt.stmt); res {
	case sqlite3.SQLITE_ROW:
		return true, nil
	case sqlite3.SQLITE_DONE:
		return false, nil
	default:
		return false, errCode(res)
	}
}

// BindInt is sqlite3_bind_int.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindInt(col int, val int32) error {
	return errCode(sqlite3.Xsqlite3_bind_int(stmt.db.tls, stmt.stmt, int32(col), val))
}

// BindInt64 is sqlite3_bind_int64.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindInt64(col int, val int64) error {
	return errCode(sqlite3.Xsqlite3_bind_int64(stmt.db.tls, stmt.stmt, int32(col), val))
}

// BindDouble is sqlite3_bind_double.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindDouble(col int, val float64) error {
	return errCode(sqlite3.Xsqlite3_bind_double(stmt.db.tls, stmt.stmt, int32(col), val))
}

// BindNull is sqlite3_bind_null.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindNull(col int) error {
	return errCode(sqlite3.Xsqlite3_bind_null(stmt.db.tls, stmt.stmt, int32(col)))
}

// BindText is sqlite3_bind_text with SQLITE_TRANSIENT.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindText(col int, val string) error {
	if len(val) >= math.MaxInt32 {
		return sqliteh.ErrCode(sqliteh.SQLITE_TOOBIG)
	}
	p, err := libc.CString(val)
	if err != nil {
		return sqliteh.ErrCode(sqliteh.SQLITE_NOMEM)
	}
	defer free(stmt.db.tls, p)
	return errCode(sqlite3.Xsqlite3_bind_text(stmt.db.tls, stmt.stmt, int32(col), p, int32(len(val)), sqliteTransient))
}

// BindBlob is sqlite3_bind_blob with SQLITE_TRANSIENT.
// An empty val is bound with sqlite3_bind_zeroblob, since a zero
// pointer passed to sqlite3_bind_blob binds NULL.
// https://sqlite.org/c3ref/bind_blob.html
func (stmt *Stmt) BindBlob(col int, val []byte) error {
	if len(val) == 0 {
		return errCode(sqlite3.Xsqlite3_bind_zeroblob(stmt.db.tls, stmt.stmt, int32(col), 0))
	}
	if len(val) >= math.MaxInt32 {
		return sqliteh.ErrCode(sqliteh.SQLITE_TOOBIG)
	}
	p, err := malloc(stmt.db.tls, len(val))
	if err != nil {
		return err
	}
	defer free(stmt.db.tls, p)
	copy((*libc.RawMem)(unsafe.Pointer(p))[:len(val):len(val)], val)
	return errCode(sqlite3.Xsqlite3_bind_blob(stmt.db.tls, stmt.stmt, int32(col), p, int32(len(val)), sqliteTransient))
}

// BindParameterCount is sqlite3_bind_parameter_count.
// https://sqlite.org/c3ref/bind_parameter_count.html
func (stmt *Stmt) BindParameterCount() int {
	return int(sqlite3.Xsqlite3_bind_parameter_count(stmt.db.tls, stmt.stmt))
}

// BindParameterIndex is sqlite3_bind_parameter_index.
// Returns zero if no matching parameter is found.
// https://sqlite.org/c3ref/bind_parameter_index.html
func (stmt *Stmt) BindParameterIndex(name string) int {
	cname, err := libc.CString(name)
	if err != nil {
		return 0
	}
	defer free(stmt.db.tls, cname)
	return int(sqlite3.Xsqlite3_bind_parameter_index(stmt.db.tls, stmt.stmt, cname))
}

// ColumnCount is sqlite3_column_count.
// https://sqlite.org/c3ref/column_count.html
func (stmt *Stmt) ColumnCount() int {
	return int(sqlite3.Xsqlite3_column_count(stmt.db.tls, stmt.stmt))
}

// ColumnName is sqlite3_column_name.
// https://sqlite.org/c3ref/column_name.html
func (stmt *Stmt) ColumnName(col int) string {
	return libc.GoString(sqlite3.Xsqlite3_column_name(stmt.db.tls, stmt.stmt, int32(col)))
}

// ColumnType is sqlite3_column_type.
// https://www.sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnType(col int) sqliteh.ColumnType {
	return sqliteh.ColumnType(sqlite3.Xsqlite3_column_type(stmt.db.tls, stmt.stmt, int32(col)))
}

// ColumnInt is sqlite3_column_int.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnInt(col int) int32 {
	return sqlite3.Xsqlite3_column_int(stmt.db.tls, stmt.stmt, int32(col))
}

// ColumnInt64 is sqlite3_column_int64.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnInt64(col int) int64 {
	return sqlite3.Xsqlite3_column_int64(stmt.db.tls, stmt.stmt, int32(col))
}

// ColumnDouble is sqlite3_column_double.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnDouble(col int) float64 {
	return sqlite3.Xsqlite3_column_double(stmt.db.tls, stmt.stmt, int32(col))
}

// ColumnText is sqlite3_column_text.
//
// WARNING: The returned memory is managed by the engine and is only
//          valid until another call is made on this Stmt.
//
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnText(col int) []byte {
	p := sqlite3.Xsqlite3_column_text(stmt.db.tls, stmt.stmt, int32(col))
	return stmt.view(p, col)
}

// ColumnBlob is sqlite3_column_blob.
//
// WARNING: The returned memory is managed by the engine and is only
//          valid until another call is made on this Stmt.
//
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnBlob(col int) []byte {
	p := sqlite3.Xsqlite3_column_blob(stmt.db.tls, stmt.stmt, int32(col))
	return stmt.view(p, col)
}

// view must run after the column_text/column_blob call that produced
// p, as sqlite3_column_bytes reports the size of that conversion.
func (stmt *Stmt) view(p uintptr, col int) []byte {
	if p == 0 {
		return nil
	}
	n := stmt.ColumnBytes(col)
	if n == 0 {
		return []byte{}
	}
	return (*libc.RawMem)(unsafe.Pointer(p))[:n:n]
}

// ColumnBytes is sqlite3_column_bytes.
// https://sqlite.org/c3ref/column_blob.html
func (stmt *Stmt) ColumnBytes(col int) int {
	return int(sqlite3.Xsqlite3_column_bytes(stmt.db.tls, stmt.stmt, int32(col)))
}

func malloc(tls *libc.TLS, n int) (uintptr, error) {
	if p := libc.Xmalloc(tls, types.Size_t(n)); p != 0 || n == 0 {
		return p, nil
	}
	return 0, sqliteh.ErrCode(sqliteh.SQLITE_NOMEM)
}

func free(tls *libc.TLS, p uintptr) {
	if p != 0 {
		libc.Xfree(tls, p)
	}
}

func errCode(code int32) error { return sqliteh.CodeAsError(sqliteh.Code(code)) }

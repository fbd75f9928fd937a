// Package sqliteh contains the SQLite engine contract used by sqdb.
//
// The interfaces here are the primitive operations sqdb needs from an
// engine and nothing more. Each method is documented with the C function
// it stands for, so the engine's own documentation remains the reference
// for edge-case semantics.
package sqliteh

// Given everything in here has an sqliteh. prefix,
// why not strip the SQLITE_ prefix from constants?
// Because this way standard names show up in search.

import "time"

// OpenFunc is sqlite3_open_v2.
//
// Surprisingly: an error opening the DB can return a non-nil handle.
// Read ErrMsg from it, then Close it.
//
// https://sqlite.org/c3ref/open.html
type OpenFunc func(filename string, flags OpenFlags, vfs string) (DB, error)

// DB is an sqlite3* database connection object.
// https://sqlite.org/c3ref/sqlite3.html
type DB interface {
	// Close is sqlite3_close.
	// https://sqlite.org/c3ref/close.html
	Close() error
	// ErrMsg is sqlite3_errmsg.
	// https://sqlite.org/c3ref/errcode.html
	ErrMsg() string
	// ExtendedErrCode is sqlite3_extended_errcode.
	// https://sqlite.org/c3ref/errcode.html
	ExtendedErrCode() Code
	// Changes is sqlite3_changes.
	// https://sqlite.org/c3ref/changes.html
	Changes() int
	// TotalChanges is sqlite3_total_changes.
	// https://sqlite.org/c3ref/total_changes.html
	TotalChanges() int
	// LastInsertRowid is sqlite3_last_insert_rowid.
	// https://sqlite.org/c3ref/last_insert_rowid.html
	LastInsertRowid() int64
	// Prepare is sqlite3_prepare_v2.
	// The remaining query is the text after the first complete statement.
	// https://www.sqlite.org/c3ref/prepare.html
	Prepare(query string) (stmt Stmt, remainingQuery string, err error)
	// BusyTimeout is sqlite3_busy_timeout.
	// https://www.sqlite.org/c3ref/busy_timeout.html
	BusyTimeout(time.Duration)
}

// Stmt is an sqlite3_stmt* prepared statement object.
// https://sqlite.org/c3ref/stmt.html
type Stmt interface {
	// SQL is sqlite3_sql.
	// https://www.sqlite.org/c3ref/expanded_sql.html
	SQL() string
	// Reset is sqlite3_reset.
	// The result repeats the error of the most recent failed Step, if any.
	// https://www.sqlite.org/c3ref/reset.html
	Reset() error
	// ClearBindings is sqlite3_clear_bindings.
	// https://www.sqlite.org/c3ref/clear_bindings.html
	ClearBindings() error
	// Finalize is sqlite3_finalize.
	// https://sqlite.org/c3ref/finalize.html
	Finalize() error
	// Step is sqlite3_step.
	// 	For SQLITE_ROW, Step returns (true, nil).
	// 	For SQLITE_DONE, Step returns (false, nil).
	// 	For any error, Step returns (false, err).
	// https://www.sqlite.org/c3ref/step.html
	Step() (row bool, err error)

	// BindInt is sqlite3_bind_int.
	// https://sqlite.org/c3ref/bind_blob.html
	BindInt(col int, val int32) error
	// BindInt64 is sqlite3_bind_int64.
	// https://sqlite.org/c3ref/bind_blob.html
	BindInt64(col int, val int64) error
	// BindDouble is sqlite3_bind_double.
	// https://sqlite.org/c3ref/bind_blob.html
	BindDouble(col int, val float64) error
	// BindText is sqlite3_bind_text with SQLITE_TRANSIENT.
	// https://sqlite.org/c3ref/bind_blob.html
	BindText(col int, val string) error
	// BindBlob is sqlite3_bind_blob with SQLITE_TRANSIENT.
	// An empty val binds a zero-length blob, not NULL.
	// https://sqlite.org/c3ref/bind_blob.html
	BindBlob(col int, val []byte) error
	// BindNull is sqlite3_bind_null.
	// https://sqlite.org/c3ref/bind_blob.html
	BindNull(col int) error
	// BindParameterCount is sqlite3_bind_parameter_count.
	// https://sqlite.org/c3ref/bind_parameter_count.html
	BindParameterCount() int
	// BindParameterIndex is sqlite3_bind_parameter_index.
	// Returns zero if no matching parameter is found.
	// https://sqlite.org/c3ref/bind_parameter_index.html
	BindParameterIndex(name string) int

	// ColumnCount is sqlite3_column_count.
	// https://sqlite.org/c3ref/column_count.html
	ColumnCount() int
	// ColumnName is sqlite3_column_name.
	// https://sqlite.org/c3ref/column_name.html
	ColumnName(col int) string
	// ColumnType is sqlite3_column_type.
	// https://www.sqlite.org/c3ref/column_blob.html
	ColumnType(col int) ColumnType
	// ColumnInt is sqlite3_column_int.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnInt(col int) int32
	// ColumnInt64 is sqlite3_column_int64.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnInt64(col int) int64
	// ColumnDouble is sqlite3_column_double.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnDouble(col int) float64
	// ColumnText is sqlite3_column_text.
	//
	// WARNING: The returned memory is managed by the engine and is only
	//          valid until another call is made on this Stmt.
	//
	// https://sqlite.org/c3ref/column_blob.html
	ColumnText(col int) []byte
	// ColumnBlob is sqlite3_column_blob.
	//
	// WARNING: The returned memory is managed by the engine and is only
	//          valid until another call is made on this Stmt.
	//
	// https://sqlite.org/c3ref/column_blob.html
	ColumnBlob(col int) []byte
	// ColumnBytes is sqlite3_column_bytes.
	// https://sqlite.org/c3ref/column_blob.html
	ColumnBytes(col int) int
}

// ColumnType are constants for each of the SQLite datatypes.
// https://www.sqlite.org/c3ref/c_blob.html
type ColumnType int

const (
	SQLITE_INTEGER ColumnType = 1
	SQLITE_FLOAT   ColumnType = 2
	SQLITE_TEXT    ColumnType = 3
	SQLITE_BLOB    ColumnType = 4
	SQLITE_NULL    ColumnType = 5
)

func (t ColumnType) String() string {
	switch t {
	case SQLITE_INTEGER:
		return "SQLITE_INTEGER"
	case SQLITE_FLOAT:
		return "SQLITE_FLOAT"
	case SQLITE_TEXT:
		return "SQLITE_TEXT"
	case SQLITE_BLOB:
		return "SQLITE_BLOB"
	case SQLITE_NULL:
		return "SQLITE_NULL"
	default:
		return "UNKNOWN_SQLITE_DATATYPE"
	}
}

// OpenFlags are flags used when opening a DB.
//
// https://www.sqlite.org/c3ref/c_open_autoproxy.html
type OpenFlags int

const (
	SQLITE_OPEN_READONLY     OpenFlags = 0x00000001
	SQLITE_OPEN_READWRITE    OpenFlags = 0x00000002
	SQLITE_OPEN_CREATE       OpenFlags = 0x00000004
	SQLITE_OPEN_URI          OpenFlags = 0x00000040
	SQLITE_OPEN_MEMORY       OpenFlags = 0x00000080
	SQLITE_OPEN_NOMUTEX      OpenFlags = 0x00008000
	SQLITE_OPEN_FULLMUTEX    OpenFlags = 0x00010000
	SQLITE_OPEN_SHAREDCACHE  OpenFlags = 0x00020000
	SQLITE_OPEN_PRIVATECACHE OpenFlags = 0x00040000
	SQLITE_OPEN_NOFOLLOW     OpenFlags = 0x01000000

	// OpenFlagsDefault opens or creates a database for a single owner.
	OpenFlagsDefault = SQLITE_OPEN_READWRITE |
		SQLITE_OPEN_CREATE |
		SQLITE_OPEN_URI |
		SQLITE_OPEN_NOMUTEX

	// OpenFlagsReadOnly opens an existing database without write access.
	OpenFlagsReadOnly = SQLITE_OPEN_READONLY |
		SQLITE_OPEN_URI |
		SQLITE_OPEN_NOMUTEX
)

var openFlagNames = []struct {
	flag OpenFlags
	name string
}{
	{SQLITE_OPEN_READONLY, "SQLITE_OPEN_READONLY"},
	{SQLITE_OPEN_READWRITE, "SQLITE_OPEN_READWRITE"},
	{SQLITE_OPEN_CREATE, "SQLITE_OPEN_CREATE"},
	{SQLITE_OPEN_URI, "SQLITE_OPEN_URI"},
	{SQLITE_OPEN_MEMORY, "SQLITE_OPEN_MEMORY"},
	{SQLITE_OPEN_NOMUTEX, "SQLITE_OPEN_NOMUTEX"},
	{SQLITE_OPEN_FULLMUTEX, "SQLITE_OPEN_FULLMUTEX"},
	{SQLITE_OPEN_SHAREDCACHE, "SQLITE_OPEN_SHAREDCACHE"},
	{SQLITE_OPEN_PRIVATECACHE, "SQLITE_OPEN_PRIVATECACHE"},
	{SQLITE_OPEN_NOFOLLOW, "SQLITE_OPEN_NOFOLLOW"},
}

func (o OpenFlags) String() string {
	var flags []byte
	rest := o
	for _, f := range openFlagNames {
		if o&f.flag == 0 {
			continue
		}
		if len(flags) > 0 {
			flags = append(flags, '|')
		}
		flags = append(flags, f.name...)
		rest &^= f.flag
	}
	if rest != 0 {
		if len(flags) > 0 {
			flags = append(flags, '|')
		}
		var buf [20]byte
		flags = append(flags, "UNKNOWN_FLAG:"...)
		flags = append(flags, itoa(buf[:], int64(rest))...)
	}
	return string(flags)
}

// TraceConnID identifies a connection in Tracer callbacks.
type TraceConnID int

// Tracer receives events from sqdb connections.
//
// All methods are called synchronously on the goroutine that owns the
// connection, so a Tracer shared between connections must do its own
// locking.
type Tracer interface {
	// Query is called when a statement run ends: when a stepped
	// statement is reset or finalized, or when a step fails.
	// The duration covers the time since the first step of the run.
	// A statement that fails to compile is reported with a zero duration.
	Query(id TraceConnID, query string, duration time.Duration, err error)
	// BeginTx is called after BEGIN is executed.
	BeginTx(id TraceConnID, err error)
	// Commit is called after COMMIT is executed.
	Commit(id TraceConnID, err error)
	// Rollback is called after ROLLBACK is executed.
	Rollback(id TraceConnID, err error)
}

func itoa(buf []byte, val int64) []byte {
	i := len(buf) - 1
	neg := false
	if val < 0 {
		neg = true
		val = 0 - val
	}
	for val >= 10 {
		buf[i] = byte(val%10 + '0')
		i--
		val /= 10
	}
	buf[i] = byte(val + '0')
	if neg {
		i--
		buf[i] = '-'
	}
	return buf[i:]
}

package sqliteh

// ErrCode is an SQLite error code as a Go error.
// It must not be one of the status codes SQLITE_OK, SQLITE_ROW, or SQLITE_DONE.
type ErrCode Code

func (e ErrCode) Error() string {
	return Code(e).String()
}

// Primary reports the primary result code of e, dropping extended bits.
func (e ErrCode) Primary() Code {
	return Code(e) & 0xff
}

// Is reports whether target is the primary code of e, so an extended
// SQLITE_CONSTRAINT_UNIQUE matches ErrCode(SQLITE_CONSTRAINT).
func (e ErrCode) Is(target error) bool {
	t, ok := target.(ErrCode)
	return ok && Code(t) == e.Primary()
}

// Code is an SQLite extended result code.
//
// The three SQLite result codes (SQLITE_OK, SQLITE_ROW, and SQLITE_DONE),
// are not errors so they should not be used in an Error.
//
// https://www.sqlite.org/rescode.html
type Code int

func (code Code) String() string {
	switch code {
	case SQLITE_OK:
		return "SQLITE_OK(not an error)"
	case SQLITE_ROW:
		return "SQLITE_ROW(not an error)"
	case SQLITE_DONE:
		return "SQLITE_DONE(not an error)"
	}
	if s, ok := codeNames[code]; ok {
		return s
	}
	var buf [20]byte
	return "SQLITE_UNKNOWN_ERR(" + string(itoa(buf[:], int64(code))) + ")"
}

// CodeAsError converts an engine result code into an error.
// SQLite non-error status codes return nil.
func CodeAsError(code Code) error {
	if code == SQLITE_OK || code == SQLITE_ROW || code == SQLITE_DONE {
		return nil
	}
	return ErrCode(code)
}

const (
	SQLITE_OK         = Code(0) // do not use in Error
	SQLITE_ERROR      = Code(1)
	SQLITE_INTERNAL   = Code(2)
	SQLITE_PERM       = Code(3)
	SQLITE_ABORT      = Code(4)
	SQLITE_BUSY       = Code(5)
	SQLITE_LOCKED     = Code(6)
	SQLITE_NOMEM      = Code(7)
	SQLITE_READONLY   = Code(8)
	SQLITE_INTERRUPT  = Code(9)
	SQLITE_IOERR      = Code(10)
	SQLITE_CORRUPT    = Code(11)
	SQLITE_NOTFOUND   = Code(12)
	SQLITE_FULL       = Code(13)
	SQLITE_CANTOPEN   = Code(14)
	SQLITE_PROTOCOL   = Code(15)
	SQLITE_EMPTY      = Code(16)
	SQLITE_SCHEMA     = Code(17)
	SQLITE_TOOBIG     = Code(18)
	SQLITE_CONSTRAINT = Code(19)
	SQLITE_MISMATCH   = Code(20)
	SQLITE_MISUSE     = Code(21)
	SQLITE_NOLFS      = Code(22)
	SQLITE_AUTH       = Code(23)
	SQLITE_FORMAT     = Code(24)
	SQLITE_RANGE      = Code(25)
	SQLITE_NOTADB     = Code(26)
	SQLITE_NOTICE     = Code(27)
	SQLITE_WARNING    = Code(28)
	SQLITE_ROW        = Code(100) // do not use in Error
	SQLITE_DONE       = Code(101) // do not use in Error

	// Extended result codes sqdb callers commonly branch on.

	SQLITE_BUSY_RECOVERY         = Code(SQLITE_BUSY | (1 << 8))
	SQLITE_BUSY_SNAPSHOT         = Code(SQLITE_BUSY | (2 << 8))
	SQLITE_BUSY_TIMEOUT          = Code(SQLITE_BUSY | (3 << 8))
	SQLITE_LOCKED_SHAREDCACHE    = Code(SQLITE_LOCKED | (1 << 8))
	SQLITE_CANTOPEN_ISDIR        = Code(SQLITE_CANTOPEN | (2 << 8))
	SQLITE_CANTOPEN_FULLPATH     = Code(SQLITE_CANTOPEN | (3 << 8))
	SQLITE_READONLY_DBMOVED      = Code(SQLITE_READONLY | (4 << 8))
	SQLITE_ABORT_ROLLBACK        = Code(SQLITE_ABORT | (2 << 8))
	SQLITE_CONSTRAINT_CHECK      = Code(SQLITE_CONSTRAINT | (1 << 8))
	SQLITE_CONSTRAINT_FOREIGNKEY = Code(SQLITE_CONSTRAINT | (3 << 8))
	SQLITE_CONSTRAINT_NOTNULL    = Code(SQLITE_CONSTRAINT | (5 << 8))
	SQLITE_CONSTRAINT_PRIMARYKEY = Code(SQLITE_CONSTRAINT | (6 << 8))
	SQLITE_CONSTRAINT_TRIGGER    = Code(SQLITE_CONSTRAINT | (7 << 8))
	SQLITE_CONSTRAINT_UNIQUE     = Code(SQLITE_CONSTRAINT | (8 << 8))
	SQLITE_CONSTRAINT_ROWID      = Code(SQLITE_CONSTRAINT | (10 << 8))
)

var codeNames = map[Code]string{
	SQLITE_ERROR:                 "SQLITE_ERROR",
	SQLITE_INTERNAL:              "SQLITE_INTERNAL",
	SQLITE_PERM:                  "SQLITE_PERM",
	SQLITE_ABORT:                 "SQLITE_ABORT",
	SQLITE_BUSY:                  "SQLITE_BUSY",
	SQLITE_LOCKED:                "SQLITE_LOCKED",
	SQLITE_NOMEM:                 "SQLITE_NOMEM",
	SQLITE_READONLY:              "SQLITE_READONLY",
	SQLITE_INTERRUPT:             "SQLITE_INTERRUPT",
	SQLITE_IOERR:                 "SQLITE_IOERR",
	SQLITE_CORRUPT:               "SQLITE_CORRUPT",
	SQLITE_NOTFOUND:              "SQLITE_NOTFOUND",
	SQLITE_FULL:                  "SQLITE_FULL",
	SQLITE_CANTOPEN:              "SQLITE_CANTOPEN",
	SQLITE_PROTOCOL:              "SQLITE_PROTOCOL",
	SQLITE_EMPTY:                 "SQLITE_EMPTY",
	SQLITE_SCHEMA:                "SQLITE_SCHEMA",
	SQLITE_TOOBIG:                "SQLITE_TOOBIG",
	SQLITE_CONSTRAINT:            "SQLITE_CONSTRAINT",
	SQLITE_MISMATCH:              "SQLITE_MISMATCH",
	SQLITE_MISUSE:                "SQLITE_MISUSE",
	SQLITE_NOLFS:                 "SQLITE_NOLFS",
	SQLITE_AUTH:                  "SQLITE_AUTH",
	SQLITE_FORMAT:                "SQLITE_FORMAT",
	SQLITE_RANGE:                 "SQLITE_RANGE",
	SQLITE_NOTADB:                "SQLITE_NOTADB",
	SQLITE_NOTICE:                "SQLITE_NOTICE",
	SQLITE_WARNING:               "SQLITE_WARNING",
	SQLITE_BUSY_RECOVERY:         "SQLITE_BUSY_RECOVERY",
	SQLITE_BUSY_SNAPSHOT:         "SQLITE_BUSY_SNAPSHOT",
	SQLITE_BUSY_TIMEOUT:          "SQLITE_BUSY_TIMEOUT",
	SQLITE_LOCKED_SHAREDCACHE:    "SQLITE_LOCKED_SHAREDCACHE",
	SQLITE_CANTOPEN_ISDIR:        "SQLITE_CANTOPEN_ISDIR",
	SQLITE_CANTOPEN_FULLPATH:     "SQLITE_CANTOPEN_FULLPATH",
	SQLITE_READONLY_DBMOVED:      "SQLITE_READONLY_DBMOVED",
	SQLITE_ABORT_ROLLBACK:        "SQLITE_ABORT_ROLLBACK",
	SQLITE_CONSTRAINT_CHECK:      "SQLITE_CONSTRAINT_CHECK",
	SQLITE_CONSTRAINT_FOREIGNKEY: "SQLITE_CONSTRAINT_FOREIGNKEY",
	SQLITE_CONSTRAINT_NOTNULL:    "SQLITE_CONSTRAINT_NOTNULL",
	SQLITE_CONSTRAINT_PRIMARYKEY: "SQLITE_CONSTRAINT_PRIMARYKEY",
	SQLITE_CONSTRAINT_TRIGGER:    "SQLITE_CONSTRAINT_TRIGGER",
	SQLITE_CONSTRAINT_UNIQUE:     "SQLITE_CONSTRAINT_UNIQUE",
	SQLITE_CONSTRAINT_ROWID:      "SQLITE_CONSTRAINT_ROWID",
}

package sqdb

import (
	"strings"

	"github.com/sqdb-go/sqdb/sqliteh"
)

// ErrorKind classifies where an Error came from.
type ErrorKind int

const (
	// GenericError is raised by sqdb itself, with no engine call involved.
	GenericError ErrorKind = iota
	// ConnectionError is a failure to open a database.
	ConnectionError
	// CompileError is query text the engine failed to compile.
	CompileError
	// BindError is a parameter bind rejected by the engine or by Bind.
	BindError
	// StepError is a step that produced neither a row nor completion.
	StepError
)

func (k ErrorKind) String() string {
	switch k {
	case GenericError:
		return "GenericError"
	case ConnectionError:
		return "ConnectionError"
	case CompileError:
		return "CompileError"
	case BindError:
		return "BindError"
	case StepError:
		return "StepError"
	default:
		return "UnknownError"
	}
}

// Error is an error produced by SQLite or by sqdb.
type Error struct {
	Kind  ErrorKind
	Code  sqliteh.Code // SQLite extended error code, or -1 for a GenericError
	Loc   string       // method name that generated the error
	Query string       // original SQL query text
	Msg   string       // value of sqlite3_errmsg when the error happened
}

// NewError returns a GenericError carrying msg.
func NewError(msg string) *Error {
	return &Error{Kind: GenericError, Code: -1, Msg: msg}
}

// ErrClosed is returned when an operation is attempted on a handle after
// Close has already been called on it.
var ErrClosed = &Error{Kind: GenericError, Code: -1, Msg: "sqdb: already closed"}

func (err *Error) Error() string {
	b := new(strings.Builder)
	b.WriteString("sqdb")
	if err.Loc != "" {
		b.WriteByte('.')
		b.WriteString(err.Loc)
	}
	b.WriteString(": ")
	if err.Code >= 0 {
		b.WriteString(err.Code.String())
		if err.Msg != "" {
			b.WriteString(": ")
		}
	}
	b.WriteString(err.Msg)
	if err.Query != "" {
		b.WriteString(" (")
		b.WriteString(err.Query)
		b.WriteByte(')')
	}
	return b.String()
}

// Unwrap reports the engine code as a sqliteh.ErrCode, so that
// errors.Is(err, sqliteh.ErrCode(sqliteh.SQLITE_BUSY)) works.
func (err *Error) Unwrap() error {
	if err.Code <= 0 {
		return nil
	}
	return sqliteh.ErrCode(err.Code)
}

// reserr wraps an engine error, snapshotting the connection's current
// error message.
func reserr(db sqliteh.DB, kind ErrorKind, loc, query string, err error) error {
	if err == nil {
		return nil
	}
	e := &Error{
		Kind:  kind,
		Code:  sqliteh.SQLITE_ERROR,
		Loc:   loc,
		Query: query,
	}
	if code, ok := err.(sqliteh.ErrCode); ok {
		e.Code = sqliteh.Code(code)
	}
	if db != nil {
		e.Msg = db.ErrMsg()
	} else {
		e.Msg = err.Error()
	}
	return e
}

// misuse builds an Error for a call the engine was never asked to run.
func misuse(kind ErrorKind, loc, query, msg string) *Error {
	return &Error{
		Kind:  kind,
		Code:  sqliteh.SQLITE_MISUSE,
		Loc:   loc,
		Query: query,
		Msg:   msg,
	}
}

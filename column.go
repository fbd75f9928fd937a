package sqdb

import "github.com/sqdb-go/sqdb/sqliteh"

// Column is one field of a statement's current row.
//
// A Column does not own anything and is only meaningful until the next
// call to Next, Reset or a bind on its statement. Each read goes to the
// engine, which applies its own type conversions: an INTEGER read with
// String yields its decimal text, and a TEXT read with Int64 yields
// whatever number the text starts with, or 0.
//
// Reading a Column whose statement has been closed returns zero values.
type Column struct {
	st  *stmtState
	col int
}

func (c Column) stmt() sqliteh.Stmt {
	if c.st == nil {
		return nil
	}
	return c.st.stmt
}

// Index reports the column's position in the row, starting at 0.
func (c Column) Index() int { return c.col }

// Int is sqlite3_column_int.
func (c Column) Int() int {
	s := c.stmt()
	if s == nil {
		return 0
	}
	return int(s.ColumnInt(c.col))
}

// Int64 is sqlite3_column_int64.
func (c Column) Int64() int64 {
	s := c.stmt()
	if s == nil {
		return 0
	}
	return s.ColumnInt64(c.col)
}

// Float is sqlite3_column_double.
func (c Column) Float() float64 {
	s := c.stmt()
	if s == nil {
		return 0
	}
	return s.ColumnDouble(c.col)
}

// Text returns the column as text in engine memory.
//
// WARNING: The returned slice is only valid until the next call on the
// statement. Use String to keep the value.
func (c Column) Text() []byte {
	s := c.stmt()
	if s == nil {
		return nil
	}
	return s.ColumnText(c.col)
}

// String returns a copy of the column as text. NULL is "".
func (c Column) String() string {
	return string(c.Text())
}

// Blob returns a copy of the column's bytes. The caller must Close it.
func (c Column) Blob() *Blob {
	s := c.stmt()
	if s == nil {
		return NewBlob(nil)
	}
	return NewBlob(s.ColumnBlob(c.col))
}

// Len is sqlite3_column_bytes.
func (c Column) Len() int {
	s := c.stmt()
	if s == nil {
		return 0
	}
	return s.ColumnBytes(c.col)
}

// Type is sqlite3_column_type: the storage class of the value before
// any conversion.
func (c Column) Type() sqliteh.ColumnType {
	s := c.stmt()
	if s == nil {
		return sqliteh.SQLITE_NULL
	}
	return s.ColumnType(c.col)
}

// IsNull reports whether the value is NULL.
func (c Column) IsNull() bool {
	return c.Type() == sqliteh.SQLITE_NULL
}

// Name is sqlite3_column_name.
func (c Column) Name() string {
	s := c.stmt()
	if s == nil {
		return ""
	}
	return s.ColumnName(c.col)
}

// Value returns the column in its storage class without conversion:
// nil, int64, float64, string or []byte. Strings and byte slices are
// copies.
func (c Column) Value() any {
	switch c.Type() {
	case sqliteh.SQLITE_INTEGER:
		return c.Int64()
	case sqliteh.SQLITE_FLOAT:
		return c.Float()
	case sqliteh.SQLITE_TEXT:
		return c.String()
	case sqliteh.SQLITE_BLOB:
		b := c.stmt().ColumnBlob(c.col)
		return append(make([]byte, 0, len(b)), b...)
	default:
		return nil
	}
}

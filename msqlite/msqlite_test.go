package msqlite

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sqdb-go/sqdb/sqliteh"
)

func openTestDB(t testing.TB) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), sqliteh.OpenFlagsDefault, "")
	if err != nil {
		if db != nil {
			db.Close()
		}
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func prepare(t testing.TB, db *DB, query string) sqliteh.Stmt {
	t.Helper()
	stmt, _, err := db.Prepare(query)
	if err != nil {
		t.Fatalf("%s: %v: %s", query, err, db.ErrMsg())
	}
	return stmt
}

func exec(t testing.TB, db *DB, query string) {
	t.Helper()
	stmt := prepare(t, db, query)
	defer stmt.Finalize()
	if _, err := stmt.Step(); err != nil {
		t.Fatalf("%s: %v: %s", query, err, db.ErrMsg())
	}
}

func TestRoundTrip(t *testing.T) {
	db := openTestDB(t)
	exec(t, db, "CREATE TABLE t (i INTEGER, f REAL, s TEXT, b BLOB, n);")

	ins := prepare(t, db, "INSERT INTO t VALUES (?, ?, ?, ?, ?);")
	if got := ins.BindParameterCount(); got != 5 {
		t.Fatalf("BindParameterCount=%d, want 5", got)
	}
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(ins.BindInt(1, 42))
	must(ins.BindDouble(2, 3.14))
	must(ins.BindText(3, "hello"))
	must(ins.BindBlob(4, []byte{0x00, 0xff, 0x7a}))
	must(ins.BindNull(5))
	if _, err := ins.Step(); err != nil {
		t.Fatal(err)
	}
	must(ins.Finalize())
	if got := db.LastInsertRowid(); got != 1 {
		t.Errorf("LastInsertRowid=%d, want 1", got)
	}
	if got := db.Changes(); got != 1 {
		t.Errorf("Changes=%d, want 1", got)
	}

	sel := prepare(t, db, "SELECT i, f, s, b, n FROM t;")
	defer sel.Finalize()
	row, err := sel.Step()
	if err != nil || !row {
		t.Fatalf("Step=%v, %v", row, err)
	}
	if got := sel.ColumnCount(); got != 5 {
		t.Fatalf("ColumnCount=%d", got)
	}
	if got := sel.ColumnName(2); got != "s" {
		t.Errorf("ColumnName(2)=%q", got)
	}
	if got := sel.ColumnInt(0); got != 42 {
		t.Errorf("ColumnInt=%d", got)
	}
	if got := sel.ColumnDouble(1); got != 3.14 {
		t.Errorf("ColumnDouble=%v", got)
	}
	if got := string(sel.ColumnText(2)); got != "hello" {
		t.Errorf("ColumnText=%q", got)
	}
	if diff := cmp.Diff([]byte{0x00, 0xff, 0x7a}, sel.ColumnBlob(3)); diff != "" {
		t.Errorf("ColumnBlob (-want +got):\n%s", diff)
	}
	if got := sel.ColumnType(4); got != sqliteh.SQLITE_NULL {
		t.Errorf("ColumnType(4)=%v", got)
	}
	row, err = sel.Step()
	if err != nil || row {
		t.Fatalf("second Step=%v, %v", row, err)
	}
}

func TestEmptyBlobIsNotNull(t *testing.T) {
	db := openTestDB(t)
	stmt := prepare(t, db, "SELECT typeof(?), typeof(?);")
	defer stmt.Finalize()
	if err := stmt.BindBlob(1, nil); err != nil {
		t.Fatal(err)
	}
	if err := stmt.BindText(2, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := stmt.Step(); err != nil {
		t.Fatal(err)
	}
	got := []string{string(stmt.ColumnText(0)), string(stmt.ColumnText(1))}
	if diff := cmp.Diff([]string{"blob", "text"}, got); diff != "" {
		t.Errorf("typeof (-want +got):\n%s", diff)
	}
}

func TestPrepareRemaining(t *testing.T) {
	db := openTestDB(t)
	stmt, rem, err := db.Prepare("SELECT 1; SELECT 2;")
	if err != nil {
		t.Fatal(err)
	}
	defer stmt.Finalize()
	if rem != " SELECT 2;" {
		t.Errorf("remaining=%q", rem)
	}
	if got := stmt.SQL(); got != "SELECT 1;" {
		t.Errorf("SQL=%q", got)
	}

	stmt, rem, err = db.Prepare("  -- nothing\n")
	if err != nil {
		t.Fatal(err)
	}
	if stmt != nil || rem != "" {
		t.Errorf("comment-only Prepare = %v, %q", stmt, rem)
	}
}

func TestErrors(t *testing.T) {
	db := openTestDB(t)
	if _, _, err := db.Prepare("SELEKT 1;"); !errors.Is(err, sqliteh.ErrCode(sqliteh.SQLITE_ERROR)) {
		t.Errorf("syntax error: %v", err)
	} else if db.ErrMsg() == "" {
		t.Error("missing ErrMsg")
	}

	exec(t, db, "CREATE TABLE u (id INTEGER PRIMARY KEY, v TEXT UNIQUE);")
	exec(t, db, "INSERT INTO u (v) VALUES ('a');")
	stmt := prepare(t, db, "INSERT INTO u (v) VALUES ('a');")
	defer stmt.Finalize()
	_, err := stmt.Step()
	if !errors.Is(err, sqliteh.ErrCode(sqliteh.SQLITE_CONSTRAINT_UNIQUE)) {
		t.Errorf("duplicate insert: %v", err)
	}
	if got := db.ExtendedErrCode(); got != sqliteh.SQLITE_CONSTRAINT_UNIQUE {
		t.Errorf("ExtendedErrCode=%v", got)
	}

	if err := stmt.BindInt64(1, 1); !errors.Is(err, sqliteh.ErrCode(sqliteh.SQLITE_MISUSE)) {
		t.Errorf("bind without reset: %v", err)
	}
	stmt.Reset()
	if err := stmt.BindInt64(9, 1); !errors.Is(err, sqliteh.ErrCode(sqliteh.SQLITE_RANGE)) {
		t.Errorf("out of range bind: %v", err)
	}
}

func TestNamedParams(t *testing.T) {
	db := openTestDB(t)
	stmt := prepare(t, db, "SELECT :a, @b, $c;")
	defer stmt.Finalize()
	for i, name := range []string{":a", "@b", "$c"} {
		if got := stmt.BindParameterIndex(name); got != i+1 {
			t.Errorf("BindParameterIndex(%q)=%d, want %d", name, got, i+1)
		}
	}
	if got := stmt.BindParameterIndex(":missing"); got != 0 {
		t.Errorf("missing index=%d", got)
	}
}

func TestCloseWithOpenStmt(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), sqliteh.OpenFlagsDefault, "")
	if err != nil {
		t.Fatal(err)
	}
	stmt := prepare(t, db, "SELECT 1;")
	if err := db.Close(); err != nil {
		t.Fatal(err)
	}
	if db.tls == nil {
		t.Fatal("TLS released while a statement is open")
	}
	if err := stmt.Finalize(); err != nil {
		t.Fatal(err)
	}
	if db.tls != nil {
		t.Fatal("TLS not released after last finalize")
	}
}

func TestOpenError(t *testing.T) {
	dir := t.TempDir()
	db, err := Open(filepath.Join(dir, "missing", "x.db"), sqliteh.OpenFlagsReadOnly, "")
	if err == nil {
		t.Fatal("want error")
	}
	if db != nil {
		if db.ErrMsg() == "" {
			t.Error("missing ErrMsg")
		}
		db.Close()
	}
	if !errors.Is(err, sqliteh.ErrCode(sqliteh.SQLITE_CANTOPEN)) {
		t.Errorf("err=%v, want SQLITE_CANTOPEN", err)
	}
}

package sqdb

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sqdb-go/sqdb/internal/fakesqlite"
	"github.com/sqdb-go/sqdb/sqliteh"
)

func openFake(t *testing.T, e *fakesqlite.Engine, logger *slog.Logger) *DB {
	t.Helper()
	db, err := OpenOptions("fake.db", Options{Engine: e.Open, Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	return db
}

func TestRefCount(t *testing.T) {
	var r refCount
	r.acquire()
	a := r.share()
	b := a.share()
	if got := r.count(); got != 3 {
		t.Fatalf("count=%d, want 3", got)
	}
	if got := a.release(); got != 2 {
		t.Errorf("release=%d, want 2", got)
	}
	if a.count() != 0 {
		t.Error("released alias still holds the counter")
	}
	if got := r.release(); got != 1 {
		t.Errorf("release=%d, want 1", got)
	}
	if got := b.release(); got != 0 {
		t.Errorf("release=%d, want 0", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("release without a reference did not panic")
		}
	}()
	b.release()
}

func TestDBLifetime(t *testing.T) {
	e := fakesqlite.New()
	db := openFake(t, e, nil)
	aliases := []*DB{db.Clone(), db.Clone()}
	aliases = append(aliases, aliases[0].Clone())

	db.Close()
	for i, a := range aliases {
		if e.OpenConns() != 1 {
			t.Fatalf("before closing alias %d: %d open connections, want 1", i, e.OpenConns())
		}
		a.Close()
	}
	if e.OpenConns() != 0 {
		t.Errorf("%d open connections after the last Close", e.OpenConns())
	}
	if n := e.Count("open"); n != 1 {
		t.Errorf("engine opened %d times, want 1", n)
	}
	if n := e.Count("close"); n != 1 {
		t.Errorf("engine closed %d times, want 1", n)
	}

	// Closing again never reaches the engine.
	db.Close()
	aliases[0].Close()
	if n := e.Count("close"); n != 1 {
		t.Errorf("engine closed %d times after extra Close calls, want 1", n)
	}
}

func TestStmtLifetime(t *testing.T) {
	e := fakesqlite.New()
	db := openFake(t, e, nil)
	defer db.Close()

	s, err := db.Query("SELECT 1;")
	if err != nil {
		t.Fatal(err)
	}
	s2 := s.Clone()
	s3 := s2.Clone()
	s.Close()
	s2.Close()
	if e.LiveStmts() != 1 {
		t.Fatalf("%d live statements before the last Close, want 1", e.LiveStmts())
	}
	s3.Close()
	if e.LiveStmts() != 0 {
		t.Fatalf("%d live statements after the last Close", e.LiveStmts())
	}
	if n := e.Count("prepare"); n != 1 {
		t.Errorf("prepared %d times, want 1", n)
	}
	if n := e.Count("finalize"); n != 1 {
		t.Errorf("finalized %d times, want 1", n)
	}

	// A rejected query finalizes what it compiled.
	if _, err := db.Query("SELECT 1; SELECT 2;"); err == nil {
		t.Fatal("trailing text accepted")
	}
	if e.LiveStmts() != 0 {
		t.Errorf("%d live statements after a trailing text error", e.LiveStmts())
	}
}

func TestResetCalls(t *testing.T) {
	e := fakesqlite.New()
	e.Results["SELECT ?;"] = [][]any{{int64(1)}, {int64(2)}}
	db := openFake(t, e, nil)
	defer db.Close()
	s, err := db.Query("SELECT ?;")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	step := func(t *testing.T) {
		t.Helper()
		e.ClearLog()
		if _, err := s.Next(); err != nil {
			t.Fatal(err)
		}
	}
	bind := func(t *testing.T, want ...string) {
		t.Helper()
		e.ClearLog()
		if err := s.BindInt64(1, 7); err != nil {
			t.Fatal(err)
		}
		if diff := cmp.Diff(want, e.Log); diff != "" {
			t.Errorf("engine calls (-want +got):\n%s", diff)
		}
	}

	// Fresh: no reset before a bind, nor on an explicit Reset.
	bind(t, "bind_int64 1")
	e.ClearLog()
	if err := s.Reset(); err != nil {
		t.Fatal(err)
	}
	if len(e.Log) != 0 {
		t.Errorf("Reset of a fresh statement called %v", e.Log)
	}

	// Stepped: exactly one reset before the bind, then none.
	step(t)
	step(t)
	bind(t, "reset", "bind_int64 1")
	bind(t, "bind_int64 1")

	// Every other bind resets too.
	step(t)
	e.ClearLog()
	if err := s.BindNull(1); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"reset", "bind_null 1"}, e.Log); diff != "" {
		t.Errorf("engine calls (-want +got):\n%s", diff)
	}
	step(t)
	e.ClearLog()
	if err := s.ClearBindings(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"reset", "clear_bindings"}, e.Log); diff != "" {
		t.Errorf("engine calls (-want +got):\n%s", diff)
	}

	// A Bind that never reaches the engine still resets.
	step(t)
	e.ClearLog()
	if err := s.Bind(1, uint64(1)); err == nil {
		t.Fatal("uint64 bound")
	}
	if diff := cmp.Diff([]string{"reset"}, e.Log); diff != "" {
		t.Errorf("engine calls (-want +got):\n%s", diff)
	}
	if s.Stepped() {
		t.Error("Stepped after a rejected Bind")
	}
}

func TestEngineBindError(t *testing.T) {
	e := fakesqlite.New()
	e.BindErr[1] = sqliteh.SQLITE_TOOBIG
	db := openFake(t, e, nil)
	defer db.Close()
	s, err := db.Query("SELECT ?, ?;")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	err = s.BindText(1, "huge")
	e2 := asError(t, err)
	if e2.Kind != BindError || e2.Code != sqliteh.SQLITE_TOOBIG {
		t.Errorf("err=%v, want BindError SQLITE_TOOBIG", err)
	}
	if e2.Msg != "fake: bind rejected" {
		t.Errorf("Msg=%q", e2.Msg)
	}
	if s.Stepped() {
		t.Error("failed bind left the statement stepped")
	}
	if err := s.BindText(2, "ok"); err != nil {
		t.Errorf("bind after a failed bind: %v", err)
	}
}

func TestStepError(t *testing.T) {
	e := fakesqlite.New()
	e.Results["SELECT 1;"] = [][]any{{int64(1)}}
	e.StepErr["SELECT 1;"] = sqliteh.SQLITE_BUSY
	db := openFake(t, e, nil)
	defer db.Close()
	s, err := db.Query("SELECT 1;")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	row, err := s.Next()
	if err != nil || !row {
		t.Fatalf("first Next=%v, %v", row, err)
	}
	row, err = s.Next()
	if row || err == nil {
		t.Fatalf("second Next=%v, %v; want an error", row, err)
	}
	if e2 := asError(t, err); e2.Kind != StepError || !errors.Is(err, sqliteh.ErrCode(sqliteh.SQLITE_BUSY)) {
		t.Errorf("err=%v, want StepError SQLITE_BUSY", err)
	}

	// A bind after the failure resets and the statement runs again.
	delete(e.StepErr, "SELECT 1;")
	if err := s.ClearBindings(); err != nil {
		t.Fatal(err)
	}
	row, err = s.Next()
	if err != nil || !row {
		t.Fatalf("Next after reset=%v, %v", row, err)
	}
}

func TestOpenFailure(t *testing.T) {
	e := fakesqlite.New()
	e.OpenErr = sqliteh.SQLITE_CANTOPEN
	_, err := OpenOptions("fake.db", Options{Engine: e.Open})
	if err == nil {
		t.Fatal("open succeeded")
	}
	e2 := asError(t, err)
	if e2.Kind != ConnectionError || e2.Code != sqliteh.SQLITE_CANTOPEN {
		t.Errorf("err=%v, want ConnectionError SQLITE_CANTOPEN", err)
	}
	if e2.Msg != "fake: unable to open database file" {
		t.Errorf("Msg=%q", e2.Msg)
	}
	if e.OpenConns() != 0 {
		t.Errorf("failed open leaked %d connections", e.OpenConns())
	}
}

func TestOpenBusyTimeout(t *testing.T) {
	e := fakesqlite.New()
	db, err := OpenOptions("fake.db", Options{Engine: e.Open, BusyTimeout: 1500 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
	if diff := cmp.Diff([]string{"open fake.db", "busy_timeout 1.5s", "close"}, e.Log); diff != "" {
		t.Errorf("engine calls (-want +got):\n%s", diff)
	}
}

func TestTeardownLogging(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	e := fakesqlite.New()
	e.CloseErr = sqliteh.SQLITE_BUSY
	db := openFake(t, e, logger)
	s, err := db.Query("SELECT 1;")
	if err != nil {
		t.Fatal(err)
	}
	s.Close()
	db.Close()

	out := buf.String()
	for _, want := range []string{
		`level=INFO msg="sqdb connection opened" path=fake.db`,
		`level=DEBUG msg="sqdb statement finalized"`,
		`level=WARN msg="sqdb connection close failed" path=fake.db`,
		`error=SQLITE_BUSY`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, `msg="sqdb connection closed"`) {
		t.Errorf("failed close logged as closed:\n%s", out)
	}
}

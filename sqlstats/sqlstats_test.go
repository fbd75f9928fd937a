package sqlstats

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sqdb-go/sqdb"
	"github.com/sqdb-go/sqdb/sqliteh"
)

func openTestDB(t *testing.T, tracer *Tracer) *sqdb.DB {
	t.Helper()
	db, err := sqdb.OpenOptions("file:"+t.TempDir()+"/test.db", sqdb.Options{Tracer: tracer})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(db.Close)
	return db
}

func get(t *testing.T, h http.HandlerFunc, query string) string {
	t.Helper()
	srv := httptest.NewServer(h)
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL + query)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %q: %s: %s", query, resp.Status, b)
	}
	return string(b)
}

func TestHandle(t *testing.T) {
	tracer := &Tracer{}
	db := openTestDB(t, tracer)

	if err := db.BeginTransaction(); err != nil {
		t.Fatal(err)
	}
	if err := db.Exec("CREATE TABLE t (c);"); err != nil {
		t.Fatal(err)
	}
	if err := db.Exec("INSERT INTO t (c) VALUES (?);", 1); err != nil {
		t.Fatal(err)
	}
	if err := db.CommitTransaction(); err != nil {
		t.Fatal(err)
	}

	for _, sort := range []string{"", "?sort=query", "?sort=mean"} {
		s := get(t, tracer.Handle, sort)
		if want := "CREATE TABLE t "; !strings.Contains(s, want) {
			t.Fatalf("want %q, got:\n%s", want, s)
		}
		if want := "INSERT INTO t (c)"; !strings.Contains(s, want) {
			t.Fatalf("want %q, got:\n%s", want, s)
		}
	}
}

func TestHandleBadSort(t *testing.T) {
	tracer := &Tracer{}
	rec := httptest.NewRecorder()
	tracer.Handle(rec, httptest.NewRequest("GET", "/?sort=bogus", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status=%d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestStats(t *testing.T) {
	tracer := &Tracer{}
	db := openTestDB(t, tracer)

	if err := db.BeginTransaction(); err != nil {
		t.Fatal(err)
	}
	if err := db.Exec("CREATE TABLE t (c);"); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		if err := db.Exec("INSERT INTO t (c) VALUES (?);", i); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.CommitTransaction(); err != nil {
		t.Fatal(err)
	}
	if err := db.Exec("INSERT INTO nope VALUES (1);"); err == nil {
		t.Fatal("insert into missing table succeeded")
	}

	type count struct {
		Query         string
		Count, Errors int64
	}
	var got []count
	for _, s := range tracer.Stats() {
		got = append(got, count{s.Query, s.Count, s.Errors})
	}
	want := []count{
		{"INSERT INTO t (c) VALUES (?);", 2, 0},
		{"BEGIN;", 1, 0},
		{"COMMIT;", 1, 0},
		{"CREATE TABLE t (c);", 1, 0},
		{"INSERT INTO nope VALUES (1);", 1, 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Stats() mismatch (-want +got):\n%s", diff)
	}

	tracer.Reset()
	if got := tracer.Stats(); len(got) != 0 {
		t.Errorf("after Reset, %d queries remain", len(got))
	}
}

func TestActiveTxs(t *testing.T) {
	tracer := &Tracer{}
	db1 := openTestDB(t, tracer)
	db2, err := sqdb.OpenOptions(db1.Filename(), sqdb.Options{Tracer: tracer})
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()

	if err := db1.BeginTransaction(); err != nil {
		t.Fatal(err)
	}
	if err := db2.BeginTransaction(); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]sqliteh.TraceConnID{db1.ID(), db2.ID()}, tracer.ActiveTxs()); diff != "" {
		t.Errorf("ActiveTxs mismatch (-want +got):\n%s", diff)
	}
	if err := db2.RollbackTransaction(); err != nil {
		t.Fatal(err)
	}

	s := get(t, tracer.HandleTxs, "")
	if want := "active transactions (1):"; !strings.Contains(s, want) {
		t.Fatalf("want %q, got:\n%s", want, s)
	}
	if want := fmt.Sprintf("conn %d", db1.ID()); !strings.Contains(s, want) {
		t.Fatalf("want %q, got:\n%s", want, s)
	}
	if want := "begun 2, committed 0, rolled back 1, failed 0"; !strings.Contains(s, want) {
		t.Fatalf("want %q, got:\n%s", want, s)
	}

	if err := db1.CommitTransaction(); err != nil {
		t.Fatal(err)
	}
	if got := tracer.ActiveTxs(); len(got) != 0 {
		t.Errorf("ActiveTxs after commit = %v, want none", got)
	}
}

func TestTracerResetRace(t *testing.T) {
	tracer := &Tracer{}
	deadline := time.Now().Add(200 * time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for time.Now().Before(deadline) {
			tracer.Reset()
		}
	}()
	for i := 0; i < 2; i++ {
		i := i
		go func() {
			defer wg.Done()
			id := sqliteh.TraceConnID(i + 1)
			for n := 0; time.Now().Before(deadline); n++ {
				tracer.BeginTx(id, nil)
				tracer.Query(id, fmt.Sprintf("SELECT %d;", n%10), time.Millisecond, nil)
				tracer.Commit(id, nil)
				tracer.Stats()
			}
		}()
	}
	wg.Wait()
}

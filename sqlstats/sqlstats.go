// Package sqlstats implements an sqliteh.Tracer that collects query stats
// and tracks open transactions.
package sqlstats

import (
	"fmt"
	"html"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sqdb-go/sqdb/sqliteh"
)

// Tracer implements sqliteh.Tracer and collects query stats.
//
// To use, set it as sqdb.Options.Tracer, then start a debug web server
// with http.HandlerFunc(tracer.Handle) and http.HandlerFunc(tracer.HandleTxs).
type Tracer struct {
	// Once a query has been seen once, only the read lock
	// is required to update stats.
	mu      sync.RWMutex
	queries map[string]*queryStats // query -> stats

	curTxs sync.Map // sqliteh.TraceConnID -> *txStats
	txs    struct {
		begun, committed, rolledBack, failed atomic.Int64
	}
}

type queryStats struct {
	query string

	// When inside the queries map all fields must be accessed as atomics.
	count    int64
	errors   int64
	duration int64 // time.Duration
	mean     int64
}

type txStats struct {
	id    sqliteh.TraceConnID
	start time.Time
}

// QueryStats is a snapshot of the stats for one query.
type QueryStats struct {
	Query    string
	Count    int64
	Errors   int64
	Duration time.Duration
	Mean     time.Duration
}

func (t *Tracer) queryStats(query string) *queryStats {
	t.mu.RLock()
	stats := t.queries[query]
	t.mu.RUnlock()

	if stats != nil {
		return stats
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.queries == nil {
		t.queries = make(map[string]*queryStats)
	}
	stats = t.queries[query]
	if stats == nil {
		stats = &queryStats{query: query}
		t.queries[query] = stats
	}
	return stats
}

// Stats returns a snapshot of every query seen, most frequent first.
func (t *Tracer) Stats() []QueryStats {
	rows := t.collect()
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].query < rows[j].query
	})
	out := make([]QueryStats, len(rows))
	for i, r := range rows {
		out[i] = QueryStats{
			Query:    r.query,
			Count:    r.count,
			Errors:   r.errors,
			Duration: time.Duration(r.duration),
			Mean:     time.Duration(r.mean),
		}
	}
	return out
}

// Reset forgets all collected query stats.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.queries = nil
}

func (t *Tracer) collect() (rows []queryStats) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for query, s := range t.queries {
		row := queryStats{
			query:    query,
			count:    atomic.LoadInt64(&s.count),
			errors:   atomic.LoadInt64(&s.errors),
			duration: atomic.LoadInt64(&s.duration),
		}
		if row.count > 0 {
			row.mean = row.duration / row.count
		}
		rows = append(rows, row)
	}
	return rows
}

func (t *Tracer) Query(id sqliteh.TraceConnID, query string, duration time.Duration, err error) {
	stats := t.queryStats(query)

	atomic.AddInt64(&stats.count, 1)
	atomic.AddInt64(&stats.duration, int64(duration))
	if err != nil {
		atomic.AddInt64(&stats.errors, 1)
	}
}

func (t *Tracer) BeginTx(id sqliteh.TraceConnID, err error) {
	if err != nil {
		// Not actually in a tx.
		t.txs.failed.Add(1)
		return
	}
	t.txs.begun.Add(1)
	t.curTxs.Store(id, &txStats{id: id, start: time.Now()})
}

func (t *Tracer) Commit(id sqliteh.TraceConnID, err error) {
	t.txEnd(id, err, &t.txs.committed)
}

func (t *Tracer) Rollback(id sqliteh.TraceConnID, err error) {
	t.txEnd(id, err, &t.txs.rolledBack)
}

func (t *Tracer) txEnd(id sqliteh.TraceConnID, err error, counter *atomic.Int64) {
	if err != nil {
		t.txs.failed.Add(1)
		return
	}
	// A COMMIT or ROLLBACK may end a tx begun with ExecScript, which the
	// tracer never saw start.
	t.curTxs.Delete(id)
	counter.Add(1)
}

// ActiveTxs reports the connections with an open transaction, oldest first.
func (t *Tracer) ActiveTxs() []sqliteh.TraceConnID {
	txs := t.activeTxs()
	ids := make([]sqliteh.TraceConnID, len(txs))
	for i, tx := range txs {
		ids[i] = tx.id
	}
	return ids
}

func (t *Tracer) activeTxs() []*txStats {
	var txs []*txStats
	t.curTxs.Range(func(_, value any) bool {
		txs = append(txs, value.(*txStats))
		return true
	})
	sort.Slice(txs, func(i, j int) bool { return txs[i].start.Before(txs[j].start) })
	return txs
}

// Handle serves an HTML table of query stats. The sort query parameter
// orders it by query, count, duration, mean or errors.
func (t *Tracer) Handle(w http.ResponseWriter, r *http.Request) {
	getArgs, _ := url.ParseQuery(r.URL.RawQuery)
	sortParam := strings.TrimSpace(getArgs.Get("sort"))
	rows := t.collect()

	switch sortParam {
	case "", "count":
		sort.Slice(rows, func(i, j int) bool { return rows[i].count > rows[j].count })
	case "query":
		sort.Slice(rows, func(i, j int) bool { return rows[i].query < rows[j].query })
	case "duration":
		sort.Slice(rows, func(i, j int) bool { return rows[i].duration > rows[j].duration })
	case "errors":
		sort.Slice(rows, func(i, j int) bool { return rows[i].errors > rows[j].errors })
	case "mean":
		sort.Slice(rows, func(i, j int) bool { return rows[i].mean > rows[j].mean })
	default:
		http.Error(w, fmt.Sprintf("unknown sort: %q", sortParam), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `<!DOCTYPE html><html><body>
	<p>Trace of SQLite queries run via sqdb.</p>
	<table border="1">
	<tr>
	<th><a href="?sort=query">Query</a></th>
	<th><a href="?sort=count">Count</a></th>
	<th><a href="?sort=duration">Duration</a></th>
	<th><a href="?sort=mean">Mean</a></th>
	<th><a href="?sort=errors">Errors</a></th>
	</tr>
	`)
	for _, row := range rows {
		fmt.Fprintf(w, "<tr><td>%s</td><td>%d</td><td>%s</td><td>%s</td><td>%d</td></tr>\n",
			html.EscapeString(row.query),
			row.count,
			time.Duration(row.duration).Round(time.Millisecond),
			time.Duration(row.mean).Round(time.Microsecond),
			row.errors,
		)
	}
	fmt.Fprintf(w, "</table></body></html>")
}

// HandleTxs serves the list of open transactions and transaction counts.
func (t *Tracer) HandleTxs(w http.ResponseWriter, r *http.Request) {
	txs := t.activeTxs()

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, "<html><head><title>sqdb active transactions</title></head><body><pre>\n")
	fmt.Fprintf(w, "begun %d, committed %d, rolled back %d, failed %d\n",
		t.txs.begun.Load(), t.txs.committed.Load(), t.txs.rolledBack.Load(), t.txs.failed.Load())
	fmt.Fprintf(w, "sqdb active transactions (%d):", len(txs))
	now := time.Now()
	for _, tx := range txs {
		fmt.Fprintf(w, "\n\tconn %d\t%v", tx.id, now.Sub(tx.start).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "\n</pre></body></html>")
}

var _ sqliteh.Tracer = (*Tracer)(nil)

package sqdb

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sqdb-go/sqdb/sqliteh"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sqdb.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadOptions(t *testing.T) {
	path := writeConfig(t, `
read_only: true
vfs: unix-none
busy_timeout: 2500ms
pragmas:
  - PRAGMA foreign_keys=ON
  - PRAGMA cache_size=-2000
`)
	opts, err := LoadOptions(path)
	require.NoError(t, err)
	require.True(t, opts.ReadOnly)
	require.Equal(t, "unix-none", opts.VFS)
	require.Equal(t, 2500*time.Millisecond, opts.BusyTimeout)
	require.Equal(t, []string{"PRAGMA foreign_keys=ON", "PRAGMA cache_size=-2000"}, opts.Pragmas)
	require.Equal(t, sqliteh.OpenFlagsReadOnly, opts.flags())
}

func TestLoadOptionsErrors(t *testing.T) {
	_, err := LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
	require.ErrorContains(t, err, "sqdb.LoadOptions")

	_, err = LoadOptions(writeConfig(t, "busy_timeout: soon\n"))
	require.ErrorContains(t, err, "sqdb.LoadOptions")

	_, err = LoadOptions(writeConfig(t, "pragmas: [unclosed\n"))
	require.Error(t, err)
}

func TestOptionsDefaults(t *testing.T) {
	var opts Options
	require.Equal(t, sqliteh.OpenFlagsDefault, opts.flags())
	require.NotNil(t, opts.logger())
	require.NotNil(t, opts.engine())

	opts = Options{Flags: sqliteh.SQLITE_OPEN_READWRITE, ReadOnly: true}
	require.Equal(t, sqliteh.SQLITE_OPEN_READWRITE, opts.flags())
}

func TestLoadedOptionsOpen(t *testing.T) {
	opts, err := LoadOptions(writeConfig(t, `
busy_timeout: 1s
pragmas:
  - PRAGMA foreign_keys=ON
`))
	require.NoError(t, err)

	db := openTestDBOptions(t, opts)
	require.Equal(t, int64(1), queryInt(t, db, "PRAGMA foreign_keys;"))

	exec(t, db, "CREATE TABLE parent (id INTEGER PRIMARY KEY);")
	exec(t, db, "CREATE TABLE child (parent INTEGER REFERENCES parent(id));")
	err = db.Exec("INSERT INTO child VALUES (?);", 9)
	require.ErrorIs(t, err, sqliteh.ErrCode(sqliteh.SQLITE_CONSTRAINT))

	ro, err := OpenOptions(db.Filename(), Options{ReadOnly: true})
	require.NoError(t, err)
	defer ro.Close()
	err = ro.Exec("INSERT INTO parent VALUES (1);")
	require.ErrorIs(t, err, sqliteh.ErrCode(sqliteh.SQLITE_READONLY))
}

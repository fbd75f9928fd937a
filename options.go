package sqdb

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/sqdb-go/sqdb/sqliteh"
	"gopkg.in/yaml.v3"
)

// Options configures OpenOptions. The zero value opens a read-write
// database, creating it if needed, with no busy timeout and no logging.
type Options struct {
	// Flags are passed to the engine. Zero means sqliteh.OpenFlagsDefault,
	// or sqliteh.OpenFlagsReadOnly when ReadOnly is set.
	Flags sqliteh.OpenFlags `yaml:"-"`

	// ReadOnly opens an existing database without write access.
	// It is ignored when Flags is set.
	ReadOnly bool `yaml:"read_only"`

	// VFS names the engine VFS module. Empty uses the default.
	VFS string `yaml:"vfs"`

	// BusyTimeout is how long a statement waits on a locked database
	// before failing with SQLITE_BUSY. Zero fails immediately.
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// Pragmas are executed in order right after the connection opens,
	// for example "PRAGMA journal_mode=WAL".
	Pragmas []string `yaml:"pragmas"`

	// Logger receives connection lifecycle messages and teardown
	// failures. If nil, a no-op logger is used.
	Logger *slog.Logger `yaml:"-"`

	// Tracer, if set, is told about every query run and transaction.
	Tracer sqliteh.Tracer `yaml:"-"`

	// Engine opens the underlying connection. Nil uses DefaultEngine.
	Engine sqliteh.OpenFunc `yaml:"-"`

	// OnConnect is called after the pragmas are applied. If it returns
	// an error the connection is closed and OpenOptions fails.
	OnConnect func(*DB) error `yaml:"-"`
}

// LoadOptions reads the file-friendly subset of Options from a YAML
// file: vfs, read_only, busy_timeout (a Go duration such as "5s") and
// pragmas.
func LoadOptions(path string) (Options, error) {
	var opts Options
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, fmt.Errorf("sqdb.LoadOptions: %w", err)
	}
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("sqdb.LoadOptions: %s: %w", path, err)
	}
	return opts, nil
}

func (o *Options) flags() sqliteh.OpenFlags {
	switch {
	case o.Flags != 0:
		return o.Flags
	case o.ReadOnly:
		return sqliteh.OpenFlagsReadOnly
	default:
		return sqliteh.OpenFlagsDefault
	}
}

func (o *Options) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return o.Logger
}

func (o *Options) engine() sqliteh.OpenFunc {
	if o.Engine == nil {
		return DefaultEngine
	}
	return o.Engine
}

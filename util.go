package sqdb

import (
	"fmt"
	"strings"

	"github.com/sqdb-go/sqdb/sqlfmt"
)

type schemaEntry struct {
	name, typ, sql string
}

// schema lists the entries of schemaName's sqlite_schema table.
func (db *DB) schema(schemaName string) ([]schemaEntry, error) {
	s, err := db.Query(sqlfmt.Format(`SELECT name, type, sql FROM "%w".sqlite_schema;`, schemaName))
	if err != nil {
		return nil, err
	}
	defer s.Close()
	var entries []schemaEntry
	for {
		row, err := s.Next()
		if err != nil {
			return nil, err
		}
		if !row {
			return entries, nil
		}
		entries = append(entries, schemaEntry{
			name: s.Field(0).String(),
			typ:  s.Field(1).String(),
			sql:  s.Field(2).String(),
		})
	}
}

// DropAll deletes all the data from a database.
//
// The schemaName parameter follows the SQLite PRAGMA schema-name conventions:
// https://sqlite.org/pragma.html#syntax
func (db *DB) DropAll(schemaName string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqdb.DropAll: %w", err)
		}
	}()

	if schemaName == "" {
		schemaName = "main"
	}

	entries, err := db.schema(schemaName)
	if err != nil {
		return err
	}
	var indexes, tables, triggers, views []string
	for _, e := range entries {
		if strings.HasPrefix(e.name, "sqlite_") {
			continue
		}
		switch e.typ {
		case "index":
			indexes = append(indexes, e.name)
		case "table":
			tables = append(tables, e.name)
		case "trigger":
			triggers = append(triggers, e.name)
		case "view":
			views = append(views, e.name)
		default:
			return fmt.Errorf("unknown sqlite schema type %q for %q", e.typ, e.name)
		}
	}

	drop := func(kind string, names []string) error {
		for _, name := range names {
			if err := db.Exec(sqlfmt.Format(`DROP %s "%w"."%w";`, kind, schemaName, name)); err != nil {
				return err
			}
		}
		return nil
	}
	if err := drop("INDEX", indexes); err != nil {
		return err
	}
	if err := drop("TRIGGER", triggers); err != nil {
		return err
	}
	if err := drop("VIEW", views); err != nil {
		return err
	}
	return drop("TABLE", tables)
}

// CopyAll copies the contents of one database to another.
//
// Traditionally this is done in sqlite by closing the database and copying
// the file. However it can be useful to do it online: a single exclusive
// transaction can cross multiple databases, and if multiple processes are
// using a file, this lets one replace the database without first
// communicating with the other processes, asking them to close the DB first.
//
// The dstSchemaName and srcSchemaName parameters follow the SQLite PRAGMA
// schema-name conventions: https://sqlite.org/pragma.html#syntax
func (db *DB) CopyAll(dstSchemaName, srcSchemaName string) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("sqdb.CopyAll: %w", err)
		}
	}()
	if dstSchemaName == "" {
		dstSchemaName = "main"
	}
	if srcSchemaName == "" {
		srcSchemaName = "main"
	}
	if dstSchemaName == srcSchemaName {
		return fmt.Errorf("source matches destination: %q", srcSchemaName)
	}
	entries, err := db.schema(srcSchemaName)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.sql == "" || strings.HasPrefix(e.name, "sqlite_") {
			continue
		}
		// Regardless of the case or whitespace used in the original
		// create statement (or whether or not "if not exists" is used),
		// the SQL text in the sqlite_schema table always reads:
		// 	"CREATE [UNIQUE] (TABLE|VIEW|INDEX|TRIGGER) name".
		// We take advantage of that here to rewrite the create
		// statement for a different schema.
		var prefix string
		switch e.typ {
		case "index":
			prefix = "CREATE INDEX "
			if strings.HasPrefix(e.sql, "CREATE UNIQUE INDEX ") {
				prefix = "CREATE UNIQUE INDEX "
			}
		case "table":
			if strings.HasPrefix(e.sql, "CREATE VIRTUAL TABLE ") {
				return fmt.Errorf("cannot copy virtual table %q", e.name)
			}
			prefix = "CREATE TABLE "
		case "trigger":
			prefix = "CREATE TRIGGER "
		case "view":
			prefix = "CREATE VIEW "
		default:
			return fmt.Errorf("unknown sqlite schema type %q for %q", e.typ, e.name)
		}
		rest := strings.TrimPrefix(e.sql, prefix)
		if err := db.Exec(sqlfmt.Format(`%s"%w".%s`, prefix, dstSchemaName, rest)); err != nil {
			return err
		}
		if e.typ == "table" {
			q := sqlfmt.Format(`INSERT INTO "%w"."%w" SELECT * FROM "%w"."%w";`, dstSchemaName, e.name, srcSchemaName, e.name)
			if err := db.Exec(q); err != nil {
				return err
			}
		}
	}
	return nil
}

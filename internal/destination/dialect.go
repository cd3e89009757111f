package destination

import (
	"fmt"
	"strings"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// Dialect renders the SQL a destination needs.
type Dialect interface {
	Quote(ident string) string
	// Placeholder returns the bind parameter for the i-th argument (1-based).
	Placeholder(i int) string
	ColumnType(c models.Column) string
	// CreateSchema returns "" when the database has no schemas.
	CreateSchema(dataset string) string
	TableName(dataset, table string) string
	CreateTable(name string, t *models.TableSchema) string
	AddColumn(name string, c models.Column) string
	Upsert(name string, t *models.TableSchema) string
}

// storedDataType maps a database type name reported by a driver to the
// data type it stores. Unknown names report false.
func storedDataType(dbType string) (models.DataType, bool) {
	name := strings.ToUpper(strings.TrimSpace(dbType))
	if i := strings.IndexByte(name, '('); i >= 0 {
		name = name[:i]
	}
	switch name {
	case "BIGINT", "INTEGER", "INT", "INT8", "INT4", "INT2", "SMALLINT", "TINYINT", "HUGEINT":
		return models.BigInt, true
	case "DOUBLE", "DOUBLE PRECISION", "REAL", "FLOAT", "FLOAT4", "FLOAT8":
		return models.Double, true
	case "BOOLEAN", "BOOL", "BIT":
		return models.Bool, true
	case "TEXT", "VARCHAR", "NVARCHAR", "CHAR", "NCHAR", "JSON", "JSONB":
		return models.Text, true
	}
	return "", false
}

// holds reports whether a column of type stored keeps values of type
// incoming without loss.
func holds(stored, incoming models.DataType) bool {
	switch {
	case stored == incoming:
		return true
	case stored == models.Text:
		return true
	case stored == models.Double && incoming == models.BigInt:
		return true
	}
	return false
}

func quoteWith(ident, open, close string) string {
	return open + strings.ReplaceAll(ident, close, close+close) + close
}

func columnDefs(d Dialect, t *models.TableSchema) string {
	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		def := d.Quote(c.Name) + " " + d.ColumnType(c)
		if c.PrimaryKey {
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	if t.IsMerge() {
		defs = append(defs, "PRIMARY KEY ("+quoteAll(d, t.PrimaryKey)+")")
	}
	return strings.Join(defs, ", ")
}

func quoteAll(d Dialect, names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.Quote(n)
	}
	return strings.Join(out, ", ")
}

func placeholders(d Dialect, n int) string {
	out := make([]string, n)
	for i := range out {
		out[i] = d.Placeholder(i + 1)
	}
	return strings.Join(out, ", ")
}

// InsertStatement renders a single-row INSERT over all columns of t.
func InsertStatement(d Dialect, name string, t *models.TableSchema) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, quoteAll(d, t.ColumnNames()), placeholders(d, len(t.Columns)))
}

// onConflictUpsert renders INSERT ... ON CONFLICT DO UPDATE, shared by
// DuckDB, SQLite and Postgres.
func onConflictUpsert(d Dialect, name string, t *models.TableSchema) string {
	var sets []string
	for _, c := range t.Columns {
		if c.PrimaryKey {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = excluded.%s", d.Quote(c.Name), d.Quote(c.Name)))
	}
	action := "DO NOTHING"
	if len(sets) > 0 {
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("%s ON CONFLICT (%s) %s", InsertStatement(d, name, t), quoteAll(d, t.PrimaryKey), action)
}

package destination

import (
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// SQLite has no schemas, so tables are prefixed with the dataset name.
type SQLite struct{}

func (SQLite) Quote(ident string) string { return quoteWith(ident, `"`, `"`) }

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) ColumnType(c models.Column) string {
	switch c.Type {
	case models.BigInt:
		return "INTEGER"
	case models.Double:
		return "REAL"
	case models.Bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (SQLite) CreateSchema(string) string { return "" }

func (s SQLite) TableName(dataset, table string) string {
	return s.Quote(dataset + "__" + table)
}

func (s SQLite) CreateTable(name string, t *models.TableSchema) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, columnDefs(s, t))
}

func (s SQLite) AddColumn(name string, c models.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", name, s.Quote(c.Name), s.ColumnType(c))
}

func (s SQLite) Upsert(name string, t *models.TableSchema) string {
	return onConflictUpsert(s, name, t)
}

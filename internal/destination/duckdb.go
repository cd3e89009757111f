package destination

import (
	"fmt"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// DuckDB keeps each dataset in its own schema of a local database file.
type DuckDB struct{}

func (DuckDB) Quote(ident string) string { return quoteWith(ident, `"`, `"`) }

func (DuckDB) Placeholder(int) string { return "?" }

func (DuckDB) ColumnType(c models.Column) string {
	switch c.Type {
	case models.BigInt:
		return "BIGINT"
	case models.Double:
		return "DOUBLE"
	case models.Bool:
		return "BOOLEAN"
	default:
		return "VARCHAR"
	}
}

func (d DuckDB) CreateSchema(dataset string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + d.Quote(dataset)
}

func (d DuckDB) TableName(dataset, table string) string {
	return d.Quote(dataset) + "." + d.Quote(table)
}

func (d DuckDB) CreateTable(name string, t *models.TableSchema) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, columnDefs(d, t))
}

func (d DuckDB) AddColumn(name string, c models.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", name, d.Quote(c.Name), d.ColumnType(c))
}

func (d DuckDB) Upsert(name string, t *models.TableSchema) string {
	return onConflictUpsert(d, name, t)
}

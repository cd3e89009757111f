package destination

import (
	"fmt"
	"strconv"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

type Postgres struct{}

func (Postgres) Quote(ident string) string { return quoteWith(ident, `"`, `"`) }

func (Postgres) Placeholder(i int) string { return "$" + strconv.Itoa(i) }

// ColumnType maps JSON to TEXT; values arrive already serialized.
func (Postgres) ColumnType(c models.Column) string {
	switch c.Type {
	case models.BigInt:
		return "BIGINT"
	case models.Double:
		return "DOUBLE PRECISION"
	case models.Bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (p Postgres) CreateSchema(dataset string) string {
	return "CREATE SCHEMA IF NOT EXISTS " + p.Quote(dataset)
}

func (p Postgres) TableName(dataset, table string) string {
	return p.Quote(dataset) + "." + p.Quote(table)
}

func (p Postgres) CreateTable(name string, t *models.TableSchema) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", name, columnDefs(p, t))
}

func (p Postgres) AddColumn(name string, c models.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s %s", name, p.Quote(c.Name), p.ColumnType(c))
}

func (p Postgres) Upsert(name string, t *models.TableSchema) string {
	return onConflictUpsert(p, name, t)
}

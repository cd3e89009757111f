package destination

import (
	"fmt"
	"strconv"
	"strings"

	_ "github.com/microsoft/go-mssqldb"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// MSSQL upserts with MERGE since SQL Server has no ON CONFLICT clause.
type MSSQL struct{}

func (MSSQL) Quote(ident string) string { return quoteWith(ident, "[", "]") }

func (MSSQL) Placeholder(i int) string { return "@p" + strconv.Itoa(i) }

func (MSSQL) ColumnType(c models.Column) string {
	switch c.Type {
	case models.BigInt:
		return "BIGINT"
	case models.Double:
		return "FLOAT"
	case models.Bool:
		return "BIT"
	default:
		// Key columns must fit in an index entry.
		if c.PrimaryKey {
			return "NVARCHAR(450)"
		}
		return "NVARCHAR(MAX)"
	}
}

func (m MSSQL) CreateSchema(dataset string) string {
	lit := strings.ReplaceAll(dataset, "'", "''")
	return fmt.Sprintf("IF SCHEMA_ID(N'%s') IS NULL EXEC('CREATE SCHEMA %s')",
		lit, strings.ReplaceAll(m.Quote(dataset), "'", "''"))
}

func (m MSSQL) TableName(dataset, table string) string {
	return m.Quote(dataset) + "." + m.Quote(table)
}

func (m MSSQL) CreateTable(name string, t *models.TableSchema) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s (%s)",
		strings.ReplaceAll(name, "'", "''"), name, columnDefs(m, t))
}

func (m MSSQL) AddColumn(name string, c models.Column) string {
	return fmt.Sprintf("ALTER TABLE %s ADD %s %s", name, m.Quote(c.Name), m.ColumnType(c))
}

func (m MSSQL) Upsert(name string, t *models.TableSchema) string {
	var sources, on, sets, cols, vals []string
	for i, c := range t.Columns {
		q := m.Quote(c.Name)
		sources = append(sources, fmt.Sprintf("%s AS %s", m.Placeholder(i+1), q))
		cols = append(cols, q)
		vals = append(vals, "source."+q)
		if c.PrimaryKey {
			on = append(on, fmt.Sprintf("target.%s = source.%s", q, q))
		} else {
			sets = append(sets, fmt.Sprintf("target.%s = source.%s", q, q))
		}
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS target USING (SELECT %s) AS source ON %s",
		name, strings.Join(sources, ", "), strings.Join(on, " AND "))
	if len(sets) > 0 {
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(sets, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(cols, ", "), strings.Join(vals, ", "))
	return b.String()
}

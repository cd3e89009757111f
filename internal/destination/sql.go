package destination

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/logger"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// SQLClient loads rows into a database/sql destination. Statements are
// rendered by the dialect; tables live in the dataset's schema.
type SQLClient struct {
	DB      *sql.DB
	Dialect Dialect
	Dataset string

	// mu serializes DDL; concurrent catalog changes conflict on embedded
	// databases.
	mu          sync.Mutex
	schemaReady bool
}

func NewSQLClient(db *sql.DB, dialect Dialect, dataset string) *SQLClient {
	return &SQLClient{DB: db, Dialect: dialect, Dataset: dataset}
}

func (c *SQLClient) tableName(t *models.TableSchema) string {
	return c.Dialect.TableName(c.Dataset, t.Name)
}

func (c *SQLClient) EnsureTable(ctx context.Context, t *models.TableSchema) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.schemaReady {
		if stmt := c.Dialect.CreateSchema(c.Dataset); stmt != "" {
			if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
				return errors.Wrapf(err, "creating dataset %q", c.Dataset)
			}
		}
		c.schemaReady = true
	}

	name := c.tableName(t)
	if _, err := c.DB.ExecContext(ctx, c.Dialect.CreateTable(name, t)); err != nil {
		return errors.Wrapf(err, "creating table %s", name)
	}

	existing, err := c.columns(ctx, name)
	if err != nil {
		return err
	}
	for i := range t.Columns {
		col := &t.Columns[i]
		dbType, ok := existing[strings.ToLower(col.Name)]
		if ok {
			if err := alignColumn(name, col, dbType); err != nil {
				return err
			}
			continue
		}
		if _, err := c.DB.ExecContext(ctx, c.Dialect.AddColumn(name, *col)); err != nil {
			return errors.Wrapf(err, "adding column %q to %s", col.Name, name)
		}
		logger.Infof("Added column %s (%s) to %s", col.Name, col.Type, name)
	}
	return nil
}

// columns returns the database type names of an existing table's columns,
// keyed by lower-cased column name. A type name is empty when the driver
// does not report it.
func (c *SQLClient) columns(ctx context.Context, name string) (map[string]string, error) {
	rows, err := c.DB.QueryContext(ctx, "SELECT * FROM "+name+" WHERE 1=0")
	if err != nil {
		return nil, errors.Wrapf(err, "reading columns of %s", name)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, errors.Wrapf(err, "reading columns of %s", name)
	}
	out := make(map[string]string, len(types))
	for _, ct := range types {
		out[strings.ToLower(ct.Name())] = ct.DatabaseTypeName()
	}
	return out, rows.Err()
}

// alignColumn switches col to the type already stored when that type can
// hold the incoming values, and fails when storing them would lose data.
func alignColumn(table string, col *models.Column, dbType string) error {
	stored, known := storedDataType(dbType)
	if !known || stored == col.Type {
		return nil
	}
	if !holds(stored, col.Type) {
		return errors.WithHintf(
			errors.Wrapf(ErrColumnTypeConflict, "%s.%s is %s but the data needs %s", table, col.Name, dbType, col.Type),
			"alter or drop column %s before loading", col.Name)
	}
	col.Type = stored
	return nil
}

func (c *SQLClient) Truncate(ctx context.Context, t *models.TableSchema) error {
	name := c.tableName(t)
	if _, err := c.DB.ExecContext(ctx, "DELETE FROM "+name); err != nil {
		return errors.Wrapf(err, "truncating %s", name)
	}
	return nil
}

// Load writes rows in one transaction, upserting by primary key for merge
// tables and inserting otherwise.
func (c *SQLClient) Load(ctx context.Context, t *models.TableSchema, rows []models.Record) error {
	if len(rows) == 0 {
		return nil
	}
	name := c.tableName(t)

	query := InsertStatement(c.Dialect, name, t)
	if t.IsMerge() {
		query = c.Dialect.Upsert(name, t)
	}

	tx, err := c.DB.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "starting transaction on %s", name)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return errors.Wrapf(err, "preparing write to %s", name)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for i, row := range rows {
		for j, col := range t.Columns {
			args[j] = row[col.Name]
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return errors.Wrapf(err, "writing row %d to %s", i, name)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "committing %s", name)
	}
	return nil
}

func (c *SQLClient) Close() error {
	return c.DB.Close()
}

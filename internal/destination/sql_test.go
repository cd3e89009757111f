package destination

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

func newMockClient(t *testing.T) (*SQLClient, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLClient(db, SQLite{}, "ds"), mock
}

func TestSQLClientEnsureTableAddsMissingColumns(t *testing.T) {
	c, mock := newMockClient(t)
	table := customersTable()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "ds__customers" ("id" TEXT NOT NULL, "name" TEXT, PRIMARY KEY ("id"))`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT * FROM "ds__customers" WHERE 1=0`).
		WillReturnRows(sqlmock.NewRows([]string{"ID"}))
	mock.ExpectExec(`ALTER TABLE "ds__customers" ADD COLUMN "name" TEXT`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, c.EnsureTable(context.Background(), table))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLClientLoadMerge(t *testing.T) {
	c, mock := newMockClient(t)
	table := customersTable()

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "ds__customers" ("id", "name") VALUES (?, ?) ON CONFLICT ("id") DO UPDATE SET "name" = excluded."name"`)
	prep.ExpectExec().WithArgs("c1", "Ann").WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WithArgs("c2", nil).WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	err := c.Load(context.Background(), table, []models.Record{
		{"id": "c1", "name": "Ann"},
		{"id": "c2"},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLClientLoadRollsBackOnError(t *testing.T) {
	c, mock := newMockClient(t)
	table := customersTable()
	table.WriteDisposition = models.Append

	mock.ExpectBegin()
	prep := mock.ExpectPrepare(`INSERT INTO "ds__customers" ("id", "name") VALUES (?, ?)`)
	prep.ExpectExec().WithArgs("c1", "Ann").WillReturnError(fmt.Errorf("constraint failed"))
	mock.ExpectRollback()

	err := c.Load(context.Background(), table, []models.Record{{"id": "c1", "name": "Ann"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "writing row 0")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLClientTruncate(t *testing.T) {
	c, mock := newMockClient(t)
	mock.ExpectExec(`DELETE FROM "ds__customers"`).WillReturnResult(sqlmock.NewResult(0, 3))

	require.NoError(t, c.Truncate(context.Background(), customersTable()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLClientLoadNothing(t *testing.T) {
	c, mock := newMockClient(t)
	require.NoError(t, c.Load(context.Background(), customersTable(), nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func openSQLite(t *testing.T) *SQLClient {
	loader, err := New(context.Background(), Options{
		Name:         "sqlite",
		Credentials:  filepath.Join(t.TempDir(), "jaffle.sqlite"),
		Dataset:      "rest_api_data",
		PipelineName: "rest_api_jaffle_shop",
	})
	require.NoError(t, err)
	t.Cleanup(func() { loader.Close() })
	return loader.(*SQLClient)
}

func TestSQLiteMergeKeepsLatestRow(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t)
	table := customersTable()

	require.NoError(t, c.EnsureTable(ctx, table))
	require.NoError(t, c.Load(ctx, table, []models.Record{{"id": "c1", "name": "Ann"}, {"id": "c2", "name": "Bob"}}))
	require.NoError(t, c.EnsureTable(ctx, table))
	require.NoError(t, c.Load(ctx, table, []models.Record{{"id": "c1", "name": "Anna"}}))

	var count int
	require.NoError(t, c.DB.QueryRow(`SELECT COUNT(*) FROM "rest_api_data__customers"`).Scan(&count))
	assert.Equal(t, 2, count)

	var name string
	require.NoError(t, c.DB.QueryRow(`SELECT name FROM "rest_api_data__customers" WHERE id = ?`, "c1").Scan(&name))
	assert.Equal(t, "Anna", name)
}

func TestSQLiteAppendEvolvesSchema(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t)

	table := &models.TableSchema{
		Name:             "orders",
		WriteDisposition: models.Append,
		Columns: []models.Column{
			{Name: "id", Type: models.Text},
			{Name: "order_total", Type: models.Double},
		},
	}
	require.NoError(t, c.EnsureTable(ctx, table))
	require.NoError(t, c.Load(ctx, table, []models.Record{{"id": "o1", "order_total": 650.0}}))

	table.Columns = append(table.Columns, models.Column{Name: "paid", Type: models.Bool})
	require.NoError(t, c.EnsureTable(ctx, table))
	require.NoError(t, c.Load(ctx, table, []models.Record{
		{"id": "o1", "order_total": 650.0, "paid": true},
		{"id": "o3", "order_total": 999.99, "paid": false},
	}))

	var count int
	require.NoError(t, c.DB.QueryRow(`SELECT COUNT(*) FROM "rest_api_data__orders"`).Scan(&count))
	assert.Equal(t, 3, count)

	var paid sql.NullBool
	require.NoError(t, c.DB.QueryRow(`SELECT paid FROM "rest_api_data__orders" WHERE id = 'o3'`).Scan(&paid))
	assert.True(t, paid.Valid)
	assert.False(t, paid.Bool)

	require.NoError(t, c.Truncate(ctx, table))
	require.NoError(t, c.DB.QueryRow(`SELECT COUNT(*) FROM "rest_api_data__orders"`).Scan(&count))
	assert.Zero(t, count)
}

func TestDuckDBMergeKeepsLatestRow(t *testing.T) {
	ctx := context.Background()
	loader, err := New(ctx, Options{
		Name:         "duckdb",
		Credentials:  filepath.Join(t.TempDir(), "jaffle.duckdb"),
		Dataset:      "rest_api_data",
		PipelineName: "rest_api_jaffle_shop",
	})
	require.NoError(t, err)
	defer loader.Close()

	table := customersTable()
	require.NoError(t, loader.EnsureTable(ctx, table))
	require.NoError(t, loader.Load(ctx, table, []models.Record{{"id": "c1", "name": "Ann"}}))
	require.NoError(t, loader.EnsureTable(ctx, table))
	require.NoError(t, loader.Load(ctx, table, []models.Record{{"id": "c1", "name": "Anna"}, {"id": "c2", "name": "Bob"}}))

	db := loader.(*SQLClient).DB
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM rest_api_data.customers`).Scan(&count))
	assert.Equal(t, 2, count)

	var name string
	require.NoError(t, db.QueryRow(`SELECT name FROM rest_api_data.customers WHERE id = 'c1'`).Scan(&name))
	assert.Equal(t, "Anna", name)
}

func TestSQLClientEnsureTableAlignsStoredTypes(t *testing.T) {
	c, mock := newMockClient(t)
	table := &models.TableSchema{
		Name:             "orders",
		WriteDisposition: models.Append,
		Columns: []models.Column{
			{Name: "id", Type: models.BigInt},
			{Name: "order_total", Type: models.BigInt},
		},
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "ds__orders" ("id" INTEGER, "order_total" INTEGER)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT * FROM "ds__orders" WHERE 1=0`).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("id").OfType("TEXT", ""),
			sqlmock.NewColumn("order_total").OfType("REAL", 0.0),
		))

	require.NoError(t, c.EnsureTable(context.Background(), table))
	assert.Equal(t, models.Text, table.Column("id").Type)
	assert.Equal(t, models.Double, table.Column("order_total").Type)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLClientEnsureTableRejectsNarrowColumn(t *testing.T) {
	c, mock := newMockClient(t)
	table := &models.TableSchema{
		Name:             "orders",
		WriteDisposition: models.Append,
		Columns:          []models.Column{{Name: "order_total", Type: models.Double}},
	}

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS "ds__orders" ("order_total" REAL)`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT * FROM "ds__orders" WHERE 1=0`).
		WillReturnRows(sqlmock.NewRowsWithColumnDefinition(
			sqlmock.NewColumn("order_total").OfType("BIGINT", int64(0)),
		))

	err := c.EnsureTable(context.Background(), table)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnTypeConflict))
	assert.Contains(t, err.Error(), "order_total")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLiteKeepsStoredWiderType(t *testing.T) {
	ctx := context.Background()
	c := openSQLite(t)

	first := &models.TableSchema{
		Name:             "orders",
		WriteDisposition: models.Append,
		Columns:          []models.Column{{Name: "id", Type: models.Text}, {Name: "order_total", Type: models.Double}},
	}
	require.NoError(t, c.EnsureTable(ctx, first))
	require.NoError(t, c.Load(ctx, first, []models.Record{{"id": "o1", "order_total": 650.75}}))

	second := &models.TableSchema{
		Name:             "orders",
		WriteDisposition: models.Append,
		Columns:          []models.Column{{Name: "id", Type: models.Text}, {Name: "order_total", Type: models.BigInt}},
	}
	require.NoError(t, c.EnsureTable(ctx, second))
	assert.Equal(t, models.Double, second.Column("order_total").Type)
}

func TestDuckDBRejectsFractionalIntoIntegerColumn(t *testing.T) {
	ctx := context.Background()
	loader, err := New(ctx, Options{
		Name:         "duckdb",
		Credentials:  filepath.Join(t.TempDir(), "jaffle.duckdb"),
		Dataset:      "rest_api_data",
		PipelineName: "rest_api_jaffle_shop",
	})
	require.NoError(t, err)
	defer loader.Close()

	integral := &models.TableSchema{
		Name:             "orders",
		WriteDisposition: models.Append,
		Columns:          []models.Column{{Name: "id", Type: models.Text}, {Name: "order_total", Type: models.BigInt}},
	}
	require.NoError(t, loader.EnsureTable(ctx, integral))
	require.NoError(t, loader.Load(ctx, integral, []models.Record{{"id": "o1", "order_total": int64(650)}}))

	fractional := &models.TableSchema{
		Name:             "orders",
		WriteDisposition: models.Append,
		Columns:          []models.Column{{Name: "id", Type: models.Text}, {Name: "order_total", Type: models.Double}},
	}
	err = loader.EnsureTable(ctx, fractional)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrColumnTypeConflict))

	var count int
	db := loader.(*SQLClient).DB
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM rest_api_data.orders WHERE order_total <> 650`).Scan(&count))
	assert.Zero(t, count, "no rounded values were written")
}

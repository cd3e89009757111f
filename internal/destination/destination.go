// Package destination implements the loaders that write normalized rows to
// the supported databases.
package destination

import (
	"context"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osareniho-oni/jaffle-shop-pipeline/internal/etl"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/database"
)

var (
	ErrUnknownDestination = errors.New("unknown destination")
	ErrMissingCredentials = errors.New("missing destination credentials")
	// ErrColumnTypeConflict is returned when an existing column cannot hold
	// the values of a load without losing data.
	ErrColumnTypeConflict = errors.New("column type conflict")
)

// Options selects a destination and where it writes.
type Options struct {
	// Name is one of the names returned by Names.
	Name string
	// Credentials is a DSN, a file path for embedded databases, or a URI.
	Credentials  string
	Dataset      string
	PipelineName string
}

type factory func(ctx context.Context, opts Options) (etl.Loader, error)

var factories = map[string]factory{
	"duckdb":   newDuckDB,
	"sqlite":   newSQLite,
	"postgres": newPostgres,
	"mssql":    newMSSQL,
	"mongodb":  newMongo,
}

// Names lists the supported destinations.
func Names() []string {
	names := make([]string, 0, len(factories))
	for n := range factories {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New connects to the named destination.
func New(ctx context.Context, opts Options) (etl.Loader, error) {
	f, ok := factories[opts.Name]
	if !ok {
		return nil, errors.WithHintf(errors.Wrapf(ErrUnknownDestination, "%q", opts.Name),
			"supported destinations: %v", Names())
	}
	if opts.Dataset == "" {
		return nil, errors.New("dataset name is empty")
	}
	return f(ctx, opts)
}

func requireCredentials(opts Options) error {
	if opts.Credentials == "" {
		return errors.WithHintf(errors.Wrapf(ErrMissingCredentials, "%s", opts.Name),
			"set DESTINATION__%s__CREDENTIALS", strings.ToUpper(opts.Name))
	}
	return nil
}

func newDuckDB(ctx context.Context, opts Options) (etl.Loader, error) {
	path := opts.Credentials
	if path == "" {
		path = opts.PipelineName + ".duckdb"
	}
	db, err := database.ConnectSQL(ctx, "duckdb", path)
	if err != nil {
		return nil, err
	}
	return NewSQLClient(db, DuckDB{}, opts.Dataset), nil
}

func newSQLite(ctx context.Context, opts Options) (etl.Loader, error) {
	path := opts.Credentials
	if path == "" {
		path = opts.PipelineName + ".sqlite"
	}
	db, err := database.ConnectSQL(ctx, "sqlite3", path)
	if err != nil {
		return nil, err
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	return NewSQLClient(db, SQLite{}, opts.Dataset), nil
}

func newPostgres(ctx context.Context, opts Options) (etl.Loader, error) {
	if err := requireCredentials(opts); err != nil {
		return nil, err
	}
	db, err := database.ConnectSQL(ctx, "pgx", opts.Credentials)
	if err != nil {
		return nil, err
	}
	return NewSQLClient(db, Postgres{}, opts.Dataset), nil
}

func newMSSQL(ctx context.Context, opts Options) (etl.Loader, error) {
	if err := requireCredentials(opts); err != nil {
		return nil, err
	}
	db, err := database.ConnectSQL(ctx, "sqlserver", opts.Credentials)
	if err != nil {
		return nil, err
	}
	return NewSQLClient(db, MSSQL{}, opts.Dataset), nil
}

func newMongo(ctx context.Context, opts Options) (etl.Loader, error) {
	if err := requireCredentials(opts); err != nil {
		return nil, err
	}
	client, err := database.ConnectMongo(ctx, opts.Credentials)
	if err != nil {
		return nil, err
	}
	return NewMongoClient(client, opts.Dataset), nil
}

package destination

import (
	"context"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"duckdb", "mongodb", "mssql", "postgres", "sqlite"}, Names())
}

func TestNewUnknownDestination(t *testing.T) {
	_, err := New(context.Background(), Options{Name: "bigquery", Dataset: "ds"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownDestination))
	assert.Contains(t, errors.FlattenHints(err), "duckdb")
}

func TestNewRequiresCredentials(t *testing.T) {
	for _, name := range []string{"postgres", "mssql", "mongodb"} {
		t.Run(name, func(t *testing.T) {
			_, err := New(context.Background(), Options{Name: name, Dataset: "ds", PipelineName: "p"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMissingCredentials))
			assert.Contains(t, errors.FlattenHints(err), "CREDENTIALS")
		})
	}
}

func TestNewRequiresDataset(t *testing.T) {
	_, err := New(context.Background(), Options{Name: "sqlite", PipelineName: "p"})
	assert.Error(t, err)
}

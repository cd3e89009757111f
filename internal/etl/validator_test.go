package etl

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

func customersSchema() *models.TableSchema {
	return &models.TableSchema{
		Name:             "customers",
		PrimaryKey:       []string{"id"},
		WriteDisposition: models.Merge,
		Columns: []models.Column{
			{Name: "id", Type: models.Text, PrimaryKey: true},
			{Name: "name", Type: models.Text},
		},
	}
}

func TestDedupeKeepsLastRowPerKey(t *testing.T) {
	rows := []models.Record{
		{"id": "c1", "name": "Ann"},
		{"id": "c2", "name": "Bob"},
		{"id": "c1", "name": "Anna"},
		{"id": "c3", "name": "Cid"},
	}

	out, err := NewValidator(customersSchema()).Dedupe(rows)
	require.NoError(t, err)
	assert.Equal(t, []models.Record{
		{"id": "c2", "name": "Bob"},
		{"id": "c1", "name": "Anna"},
		{"id": "c3", "name": "Cid"},
	}, out)
}

func TestDedupeRejectsMissingKey(t *testing.T) {
	_, err := NewValidator(customersSchema()).Dedupe([]models.Record{
		{"id": "c1"},
		{"id": nil, "name": "ghost"},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingPrimaryKey))
	assert.Contains(t, err.Error(), `"id"`)
}

func TestDedupeWithoutKey(t *testing.T) {
	rows := []models.Record{{"id": "o1"}, {"id": "o1"}}
	out, err := NewValidator(&models.TableSchema{Name: "orders"}).Dedupe(rows)
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

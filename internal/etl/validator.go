package etl

import (
	"github.com/cockroachdb/errors"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// ErrMissingPrimaryKey is returned when a merge row has no value for a key column.
var ErrMissingPrimaryKey = errors.New("missing primary key value")

type Validator struct {
	Schema *models.TableSchema
}

func NewValidator(schema *models.TableSchema) *Validator {
	return &Validator{Schema: schema}
}

// ValidateRow checks that every primary key column is set.
func (v *Validator) ValidateRow(row models.Record) error {
	for _, k := range v.Schema.PrimaryKey {
		if row[k] == nil {
			return errors.Wrapf(ErrMissingPrimaryKey, "table %q column %q", v.Schema.Name, k)
		}
	}
	return nil
}

// Dedupe keeps the last row of each primary key, preserving the order in
// which surviving rows were seen. Tables without a key are returned as is.
func (v *Validator) Dedupe(rows []models.Record) ([]models.Record, error) {
	if len(v.Schema.PrimaryKey) == 0 {
		return rows, nil
	}

	last := make(map[string]int, len(rows))
	for i, row := range rows {
		if err := v.ValidateRow(row); err != nil {
			return nil, err
		}
		last[keyOf(row, v.Schema.PrimaryKey)] = i
	}
	if len(last) == len(rows) {
		return rows, nil
	}

	out := make([]models.Record, 0, len(last))
	for i, row := range rows {
		if last[keyOf(row, v.Schema.PrimaryKey)] == i {
			out = append(out, row)
		}
	}
	return out, nil
}

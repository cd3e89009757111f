package etl

import (
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
)

// Transformer applies a resource's processing steps in declaration order.
type Transformer struct {
	Steps []models.ProcessingStep
}

func NewTransformer(steps []models.ProcessingStep) *Transformer {
	return &Transformer{Steps: steps}
}

// Apply returns the transformed record and false when a filter dropped it.
func (t *Transformer) Apply(rec models.Record) (models.Record, bool) {
	for _, step := range t.Steps {
		switch {
		case step.Filter != nil:
			if !step.Filter(rec) {
				return nil, false
			}
		case step.Map != nil:
			rec = step.Map(rec)
			if rec == nil {
				return nil, false
			}
		}
	}
	return rec, true
}

// ApplyAll transforms a page of records, dropping filtered ones.
func (t *Transformer) ApplyAll(records []models.Record) []models.Record {
	if len(t.Steps) == 0 {
		return records
	}
	out := make([]models.Record, 0, len(records))
	for _, rec := range records {
		if r, keep := t.Apply(rec); keep {
			out = append(out, r)
		}
	}
	return out
}

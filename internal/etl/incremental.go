package etl

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/utils"
)

// ErrCursorMissing is returned when a record lacks the incremental cursor.
var ErrCursorMissing = errors.New("cursor path missing in record")

// Incremental tracks the cursor of one resource during a run.
type Incremental struct {
	CursorPath   string
	InitialValue any
	// StartValue is the last value of the previous run, or InitialValue.
	StartValue any
	// LastValue is the highest cursor seen so far in this run.
	LastValue any
	// PrimaryKey selects the fields hashed to identify a record. Without
	// one the whole record is hashed.
	PrimaryKey []string

	// seen holds hashes of records at StartValue loaded by earlier runs.
	seen map[string]bool
	// hashes holds hashes of records at LastValue, in first-seen order.
	hashes    []string
	hashIndex map[string]bool
}

// NewIncremental binds cfg to the state persisted by the previous run.
// A nil previous state means this is the first run.
func NewIncremental(cfg *models.IncrementalConfig, previous *ResourceState, primaryKey []string) *Incremental {
	inc := &Incremental{
		CursorPath:   cfg.CursorPath,
		InitialValue: cfg.InitialValue,
		StartValue:   cfg.InitialValue,
		PrimaryKey:   primaryKey,
		seen:         map[string]bool{},
		hashIndex:    map[string]bool{},
	}
	if previous != nil && previous.LastValue != nil {
		inc.StartValue = previous.LastValue
		for _, h := range previous.UniqueHashes {
			inc.seen[h] = true
			inc.addHash(h)
		}
	}
	inc.LastValue = inc.StartValue
	return inc
}

// ResolveParam substitutes an incremental template with its current value.
// Non-template values are returned unchanged.
func (inc *Incremental) ResolveParam(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	switch s {
	case models.StartValueTemplate:
		return inc.StartValue
	case models.InitialValueTemplate:
		return inc.InitialValue
	case models.LastValueTemplate:
		return inc.LastValue
	}
	return v
}

// UniqueHashes returns the hashes of the records at LastValue, to be
// persisted so the next run can skip them.
func (inc *Incremental) UniqueHashes() []string {
	return append([]string(nil), inc.hashes...)
}

// Track records the cursor of rec and reports whether rec should be kept:
// its cursor is past the start value, or equal to it and the record was not
// loaded by the previous run.
func (inc *Incremental) Track(rec models.Record) (bool, error) {
	val, ok := lookupPath(rec, inc.CursorPath)
	if !ok || val == nil {
		return false, errors.Wrapf(ErrCursorMissing, "%q", inc.CursorPath)
	}

	hash, err := inc.recordHash(rec)
	if err != nil {
		return false, err
	}

	if inc.LastValue == nil {
		inc.LastValue = val
		inc.resetHashes(hash)
	} else {
		cmp, err := utils.CompareValues(val, inc.LastValue)
		if err != nil {
			return false, errors.Wrapf(err, "comparing cursor %q", inc.CursorPath)
		}
		switch {
		case cmp > 0:
			inc.LastValue = val
			inc.resetHashes(hash)
		case cmp == 0:
			inc.addHash(hash)
		}
	}

	if inc.StartValue == nil {
		return true, nil
	}
	cmp, err := utils.CompareValues(val, inc.StartValue)
	if err != nil {
		return false, errors.Wrapf(err, "comparing cursor %q", inc.CursorPath)
	}
	if cmp == 0 {
		return !inc.seen[hash], nil
	}
	return cmp > 0, nil
}

func (inc *Incremental) resetHashes(h string) {
	inc.hashes = []string{h}
	inc.hashIndex = map[string]bool{h: true}
}

func (inc *Incremental) addHash(h string) {
	if inc.hashIndex[h] {
		return
	}
	inc.hashIndex[h] = true
	inc.hashes = append(inc.hashes, h)
}

// recordHash identifies rec by its primary key values, or by its full
// content when the resource has no key. Map keys marshal sorted, so equal
// records hash equally.
func (inc *Incremental) recordHash(rec models.Record) (string, error) {
	var subject any = rec
	if len(inc.PrimaryKey) > 0 {
		key := make([]any, len(inc.PrimaryKey))
		for i, k := range inc.PrimaryKey {
			key[i], _ = lookupPath(rec, k)
		}
		subject = key
	}
	data, err := json.Marshal(subject)
	if err != nil {
		return "", errors.Wrap(err, "hashing record")
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:16]), nil
}

// lookupPath resolves a dotted path such as "customer.created_at".
func lookupPath(rec models.Record, path string) (any, bool) {
	var cur any = rec
	for _, part := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

package etl

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/google/uuid"

	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/models"
	"github.com/osareniho-oni/jaffle-shop-pipeline/pkg/utils"
)

// NestingSeparator joins the names of flattened nested fields.
const NestingSeparator = "__"

// NormalizeIdentifier turns an arbitrary field or table name into a
// snake_case identifier: "orderTotal" and "Order Total" both become
// "order_total".
func NormalizeIdentifier(name string) string {
	var b strings.Builder
	runes := []rune(strings.TrimSpace(name))
	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 && (unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1]) ||
				(i+1 < len(runes) && unicode.IsLower(runes[i+1]) && unicode.IsUpper(runes[i-1]))) {
				b.WriteRune('_')
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}

	out := b.String()
	for strings.Contains(out, "___") {
		out = strings.ReplaceAll(out, "___", "__")
	}
	out = strings.TrimRight(out, "_")
	if out == "" {
		return "_"
	}
	if unicode.IsDigit(rune(out[0])) {
		out = "_" + out
	}
	return out
}

// Normalizer flattens extracted records into rows and infers their columns.
type Normalizer struct {
	LoadID string
}

// NormalizeBatch flattens items and returns the rows with the columns they
// use, in first-seen order.
func (n *Normalizer) NormalizeBatch(items []models.Record) ([]models.Record, []models.Column) {
	rows := make([]models.Record, 0, len(items))
	var cols []models.Column
	index := make(map[string]int)

	for _, item := range items {
		row := make(models.Record, len(item)+2)
		flatten(row, "", item)

		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			typ, ok := inferType(row[k])
			if !ok {
				continue
			}
			if i, seen := index[k]; seen {
				cols[i].Type = widen(cols[i].Type, typ)
				continue
			}
			index[k] = len(cols)
			cols = append(cols, models.Column{Name: k, Type: typ})
		}

		row[models.LoadIDColumn] = n.LoadID
		row[models.RecordIDColumn] = uuid.NewString()
		rows = append(rows, row)
	}
	return rows, cols
}

func flatten(dst models.Record, prefix string, src map[string]any) {
	for k, v := range src {
		name := NormalizeIdentifier(k)
		if prefix != "" {
			name = prefix + NestingSeparator + name
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(dst, name, nested)
			continue
		}
		dst[name] = v
	}
}

func inferType(v any) (models.DataType, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case bool:
		return models.Bool, true
	case string:
		return models.Text, true
	case int, int32, int64:
		return models.BigInt, true
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1<<53 {
			return models.BigInt, true
		}
		return models.Double, true
	case json.Number:
		if _, err := x.Int64(); err == nil {
			return models.BigInt, true
		}
		return models.Double, true
	case []any, map[string]any:
		return models.JSON, true
	default:
		return models.Text, true
	}
}

// widen picks a type able to hold values of both a and b.
func widen(a, b models.DataType) models.DataType {
	switch {
	case a == b:
		return a
	case (a == models.BigInt && b == models.Double) || (a == models.Double && b == models.BigInt):
		return models.Double
	default:
		return models.Text
	}
}

// MergeColumns folds src into dst, widening types of shared columns.
func MergeColumns(dst, src []models.Column) []models.Column {
	for _, c := range src {
		found := false
		for i := range dst {
			if dst[i].Name == c.Name {
				dst[i].Type = widen(dst[i].Type, c.Type)
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, c)
		}
	}
	return dst
}

// BuildTableSchema assembles the table schema of a resource from its
// inferred columns. Primary key columns come first, system columns last.
func BuildTableSchema(res *models.ResourceConfig, cols []models.Column) *models.TableSchema {
	schema := &models.TableSchema{
		Name:             NormalizeIdentifier(res.Name),
		WriteDisposition: res.Disposition(),
	}

	pk := make(map[string]bool, len(res.PrimaryKey))
	for _, k := range res.PrimaryKey {
		name := NormalizeIdentifier(k)
		pk[name] = true
		schema.PrimaryKey = append(schema.PrimaryKey, name)

		col := models.Column{Name: name, Type: models.Text, PrimaryKey: true}
		for _, c := range cols {
			if c.Name == name {
				col.Type = c.Type
			}
		}
		schema.Columns = append(schema.Columns, col)
	}

	for _, c := range cols {
		if pk[c.Name] || c.Name == models.LoadIDColumn || c.Name == models.RecordIDColumn {
			continue
		}
		schema.Columns = append(schema.Columns, c)
	}

	schema.Columns = append(schema.Columns,
		models.Column{Name: models.LoadIDColumn, Type: models.Text},
		models.Column{Name: models.RecordIDColumn, Type: models.Text},
	)
	return schema
}

// CoerceRow converts every value of row to its column's storage type and
// drops keys the schema does not know.
func CoerceRow(schema *models.TableSchema, row models.Record) models.Record {
	out := make(models.Record, len(schema.Columns))
	for _, c := range schema.Columns {
		v, ok := row[c.Name]
		if !ok || v == nil {
			out[c.Name] = nil
			continue
		}
		out[c.Name] = coerce(c.Type, v)
	}
	return out
}

func coerce(t models.DataType, v any) any {
	switch t {
	case models.BigInt:
		if i, err := utils.ConvertToInt(v); err == nil {
			return int64(i)
		}
	case models.Double:
		if f, err := utils.ConvertToFloat(v); err == nil {
			return f
		}
	case models.Bool:
		if b, ok := v.(bool); ok {
			return b
		}
	case models.JSON:
		if s, ok := v.(string); ok {
			return s
		}
		if b, err := json.Marshal(v); err == nil {
			return string(b)
		}
	}

	switch x := v.(type) {
	case string:
		return x
	case []any, map[string]any:
		b, _ := json.Marshal(x)
		return string(b)
	default:
		return utils.ToString(x)
	}
}

// Chunk splits rows into slices of at most size rows.
func Chunk(rows []models.Record, size int) [][]models.Record {
	if size < 1 {
		size = len(rows)
	}
	var out [][]models.Record
	for len(rows) > 0 {
		n := min(size, len(rows))
		out = append(out, rows[:n])
		rows = rows[n:]
	}
	return out
}

func keyOf(row models.Record, pk []string) string {
	parts := make([]string, len(pk))
	for i, k := range pk {
		parts[i] = fmt.Sprintf("%v", row[k])
	}
	return strings.Join(parts, "\x00")
}

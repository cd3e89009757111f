package models

// DataType is the storage type inferred for a column.
type DataType string

const (
	Text   DataType = "text"
	BigInt DataType = "bigint"
	Double DataType = "double"
	Bool   DataType = "bool"
	JSON   DataType = "json"
)

// System columns added to every loaded row.
const (
	LoadIDColumn   = "_load_id"
	RecordIDColumn = "_record_id"
)

type Column struct {
	Name       string   `json:"name"`
	Type       DataType `json:"data_type"`
	PrimaryKey bool     `json:"primary_key,omitempty"`
}

// TableSchema is the schema of one destination table.
type TableSchema struct {
	Name             string           `json:"name"`
	Columns          []Column         `json:"columns"`
	PrimaryKey       []string         `json:"primary_key,omitempty"`
	WriteDisposition WriteDisposition `json:"write_disposition"`
}

// Column returns the named column, or nil.
func (t *TableSchema) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

// ColumnNames returns column names in schema order.
func (t *TableSchema) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// IsMerge reports whether rows upsert by primary key.
func (t *TableSchema) IsMerge() bool {
	return t.WriteDisposition == Merge && len(t.PrimaryKey) > 0
}

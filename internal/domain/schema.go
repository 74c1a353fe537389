package domain

import (
	"sort"
	"time"
)

// ColumnInfo describes one column of a tenant table. Sourced exclusively from
// catalog introspection, never from caller input.
type ColumnInfo struct {
	Name         string
	DeclaredType string
	Nullable     bool
	Default      string // default expression text, empty when none
}

// TableInfo describes one base table in the tenant's public schema.
type TableInfo struct {
	Name    string
	Columns []ColumnInfo
}

// HasColumn reports whether the table has a column with the given name.
func (t TableInfo) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

// ColumnSet returns the table's column names as a lookup set.
func (t TableInfo) ColumnSet() map[string]bool {
	set := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		set[c.Name] = true
	}
	return set
}

// SchemaSnapshot is a cached, immutable view of a tenant's table/column
// catalog. Owned exclusively by the schema cache; read-only once published.
// Every table and column name in a published snapshot has passed identifier
// validation and is safe to embed as a quoted SQL identifier.
type SchemaSnapshot struct {
	TenantID  TenantID
	Tables    map[string]TableInfo
	FetchedAt time.Time
}

// Table returns the named table's metadata.
func (s *SchemaSnapshot) Table(name string) (TableInfo, bool) {
	t, ok := s.Tables[name]
	return t, ok
}

// TableList returns all tables sorted by name.
func (s *SchemaSnapshot) TableList() []TableInfo {
	tables := make([]TableInfo, 0, len(s.Tables))
	for _, t := range s.Tables {
		tables = append(tables, t)
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables
}

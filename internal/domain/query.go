package domain

// Operator is a comparison operator accepted in the public filter syntax.
type Operator string

const (
	OpEq    Operator = "eq"
	OpNeq   Operator = "neq"
	OpLt    Operator = "lt"
	OpLte   Operator = "lte"
	OpGt    Operator = "gt"
	OpGte   Operator = "gte"
	OpLike  Operator = "like"
	OpILike Operator = "ilike"
	OpIn    Operator = "in"
)

// Filter is one column predicate parsed from a request. The column is not yet
// validated against a schema at construction time; that happens in the
// engine against the current snapshot.
type Filter struct {
	Column string
	Op     Operator
	// Values holds exactly one element for scalar operators and one element
	// per list entry for OpIn.
	Values []string
}

// Direction is an ORDER BY direction.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DESC"
)

// Order is a parsed ordering clause.
type Order struct {
	Column    string
	Direction Direction
}

// Projection selects the columns a query returns: either the wildcard or an
// explicit ordered column list.
type Projection struct {
	Wildcard bool
	Columns  []string
}

// Query is the intermediate representation of a select/update/delete request:
// parsed, typed, and not yet validated against the tenant's schema.
type Query struct {
	Filters    []Filter
	Order      *Order
	Projection Projection
	Limit      *int
	Offset     *int
}

// Reference is a foreign-key target in a column definition.
type Reference struct {
	Table  string `json:"table"`
	Column string `json:"column"`
}

// ColumnDefinition is the DDL input shape for creating or adding a column.
// Transient: validated, rendered into a statement, and discarded.
type ColumnDefinition struct {
	Name       string     `json:"name"`
	Type       string     `json:"type"`
	Nullable   *bool      `json:"nullable,omitempty"` // nil means nullable
	PrimaryKey bool       `json:"primaryKey,omitempty"`
	Unique     bool       `json:"unique,omitempty"`
	Default    string     `json:"defaultValue,omitempty"`
	References *Reference `json:"references,omitempty"`
}

// IsNullable reports the effective nullability: columns are nullable unless
// the definition says otherwise.
func (c ColumnDefinition) IsNullable() bool {
	return c.Nullable == nil || *c.Nullable
}

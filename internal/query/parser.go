// Package query parses declarative request parameters into a typed
// intermediate representation and renders it as parameterized SQL fragments.
package query

import (
	"net/url"
	"sort"
	"strconv"
	"strings"

	"basehub/internal/domain"
)

// operators maps the public operator tokens to their typed form.
var operators = map[string]domain.Operator{
	"eq":    domain.OpEq,
	"neq":   domain.OpNeq,
	"lt":    domain.OpLt,
	"lte":   domain.OpLte,
	"gt":    domain.OpGt,
	"gte":   domain.OpGte,
	"like":  domain.OpLike,
	"ilike": domain.OpILike,
	"in":    domain.OpIn,
}

// reservedKeys are query parameters with dedicated meaning; everything else
// must be an <operator>.<column> filter.
var reservedKeys = map[string]bool{
	"select": true,
	"order":  true,
	"limit":  true,
	"offset": true,
}

// ParseQuery turns a raw query-parameter mapping into the typed IR. Pure and
// side-effect free: no step here touches the database, and no column is
// validated against a schema; the engine does that against the current
// snapshot.
func ParseQuery(params url.Values) (*domain.Query, error) {
	q := &domain.Query{Projection: domain.Projection{Wildcard: true}}

	if sel := params.Get("select"); sel != "" && sel != "*" {
		cols := strings.Split(sel, ",")
		for i := range cols {
			cols[i] = strings.TrimSpace(cols[i])
		}
		q.Projection = domain.Projection{Columns: cols}
	}

	if raw := params.Get("order"); raw != "" {
		order, err := parseOrder(raw)
		if err != nil {
			return nil, err
		}
		q.Order = order
	}

	if raw := params.Get("limit"); raw != "" {
		n, err := parseNonNegativeInt("limit", raw)
		if err != nil {
			return nil, err
		}
		q.Limit = &n
	}
	if raw := params.Get("offset"); raw != "" {
		n, err := parseNonNegativeInt("offset", raw)
		if err != nil {
			return nil, err
		}
		q.Offset = &n
	}

	// Every remaining key is a filter. Keys are sorted so the generated SQL is
	// deterministic for a given parameter set.
	keys := make([]string, 0, len(params))
	for key := range params {
		if !reservedKeys[key] {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		values := params[key]
		if len(values) > 1 {
			return nil, domain.ErrValidation("filter %q specified more than once", key)
		}
		filter, err := parseFilter(key, values[0])
		if err != nil {
			return nil, err
		}
		q.Filters = append(q.Filters, filter)
	}

	return q, nil
}

// parseOrder parses "column.asc" / "column.desc". The direction token is
// case-insensitive and defaults to ascending when omitted or malformed.
func parseOrder(raw string) (*domain.Order, error) {
	column, dirToken, _ := strings.Cut(raw, ".")
	if column == "" {
		return nil, domain.ErrValidation("order parameter %q has no column", raw)
	}
	direction := domain.Ascending
	if strings.EqualFold(dirToken, "desc") {
		direction = domain.Descending
	}
	return &domain.Order{Column: column, Direction: direction}, nil
}

// parseFilter parses one "<operator>.<column>=<value>" parameter.
func parseFilter(key, value string) (domain.Filter, error) {
	opToken, column, found := strings.Cut(key, ".")
	if !found || column == "" {
		return domain.Filter{}, domain.ErrValidation("unknown query parameter %q", key)
	}
	op, ok := operators[opToken]
	if !ok {
		return domain.Filter{}, domain.ErrValidation("unsupported filter operator %q", opToken)
	}

	values := []string{value}
	if op == domain.OpIn {
		if value == "" {
			return domain.Filter{}, domain.ErrValidation("in filter on %q requires at least one value", column)
		}
		// Split on commas with no further unescaping; callers URL-encode
		// embedded commas.
		values = strings.Split(value, ",")
	}
	return domain.Filter{Column: column, Op: op, Values: values}, nil
}

// parseNonNegativeInt fails the request on malformed input rather than
// silently clamping.
func parseNonNegativeInt(name, raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, domain.ErrValidation("%s must be an integer, got %q", name, raw)
	}
	if n < 0 {
		return 0, domain.ErrValidation("%s must be non-negative, got %d", name, n)
	}
	return n, nil
}

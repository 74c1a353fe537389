package query

import (
	"fmt"
	"strings"

	"basehub/internal/ddl"
	"basehub/internal/domain"
)

// opSQL is the fixed operator-to-SQL mapping. LIKE/ILIKE patterns are used
// verbatim: wildcard characters in caller input are not escaped.
var opSQL = map[domain.Operator]string{
	domain.OpEq:    "=",
	domain.OpNeq:   "<>",
	domain.OpLt:    "<",
	domain.OpLte:   "<=",
	domain.OpGt:    ">",
	domain.OpGte:   ">=",
	domain.OpLike:  "LIKE",
	domain.OpILike: "ILIKE",
}

// BuildWhere renders filters as a WHERE clause plus its ordered parameter
// vector. Placeholders start at $startIndex. Every caller-supplied value goes
// into the parameter vector, never into the SQL text. Returns an empty
// clause when there are no filters.
func BuildWhere(filters []domain.Filter, allowed map[string]bool, startIndex int) (string, []any, error) {
	if len(filters) == 0 {
		return "", nil, nil
	}

	conditions := make([]string, 0, len(filters))
	params := make([]any, 0, len(filters))
	idx := startIndex

	for _, f := range filters {
		if !allowed[f.Column] {
			return "", nil, domain.ErrValidation("unknown filter column %q", f.Column)
		}
		col := ddl.QuoteIdentifier(f.Column)

		if f.Op == domain.OpIn {
			if len(f.Values) == 0 {
				return "", nil, domain.ErrValidation("in filter on %q requires at least one value", f.Column)
			}
			placeholders := make([]string, len(f.Values))
			for i, v := range f.Values {
				placeholders[i] = fmt.Sprintf("$%d", idx)
				params = append(params, v)
				idx++
			}
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ", ")))
			continue
		}

		sqlOp, ok := opSQL[f.Op]
		if !ok {
			return "", nil, domain.ErrValidation("unsupported filter operator %q", f.Op)
		}
		if len(f.Values) != 1 {
			return "", nil, domain.ErrValidation("operator %q on %q takes exactly one value", f.Op, f.Column)
		}
		conditions = append(conditions, fmt.Sprintf("%s %s $%d", col, sqlOp, idx))
		params = append(params, f.Values[0])
		idx++
	}

	return "WHERE " + strings.Join(conditions, " AND "), params, nil
}

// BuildOrder renders an ORDER BY clause, or an empty string when order is nil.
func BuildOrder(order *domain.Order, allowed map[string]bool) (string, error) {
	if order == nil {
		return "", nil
	}
	if !allowed[order.Column] {
		return "", domain.ErrValidation("unknown order column %q", order.Column)
	}
	return fmt.Sprintf("ORDER BY %s %s", ddl.QuoteIdentifier(order.Column), order.Direction), nil
}

// BuildSelectList renders the projected column list: "*" for the wildcard,
// otherwise the quoted columns in request order.
func BuildSelectList(p domain.Projection, allowed map[string]bool) (string, error) {
	if p.Wildcard {
		return "*", nil
	}
	if len(p.Columns) == 0 {
		return "", domain.ErrValidation("select list is empty")
	}
	quoted := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		if !allowed[c] {
			return "", domain.ErrValidation("unknown select column %q", c)
		}
		quoted[i] = ddl.QuoteIdentifier(c)
	}
	return strings.Join(quoted, ", "), nil
}

// Package ddl validates identifiers, column types, and default expressions,
// and builds PostgreSQL DDL statements for tenant tables.
package ddl

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierRe allows alphanumeric + underscores, starting with a letter or underscore.
var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// columnTypeRe matches a whitelisted base type keyword, optionally with
// precision/scale parameters:
//
//	WORD                  → integer, text, boolean, etc.
//	WORD WORD             → double precision, timestamp with time zone
//	WORD(digits)          → varchar(255), numeric(10)
//	WORD(digits, digits)  → numeric(10,2), decimal(18,4)
//
// The base keyword is checked against allowedBaseTypes after the shape match.
var columnTypeRe = regexp.MustCompile(`(?i)^([a-z][a-z0-9_ ]*?)(?:\(\s*\d+\s*(?:,\s*\d+\s*)?\))?$`)

// maxIdentifierLen mirrors PostgreSQL's NAMEDATALEN-1 limit.
const maxIdentifierLen = 63

// maxColumnTypeLen is the maximum length allowed for a column type string.
const maxColumnTypeLen = 64

// reservedNamespaces are catalog schema names a tenant table must never collide with.
var reservedNamespaces = map[string]bool{
	"pg_catalog":         true,
	"information_schema": true,
	"pg_toast":           true,
	"pg_temp":            true,
}

// allowedBaseTypes is the closed whitelist of column base types.
var allowedBaseTypes = map[string]bool{
	// textual
	"text": true, "varchar": true, "character varying": true,
	"char": true, "character": true,
	// integer / serial family
	"smallint": true, "integer": true, "int": true,
	"int2": true, "int4": true, "int8": true, "bigint": true,
	"smallserial": true, "serial": true, "bigserial": true,
	// boolean
	"boolean": true, "bool": true,
	// temporal
	"date": true, "time": true, "timestamp": true, "timestamptz": true,
	"timestamp with time zone": true, "timestamp without time zone": true,
	"time with time zone": true, "time without time zone": true,
	// uuid, json
	"uuid": true, "json": true, "jsonb": true,
	// numeric
	"numeric": true, "decimal": true, "real": true,
	"double precision": true, "float4": true, "float8": true,
	// binary
	"bytea": true,
}

// allowedDefaultCalls is the closed set of zero-argument function calls
// accepted as column defaults. Keys are lower-cased.
var allowedDefaultCalls = map[string]bool{
	"now()":             true,
	"gen_random_uuid()": true,
	"current_timestamp": true,
}

// numericLiteralRe matches integer and decimal literals, optionally signed.
var numericLiteralRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// ValidateIdentifier checks that name is a safe SQL identifier:
//   - Non-empty
//   - At most 63 bytes
//   - Matches [a-zA-Z_][a-zA-Z0-9_]*
//   - Not a reserved catalog namespace (pg_catalog, information_schema, ...)
func ValidateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("name is required")
	}
	if len(name) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("name must match [a-zA-Z_][a-zA-Z0-9_]*")
	}
	if reservedNamespaces[strings.ToLower(name)] {
		return fmt.Errorf("name %q collides with a reserved catalog namespace", name)
	}
	return nil
}

// QuoteIdentifier wraps a SQL identifier in double quotes, escaping any
// embedded double-quote characters by doubling them (standard SQL).
//
// Always quotes unconditionally; the caller should validate first if needed.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// ValidateColumnType checks that typeName is a safe PostgreSQL column type:
//   - Non-empty, at most 64 characters
//   - Shaped like a type keyword with optional precision/scale parameters
//   - Base keyword present in the type whitelist
func ValidateColumnType(typeName string) error {
	if typeName == "" {
		return fmt.Errorf("column type is required")
	}
	if len(typeName) > maxColumnTypeLen {
		return fmt.Errorf("column type must be at most %d characters", maxColumnTypeLen)
	}
	// Reject obvious injection patterns before the shape check.
	if strings.ContainsAny(typeName, ";-'\"\\") {
		return fmt.Errorf("column type contains invalid characters")
	}
	m := columnTypeRe.FindStringSubmatch(strings.TrimSpace(typeName))
	if m == nil {
		return fmt.Errorf("column type %q is not a recognized type pattern", typeName)
	}
	base := strings.Join(strings.Fields(strings.ToLower(m[1])), " ")
	if !allowedBaseTypes[base] {
		return fmt.Errorf("column type %q is not in the supported type whitelist", base)
	}
	return nil
}

// ValidateDefaultExpression checks a column default against the closed set of
// accepted literal forms: numeric literals, single-quoted string literals
// with no embedded unescaped quote, boolean literals, and a short allowlist
// of zero-argument function calls.
//
// Defaults are concatenated into DDL text (PostgreSQL does not support bound
// parameters there), so this whitelist is the primary defense against
// DDL-time injection through default values.
func ValidateDefaultExpression(expr string) error {
	if expr == "" {
		return fmt.Errorf("default expression is required")
	}
	lower := strings.ToLower(strings.TrimSpace(expr))
	if lower == "true" || lower == "false" {
		return nil
	}
	if allowedDefaultCalls[lower] {
		return nil
	}
	if numericLiteralRe.MatchString(lower) {
		return nil
	}
	if isQuotedStringLiteral(expr) {
		return nil
	}
	return fmt.Errorf("default expression %q is not a supported literal form", expr)
}

// isQuotedStringLiteral reports whether expr is a well-formed single-quoted
// string literal. Embedded quotes must be escaped by doubling (”).
func isQuotedStringLiteral(expr string) bool {
	if len(expr) < 2 || expr[0] != '\'' || expr[len(expr)-1] != '\'' {
		return false
	}
	body := expr[1 : len(expr)-1]
	for i := 0; i < len(body); i++ {
		if body[i] != '\'' {
			continue
		}
		// A quote inside the body must be the first half of a doubled pair.
		if i+1 >= len(body) || body[i+1] != '\'' {
			return false
		}
		i++
	}
	return true
}

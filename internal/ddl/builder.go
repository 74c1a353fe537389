package ddl

import (
	"fmt"
	"strings"

	"basehub/internal/domain"
)

// maxTableColumns bounds CREATE TABLE column counts. Enforced before any SQL
// is built.
const maxTableColumns = 100

// CreateTable returns a PostgreSQL DDL statement:
//
//	CREATE TABLE "t" ("c1" TYPE1 [NOT NULL] [PRIMARY KEY] [UNIQUE] [DEFAULT ...] [REFERENCES "t2"("c2")], ...)
//
// Every identifier is validated and quoted; default expressions pass the
// literal-form whitelist before being concatenated.
func CreateTable(table string, columns []domain.ColumnDefinition) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if len(columns) == 0 {
		return "", fmt.Errorf("at least one column is required")
	}
	if len(columns) > maxTableColumns {
		return "", fmt.Errorf("at most %d columns are allowed, got %d", maxTableColumns, len(columns))
	}

	colDefs := make([]string, 0, len(columns))
	for _, c := range columns {
		def, err := columnClause(c)
		if err != nil {
			return "", err
		}
		colDefs = append(colDefs, def)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", QuoteIdentifier(table), strings.Join(colDefs, ", ")), nil
}

// DropTable returns a PostgreSQL DDL statement: DROP TABLE "t".
func DropTable(table string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	return fmt.Sprintf("DROP TABLE %s", QuoteIdentifier(table)), nil
}

// AddColumn returns a PostgreSQL DDL statement:
// ALTER TABLE "t" ADD COLUMN "c" TYPE [constraints...].
func AddColumn(table string, column domain.ColumnDefinition) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	def, err := columnClause(column)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", QuoteIdentifier(table), def), nil
}

// DropColumn returns a PostgreSQL DDL statement: ALTER TABLE "t" DROP COLUMN "c".
func DropColumn(table, column string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid column name: %w", err)
	}
	return fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", QuoteIdentifier(table), QuoteIdentifier(column)), nil
}

// RenameTable returns a PostgreSQL DDL statement: ALTER TABLE "t" RENAME TO "t2".
func RenameTable(table, newName string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if err := ValidateIdentifier(newName); err != nil {
		return "", fmt.Errorf("invalid new table name: %w", err)
	}
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", QuoteIdentifier(table), QuoteIdentifier(newName)), nil
}

// RenameColumn returns a PostgreSQL DDL statement:
// ALTER TABLE "t" RENAME COLUMN "c" TO "c2".
func RenameColumn(table, column, newName string) (string, error) {
	if err := ValidateIdentifier(table); err != nil {
		return "", fmt.Errorf("invalid table name: %w", err)
	}
	if err := ValidateIdentifier(column); err != nil {
		return "", fmt.Errorf("invalid column name: %w", err)
	}
	if err := ValidateIdentifier(newName); err != nil {
		return "", fmt.Errorf("invalid new column name: %w", err)
	}
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		QuoteIdentifier(table),
		QuoteIdentifier(column),
		QuoteIdentifier(newName),
	), nil
}

// columnClause renders one validated column definition.
func columnClause(c domain.ColumnDefinition) (string, error) {
	if err := ValidateIdentifier(c.Name); err != nil {
		return "", fmt.Errorf("invalid column name %q: %w", c.Name, err)
	}
	if err := ValidateColumnType(c.Type); err != nil {
		return "", fmt.Errorf("invalid column type for %q: %w", c.Name, err)
	}

	var b strings.Builder
	b.WriteString(QuoteIdentifier(c.Name))
	b.WriteByte(' ')
	b.WriteString(c.Type)

	if !c.IsNullable() {
		b.WriteString(" NOT NULL")
	}
	if c.PrimaryKey {
		b.WriteString(" PRIMARY KEY")
	}
	if c.Unique {
		b.WriteString(" UNIQUE")
	}
	if c.Default != "" {
		if err := ValidateDefaultExpression(c.Default); err != nil {
			return "", fmt.Errorf("invalid default for %q: %w", c.Name, err)
		}
		b.WriteString(" DEFAULT ")
		b.WriteString(c.Default)
	}
	if c.References != nil {
		if err := ValidateIdentifier(c.References.Table); err != nil {
			return "", fmt.Errorf("invalid referenced table for %q: %w", c.Name, err)
		}
		if err := ValidateIdentifier(c.References.Column); err != nil {
			return "", fmt.Errorf("invalid referenced column for %q: %w", c.Name, err)
		}
		fmt.Fprintf(&b, " REFERENCES %s(%s)",
			QuoteIdentifier(c.References.Table),
			QuoteIdentifier(c.References.Column))
	}
	return b.String(), nil
}

package warehouse

import (
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/vnquant/marketlake/pkg/lake"
)

// Column is one warehouse column with its SQL type.
type Column struct {
	Name string
	Type string
}

// TableSpec declares one destination table. UniqueKey is the ordered,
// non-empty column set defining row identity; leaving it empty switches
// the writer to append-only mode.
type TableSpec struct {
	Schema    string
	Name      string
	Columns   []Column
	UniqueKey []string
}

// Validate rejects specs the writer cannot load into.
func (t TableSpec) Validate() error {
	if t.Schema == "" || t.Name == "" {
		return fmt.Errorf("table spec: schema and name required")
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("table spec %s.%s: at least one column required", t.Schema, t.Name)
	}
	declared := map[string]bool{}
	for _, c := range t.Columns {
		declared[c.Name] = true
	}
	for _, k := range t.UniqueKey {
		if !declared[k] {
			return fmt.Errorf("table spec %s.%s: unique key column %q not declared", t.Schema, t.Name, k)
		}
	}
	return nil
}

// qualified returns the quoted schema-qualified table name.
func (t TableSpec) qualified() string {
	return pq.QuoteIdentifier(t.Schema) + "." + pq.QuoteIdentifier(t.Name)
}

// columnNames returns the declared column names in order.
func (t TableSpec) columnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// createSQL renders CREATE TABLE IF NOT EXISTS for the destination.
func (t TableSpec) createSQL() string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		defs[i] = pq.QuoteIdentifier(c.Name) + " " + c.Type
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.qualified(), strings.Join(defs, ", "))
}

// deleteMatchingSQL renders the equi-join delete that clears superseded
// rows from the destination before staging rows are inserted.
func (t TableSpec) deleteMatchingSQL(staging string) string {
	conds := make([]string, len(t.UniqueKey))
	for i, k := range t.UniqueKey {
		q := pq.QuoteIdentifier(k)
		conds[i] = fmt.Sprintf("t.%s = s.%s", q, q)
	}
	return fmt.Sprintf("DELETE FROM %s t USING %s s WHERE %s",
		t.qualified(), staging, strings.Join(conds, " AND "))
}

// insertFromSQL renders the staging-to-destination insert.
func (t TableSpec) insertFromSQL(staging string) string {
	cols := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = pq.QuoteIdentifier(c.Name)
	}
	list := strings.Join(cols, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", t.qualified(), list, list, staging)
}

// sqlTypeOf maps a lake field type onto its Postgres column type.
func sqlTypeOf(t lake.FieldType) string {
	switch t {
	case lake.Int64:
		return "BIGINT"
	case lake.Float64:
		return "DOUBLE PRECISION"
	case lake.Bool:
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

// TableFor derives a table spec from a record set's schema: same columns,
// lake types mapped onto Postgres types.
func TableFor(schema, name string, rs *lake.RecordSet, uniqueKey ...string) TableSpec {
	spec := TableSpec{Schema: schema, Name: name, UniqueKey: uniqueKey}
	for _, f := range rs.Schema.Fields {
		spec.Columns = append(spec.Columns, Column{Name: f.Name, Type: sqlTypeOf(f.Type)})
	}
	return spec
}

package lake

import "fmt"

// PartitionTagColumn is the synthetic column added when partition-shaped
// rows are produced from somewhere other than the requested partition
// object (unpartitioned fallback, merged multi-partition loads). It carries
// the partition key the caller asked for.
const PartitionTagColumn = "_partition_key"

// FieldType enumerates the primitive column types a lake schema supports.
type FieldType int

const (
	String FieldType = iota
	Int64
	Float64
	Bool
)

func (t FieldType) String() string {
	switch t {
	case String:
		return "string"
	case Int64:
		return "int64"
	case Float64:
		return "float64"
	case Bool:
		return "bool"
	}
	return fmt.Sprintf("fieldtype(%d)", int(t))
}

// Field is one named, typed column.
type Field struct {
	Name string
	Type FieldType
}

// Schema describes the flat column layout shared by every row of a record
// set. Field order is the declared column order.
type Schema struct {
	Name   string
	Fields []Field
}

// HasField reports whether the schema declares a column with that name.
func (s Schema) HasField(name string) bool {
	for _, f := range s.Fields {
		if f.Name == name {
			return true
		}
	}
	return false
}

// WithField returns a copy of the schema with the column appended, or the
// schema unchanged when the column already exists.
func (s Schema) WithField(f Field) Schema {
	if s.HasField(f.Name) {
		return s
	}
	out := Schema{Name: s.Name, Fields: make([]Field, len(s.Fields), len(s.Fields)+1)}
	copy(out.Fields, s.Fields)
	out.Fields = append(out.Fields, f)
	return out
}

// Union returns a copy of the schema widened with every column of other
// it does not already declare. Existing columns keep their position.
func (s Schema) Union(other Schema) Schema {
	out := s
	for _, f := range other.Fields {
		out = out.WithField(f)
	}
	return out
}

// Record is one row. Values are nil or one of string, int64, float64, bool,
// keyed by column name. Absent keys read as nil.
type Record map[string]any

// StringAt returns the row's value in the named column rendered as a
// string, empty when the value is nil or absent.
func (r Record) StringAt(column string) string {
	v, ok := r[column]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// clone copies the row so tagged or merged sets never alias their inputs.
func (r Record) clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// RecordSet is an ordered sequence of rows sharing one schema. A set is
// owned exclusively by the partition that materialized it and is immutable
// once written: overwrites replace it wholesale, never patch it in place.
type RecordSet struct {
	Schema  Schema
	Records []Record
}

// NewRecordSet builds a record set over the given schema.
func NewRecordSet(schema Schema, records ...Record) *RecordSet {
	return &RecordSet{Schema: schema, Records: records}
}

// Len returns the number of rows.
func (rs *RecordSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.Records)
}

// Append adds rows to the set.
func (rs *RecordSet) Append(records ...Record) {
	rs.Records = append(rs.Records, records...)
}

// Distinct returns the distinct values of the named column rendered as
// strings, in first-seen order.
func (rs *RecordSet) Distinct(column string) []string {
	if rs == nil {
		return nil
	}
	seen := map[string]bool{}
	var out []string
	for _, r := range rs.Records {
		v := r.StringAt(column)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// GroupBy splits the set by the rendered value of the named column,
// preserving row order inside each group. Group keys come back in
// first-seen order.
func (rs *RecordSet) GroupBy(column string) (keys []string, groups map[string]*RecordSet) {
	groups = map[string]*RecordSet{}
	for _, r := range rs.Records {
		k := r.StringAt(column)
		g, ok := groups[k]
		if !ok {
			g = NewRecordSet(rs.Schema)
			groups[k] = g
			keys = append(keys, k)
		}
		g.Append(r)
	}
	return keys, groups
}

// FilterEq returns the rows whose rendered value in the named column equals
// want, preserving order.
func (rs *RecordSet) FilterEq(column, want string) *RecordSet {
	out := NewRecordSet(rs.Schema)
	for _, r := range rs.Records {
		if r.StringAt(column) == want {
			out.Append(r)
		}
	}
	return out
}

// Tagged returns a copy of the set with the tag column set to value on
// every row. The column is appended to the schema when missing.
func (rs *RecordSet) Tagged(column, value string) *RecordSet {
	out := NewRecordSet(rs.Schema.WithField(Field{Name: column, Type: String}))
	for _, r := range rs.Records {
		c := r.clone()
		c[column] = value
		out.Append(c)
	}
	return out
}

// MergeByEntity overlays fetched rows onto existing ones: rows of existing
// whose entity column value also appears in fetched are dropped, then all
// fetched rows are appended. Used by partial-retry resumes where a previous
// run already wrote part of a partition.
func MergeByEntity(existing, fetched *RecordSet, entityColumn string) *RecordSet {
	if existing.Len() == 0 {
		return fetched
	}
	if fetched.Len() == 0 {
		return existing
	}
	replaced := map[string]bool{}
	for _, e := range fetched.Distinct(entityColumn) {
		replaced[e] = true
	}
	out := NewRecordSet(fetched.Schema.Union(existing.Schema))
	for _, r := range existing.Records {
		if !replaced[r.StringAt(entityColumn)] {
			out.Append(r)
		}
	}
	out.Append(fetched.Records...)
	return out
}

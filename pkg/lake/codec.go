package lake

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

// The lake stores every partition as one snappy-compressed parquet object.
// The parquet footer carries the schema, so objects are self-describing:
// decoding never consults anything but the bytes themselves. Note that
// parquet groups order columns alphabetically, so a decoded schema lists
// fields in name order, not declaration order.

// parquetSchema maps a lake schema onto a parquet schema. Every column is
// optional: fetched rows routinely miss values and the tag column is
// appended after the fact.
func parquetSchema(s Schema) (*parquet.Schema, error) {
	group := parquet.Group{}
	for _, f := range s.Fields {
		var node parquet.Node
		switch f.Type {
		case String:
			node = parquet.String()
		case Int64:
			node = parquet.Int(64)
		case Float64:
			node = parquet.Leaf(parquet.DoubleType)
		case Bool:
			node = parquet.Leaf(parquet.BooleanType)
		default:
			return nil, fmt.Errorf("schema %q: column %q has unsupported type %s", s.Name, f.Name, f.Type)
		}
		group[f.Name] = parquet.Optional(node)
	}
	name := s.Name
	if name == "" {
		name = "records"
	}
	return parquet.NewSchema(name, group), nil
}

// EncodeParquet serializes the record set into a parquet object. Empty
// sets are rejected: the lake never materializes empty partitions.
func EncodeParquet(rs *RecordSet) ([]byte, error) {
	if rs.Len() == 0 || len(rs.Schema.Fields) == 0 {
		return nil, errors.New("encode parquet: empty record set")
	}
	schema, err := parquetSchema(rs.Schema)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	w := parquet.NewWriter(buf, schema, parquet.Compression(&parquet.Snappy))
	for _, rec := range rs.Records {
		row := schema.Deconstruct(nil, map[string]any(rec))
		if _, err := w.WriteRows([]parquet.Row{row}); err != nil {
			return nil, fmt.Errorf("write row: %w", err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeParquet deserializes a parquet object back into a record set,
// recovering the schema from the file footer.
func DecodeParquet(name string, data []byte) (*RecordSet, error) {
	f, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open parquet object: %w", err)
	}

	schema, err := lakeSchema(name, f.Schema())
	if err != nil {
		return nil, err
	}
	rs := NewRecordSet(schema)

	for _, rg := range f.RowGroups() {
		if err := readRowGroup(f.Schema(), rg, rs); err != nil {
			return nil, err
		}
	}
	return rs, nil
}

func readRowGroup(schema *parquet.Schema, rg parquet.RowGroup, rs *RecordSet) error {
	rows := rg.Rows()
	defer rows.Close()

	buf := make([]parquet.Row, 64)
	for {
		n, err := rows.ReadRows(buf)
		for _, row := range buf[:n] {
			m := map[string]any{}
			if rerr := schema.Reconstruct(&m, row); rerr != nil {
				return fmt.Errorf("reconstruct row: %w", rerr)
			}
			rs.Append(normalizeRecord(m))
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read rows: %w", err)
		}
		if n == 0 {
			return nil
		}
	}
}

// lakeSchema recovers the lake schema from the parquet file schema.
func lakeSchema(name string, ps *parquet.Schema) (Schema, error) {
	out := Schema{Name: name}
	for _, field := range ps.Fields() {
		if !field.Leaf() {
			return Schema{}, fmt.Errorf("column %q: nested parquet groups are not lake columns", field.Name())
		}
		var t FieldType
		switch field.Type().Kind() {
		case parquet.ByteArray, parquet.FixedLenByteArray:
			t = String
		case parquet.Int32, parquet.Int64:
			t = Int64
		case parquet.Float, parquet.Double:
			t = Float64
		case parquet.Boolean:
			t = Bool
		default:
			return Schema{}, fmt.Errorf("column %q: unsupported parquet kind %s", field.Name(), field.Type().Kind())
		}
		out.Fields = append(out.Fields, Field{Name: field.Name(), Type: t})
	}
	return out, nil
}

// normalizeRecord coerces reconstructed values onto the lake's primitive
// types so decoded rows compare equal to the rows that were written.
func normalizeRecord(m map[string]any) Record {
	rec := make(Record, len(m))
	for k, v := range m {
		switch x := v.(type) {
		case []byte:
			rec[k] = string(x)
		case int:
			rec[k] = int64(x)
		case int32:
			rec[k] = int64(x)
		case float32:
			rec[k] = float64(x)
		default:
			rec[k] = v
		}
	}
	return rec
}

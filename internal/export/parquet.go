// Package export serializes the engineered panel and its label summary.
package export

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/apache/arrow/go/v14/parquet"
	"github.com/apache/arrow/go/v14/parquet/compress"
	"github.com/apache/arrow/go/v14/parquet/pqarrow"

	"github.com/KaramelBytes/earlywarn-cli/internal/panel"
)

func arrowType(k panel.Kind) arrow.DataType {
	switch k {
	case panel.KindFloat:
		return arrow.PrimitiveTypes.Float64
	case panel.KindInt:
		return arrow.PrimitiveTypes.Int64
	case panel.KindMonth:
		return arrow.FixedWidthTypes.Date32
	default:
		return arrow.BinaryTypes.String
	}
}

// ArrowSchema maps the panel schema to Arrow; every field is nullable and
// months are stored as the first day of the month.
func ArrowSchema(t *panel.Table) *arrow.Schema {
	fields := make([]arrow.Field, 0, len(t.Columns()))
	for _, c := range t.Columns() {
		fields = append(fields, arrow.Field{Name: c.Name, Type: arrowType(c.Kind), Nullable: true})
	}
	return arrow.NewSchema(fields, nil)
}

// Record converts t into a single Arrow record. The caller releases it.
func Record(t *panel.Table) (arrow.Record, error) {
	schema := ArrowSchema(t)
	b := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer b.Release()

	for j, c := range t.Columns() {
		switch fb := b.Field(j).(type) {
		case *array.StringBuilder:
			for i := 0; i < c.Len(); i++ {
				if c.IsValid(i) {
					fb.Append(c.Text[i])
				} else {
					fb.AppendNull()
				}
			}
		case *array.Float64Builder:
			for i := 0; i < c.Len(); i++ {
				if c.IsValid(i) {
					fb.Append(c.Float[i])
				} else {
					fb.AppendNull()
				}
			}
		case *array.Int64Builder:
			for i := 0; i < c.Len(); i++ {
				if c.IsValid(i) {
					fb.Append(c.Int[i])
				} else {
					fb.AppendNull()
				}
			}
		case *array.Date32Builder:
			for i := 0; i < c.Len(); i++ {
				if m, ok := c.MonthAt(i); ok {
					fb.Append(arrow.Date32FromTime(m.Time()))
				} else {
					fb.AppendNull()
				}
			}
		default:
			return nil, fmt.Errorf("column %q: unsupported builder %T", c.Name, fb)
		}
	}
	return b.NewRecord(), nil
}

// EncodeParquet writes t as a snappy-compressed Parquet file.
func EncodeParquet(t *panel.Table) ([]byte, error) {
	rec, err := Record(t)
	if err != nil {
		return nil, err
	}
	defer rec.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	w, err := pqarrow.NewFileWriter(rec.Schema(), &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("parquet writer: %w", err)
	}
	if err := w.Write(rec); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("parquet write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("parquet close: %w", err)
	}
	return buf.Bytes(), nil
}

package postgres

import (
	"reflect"
	"sync"
)

// rowMeta is the cached "db" tag layout of a row struct.
type rowMeta struct {
	columns []string
	paths   [][]int // field index path of each column
}

var rowCache sync.Map // map[reflect.Type]*rowMeta

// ColumnsOf returns the "db" tag names of T in field order. Embedded structs
// are flattened in place.
//
// Usage:
//
//	builder.Select(ColumnsOf[movementRow]()...).From(movementsTable)
func ColumnsOf[T any]() []string {
	var zero T
	meta := metaOf(reflect.TypeOf(zero))
	return append([]string(nil), meta.columns...)
}

// RowValues returns the values of v's tagged fields in ColumnsOf order.
func RowValues(v any) []any {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	meta := metaOf(rv.Type())
	values := make([]any, len(meta.paths))
	for i, path := range meta.paths {
		values[i] = rv.FieldByIndex(path).Interface()
	}
	return values
}

func metaOf(t reflect.Type) *rowMeta {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if cached, ok := rowCache.Load(t); ok {
		return cached.(*rowMeta)
	}

	meta := &rowMeta{}
	collectColumns(t, nil, meta)
	actual, _ := rowCache.LoadOrStore(t, meta)
	return actual.(*rowMeta)
}

func collectColumns(t reflect.Type, prefix []int, meta *rowMeta) {
	if t.Kind() != reflect.Struct {
		return
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		path := append(append([]int(nil), prefix...), i)

		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			collectColumns(field.Type, path, meta)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		meta.columns = append(meta.columns, tag)
		meta.paths = append(meta.paths, path)
	}
}

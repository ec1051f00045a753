package utils

import (
	"fmt"
	"reflect"
)

var ColumnTag = "db"

// StructTagValues lists the column names of a db-tagged struct in field
// order. Embedded structs are flattened.
func StructTagValues(input any) []string {
	var columns []string
	walkColumns(structValue(input), func(column string, _ reflect.Value) {
		columns = append(columns, column)
	})
	return columns
}

// StructToMap maps column names to field values for squirrel SetMap.
func StructToMap(input any, omit ...string) map[string]any {
	result := make(map[string]any)
	walkColumns(structValue(input), func(column string, value reflect.Value) {
		result[column] = value.Interface()
	})

	for _, column := range omit {
		delete(result, column)
	}

	return result
}

func structValue(input any) reflect.Value {
	v := reflect.ValueOf(input)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		panic("input must be a pointer to a struct or a struct")
	}
	return v
}

// walkColumns calls visit for every exported field carrying a column tag.
// Untagged embedded structs contribute their own columns in place.
func walkColumns(v reflect.Value, visit func(column string, value reflect.Value)) {
	t := v.Type()
	for i := range t.NumField() {
		field := t.Field(i)
		if field.PkgPath != "" {
			continue
		}

		column := field.Tag.Get(ColumnTag)
		switch {
		case column == "" && field.Anonymous && field.Type.Kind() == reflect.Struct:
			walkColumns(v.Field(i), visit)
		case column == "", column == "-":
		default:
			visit(column, v.Field(i))
		}
	}
}

func ErrorWrapOrNil(err error, msg string) error {
	if err == nil {
		return nil
	}

	if msg == "" {
		return err
	}

	return fmt.Errorf("%s: %w", msg, err)
}

package datalog

import (
	"reflect"
	"strings"
)

type sqliteMarshal struct {
	FieldType string
	Marshal   func(v reflect.Value) interface{}
}

func boolMarshal(v reflect.Value) interface{} {
	if v.Bool() {
		return 1
	}
	return 0
}

func intMarshal(v reflect.Value) interface{}    { return v.Int() }
func uintMarshal(v reflect.Value) interface{}   { return int64(v.Uint()) }
func floatMarshal(v reflect.Value) interface{}  { return v.Float() }
func stringMarshal(v reflect.Value) interface{} { return v.String() }

var sqliteMarshalFunctions = map[string]sqliteMarshal{
	"bool":   {FieldType: "INTEGER", Marshal: boolMarshal},
	"int":    {FieldType: "INTEGER", Marshal: intMarshal},
	"uint":   {FieldType: "INTEGER", Marshal: uintMarshal},
	"float":  {FieldType: "REAL", Marshal: floatMarshal},
	"string": {FieldType: "TEXT", Marshal: stringMarshal},
}

var sqlTypeMap = map[reflect.Kind]string{
	reflect.Bool:    "bool",
	reflect.Int:     "int",
	reflect.Int8:    "int",
	reflect.Int16:   "int",
	reflect.Int32:   "int",
	reflect.Int64:   "int",
	reflect.Uint:    "uint",
	reflect.Uint8:   "uint",
	reflect.Uint16:  "uint",
	reflect.Uint32:  "uint",
	reflect.Uint64:  "uint",
	reflect.Float32: "float",
	reflect.Float64: "float",
	reflect.String:  "string",
}

// column is one scalar field of a logged struct.
type column struct {
	name    string
	index   int
	marshal func(v reflect.Value) interface{}
	sqlType string
}

// columnsOf lists the fields of t that map onto SQLite types. Other kinds
// are skipped.
func columnsOf(t reflect.Type) []column {
	var cols []column
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		alias, ok := sqlTypeMap[f.Type.Kind()]
		if !ok || !f.IsExported() {
			continue
		}
		m := sqliteMarshalFunctions[alias]
		cols = append(cols, column{name: f.Name, index: i, marshal: m.Marshal, sqlType: m.FieldType})
	}
	return cols
}

func createTableSQL(tbl string, cols []column, extra ...string) string {
	fields := make([]string, 0, len(cols)+len(extra))
	for _, c := range cols {
		fields = append(fields, c.name+" "+c.sqlType)
	}
	fields = append(fields, extra...)
	return "CREATE TABLE IF NOT EXISTS " + tbl +
		" (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, " + strings.Join(fields, ", ") + ")"
}

func insertSQL(tbl string, cols []column, extra ...string) string {
	keys := make([]string, 0, len(cols)+len(extra))
	for _, c := range cols {
		keys = append(keys, c.name)
	}
	keys = append(keys, extra...)
	return "INSERT INTO " + tbl + " (" + strings.Join(keys, ",") + ") VALUES(" +
		strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",") + ")"
}

func values(v reflect.Value, cols []column, extra ...interface{}) []interface{} {
	out := make([]interface{}, 0, len(cols)+len(extra))
	for _, c := range cols {
		out = append(out, c.marshal(v.Field(c.index)))
	}
	return append(out, extra...)
}

func joinComma(names []string) string { return strings.Join(names, ",") }

// Package export turns stored rows into CSV- and JSON-safe values.
package export

import (
	"bytes"
	"encoding/json"
	"reflect"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/models"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

const csvTimeLayout = "2006-01-02 15:04:05"

// CSVValue renders v as a CSV cell.
func CSVValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case bool:
		if val {
			return "Yes"
		}
		return "No"
	case models.VerificationStatus:
		return val.Value()
	case time.Time:
		return val.Format(csvTimeLayout)
	case *time.Time:
		if val == nil {
			return ""
		}
		return val.Format(csvTimeLayout)
	case primitive.DateTime:
		return val.Time().UTC().Format(csvTimeLayout)
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	if structured(v) {
		return jsonText(v)
	}
	return utils.ToString(v)
}

// JSONValue renders v for a JSON document. Only statuses and times change.
func JSONValue(v interface{}) interface{} {
	switch val := v.(type) {
	case models.VerificationStatus:
		return val.Value()
	case time.Time:
		return val.Format(time.RFC3339)
	case *time.Time:
		if val == nil {
			return nil
		}
		return val.Format(time.RFC3339)
	case primitive.DateTime:
		return val.Time().UTC().Format(time.RFC3339)
	}
	return v
}

// CSVRow renders row positionally in field order. Missing fields are empty.
func CSVRow(row store.Row, fields []string) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = CSVValue(row[f])
	}
	return out
}

// Field is one key/value pair of an ordered JSON object.
type Field struct {
	Name  string
	Value interface{}
}

// OrderedRow marshals as a JSON object keeping field order.
type OrderedRow []Field

func (r OrderedRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Name)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the value for name.
func (r OrderedRow) Get(name string) (interface{}, bool) {
	for _, f := range r {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// JSONRow renders row keyed by field in field order. A missing field is an error.
func JSONRow(row store.Row, fields []string) (OrderedRow, error) {
	out := make(OrderedRow, 0, len(fields))
	for _, f := range fields {
		v, ok := row[f]
		if !ok {
			return nil, apperr.New(apperr.InvalidInput, "row has no field %q", f)
		}
		out = append(out, Field{Name: f, Value: JSONValue(v)})
	}
	return out, nil
}

func structured(v interface{}) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Slice, reflect.Array, reflect.Map, reflect.Struct:
		_, isBytes := v.([]byte)
		return !isBytes
	case reflect.Ptr:
		rv := reflect.ValueOf(v)
		return !rv.IsNil() && structured(rv.Elem().Interface())
	}
	return false
}

func jsonText(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return utils.ToString(v)
	}
	return string(data)
}

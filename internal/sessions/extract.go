package sessions

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/BartekS5/casemigrate/pkg/utils"
)

// idKeys are checked in priority order on structured session entries.
var idKeys = []string{"session_id", "SessionId", "Session"}

// NormalizeSessions turns whatever a case stores under "sessions" into a
// flat list of entries: nil becomes an empty list, a single entry becomes
// a one-element list, and JSON text is decoded first.
func NormalizeSessions(field interface{}) ([]interface{}, error) {
	switch v := field.(type) {
	case nil:
		return []interface{}{}, nil
	case []interface{}:
		return v, nil
	case map[string]interface{}:
		return []interface{}{v}, nil
	case string:
		s := strings.TrimSpace(v)
		if s == "" {
			return []interface{}{}, nil
		}
		if strings.HasPrefix(s, "[") || strings.HasPrefix(s, "{") {
			var decoded interface{}
			if err := json.Unmarshal([]byte(s), &decoded); err != nil {
				return nil, fmt.Errorf("sessions field holds invalid JSON: %w", err)
			}
			return NormalizeSessions(decoded)
		}
		return []interface{}{s}, nil
	case bool:
		return nil, fmt.Errorf("sessions field has unsupported type %T", v)
	}

	rv := reflect.ValueOf(field)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]interface{}, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("sessions field has unsupported type %T", field)
		}
		return []interface{}{toStringMap(rv)}, nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return []interface{}{field}, nil
	}
	return nil, fmt.Errorf("sessions field has unsupported type %T", field)
}

// ExtractSessionID pulls a session id out of one entry. It never fails:
// entries without a usable id report ok=false.
func ExtractSessionID(entry interface{}) (id string, ok bool) {
	switch v := entry.(type) {
	case nil, bool:
		return "", false
	case string:
		s := strings.TrimSpace(v)
		return s, s != ""
	case map[string]interface{}:
		for _, k := range idKeys {
			if val, found := v[k]; found && val != nil {
				if id, ok := ExtractSessionID(val); ok {
					return id, true
				}
			}
		}
		return "", false
	}

	rv := reflect.ValueOf(entry)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		s := utils.ToString(entry)
		return s, s != ""
	case reflect.Map:
		if rv.Type().Key().Kind() == reflect.String {
			return ExtractSessionID(toStringMap(rv))
		}
	}
	return "", false
}

// ExtractSessionIDs normalises field and extracts every id, in order,
// duplicates included.
func ExtractSessionIDs(field interface{}) ([]string, error) {
	entries, err := NormalizeSessions(field)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if id, ok := ExtractSessionID(e); ok {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func toStringMap(rv reflect.Value) map[string]interface{} {
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out
}

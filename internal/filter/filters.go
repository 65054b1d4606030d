// Package filter holds the typed, resource-scoped query filters sent with
// every page fetch.
package filter

import (
	"encoding/json"
	"strings"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

// Entry is one set filter.
type Entry struct {
	Type  Type        `json:"type"`
	Value interface{} `json:"value"`
}

// Filters maps filter keys to values. Keys are always normalised through
// Resolve, so "pageSize", "PAGE_SIZE" and PageSize address the same entry.
type Filters struct {
	values map[Type]interface{}
}

func New() *Filters {
	return &Filters{values: make(map[Type]interface{})}
}

// FromMap builds Filters from loosely keyed input.
func FromMap(in map[string]interface{}) (*Filters, error) {
	f := New()
	for k, v := range in {
		if err := f.Set(k, v); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Set stores value under key. A nil value unsets the key.
func (f *Filters) Set(key, value interface{}) error {
	t, err := Resolve(key)
	if err != nil {
		return err
	}
	if value == nil {
		delete(f.values, t)
		return nil
	}
	f.values[t] = value
	return nil
}

// Get returns the value for key. An unknown key is an error; a known but
// unset key returns ok=false.
func (f *Filters) Get(key interface{}) (value interface{}, ok bool, err error) {
	t, err := Resolve(key)
	if err != nil {
		return nil, false, err
	}
	value, ok = f.values[t]
	return value, ok, nil
}

// Int returns an integer filter, or def when unset or not numeric.
func (f *Filters) Int(t Type, def int) int {
	v, ok := f.values[t]
	if !ok {
		return def
	}
	n, err := utils.ConvertToInt(v)
	if err != nil {
		return def
	}
	return n
}

// All returns a copy of every set filter.
func (f *Filters) All() map[Type]interface{} {
	out := make(map[Type]interface{}, len(f.values))
	for k, v := range f.values {
		out[k] = v
	}
	return out
}

// ByResource projects the filters legal for the given resource type, in
// declaration order, skipping unset keys.
func (f *Filters) ByResource(rt interface{}) ([]Entry, error) {
	t, err := resource.Resolve(rt)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(f.values))
	for _, ft := range All {
		if !allowed(t, ft) {
			continue
		}
		if v, ok := f.values[ft]; ok {
			out = append(out, Entry{Type: ft, Value: v})
		}
	}
	return out, nil
}

// Params renders ByResource as a PascalCase keyed map for the remote API.
func (f *Filters) Params(rt interface{}) (map[string]interface{}, error) {
	entries, err := f.ByResource(rt)
	if err != nil {
		return nil, err
	}
	out := make(map[string]interface{}, len(entries))
	for _, e := range entries {
		out[utils.Pascal(e.Type.Value())] = e.Value
	}
	return out, nil
}

// Snapshot returns the set filters keyed by their values, for persistence.
func (f *Filters) Snapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(f.values))
	for k, v := range f.values {
		out[k.Value()] = v
	}
	return out
}

func (f *Filters) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Snapshot())
}

func (f *Filters) UnmarshalJSON(data []byte) error {
	var in map[string]interface{}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	parsed, err := FromMap(in)
	if err != nil {
		return err
	}
	*f = *parsed
	return nil
}

// Coerce parses a raw command-line value into the type the API expects for t.
func Coerce(t Type, raw string) (interface{}, error) {
	raw = strings.TrimSpace(raw)
	switch t {
	case PageIndex, PageSize:
		n, err := utils.ConvertToInt(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "filter %s", t.Name())
		}
		return n, nil
	case IsAscending:
		b, err := utils.ConvertToBool(raw)
		if err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "filter %s", t.Name())
		}
		return b, nil
	case CreatedDateFrom, CreatedDateTo, EndDateFrom, EndDateTo:
		if _, err := utils.ConvertDateTime(raw); err != nil {
			return nil, apperr.Wrap(apperr.InvalidInput, err, "filter %s", t.Name())
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// ParseAssignments parses "key=value" pairs into Filters.
func ParseAssignments(pairs []string) (*Filters, error) {
	f := New()
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return nil, apperr.New(apperr.InvalidInput, "filter %q is not key=value", p)
		}
		t, err := Resolve(strings.TrimSpace(k))
		if err != nil {
			return nil, err
		}
		val, err := Coerce(t, v)
		if err != nil {
			return nil, err
		}
		f.values[t] = val
	}
	return f, nil
}

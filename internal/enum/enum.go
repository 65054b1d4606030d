// Package enum resolves loosely typed input (typed members, or strings in
// any case style or plural form) to members of a closed set.
//
// Members are tried in declaration order, so when two members share a
// mutated form the first one declared wins.
package enum

import (
	"github.com/jinzhu/inflection"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

// Member is implemented by every enum type in this module.
type Member interface {
	comparable
	// Name is the programmatic name, e.g. "SHALLOW_CASE".
	Name() string
	// Value is the backing value, e.g. "shallow_case".
	Value() string
}

// CanonicalForms lists every string that resolves to m.
func CanonicalForms[T Member](m T, includePlurals bool) []string {
	value := m.Value()
	forms := make([]string, 0, 22)
	forms = append(forms, m.Name(), value)
	if value == "" {
		return forms
	}
	forms = append(forms, utils.Mutations(value)...)
	if includePlurals {
		forms = append(forms, utils.Mutations(inflection.Plural(value))...)
	}
	return forms
}

// Resolve returns the first member of members matching input. Input may be
// a member of T or a string. enumName is used only in the error.
func Resolve[T Member](enumName string, members []T, input interface{}, includePlurals bool) (T, error) {
	var zero T
	switch v := input.(type) {
	case T:
		for _, m := range members {
			if m == v {
				return m, nil
			}
		}
	case string:
		for _, m := range members {
			for _, form := range CanonicalForms(m, includePlurals) {
				if form == v {
					return m, nil
				}
			}
		}
	}
	return zero, apperr.Resolution(enumName, input)
}

// ResolveAll resolves each input in order, failing on the first miss.
func ResolveAll[T Member](enumName string, members []T, inputs []interface{}, includePlurals bool) ([]T, error) {
	out := make([]T, 0, len(inputs))
	for _, in := range inputs {
		m, err := Resolve(enumName, members, in, includePlurals)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

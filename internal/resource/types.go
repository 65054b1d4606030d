// Package resource defines the migratable resource kinds and the registry
// that decides, against live storage, which of them may run.
package resource

import (
	"strings"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/enum"
	"github.com/BartekS5/casemigrate/pkg/models"
)

// Type is a kind of remote resource.
type Type string

const (
	Client            Type = "client"
	Case              Type = "case"
	ShallowCase       Type = "shallow_case"
	ShallowClosedCase Type = "shallow_closed_case"
	EnrichedCase      Type = "enriched_case"
	CaseClient        Type = "case_client"
	ClosedCase        Type = "closed_case"
	Session           Type = "session"
	FullClient        Type = "full_client"
	FullCase          Type = "full_case"
	FullSession       Type = "full_session"
)

// All lists every type in declaration order.
var All = []Type{
	Client, Case, ShallowCase, ShallowClosedCase, EnrichedCase, CaseClient,
	ClosedCase, Session, FullClient, FullCase, FullSession,
}

// Migratable lists the types a migration run may target.
var Migratable = []Type{Client, Case, ShallowCase, ShallowClosedCase, EnrichedCase, Session}

var dependencies = map[Type]Type{
	Session:      Case,
	EnrichedCase: ShallowCase,
	CaseClient:   Case,
}

var tables = map[Type]string{
	Client:            models.TableClients,
	Case:              models.TableCases,
	ShallowCase:       models.TableShallowCases,
	ShallowClosedCase: models.TableShallowCases,
	EnrichedCase:      models.TableEnrichedCases,
	Session:           models.TableSessions,
}

var keyFields = map[Type]string{
	Client:            models.FieldClientID,
	FullClient:        models.FieldClientID,
	CaseClient:        models.FieldClientID,
	Case:              models.FieldCaseID,
	ShallowCase:       models.FieldCaseID,
	ShallowClosedCase: models.FieldCaseID,
	EnrichedCase:      models.FieldCaseID,
	ClosedCase:        models.FieldCaseID,
	FullCase:          models.FieldCaseID,
	Session:           models.FieldSessionID,
	FullSession:       models.FieldSessionID,
}

func (t Type) Name() string   { return strings.ToUpper(string(t)) }
func (t Type) Value() string  { return string(t) }
func (t Type) String() string { return string(t) }

// Dependency returns the type whose stored data must exist before t may run.
func (t Type) Dependency() (Type, bool) {
	d, ok := dependencies[t]
	return d, ok
}

// IsMigratable reports the static flag only; see Registry.IsMigratable for
// the storage-aware check.
func (t Type) IsMigratable() bool {
	for _, m := range Migratable {
		if m == t {
			return true
		}
	}
	return false
}

// KeyField is the stored field uniquely identifying a record of type t.
func (t Type) KeyField() string {
	return keyFields[t]
}

// Verifiable reports whether rows of t carry a verification_status.
func (t Type) Verifiable() bool {
	switch t {
	case Case, ShallowCase, ShallowClosedCase:
		return true
	}
	return false
}

// TableName maps t to its storage target.
func TableName(t Type) (string, error) {
	name, ok := tables[t]
	if !ok {
		return "", apperr.Unsupported("storage target", t.Name())
	}
	return name, nil
}

// Resolve accepts a Type or any case/plural form of one ("Shallow Cases",
// "SHALLOW-CASE", "shallowCase").
func Resolve(input interface{}) (Type, error) {
	return enum.Resolve("ResourceType", All, input, true)
}

// Order resolves inputs and sorts them so that every dependency which is
// itself requested comes before its dependents. Otherwise input order is
// kept. Duplicates are dropped.
func Order(inputs []interface{}) ([]Type, error) {
	types, err := enum.ResolveAll("ResourceType", All, inputs, true)
	if err != nil {
		return nil, err
	}
	requested := make(map[Type]bool, len(types))
	for _, t := range types {
		requested[t] = true
	}
	seen := make(map[Type]bool, len(types))
	out := make([]Type, 0, len(types))
	var visit func(t Type)
	visit = func(t Type) {
		if seen[t] {
			return
		}
		seen[t] = true
		if dep, ok := t.Dependency(); ok && requested[dep] {
			visit(dep)
		}
		out = append(out, t)
	}
	for _, t := range types {
		visit(t)
	}
	return out, nil
}

package filter

import (
	"strings"

	"github.com/BartekS5/casemigrate/internal/enum"
	"github.com/BartekS5/casemigrate/internal/resource"
)

// Type is a query filter key understood by the remote API.
type Type string

const (
	PageIndex       Type = "page_index"
	PageSize        Type = "page_size"
	IsAscending     Type = "is_ascending"
	SortColumn      Type = "sort_column"
	CreatedDateFrom Type = "created_date_from"
	CreatedDateTo   Type = "created_date_to"
	EndDateFrom     Type = "end_date_from"
	EndDateTo       Type = "end_date_to"
)

// All lists every filter key in declaration order.
var All = []Type{
	PageIndex, PageSize, IsAscending, SortColumn,
	CreatedDateFrom, CreatedDateTo, EndDateFrom, EndDateTo,
}

var (
	ClientFilters  = []Type{PageIndex, PageSize, IsAscending, SortColumn, CreatedDateFrom, CreatedDateTo}
	CaseFilters    = []Type{PageIndex, PageSize, IsAscending, SortColumn, CreatedDateFrom, CreatedDateTo, EndDateFrom, EndDateTo}
	SessionFilters = []Type{PageIndex, PageSize, IsAscending, SortColumn, CreatedDateFrom, CreatedDateTo}
)

func (t Type) Name() string   { return strings.ToUpper(string(t)) }
func (t Type) Value() string  { return string(t) }
func (t Type) String() string { return string(t) }

// Resolve maps a Type or a string in any case style to a Type.
func Resolve(input interface{}) (Type, error) {
	return enum.Resolve("FilterType", All, input, false)
}

// ForResource returns the filter keys legal for rt's query surface.
func ForResource(rt resource.Type) []Type {
	switch rt {
	case resource.Client, resource.FullClient, resource.CaseClient:
		return ClientFilters
	case resource.Session, resource.FullSession:
		return SessionFilters
	default:
		return CaseFilters
	}
}

func allowed(rt resource.Type, t Type) bool {
	for _, a := range ForResource(rt) {
		if a == t {
			return true
		}
	}
	return false
}

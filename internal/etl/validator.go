package etl

import (
	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

type Validator struct{}

func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks that a transformed row carries its resource key.
func (v *Validator) Validate(rt resource.Type, row store.Row) error {
	key := rt.KeyField()
	val, ok := row[key]
	if !ok || val == nil || utils.ToString(val) == "" {
		return apperr.New(apperr.PartialRow, "%s row is missing %s", rt, key)
	}
	return nil
}

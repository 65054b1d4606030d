package config

import (
	"os"

	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/pkg/models"
)

// LoadMapping reads and parses an export mapping YAML file from the given path.
func LoadMapping(filePath string) (*models.ExportMapping, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read mapping file '%s'", filePath)
	}

	mapping, err := models.LoadMapping(bytes)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse mapping file '%s'", filePath)
	}
	return mapping, nil
}

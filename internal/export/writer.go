package export

import (
	"encoding/csv"
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/models"
)

// WriteCSV writes a header line of labels followed by one line per row.
func WriteCSV(w io.Writer, mapping models.HeaderMapping, rows []store.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(mapping.Labels()); err != nil {
		return errors.Wrap(err, "writing csv header")
	}
	fields := mapping.Fields()
	for i, row := range rows {
		if err := cw.Write(CSVRow(row, fields)); err != nil {
			return errors.Wrapf(err, "writing csv row %d", i)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes rows as a JSON array of objects ordered by mapping.
func WriteJSON(w io.Writer, mapping models.HeaderMapping, rows []store.Row) error {
	fields := mapping.Fields()
	out := make([]OrderedRow, 0, len(rows))
	for i, row := range rows {
		r, err := JSONRow(row, fields)
		if err != nil {
			return errors.Wrapf(err, "row %d", i)
		}
		out = append(out, r)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

var defaultMappings = map[resource.Type]models.HeaderMapping{
	resource.Client: {
		{Field: models.FieldClientID, Label: "Client ID"},
		{Field: "first_name", Label: "First Name"},
		{Field: "last_name", Label: "Last Name"},
		{Field: "created_date", Label: "Created"},
		{Field: models.FieldMigratedAt, Label: "Migrated At"},
	},
	resource.Case: {
		{Field: models.FieldCaseID, Label: "Case ID"},
		{Field: models.FieldClientID, Label: "Client ID"},
		{Field: "created_date", Label: "Created"},
		{Field: "end_date", Label: "Closed"},
		{Field: models.FieldSessions, Label: "Sessions"},
		{Field: models.FieldVerificationStatus, Label: "Verification"},
		{Field: models.FieldMigratedAt, Label: "Migrated At"},
	},
	resource.ShallowCase: {
		{Field: models.FieldCaseID, Label: "Case ID"},
		{Field: models.FieldClientID, Label: "Client ID"},
		{Field: models.FieldVerificationStatus, Label: "Verification"},
		{Field: models.FieldMigratedAt, Label: "Migrated At"},
	},
	resource.EnrichedCase: {
		{Field: models.FieldCaseID, Label: "Case ID"},
		{Field: models.FieldClientID, Label: "Client ID"},
		{Field: models.FieldSessions, Label: "Sessions"},
		{Field: models.FieldMigratedAt, Label: "Migrated At"},
	},
	resource.Session: {
		{Field: models.FieldSessionID, Label: "Session ID"},
		{Field: models.FieldCaseID, Label: "Case ID"},
		{Field: "start_date", Label: "Start"},
		{Field: models.FieldMigratedAt, Label: "Migrated At"},
	},
}

// DefaultMapping returns the built-in header mapping for rt.
func DefaultMapping(rt resource.Type) (models.HeaderMapping, bool) {
	if rt == resource.ShallowClosedCase {
		rt = resource.ShallowCase
	}
	m, ok := defaultMappings[rt]
	return m, ok
}

// ShallowSessionMapping is the header mapping for derived shallow sessions.
var ShallowSessionMapping = models.HeaderMapping{
	{Field: models.FieldSessionID, Label: "Session ID"},
	{Field: models.FieldCaseID, Label: "Case ID"},
	{Field: "source", Label: "Source"},
	{Field: "created_at", Label: "Created At"},
}

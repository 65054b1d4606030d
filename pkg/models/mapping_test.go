package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMappingKeepsOrder(t *testing.T) {
	data := []byte(`
version: "1"
exports:
  case:
    case_id: Case ID
    verification_status: Verification
    client_id: Client
    notes:
`)
	m, err := LoadMapping(data)
	require.NoError(t, err)
	h := m.Exports["case"]
	assert.Equal(t, []string{"case_id", "verification_status", "client_id", "notes"}, h.Fields())
	assert.Equal(t, []string{"Case ID", "Verification", "Client", "notes"}, h.Labels())
}

func TestLoadMappingRejectsList(t *testing.T) {
	_, err := LoadMapping([]byte("exports:\n  case: [a, b]\n"))
	assert.Error(t, err)
}

func TestShallowSessionRow(t *testing.T) {
	row := ShallowSession{SessionID: "S1", CaseID: "C1", Source: "migrated_cases"}.Row()
	assert.Equal(t, "S1", row[FieldSessionID])
	assert.Nil(t, row[FieldBatchID])
}

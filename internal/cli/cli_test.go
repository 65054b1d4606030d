package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/casemigrate/internal/api"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/metrics"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/internal/store/memory"
	"github.com/BartekS5/casemigrate/pkg/models"
)

type stubSource struct {
	items map[resource.Type][]store.Row
}

func (s *stubSource) Fetch(_ context.Context, rt resource.Type, _ *filter.Filters, pageIndex, pageSize int) (*api.Page, error) {
	if pageIndex > 1 {
		return &api.Page{}, nil
	}
	items := s.items[rt]
	if len(items) > pageSize {
		items = items[:pageSize]
	}
	return &api.Page{Items: items, Summary: map[string]interface{}{"TotalCount": float64(len(s.items[rt]))}}, nil
}

func (s *stubSource) Get(_ context.Context, rt resource.Type, id string) (store.Row, error) {
	for _, it := range s.items[rt] {
		if it["CaseId"] == id {
			return it, nil
		}
	}
	return store.Row{}, nil
}

type env struct {
	records *memory.Records
	repo    *memory.Migrations
	source  *stubSource
}

func newEnv() *env {
	return &env{
		records: memory.NewRecords(),
		repo:    memory.NewMigrations(),
		source: &stubSource{items: map[resource.Type][]store.Row{
			resource.Case: {
				{"CaseId": "C1", "Sessions": []interface{}{map[string]interface{}{"SessionId": "S1"}}},
				{"CaseId": "C2", "Sessions": []interface{}{"S2", "S1"}},
			},
		}},
	}
}

func (e *env) open(_ context.Context, n needs) (*deps, error) {
	d := &deps{Records: e.records, Metrics: metrics.New(), BatchSize: 10}
	if n.sql {
		d.Migrations = e.repo
	}
	if n.api {
		d.Source = e.source
	}
	return d, nil
}

func (e *env) run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(e.open)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	require.NoError(t, cmd.ExecuteContext(context.Background()), out.String())
	return out.String()
}

func TestMigrateRunAndStatus(t *testing.T) {
	e := newEnv()
	out := e.run(t, "migrate", "run", "--resource", "cases", "--filter", "sort_column=CreatedDate")

	var res struct {
		MigrationID string `json:"migration_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.NotEmpty(t, res.MigrationID)

	n, err := e.records.Count(context.Background(), models.TableCases)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	status := e.run(t, "migrate", "status", res.MigrationID)
	assert.Contains(t, status, `"status": "COMPLETED"`)
	assert.Contains(t, status, `"sort_column": "CreatedDate"`)

	list := e.run(t, "migrate", "list")
	assert.Contains(t, list, res.MigrationID)
}

func TestMigrateDryRunLeavesNoTrace(t *testing.T) {
	e := newEnv()
	e.run(t, "migrate", "run", "-r", "case", "--dry-run")

	n, err := e.records.Count(context.Background(), models.TableCases)
	require.NoError(t, err)
	assert.Zero(t, n)
	list, err := e.repo.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSessionsGenerateAndExport(t *testing.T) {
	e := newEnv()
	e.run(t, "migrate", "run", "-r", "case")

	out := e.run(t, "sessions", "generate")
	var stats map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	assert.Equal(t, float64(2), stats["newly_created"])
	assert.Equal(t, float64(1), stats["already_existed"])

	path := filepath.Join(t.TempDir(), "sessions.csv")
	e.run(t, "export", "-r", "shallow-sessions", "-o", path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "Session ID,Case ID,Source,Created At", lines[0])
	assert.Len(t, lines, 3)
}

func TestExportWithMappingFile(t *testing.T) {
	e := newEnv()
	e.run(t, "migrate", "run", "-r", "case")

	mapping := filepath.Join(t.TempDir(), "mapping.yaml")
	require.NoError(t, os.WriteFile(mapping, []byte("version: \"1\"\nexports:\n  cases:\n    case_id: Case\n    resource_type: Kind\n"), 0o644))

	out := e.run(t, "export", "-r", "case", "--format", "json", "-m", mapping)
	var rows []map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, "case", rows[0]["resource_type"])
	assert.Len(t, rows[0], 2)
}

func TestExportMappingFilePicksFirstKeyInOrder(t *testing.T) {
	e := newEnv()
	e.run(t, "migrate", "run", "-r", "case")

	dir := t.TempDir()
	mapping := filepath.Join(dir, "mapping.yaml")
	require.NoError(t, os.WriteFile(mapping, []byte("version: \"1\"\nexports:\n  cases:\n    case_id: Plural\n  case:\n    case_id: Singular\n"), 0o644))

	path := filepath.Join(dir, "cases.csv")
	for i := 0; i < 10; i++ {
		e.run(t, "export", "-r", "case", "-m", mapping, "-o", path)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Equal(t, "Singular", strings.SplitN(string(data), "\n", 2)[0])
	}
}

func TestResourcesAndVerify(t *testing.T) {
	e := newEnv()
	before := e.run(t, "resources")
	assert.Regexp(t, `SESSION\s+migrated_sessions\s+CASE\s+false`, before)

	e.run(t, "migrate", "run", "-r", "case")
	after := e.run(t, "resources")
	assert.Regexp(t, `SESSION\s+migrated_sessions\s+CASE\s+true`, after)

	out := e.run(t, "verify", "-r", "case", "--sample", "5")
	var report map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, float64(2), report["sampled"])
	assert.Equal(t, float64(2), report["verified"])

	status := e.run(t, "verify", "-r", "case", "--status")
	assert.Contains(t, status, `"VERIFIED": 2`)
}

func TestUnknownResourceFails(t *testing.T) {
	e := newEnv()
	cmd := newRootCmd(e.open)
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"migrate", "run", "-r", "widgets"})
	assert.Error(t, cmd.Execute())
}

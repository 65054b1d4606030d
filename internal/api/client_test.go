package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/resource"
)

func TestResourcePath(t *testing.T) {
	assert.Equal(t, "cases", ResourcePath(resource.Case))
	assert.Equal(t, "shallow-cases", ResourcePath(resource.ShallowCase))
	assert.Equal(t, "clients", ResourcePath(resource.Client))
	assert.Equal(t, "sessions", ResourcePath(resource.Session))
}

func TestFetch(t *testing.T) {
	var gotPath string
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Items":[{"CaseId":"C1"},{"CaseId":"C2"}],"TotalCount":7}`))
	}))
	defer srv.Close()

	f := filter.New()
	require.NoError(t, f.Set(filter.EndDateFrom, "2024-01-01"))
	require.NoError(t, f.Set(filter.SortColumn, "CreatedDate"))

	c := NewHTTPClient(srv.URL+"/", time.Second)
	page, err := c.Fetch(context.Background(), resource.Case, f, 2, 50)
	require.NoError(t, err)

	assert.Equal(t, "/cases/search", gotPath)
	assert.Equal(t, "2024-01-01", gotBody["EndDateFrom"])
	assert.Equal(t, "CreatedDate", gotBody["SortColumn"])
	assert.Equal(t, float64(2), gotBody["PageIndex"])
	assert.Equal(t, float64(50), gotBody["PageSize"])

	require.Len(t, page.Items, 2)
	assert.Equal(t, "C2", page.Items[1]["CaseId"])
	assert.Equal(t, map[string]interface{}{"TotalCount": float64(7)}, page.Summary)
}

func TestFetchDropsFiltersTheResourceDoesNotAccept(t *testing.T) {
	var gotBody map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"Items":[]}`))
	}))
	defer srv.Close()

	f := filter.New()
	require.NoError(t, f.Set(filter.EndDateTo, "2024-01-01"))
	page, err := NewHTTPClient(srv.URL, time.Second).Fetch(context.Background(), resource.Client, f, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
	assert.NotContains(t, gotBody, "EndDateTo")
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, "boom"},
		{"items not a list", http.StatusOK, `{"Items":"nope"}`},
		{"item not an object", http.StatusOK, `{"Items":[1]}`},
		{"bad json", http.StatusOK, `{`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()
			_, err := NewHTTPClient(srv.URL, time.Second).Fetch(context.Background(), resource.Case, nil, 1, 10)
			assert.Error(t, err)
		})
	}
}

func TestGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/shallow-cases/C1" {
			_, _ = w.Write([]byte(`{"CaseId":"C1","Status":"Open"}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	row, err := c.Get(context.Background(), resource.ShallowCase, "C1")
	require.NoError(t, err)
	assert.Equal(t, "Open", row["Status"])

	_, err = c.Get(context.Background(), resource.ShallowCase, "missing")
	assert.True(t, apperr.IsNotFound(err))
}

// Package api talks to the source case-management system over JSON/HTTP.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jinzhu/inflection"
	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/filter"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

const itemsField = "Items"

// Page is one page of search results.
type Page struct {
	Items []store.Row
	// Summary holds every top-level response field except the items.
	Summary map[string]interface{}
}

// Client is the source API contract the pipeline and verifier depend on.
type Client interface {
	Fetch(ctx context.Context, rt resource.Type, f *filter.Filters, pageIndex, pageSize int) (*Page, error)
	Get(ctx context.Context, rt resource.Type, id string) (store.Row, error)
}

// HTTPClient implements Client against a REST endpoint.
type HTTPClient struct {
	BaseURL string
	HTTP    *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// ResourcePath maps a resource type to its collection path, e.g. shallow_case -> shallow-cases.
func ResourcePath(rt resource.Type) string {
	return utils.Kebab(inflection.Plural(rt.Value()))
}

func (c *HTTPClient) Fetch(ctx context.Context, rt resource.Type, f *filter.Filters, pageIndex, pageSize int) (*Page, error) {
	if f == nil {
		f = filter.New()
	}
	body, err := f.Params(rt)
	if err != nil {
		return nil, err
	}
	body[utils.Pascal(filter.PageIndex.Value())] = pageIndex
	body[utils.Pascal(filter.PageSize.Value())] = pageSize

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Wrap(err, "encoding search request")
	}
	endpoint := fmt.Sprintf("%s/%s/search", c.BaseURL, ResourcePath(rt))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "building search request")
	}
	req.Header.Set("Content-Type", "application/json")

	var raw map[string]interface{}
	if err := c.do(req, &raw); err != nil {
		return nil, errors.Wrapf(err, "searching %s page %d", rt, pageIndex)
	}
	return toPage(raw)
}

func (c *HTTPClient) Get(ctx context.Context, rt resource.Type, id string) (store.Row, error) {
	endpoint := fmt.Sprintf("%s/%s/%s", c.BaseURL, ResourcePath(rt), url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, errors.Wrap(err, "building get request")
	}
	var row store.Row
	if err := c.do(req, &row); err != nil {
		return nil, errors.Wrapf(err, "getting %s %s", rt, id)
	}
	return row, nil
}

func (c *HTTPClient) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return apperr.New(apperr.NotFound, "%s %s returned 404", req.Method, req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s returned %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrap(err, "decoding response")
	}
	return nil
}

func toPage(raw map[string]interface{}) (*Page, error) {
	page := &Page{Summary: make(map[string]interface{}, len(raw))}
	for k, v := range raw {
		if k != itemsField {
			page.Summary[k] = v
		}
	}
	items, ok := raw[itemsField]
	if !ok || items == nil {
		return page, nil
	}
	list, ok := items.([]interface{})
	if !ok {
		return nil, apperr.New(apperr.InvalidInput, "response %s is %T, not a list", itemsField, items)
	}
	page.Items = make([]store.Row, 0, len(list))
	for i, it := range list {
		m, ok := it.(map[string]interface{})
		if !ok {
			return nil, apperr.New(apperr.InvalidInput, "item %d is %T, not an object", i, it)
		}
		page.Items = append(page.Items, store.Row(m))
	}
	return page, nil
}

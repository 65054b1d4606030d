// Package verification spot-checks migrated rows against the source API.
package verification

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/BartekS5/casemigrate/internal/api"
	"github.com/BartekS5/casemigrate/internal/apperr"
	"github.com/BartekS5/casemigrate/internal/metrics"
	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/logger"
	"github.com/BartekS5/casemigrate/pkg/models"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

const DefaultSampleSize = 25

var bookkeeping = map[string]bool{
	"_id":                          true,
	models.FieldBatchID:            true,
	models.FieldResourceType:       true,
	models.FieldMigratedAt:         true,
	models.FieldVerificationStatus: true,
	models.FieldVerifiedAt:         true,
}

// Mismatch is one field that differs between the stored row and the source.
type Mismatch struct {
	Key    string      `json:"key"`
	Field  string      `json:"field"`
	Stored interface{} `json:"stored"`
	Source interface{} `json:"source"`
}

// Report summarises one verification pass.
type Report struct {
	Resource   resource.Type `json:"resource"`
	Sampled    int           `json:"sampled"`
	Verified   int           `json:"verified"`
	Failed     int           `json:"failed"`
	Mismatches []Mismatch    `json:"mismatches"`
	Errors     []string      `json:"errors"`
}

type Verifier struct {
	records store.Records
	source  api.Client
	metrics *metrics.Metrics
	nowFn   func() time.Time
}

func NewVerifier(records store.Records, source api.Client, m *metrics.Metrics) *Verifier {
	return &Verifier{
		records: records,
		source:  source,
		metrics: m,
		nowFn:   func() time.Time { return time.Now().UTC() },
	}
}

func resolveVerifiable(input interface{}) (resource.Type, string, error) {
	rt, err := resource.Resolve(input)
	if err != nil {
		return "", "", err
	}
	if !rt.Verifiable() {
		return "", "", apperr.Unsupported("verification", rt)
	}
	table, err := resource.TableName(rt)
	if err != nil {
		return "", "", err
	}
	return rt, table, nil
}

// Verify samples up to sampleSize stored rows of the given type, fetches
// each from the source by key and marks it VERIFIED or FAILED.
// Rows the source cannot be asked about are reported in Errors and keep
// their status.
func (v *Verifier) Verify(ctx context.Context, input interface{}, sampleSize int) (*Report, error) {
	rt, table, err := resolveVerifiable(input)
	if err != nil {
		return nil, err
	}
	if sampleSize <= 0 {
		sampleSize = DefaultSampleSize
	}
	rows, err := v.records.Sample(ctx, table, ofType(rt), sampleSize)
	if err != nil {
		return nil, errors.Wrapf(err, "sampling %s", table)
	}

	report := &Report{Resource: rt, Sampled: len(rows), Mismatches: []Mismatch{}, Errors: []string{}}
	keyField := rt.KeyField()
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		key := utils.ToString(row[keyField])
		if key == "" {
			report.Errors = append(report.Errors, "row without "+keyField)
			continue
		}

		status := models.VerificationVerified
		src, err := v.source.Get(ctx, rt, key)
		switch {
		case apperr.IsNotFound(err):
			status = models.VerificationFailed
			report.Mismatches = append(report.Mismatches, Mismatch{Key: key, Field: keyField, Stored: key})
		case err != nil:
			logger.Warnf("verify %s %s: %v", rt, key, err)
			report.Errors = append(report.Errors, err.Error())
			continue
		default:
			diffs := Compare(key, row, src)
			if len(diffs) > 0 {
				status = models.VerificationFailed
				report.Mismatches = append(report.Mismatches, diffs...)
			}
		}

		set := store.Row{
			models.FieldVerificationStatus: status.Value(),
			models.FieldVerifiedAt:         v.nowFn(),
		}
		if err := v.records.Update(ctx, table, keyField, row[keyField], set); err != nil {
			return report, errors.Wrapf(err, "updating %s %s", table, key)
		}
		if status == models.VerificationVerified {
			report.Verified++
		} else {
			report.Failed++
		}
		v.metrics.ObserveVerification(rt.Value(), status.Value())
	}

	logger.Infof("Verified %s: %d sampled, %d verified, %d failed, %d errors",
		rt, report.Sampled, report.Verified, report.Failed, len(report.Errors))
	return report, nil
}

// Status counts stored rows of the given type per verification status.
func (v *Verifier) Status(ctx context.Context, input interface{}) (map[models.VerificationStatus]int64, error) {
	rt, table, err := resolveVerifiable(input)
	if err != nil {
		return nil, err
	}
	out := make(map[models.VerificationStatus]int64, len(models.VerificationStatuses))
	for _, s := range models.VerificationStatuses {
		match := ofType(rt)
		match[models.FieldVerificationStatus] = s.Value()
		n, err := v.records.CountWhere(ctx, table, match)
		if err != nil {
			return nil, errors.Wrapf(err, "counting %s %s", table, s)
		}
		out[s] = n
	}
	return out, nil
}

// ofType selects the rows of one resource type, since some tables hold
// several types.
func ofType(rt resource.Type) store.Row {
	return store.Row{models.FieldResourceType: rt.Value()}
}

// Compare lists the source fields whose value differs from the stored row.
// Source keys are matched to stored snake_case fields.
func Compare(key string, stored, source store.Row) []Mismatch {
	var out []Mismatch
	for k, want := range source {
		field := utils.FieldName(k)
		if bookkeeping[field] {
			continue
		}
		got, ok := stored[field]
		if !ok || !equalValues(got, want) {
			out = append(out, Mismatch{Key: key, Field: field, Stored: got, Source: want})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

func equalValues(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if isComposite(a) || isComposite(b) {
		ja, errA := json.Marshal(a)
		jb, errB := json.Marshal(b)
		return errA == nil && errB == nil && string(ja) == string(jb)
	}
	if ta, ok := a.(time.Time); ok {
		if tb, err := utils.ConvertDateTime(b); err == nil {
			if tb, ok := tb.(time.Time); ok {
				return ta.Equal(tb)
			}
		}
	}
	return utils.ToString(a) == utils.ToString(b)
}

func isComposite(v interface{}) bool {
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

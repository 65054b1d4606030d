package etl

import (
	"strings"
	"time"

	"github.com/BartekS5/casemigrate/internal/resource"
	"github.com/BartekS5/casemigrate/internal/store"
	"github.com/BartekS5/casemigrate/pkg/models"
	"github.com/BartekS5/casemigrate/pkg/utils"
)

// Transformer maps source items onto stored rows.
type Transformer struct {
	nowFn func() time.Time
}

func NewTransformer() *Transformer {
	return &Transformer{nowFn: func() time.Time { return time.Now().UTC() }}
}

// Transform renames top-level keys to snake_case, parses date fields and
// stamps the bookkeeping fields. Nested values are kept as received.
func (t *Transformer) Transform(rt resource.Type, batchID string, item store.Row) store.Row {
	row := make(store.Row, len(item)+4)
	for k, v := range item {
		field := utils.FieldName(k)
		if isDateField(field) {
			if s, ok := v.(string); ok && s != "" {
				if parsed, err := utils.ConvertDateTime(s); err == nil {
					v = parsed
				}
			}
		}
		row[field] = v
	}

	row[models.FieldBatchID] = batchID
	row[models.FieldResourceType] = rt.Value()
	row[models.FieldMigratedAt] = t.nowFn()
	if rt.Verifiable() {
		row[models.FieldVerificationStatus] = models.VerificationPending.Value()
	}
	return row
}

func isDateField(field string) bool {
	return strings.HasSuffix(field, "_date") || strings.HasSuffix(field, "_at")
}

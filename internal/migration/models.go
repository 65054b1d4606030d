package migration

import "time"

// Status of a DataMigration. The tokens are part of the wire contract.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
	StatusCancelled  Status = "CANCELLED"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// BatchStatus of a DataMigrationBatch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchInProgress BatchStatus = "IN_PROGRESS"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

// CanTransition is the migration state machine.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusInProgress || to.Terminal()
	case StatusInProgress:
		return to == StatusInProgress || to.Terminal()
	default:
		return false
	}
}

// DataMigration is one migration run.
type DataMigration struct {
	ID              string                 `json:"id"`
	Name            string                 `json:"name"`
	ResourceTypes   []string               `json:"resource_types"`
	Filters         map[string]interface{} `json:"filters"`
	Status          Status                 `json:"status"`
	TotalItems      int                    `json:"total_items"`
	ProcessedItems  int                    `json:"processed_items"`
	SuccessfulItems int                    `json:"successful_items"`
	FailedItems     int                    `json:"failed_items"`
	BatchSize       int                    `json:"batch_size"`
	LastBatchNumber int                    `json:"last_batch_number"`
	ErrorMessage    *string                `json:"error_message,omitempty"`
	Summary         *string                `json:"summary,omitempty"`
	StartedAt       *time.Time             `json:"started_at,omitempty"`
	CompletedAt     *time.Time             `json:"completed_at,omitempty"`
	CreatedAt       time.Time              `json:"created_at"`
}

// Includes reports whether the run targets the given resource type value.
func (m *DataMigration) Includes(resourceType string) bool {
	for _, rt := range m.ResourceTypes {
		if rt == resourceType {
			return true
		}
	}
	return false
}

// DataMigrationBatch is one page fetch-and-store unit.
type DataMigrationBatch struct {
	ID             string                 `json:"id"`
	MigrationID    string                 `json:"migration_id"`
	BatchNumber    int                    `json:"batch_number"`
	PageIndex      int                    `json:"page_index"`
	PageSize       int                    `json:"page_size"`
	ResourceType   string                 `json:"resource_type"`
	Status         BatchStatus            `json:"status"`
	ItemsRequested int                    `json:"items_requested"`
	ItemsReceived  int                    `json:"items_received"`
	ItemsStored    int                    `json:"items_stored"`
	Filters        map[string]interface{} `json:"filters"`
	APIResponse    map[string]interface{} `json:"api_response,omitempty"`
	StartedAt      *time.Time             `json:"started_at,omitempty"`
	CompletedAt    *time.Time             `json:"completed_at,omitempty"`
}

// BatchResult closes a batch and is folded into the parent counters:
// processed += Received, successful += Stored, failed += Failed.
type BatchResult struct {
	Status      BatchStatus
	Received    int
	Stored      int
	Failed      int
	Response    map[string]interface{}
	CompletedAt time.Time
}

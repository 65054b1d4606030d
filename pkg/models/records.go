package models

import "time"

// Storage targets for migrated data.
const (
	TableClients         = "migrated_clients"
	TableCases           = "migrated_cases"
	TableShallowCases    = "migrated_shallow_cases"
	TableEnrichedCases   = "migrated_enriched_cases"
	TableSessions        = "migrated_sessions"
	TableShallowSessions = "migrated_shallow_sessions"
)

// Bookkeeping fields stamped onto every migrated row.
const (
	FieldBatchID            = "batch_id"
	FieldResourceType       = "resource_type"
	FieldMigratedAt         = "migrated_at"
	FieldVerificationStatus = "verification_status"
	FieldVerifiedAt         = "verified_at"
	FieldCaseID             = "case_id"
	FieldClientID           = "client_id"
	FieldSessionID          = "session_id"
	FieldSessions           = "sessions"
)

// VerificationStatus is part of the wire contract; values must not change.
type VerificationStatus string

const (
	VerificationPending  VerificationStatus = "PENDING"
	VerificationVerified VerificationStatus = "VERIFIED"
	VerificationFailed   VerificationStatus = "FAILED"
)

var VerificationStatuses = []VerificationStatus{VerificationPending, VerificationVerified, VerificationFailed}

func (s VerificationStatus) Name() string   { return string(s) }
func (s VerificationStatus) Value() string  { return string(s) }
func (s VerificationStatus) String() string { return string(s) }

// ShallowSession is a stub session derived from case data.
type ShallowSession struct {
	SessionID string    `json:"session_id" bson:"session_id"`
	CaseID    string    `json:"case_id" bson:"case_id"`
	BatchID   *string   `json:"batch_id" bson:"batch_id"`
	Source    string    `json:"source" bson:"source"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}

// Row flattens the session for the generic record store.
func (s ShallowSession) Row() map[string]interface{} {
	var batch interface{}
	if s.BatchID != nil {
		batch = *s.BatchID
	}
	return map[string]interface{}{
		FieldSessionID: s.SessionID,
		FieldCaseID:    s.CaseID,
		FieldBatchID:   batch,
		"source":       s.Source,
		"created_at":   s.CreatedAt,
	}
}

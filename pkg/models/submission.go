package models

import (
	"time"

	"github.com/google/uuid"
)

// SubmissionEvent records a generate request that was forwarded upstream.
type SubmissionEvent struct {
	ID         uuid.UUID  `db:"id"          json:"id"`
	AnalysisID string     `db:"analysis_id" json:"analysis_id"`
	Validate   bool       `db:"validate"    json:"validate"`
	APIKeyID   *uuid.UUID `db:"api_key_id"  json:"api_key_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
}

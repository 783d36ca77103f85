package catalog

import "time"

// EntityMerge records that a duplicate entity was pointed at its canonical
// counterpart.
type EntityMerge struct {
	ID         string      `json:"id" db:"id"`
	EntityType EntityType  `json:"entity_type" db:"entity_type"`
	SourceID   string      `json:"source_id" db:"source_id"`
	TargetID   string      `json:"target_id" db:"target_id"`
	Reason     MergeReason `json:"reason" db:"reason"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	CreatedBy  string      `json:"created_by,omitempty" db:"created_by"`
}

// Package model contains the moderation record and its enums, shared across
// the repository, pipeline, and admin API.
package model

import (
	"time"
)

// Status describes where a record sits in the moderation lifecycle.
type Status string

const (
	StatusPending          Status = "PENDING"
	StatusProcessing       Status = "PROCESSING"
	StatusApproved         Status = "APPROVED"
	StatusFlaggedForReview Status = "FLAGGED_FOR_REVIEW"
	StatusBlocked          Status = "BLOCKED"
	StatusManuallyApproved Status = "MANUALLY_APPROVED"
	StatusManuallyRejected Status = "MANUALLY_REJECTED"
	StatusFailed           Status = "FAILED"
)

// ValidStatus reports whether s is one of the known lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusProcessing, StatusApproved, StatusFlaggedForReview,
		StatusBlocked, StatusManuallyApproved, StatusManuallyRejected, StatusFailed:
		return true
	}
	return false
}

// CleanupEligible reports whether records in this status feed the cleanup
// sweep once rejected content must disappear.
func (s Status) CleanupEligible() bool {
	return s == StatusBlocked || s == StatusManuallyRejected
}

// EntityType identifies which marketplace entity references the image, and
// therefore which reference resolver the cleanup sweep dispatches to.
type EntityType string

const (
	EntityStorePhoto        EntityType = "STORE_PHOTO"
	EntityUserAvatar        EntityType = "USER_AVATAR"
	EntityGuideContentImage EntityType = "GUIDE_CONTENT_IMAGE"
)

// ValidEntityType reports whether t is a known entity type.
func ValidEntityType(t EntityType) bool {
	switch t {
	case EntityStorePhoto, EntityUserAvatar, EntityGuideContentImage:
		return true
	}
	return false
}

// Decision is a manual reviewer's verdict on a flagged record.
type Decision string

const (
	DecisionApprove Decision = "MANUALLY_APPROVED"
	DecisionReject  Decision = "MANUALLY_REJECTED"
)

// Record is one row in moderation_records: the job/state object tracking a
// single image through automated classification, optional human review, and
// cleanup. Nullable columns map to pointer fields.
type Record struct {
	ID            string     `json:"id"`
	ImageURL      string     `json:"imageUrl"`
	EntityType    EntityType `json:"entityType"`
	EntityID      string     `json:"entityId"`
	Status        Status     `json:"status"`
	NSFWScore     *float64   `json:"nsfwScore,omitempty"`
	FailureReason *string    `json:"failureReason,omitempty"`
	RetryCount    int        `json:"retryCount"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	ProcessedAt   *time.Time `json:"processedAt,omitempty"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
	ReviewedBy    *string    `json:"reviewedBy,omitempty"`
	ReviewNotes   *string    `json:"reviewNotes,omitempty"`
	CleanupAt     *time.Time `json:"cleanupAt,omitempty"`
}

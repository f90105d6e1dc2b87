// Package domain contains the core domain models for the publication engine.
package domain

import (
	"errors"
	"time"
)

// ErrNotFound is returned when an entity is not found in the database.
var ErrNotFound = errors.New("entity not found")

// ErrClaimConflict is returned when a conditional status transition finds the
// job in a different state than expected. A concurrent claim, a cancellation,
// or a second engine instance already won the transition.
var ErrClaimConflict = errors.New("job not in expected state")

// JobStatus represents the state of a publication job.
type JobStatus string

const (
	JobStatusDraft      JobStatus = "draft"
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusProcessing JobStatus = "processing"
	JobStatusPublished  JobStatus = "published"
	JobStatusFailed     JobStatus = "failed"
)

// ContentType describes what kind of payload a job carries.
type ContentType string

const (
	ContentTypeText      ContentType = "text"
	ContentTypeImage     ContentType = "image"
	ContentTypeVideo     ContentType = "video"
	ContentTypeTextImage ContentType = "text-image"
	ContentTypeTextVideo ContentType = "text-video"
)

// HasMedia reports whether the content type carries a media reference.
func (c ContentType) HasMedia() bool {
	switch c {
	case ContentTypeImage, ContentTypeVideo, ContentTypeTextImage, ContentTypeTextVideo:
		return true
	default:
		return false
	}
}

// PublicationJob represents one scheduled publication to one platform.
// Payload fields are immutable once created; only the scheduler mutates
// status and the terminal-state fields after a claim.
type PublicationJob struct {
	ID           string      `db:"id"            json:"id"`
	TenantID     string      `db:"tenant_id"     json:"tenant_id"`
	Platform     string      `db:"platform"      json:"platform"`
	ContentType  ContentType `db:"content_type"  json:"content_type"`
	Body         string      `db:"body"          json:"body"`
	MediaURL     *string     `db:"media_url"     json:"media_url,omitempty"`
	Status       JobStatus   `db:"status"        json:"status"`
	ScheduledAt  *time.Time  `db:"scheduled_at"  json:"scheduled_at,omitempty"`
	PublishedAt  *time.Time  `db:"published_at"  json:"published_at,omitempty"`
	ResultURL    *string     `db:"result_url"    json:"result_url,omitempty"`
	ErrorMessage *string     `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time   `db:"created_at"    json:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"    json:"updated_at"`
}

// IsTerminal reports whether the job has reached a final state. Terminal jobs
// are never resurrected by the engine; re-publishing means a new job.
func (j *PublicationJob) IsTerminal() bool {
	return j.Status == JobStatusPublished || j.Status == JobStatusFailed
}

// Due reports whether the job is eligible for dispatch at the given instant.
// Comparison is in UTC; jobs without a scheduled time never become due here
// (immediate jobs bypass the scheduler entirely).
func (j *PublicationJob) Due(now time.Time) bool {
	if j.Status != JobStatusScheduled || j.ScheduledAt == nil {
		return false
	}
	return !j.ScheduledAt.UTC().After(now.UTC())
}

// JobStats holds job-store counts for monitoring.
type JobStats struct {
	Draft                int64   `json:"draft"`
	Scheduled            int64   `json:"scheduled"`
	Processing           int64   `json:"processing"`
	Published            int64   `json:"published"`
	Failed               int64   `json:"failed"`
	AvgPublishLagSeconds float64 `json:"avg_publish_lag_seconds"`
}

// AuditEventKind identifies the kind of audit record written to the sink.
type AuditEventKind string

const (
	AuditPublishSuccess        AuditEventKind = "publish_success"
	AuditPublishFailed         AuditEventKind = "publish_failed"
	AuditScheduleCancelled     AuditEventKind = "schedule_cancelled"
	AuditCredentialReloadError AuditEventKind = "credential_reload_failed"
)

package domain_test

import (
	"testing"
	"time"

	"github.com/gopost/engine/internal/domain"
)

func TestContentType_HasMedia(t *testing.T) {
	testCases := []struct {
		contentType domain.ContentType
		want        bool
	}{
		{domain.ContentTypeText, false},
		{domain.ContentTypeImage, true},
		{domain.ContentTypeVideo, true},
		{domain.ContentTypeTextImage, true},
		{domain.ContentTypeTextVideo, true},
		{domain.ContentType("unknown"), false},
	}

	for _, tc := range testCases {
		t.Run(string(tc.contentType), func(t *testing.T) {
			if got := tc.contentType.HasMedia(); got != tc.want {
				t.Errorf("HasMedia() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPublicationJob_Due(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	testCases := []struct {
		name string
		job  domain.PublicationJob
		want bool
	}{
		{
			name: "scheduled in the past is due",
			job:  domain.PublicationJob{Status: domain.JobStatusScheduled, ScheduledAt: &past},
			want: true,
		},
		{
			name: "scheduled exactly now is due",
			job:  domain.PublicationJob{Status: domain.JobStatusScheduled, ScheduledAt: &now},
			want: true,
		},
		{
			name: "scheduled in the future is not due",
			job:  domain.PublicationJob{Status: domain.JobStatusScheduled, ScheduledAt: &future},
			want: false,
		},
		{
			name: "draft is never due",
			job:  domain.PublicationJob{Status: domain.JobStatusDraft, ScheduledAt: &past},
			want: false,
		},
		{
			name: "no scheduled time is never due",
			job:  domain.PublicationJob{Status: domain.JobStatusScheduled},
			want: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.job.Due(now); got != tc.want {
				t.Errorf("Due() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPublicationJob_IsTerminal(t *testing.T) {
	terminal := map[domain.JobStatus]bool{
		domain.JobStatusDraft:      false,
		domain.JobStatusScheduled:  false,
		domain.JobStatusProcessing: false,
		domain.JobStatusPublished:  true,
		domain.JobStatusFailed:     true,
	}

	for status, want := range terminal {
		job := domain.PublicationJob{Status: status}
		if got := job.IsTerminal(); got != want {
			t.Errorf("IsTerminal() for %s = %v, want %v", status, got, want)
		}
	}
}

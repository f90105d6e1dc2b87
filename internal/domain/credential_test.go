package domain_test

import (
	"testing"

	"github.com/gopost/engine/internal/domain"
)

func TestCredentialScope_CacheKey(t *testing.T) {
	testCases := []struct {
		name  string
		scope domain.CredentialScope
		want  string
	}{
		{
			name:  "global scope is the bare platform",
			scope: domain.GlobalScope("openai"),
			want:  "openai",
		},
		{
			name:  "tenant scope joins tenant and platform",
			scope: domain.TenantScope("u-42", "twitter"),
			want:  "u-42:twitter",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.scope.CacheKey(); got != tc.want {
				t.Errorf("CacheKey() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestCredentialRecord_Scope(t *testing.T) {
	tenant := "u-1"
	empty := ""

	testCases := []struct {
		name   string
		record domain.CredentialRecord
		want   domain.CredentialScope
	}{
		{
			name:   "nil tenant is global",
			record: domain.CredentialRecord{Platform: "openai"},
			want:   domain.GlobalScope("openai"),
		},
		{
			name:   "empty tenant is global",
			record: domain.CredentialRecord{TenantID: &empty, Platform: "openai"},
			want:   domain.GlobalScope("openai"),
		},
		{
			name:   "tenant row is tenant scoped",
			record: domain.CredentialRecord{TenantID: &tenant, Platform: "wordpress"},
			want:   domain.TenantScope("u-1", "wordpress"),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.record.Scope(); got != tc.want {
				t.Errorf("Scope() = %+v, want %+v", got, tc.want)
			}
		})
	}
}

package domain

import "time"

// CredentialScope identifies which credential a lookup targets. A platform is
// either tenant-scoped (each tenant connects its own account) or global (one
// shared key for the whole deployment); the classification is static and the
// key shape follows from it.
type CredentialScope struct {
	Platform string
	TenantID string // empty for global scope
}

// GlobalScope returns the scope for a deployment-wide credential.
func GlobalScope(platform string) CredentialScope {
	return CredentialScope{Platform: platform}
}

// TenantScope returns the scope for a per-tenant credential.
func TenantScope(tenantID, platform string) CredentialScope {
	return CredentialScope{Platform: platform, TenantID: tenantID}
}

// IsGlobal reports whether the scope addresses a shared credential.
func (s CredentialScope) IsGlobal() bool {
	return s.TenantID == ""
}

// CacheKey derives the canonical string key for this scope. All map and
// database keys flow through this one function; nothing else concatenates
// tenant and platform.
func (s CredentialScope) CacheKey() string {
	if s.IsGlobal() {
		return s.Platform
	}
	return s.TenantID + ":" + s.Platform
}

// CredentialRecord is one stored credential as the store adapter returns it.
// Secret holds the raw ciphertext; decryption happens in the cache layer.
type CredentialRecord struct {
	TenantID  *string   `db:"tenant_id"  json:"tenant_id,omitempty"`
	Platform  string    `db:"platform"   json:"platform"`
	Secret    string    `db:"secret"     json:"-"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Scope returns the credential's scope. Rows without a tenant are global.
func (r *CredentialRecord) Scope() CredentialScope {
	if r.TenantID == nil || *r.TenantID == "" {
		return GlobalScope(r.Platform)
	}
	return TenantScope(*r.TenantID, r.Platform)
}

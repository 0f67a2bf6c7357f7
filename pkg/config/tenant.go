package config

import (
	"context"
	"fmt"
)

// TenantConfig is the read-only configuration the core consumes for a
// tenant: its monthly token quota and model allowlist. The tenant CRUD
// surface that produces these records is out of this module's scope
// (spec.md §1, "thin CRUD endpoints" Non-goal); this type is the shape the
// core reads from the options map the tenant service stores.
type TenantConfig struct {
	// MonthlyTokenQuota is the total input+output tokens a tenant may spend
	// in a calendar month. Zero means unlimited.
	MonthlyTokenQuota int64 `yaml:"monthly_token_quota,omitempty"`

	// ModelAllowlist restricts which model ids the tenant's users may
	// select. Empty means no restriction.
	ModelAllowlist []string `yaml:"model_allowlist,omitempty"`
}

// HasQuota reports whether the tenant has a positive monthly quota.
func (c *TenantConfig) HasQuota() bool {
	return c != nil && c.MonthlyTokenQuota > 0
}

// AllowsModel reports whether modelID is permitted for this tenant.
func (c *TenantConfig) AllowsModel(modelID string) bool {
	if c == nil || len(c.ModelAllowlist) == 0 {
		return true
	}
	for _, m := range c.ModelAllowlist {
		if m == modelID {
			return true
		}
	}
	return false
}

// StaticTenantLookup implements server.TenantLookup over the config-file
// tenant table.
type StaticTenantLookup struct {
	Tenants map[string]TenantConfig
}

func (l *StaticTenantLookup) Lookup(_ context.Context, tenantID string) (*TenantConfig, error) {
	cfg, ok := l.Tenants[tenantID]
	if !ok {
		return nil, fmt.Errorf("no config for tenant %q", tenantID)
	}
	return &cfg, nil
}

package config

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigSetDefaults(t *testing.T) {
	var c Config
	c.SetDefaults()

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "memory", c.Quota.Backend)
	assert.Equal(t, 5, c.RAG.DefaultTopK)
	assert.Equal(t, "convoyd", c.Tracing.ServiceName)
	assert.Equal(t, 1.0, c.Tracing.SamplingRate)
}

func TestConfigValidateRejectsBadQuotaBackend(t *testing.T) {
	c := Config{Quota: QuotaConfig{Backend: "mongo"}, Database: DatabaseConfig{Driver: "sqlite", Database: "convoy.db"}}
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Logger.SetDefaults()

	assert.Error(t, c.Validate())
}

func TestConfigValidateRequiresRedisURLForRedisBackend(t *testing.T) {
	c := Config{Quota: QuotaConfig{Backend: "redis"}, Database: DatabaseConfig{Driver: "sqlite", Database: "convoy.db"}}
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Logger.SetDefaults()

	assert.Error(t, c.Validate())

	c.Quota.RedisURL = "redis://localhost:6379"
	assert.NoError(t, c.Validate())
}

func TestConfigValidateRejectsUnknownProviderType(t *testing.T) {
	c := Config{LLM: LLMConfig{Providers: map[string]ProviderConfig{
		"p1": {Type: "mistral"},
	}}, Database: DatabaseConfig{Driver: "sqlite", Database: "convoy.db"}}
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Logger.SetDefaults()
	c.Quota.Backend = "memory"

	assert.Error(t, c.Validate())
}

func TestTenantConfigHasQuotaAndAllowsModel(t *testing.T) {
	var nilCfg *TenantConfig
	assert.False(t, nilCfg.HasQuota())
	assert.True(t, nilCfg.AllowsModel("anything"))

	cfg := &TenantConfig{MonthlyTokenQuota: 1000, ModelAllowlist: []string{"gpt-test"}}
	assert.True(t, cfg.HasQuota())
	assert.True(t, cfg.AllowsModel("gpt-test"))
	assert.False(t, cfg.AllowsModel("other-model"))
}

func TestStaticTenantLookupReturnsConfiguredTenant(t *testing.T) {
	lookup := &StaticTenantLookup{Tenants: map[string]TenantConfig{
		"tenant-a": {MonthlyTokenQuota: 500},
	}}

	cfg, err := lookup.Lookup(context.Background(), "tenant-a")
	assert.NoError(t, err)
	assert.Equal(t, int64(500), cfg.MonthlyTokenQuota)

	_, err = lookup.Lookup(context.Background(), "unknown")
	assert.Error(t, err)
}

package config

import "fmt"

// Config is the root configuration document for the orchestrator service.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logger   LoggerConfig   `yaml:"logger"`
	Quota    QuotaConfig    `yaml:"quota"`
	LLM      LLMConfig      `yaml:"llm"`
	RAG      RAGConfig      `yaml:"rag"`
	Memory   MemoryConfig   `yaml:"memory"`
	Tracing  TracingConfig  `yaml:"tracing"`

	// Tenants is the static tenant-configuration table, keyed by tenant
	// id. The tenant CRUD surface that would normally populate this is out
	// of scope (spec.md §1); a config-file table is the simplification
	// that still exercises quota and model-allowlist enforcement.
	Tenants map[string]TenantConfig `yaml:"tenants,omitempty"`
}

// TracingConfig configures the global OpenTelemetry tracer provider.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled,omitempty"`
	ServiceName  string  `yaml:"service_name,omitempty"`
	SamplingRate float64 `yaml:"sampling_rate,omitempty"`
}

// QuotaConfig configures the monthly-token-quota counter store.
type QuotaConfig struct {
	// Backend selects the counter store: "memory" (default, single instance)
	// or "redis" (shared across replicas).
	Backend  string `yaml:"backend,omitempty"`
	RedisURL string `yaml:"redis_url,omitempty"`
}

// LLMConfig configures the available model providers.
type LLMConfig struct {
	// DefaultProvider is read from config but not consulted when resolving a
	// model id: llm.Registry matches model ids only against each provider's
	// Models list.
	DefaultProvider string                    `yaml:"default_provider,omitempty"`
	Providers       map[string]ProviderConfig `yaml:"providers,omitempty"`
}

// ProviderConfig configures one LLM provider credential/endpoint.
type ProviderConfig struct {
	// Type selects the wire adapter: "openai" or "anthropic".
	Type    string   `yaml:"type"`
	APIKey  string   `yaml:"api_key,omitempty"`
	BaseURL string   `yaml:"base_url,omitempty"`
	// Models lists the model ids this provider answers for. A chat
	// request naming a model id outside every configured provider's list
	// is rejected with 400 (spec.md §6, "unknown model id").
	Models []string `yaml:"models,omitempty"`
}

// RAGConfig configures the passage-retrieval backends.
type RAGConfig struct {
	DefaultTopK     int                      `yaml:"default_top_k,omitempty"`
	Collections     map[string]VectorBackend `yaml:"collections,omitempty"`
	EmbedderAPIKey  string                   `yaml:"embedder_api_key,omitempty"`
	EmbedderBaseURL string                   `yaml:"embedder_base_url,omitempty"`
	EmbedderModel   string                   `yaml:"embedder_model,omitempty"`
}

// VectorBackend names a vector store for a knowledge-base collection. The
// serve command builds one store for all collections: a Qdrant store at the
// URL of an entry whose Type is "qdrant" if there is one, otherwise an
// embedded chromem store.
type VectorBackend struct {
	Type string `yaml:"type"` // "qdrant" or "chromem"
	URL  string `yaml:"url,omitempty"`
}

// MemoryConfig configures the long-term memory client used for recall and
// write-back.
type MemoryConfig struct {
	BaseURL string `yaml:"base_url,omitempty"`
}

// SetDefaults applies default values across the whole config tree.
func (c *Config) SetDefaults() {
	c.Server.SetDefaults()
	c.Database.SetDefaults()
	c.Logger.SetDefaults()
	if c.Quota.Backend == "" {
		c.Quota.Backend = "memory"
	}
	if c.RAG.DefaultTopK == 0 {
		c.RAG.DefaultTopK = 5
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "convoyd"
	}
	if c.Tracing.SamplingRate == 0 {
		c.Tracing.SamplingRate = 1.0
	}
}

// Validate checks the entire config tree.
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Logger.Validate(); err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	switch c.Quota.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("quota: invalid backend %q (valid: memory, redis)", c.Quota.Backend)
	}
	if c.Quota.Backend == "redis" && c.Quota.RedisURL == "" {
		return fmt.Errorf("quota: redis_url is required when backend is redis")
	}
	for name, p := range c.LLM.Providers {
		switch p.Type {
		case "openai", "anthropic":
		default:
			return fmt.Errorf("llm: provider %q has invalid type %q (valid: openai, anthropic)", name, p.Type)
		}
	}
	return nil
}

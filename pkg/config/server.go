// Package config holds the layered configuration for the orchestrator
// service: server, database, logging, and per-tenant settings.
package config

import "fmt"

// ServerConfig configures the HTTP/SSE surface.
type ServerConfig struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`

	CORS *CORSConfig `yaml:"cors,omitempty"`
	Auth *AuthConfig `yaml:"auth,omitempty"`

	// RoundCap bounds the orchestrator's tool-calling loop per turn.
	// Default: 10.
	RoundCap int `yaml:"round_cap,omitempty"`

	// HistoryWindow is the number of recent messages fed to the LLM
	// alongside the system prompt. Default: 20.
	HistoryWindow int `yaml:"history_window,omitempty"`
}

// CORSConfig configures CORS for the chat endpoint.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
	AllowedMethods []string `yaml:"allowed_methods,omitempty"`
	AllowedHeaders []string `yaml:"allowed_headers,omitempty"`
}

// AuthConfig configures bearer-token validation on the chat endpoint.
type AuthConfig struct {
	// JWKSUrl or static secret used to validate incoming bearer tokens.
	JWKSUrl      string `yaml:"jwks_url,omitempty"`
	HMACSecret   string `yaml:"hmac_secret,omitempty"`
	RequireAuth  *bool  `yaml:"require_auth,omitempty"`
	ClaimUserKey string `yaml:"claim_user_key,omitempty"`
}

// SetDefaults applies default values.
func (c *ServerConfig) SetDefaults() {
	if c.Host == "" {
		c.Host = "0.0.0.0"
	}
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.RoundCap == 0 {
		c.RoundCap = 10
	}
	if c.HistoryWindow == 0 {
		c.HistoryWindow = 20
	}
	if c.CORS == nil {
		c.CORS = &CORSConfig{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
		}
	}
	if c.Auth != nil {
		c.Auth.SetDefaults()
	}
}

// SetDefaults applies default values for AuthConfig.
func (c *AuthConfig) SetDefaults() {
	if c.RequireAuth == nil {
		v := false
		c.RequireAuth = &v
	}
	if c.ClaimUserKey == "" {
		c.ClaimUserKey = "sub"
	}
}

// IsRequireAuth reports whether auth is mandatory.
func (c *AuthConfig) IsRequireAuth() bool {
	return c != nil && c.RequireAuth != nil && *c.RequireAuth
}

// Validate checks the server configuration.
func (c *ServerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RoundCap < 1 {
		return fmt.Errorf("round_cap must be at least 1")
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history_window must be non-negative")
	}
	if c.Auth != nil {
		if c.Auth.IsRequireAuth() && c.Auth.JWKSUrl == "" && c.Auth.HMACSecret == "" {
			return fmt.Errorf("auth: require_auth is set but neither jwks_url nor hmac_secret is configured")
		}
	}
	return nil
}

// Address returns the HTTP listen address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

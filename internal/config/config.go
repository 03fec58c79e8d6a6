// Package config provides configuration loading and validation for the CLI
// and the API server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// Config represents the configuration that can be loaded from a JSON file.
// All fields are optional; missing values use defaults, environment
// variables or CLI flags.
type Config struct {
	// One-shot run inputs
	Name               string `json:"name,omitempty"`                // Project name
	ProductDescription string `json:"product_description,omitempty"` // What is being researched
	Industry           string `json:"industry,omitempty"`            // Industry label
	Stage              string `json:"stage,omitempty"`               // Venture stage label
	UserID             string `json:"user_id,omitempty"`             // Owning user UUID

	// Services
	APIKey      string `json:"api_key,omitempty"`      // Gemini API key
	DatabaseURL string `json:"database_url,omitempty"` // PostgreSQL connection URL
	ResearchURL string `json:"research_url,omitempty"` // Deep research service base URL
	RedditURL   string `json:"reddit_url,omitempty"`   // Reddit base URL override

	// Server
	Port      int    `json:"port,omitempty"`
	JWTSecret string `json:"jwt_secret,omitempty"`

	// Email
	SMTPHost     string `json:"smtp_host,omitempty"`
	SMTPPort     int    `json:"smtp_port,omitempty"`
	SMTPSender   string `json:"smtp_sender,omitempty"`
	SMTPPassword string `json:"smtp_password,omitempty"`

	// Behavior
	Verbose         bool `json:"verbose,omitempty"`          // Print detailed progress
	ResearchBreadth int  `json:"research_breadth,omitempty"` // Deep research breadth
	ResearchDepth   int  `json:"research_depth,omitempty"`   // Deep research depth
	PersonaCount    int  `json:"persona_count,omitempty"`    // Personas to generate
}

// LoadConfig loads configuration from a JSON file.
// Returns an error if the file cannot be read or parsed.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config path is empty")
	}

	// Resolve path relative to current directory if not absolute
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		path = filepath.Join(cwd, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	return &cfg, nil
}

// FromEnv returns a Config populated from environment variables. Call after
// godotenv has loaded any .env file.
func FromEnv() Config {
	return Config{
		APIKey:       os.Getenv("GEMINI_API_KEY"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		ResearchURL:  os.Getenv("RESEARCH_API_URL"),
		RedditURL:    os.Getenv("REDDIT_BASE_URL"),
		Port:         envInt("PORT"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     envInt("SMTP_PORT"),
		SMTPSender:   os.Getenv("SMTP_SENDER"),
		SMTPPassword: os.Getenv("ZOHO_PASSWORD"),
	}
}

func envInt(key string) int {
	value := os.Getenv(key)
	if value == "" {
		return 0
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return n
}

// Validate checks that the configuration has valid values.
// Note: This doesn't check for required fields since those are handled
// by CLI flag validation after merging.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("config error: 'port' must be between 0 and 65535")
	}
	if c.SMTPPort < 0 || c.SMTPPort > 65535 {
		return fmt.Errorf("config error: 'smtp_port' must be between 0 and 65535")
	}
	if c.ResearchBreadth < 0 {
		return fmt.Errorf("config error: 'research_breadth' must be non-negative")
	}
	if c.ResearchDepth < 0 {
		return fmt.Errorf("config error: 'research_depth' must be non-negative")
	}
	if c.PersonaCount < 0 {
		return fmt.Errorf("config error: 'persona_count' must be non-negative")
	}
	return nil
}

// MergeWithDefaults returns a new Config with empty fields filled from
// defaults. This is used to apply env values as defaults for a config file,
// or config file values as defaults for CLI flags.
func (c *Config) MergeWithDefaults(defaults Config) Config {
	result := *c

	// String fields: use default if empty
	if result.Name == "" {
		result.Name = defaults.Name
	}
	if result.ProductDescription == "" {
		result.ProductDescription = defaults.ProductDescription
	}
	if result.Industry == "" {
		result.Industry = defaults.Industry
	}
	if result.Stage == "" {
		result.Stage = defaults.Stage
	}
	if result.UserID == "" {
		result.UserID = defaults.UserID
	}
	if result.APIKey == "" {
		result.APIKey = defaults.APIKey
	}
	if result.DatabaseURL == "" {
		result.DatabaseURL = defaults.DatabaseURL
	}
	if result.ResearchURL == "" {
		result.ResearchURL = defaults.ResearchURL
	}
	if result.RedditURL == "" {
		result.RedditURL = defaults.RedditURL
	}
	if result.JWTSecret == "" {
		result.JWTSecret = defaults.JWTSecret
	}
	if result.SMTPHost == "" {
		result.SMTPHost = defaults.SMTPHost
	}
	if result.SMTPSender == "" {
		result.SMTPSender = defaults.SMTPSender
	}
	if result.SMTPPassword == "" {
		result.SMTPPassword = defaults.SMTPPassword
	}

	// Int fields: use default if zero
	if result.Port == 0 {
		result.Port = defaults.Port
	}
	if result.SMTPPort == 0 {
		result.SMTPPort = defaults.SMTPPort
	}
	if result.ResearchBreadth == 0 {
		result.ResearchBreadth = defaults.ResearchBreadth
	}
	if result.ResearchDepth == 0 {
		result.ResearchDepth = defaults.ResearchDepth
	}
	if result.PersonaCount == 0 {
		result.PersonaCount = defaults.PersonaCount
	}

	// Bool fields: cannot distinguish unset from false, so we don't merge
	// (CLI flags should always win for bools)

	return result
}

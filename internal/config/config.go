package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"pathway/internal/domain"
)

// Config models pathway.yml: the tunable scoring and search parameters.
// The 90/70 status bands and 85/65 confidence bands shown by presentation
// layers live here so the scorer and any display surface share one source.
type Config struct {
	Scoring struct {
		RecommendedAt int                          `yaml:"recommended_at"`
		AvailableAt   int                          `yaml:"available_at"`
		Weights       map[domain.Dimension]float64 `yaml:"weights"`
	} `yaml:"scoring"`
	Confidence struct {
		HighAt   int `yaml:"high_at"`
		MediumAt int `yaml:"medium_at"`
	} `yaml:"confidence"`
	Search struct {
		MaxDepth int `yaml:"max_depth"`
	} `yaml:"search"`
	Webhooks []WebhookConfig `yaml:"webhooks,omitempty"`
}

// WebhookConfig is one event delivery target. An empty Events list matches
// every event type.
type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events,omitempty"`
	Secret         string   `yaml:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled,omitempty"`
}

// StatusFor classifies a match percentage against the configured bands.
func (c *Config) StatusFor(matchPercentage int) domain.MatchStatus {
	switch {
	case matchPercentage >= c.Scoring.RecommendedAt:
		return domain.StatusRecommended
	case matchPercentage >= c.Scoring.AvailableAt:
		return domain.StatusAvailable
	default:
		return domain.StatusLocked
	}
}

// ConfidenceFor classifies an average match against the configured bands.
func (c *Config) ConfidenceFor(averageMatch int) domain.Confidence {
	switch {
	case averageMatch >= c.Confidence.HighAt:
		return domain.ConfidenceHigh
	case averageMatch >= c.Confidence.MediumAt:
		return domain.ConfidenceMedium
	default:
		return domain.ConfidenceLow
	}
}

// Weight returns the scoring weight for a dimension, defaulting to 1.
func (c *Config) Weight(d domain.Dimension) float64 {
	if w, ok := c.Scoring.Weights[d]; ok && w > 0 {
		return w
	}
	return 1
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Scoring.RecommendedAt <= 0 || c.Scoring.RecommendedAt > 100 {
		return fmt.Errorf("config.scoring.recommended_at must be in (0,100]")
	}
	if c.Scoring.AvailableAt <= 0 || c.Scoring.AvailableAt > 100 {
		return fmt.Errorf("config.scoring.available_at must be in (0,100]")
	}
	if c.Scoring.AvailableAt >= c.Scoring.RecommendedAt {
		return fmt.Errorf("config.scoring.available_at must be below recommended_at")
	}
	for dim, w := range c.Scoring.Weights {
		known := false
		for _, d := range domain.Dimensions {
			if d == dim {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("config.scoring.weights references unknown dimension %s", dim)
		}
		if w <= 0 {
			return fmt.Errorf("config.scoring.weights.%s must be positive", dim)
		}
	}
	if c.Confidence.HighAt <= 0 || c.Confidence.HighAt > 100 {
		return fmt.Errorf("config.confidence.high_at must be in (0,100]")
	}
	if c.Confidence.MediumAt <= 0 || c.Confidence.MediumAt >= c.Confidence.HighAt {
		return fmt.Errorf("config.confidence.medium_at must be positive and below high_at")
	}
	if c.Search.MaxDepth <= 0 {
		return fmt.Errorf("config.search.max_depth must be positive")
	}
	for i, hook := range c.Webhooks {
		if hook.URL == "" {
			return fmt.Errorf("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Default returns the documented default Config.
func Default() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(defaultTemplate), &cfg); err != nil {
		panic(fmt.Sprintf("default config template invalid: %v", err))
	}
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional reads the config at path, falling back to defaults when the
// file does not exist.
func LoadOptional(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `scoring:
  recommended_at: 90
  available_at: 70
  weights:
    education: 1
    work_experience: 1
    field_of_work: 1
    citizenship: 1
    investment: 1
    language: 1

confidence:
  high_at: 85
  medium_at: 65

search:
  max_depth: 4
`

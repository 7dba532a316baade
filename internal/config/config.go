package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models crisisline.yml.
type Config struct {
	Engine struct {
		// ConsensusThreshold is the percentage of the roster that must
		// agree before a consensus is finalized.
		ConsensusThreshold float64 `yaml:"consensus_threshold"`
		// CategoryWeights multiply the classifier's weighted score per
		// crisis type. Unlisted types weigh 1.0.
		CategoryWeights map[string]float64 `yaml:"category_weights"`
		// ImpactWeights are assigned positionally to the economic,
		// social and environmental sub-scores during aggregation.
		ImpactWeights struct {
			Economic      float64 `yaml:"economic"`
			Social        float64 `yaml:"social"`
			Environmental float64 `yaml:"environmental"`
		} `yaml:"impact_weights"`
	} `yaml:"engine"`
	Auth struct {
		JWTSecret              string `yaml:"jwt_secret"`
		AllowLegacyActorHeader bool   `yaml:"allow_legacy_actor_header"`
	} `yaml:"auth"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
	Enabled        *bool    `yaml:"enabled"`
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Engine.ConsensusThreshold <= 0 || c.Engine.ConsensusThreshold > 100 {
		return fmt.Errorf("engine.consensus_threshold must be in (0,100]")
	}
	for name, w := range c.Engine.CategoryWeights {
		if name == "" {
			return fmt.Errorf("engine.category_weights contains empty crisis type")
		}
		if w <= 0 {
			return fmt.Errorf("engine.category_weights.%s must be positive", name)
		}
	}
	iw := c.Engine.ImpactWeights
	if iw.Economic <= 0 || iw.Social <= 0 || iw.Environmental <= 0 {
		return fmt.Errorf("engine.impact_weights must all be positive")
	}
	for i, wh := range c.Webhooks {
		if wh.URL == "" {
			return fmt.Errorf("webhooks[%d].url is required", i)
		}
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "crisisline.yml")
}

// Default returns the built-in configuration: the fixed category weight
// table, the 0.4/0.3/0.3 impact weights and the 75% consensus quorum.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
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

// CategoryWeight resolves the classifier weight for a crisis type.
func (c *Config) CategoryWeight(crisisType string) float64 {
	if w, ok := c.Engine.CategoryWeights[crisisType]; ok {
		return w
	}
	return 1.0
}

const defaultTemplate = `engine:
  consensus_threshold: 75

  category_weights:
    pandemic: 1.3
    natural_disaster: 1.2
    environmental_crisis: 1.2
    economic_crisis: 1.1
    social_unrest: 1.0
    technological_crisis: 0.9

  impact_weights:
    economic: 0.4
    social: 0.3
    environmental: 0.3

auth:
  jwt_secret: ""
  allow_legacy_actor_header: false
`

// Package config loads and validates the provisioner's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// AuthMode selects how the integration authenticates against GitLab.
type AuthMode string

const (
	// AuthBotUserPAT means a single shared personal access token is used
	// for every target; no per-group or per-project token is created.
	AuthBotUserPAT AuthMode = "bot_user_pat"

	// AuthGroupTokenPerRootGroup means a dedicated access token is
	// created on each configured root group and each configured project.
	AuthGroupTokenPerRootGroup AuthMode = "group_token_per_root_group"
)

// DefaultTokenLifetimeDays is the token expiry applied when the config
// does not set one.
const DefaultTokenLifetimeDays = 365

// WebhookConfig is the desired webhook template.
type WebhookConfig struct {
	MergeRequestURL string `yaml:"merge_request_url" validate:"required,url"`
	// SecretToken is optional; when empty a secret is generated per run.
	SecretToken string `yaml:"secret_token"`
}

// Config is the full, immutable run configuration.
type Config struct {
	GitLabBaseURL      string        `yaml:"gitlab_base_url" validate:"required,url"`
	AuthMode           AuthMode      `yaml:"auth_mode" validate:"required,oneof=bot_user_pat group_token_per_root_group"`
	Webhooks           WebhookConfig `yaml:"webhooks"`
	RootGroups         TargetList    `yaml:"root_groups"`
	Projects           TargetList    `yaml:"projects"`
	DryRun             bool          `yaml:"dry_run"`
	LogLevel           string        `yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	TokenExpiresInDays int           `yaml:"token_expires_in_days" validate:"omitempty,min=1"`
}

// TargetList is a list of group or project identifiers. YAML authors write
// numeric IDs unquoted, so scalars are coerced to strings on decode.
type TargetList []string

func (l *TargetList) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("expected a list, got %s", value.Tag)
	}
	out := make([]string, 0, len(value.Content))
	for _, item := range value.Content {
		if item.Kind != yaml.ScalarNode {
			return fmt.Errorf("expected a scalar list entry, got %s", item.Tag)
		}
		out = append(out, item.Value)
	}
	*l = out
	return nil
}

// Load reads, decodes and validates the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates raw YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{
		LogLevel:           "info",
		TokenExpiresInDays: DefaultTokenLifetimeDays,
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if len(cfg.RootGroups) == 0 && len(cfg.Projects) == 0 {
		return nil, errors.New("invalid config: at least one of root_groups or projects must be set")
	}
	return cfg, nil
}

package project

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ramparte/deployotron/internal/ops"
	"github.com/ramparte/deployotron/internal/security"
)

const MinSecretLength = 32

// ForbiddenSecrets are placeholder values people forget to replace.
var ForbiddenSecrets = map[string]bool{
	"replace-with-secret": true,
	"topsecret":           true,
	"secret":              true,
	"password":            true,
	"changeme":            true,
}

// LoadConfig loads and validates the configuration from a YAML file.
func LoadConfig(configPath string) (*Config, map[string]*Project, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if config.Projects == nil {
		config.Projects = make(map[string]ProjectConfig)
	}

	projects := make(map[string]*Project)
	for name, projectConfig := range config.Projects {
		errors := ValidateProjectConfig(name, projectConfig)
		if len(errors) > 0 {
			return nil, nil, fmt.Errorf("invalid configuration for project '%s':\n%s",
				name, strings.Join(errors, "\n"))
		}

		branch := projectConfig.Branch
		if branch == "" {
			branch = "main"
		}

		registry := projectConfig.Registry
		if registry == "" {
			registry = name
		}

		var framework ops.Framework
		if projectConfig.Framework != "" {
			framework = ops.ParseFramework(projectConfig.Framework)
		}

		projects[name] = &Project{
			ID:            name,
			Name:          name,
			RepositoryURL: projectConfig.Repository,
			Branch:        branch,
			Framework:     framework,
			Cluster:       projectConfig.Cluster,
			Service:       projectConfig.Service,
			Registry:      registry,
			Secret:        projectConfig.Secret,
		}
	}

	return &config, projects, nil
}

// ValidateProjectConfig validates a single project configuration.
func ValidateProjectConfig(name string, config ProjectConfig) []string {
	var errors []string

	if err := security.ValidateProjectName(name); err != nil {
		errors = append(errors, fmt.Sprintf("  - Project '%s': %v", name, err))
	}

	if config.Repository == "" {
		errors = append(errors, fmt.Sprintf("  - Project '%s': missing required 'repository' field", name))
	} else if err := security.ValidateRepositoryURL(config.Repository); err != nil {
		errors = append(errors, fmt.Sprintf("  - Project '%s': invalid repository: %v", name, err))
	}

	if config.Branch != "" {
		if err := security.ValidateBranchName(config.Branch); err != nil {
			errors = append(errors, fmt.Sprintf("  - Project '%s': invalid branch: %v", name, err))
		}
	}

	if config.Cluster == "" {
		errors = append(errors, fmt.Sprintf("  - Project '%s': missing required 'cluster' field", name))
	}
	if config.Service == "" {
		errors = append(errors, fmt.Sprintf("  - Project '%s': missing required 'service' field", name))
	}

	// Secret is optional (webhook disabled without it) but must be strong
	// when present.
	if config.Secret != "" {
		if len(config.Secret) < MinSecretLength {
			errors = append(errors, fmt.Sprintf("  - Project '%s': secret must be at least %d characters", name, MinSecretLength))
		}
		if ForbiddenSecrets[strings.ToLower(config.Secret)] {
			errors = append(errors, fmt.Sprintf("  - Project '%s': secret is a known placeholder value", name))
		}
	}

	return errors
}

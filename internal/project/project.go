// Package project holds the deployable project descriptors loaded from
// the YAML configuration file. Descriptors are read-only inputs to a
// deployment run.
package project

import (
	"fmt"
	"sync"

	"github.com/ramparte/deployotron/internal/ops"
)

// Project is a validated deployment target.
type Project struct {
	// ID doubles as the project name; names are unique in the config.
	ID            string
	Name          string
	RepositoryURL string
	Branch        string

	// Framework is empty when it should be detected from the checkout.
	Framework ops.Framework

	Cluster  string
	Service  string
	Registry string

	// Secret signs incoming webhooks. Empty disables the webhook route
	// for this project.
	Secret string
}

// ProjectConfig is the YAML shape of a project entry.
type ProjectConfig struct {
	Repository string `yaml:"repository"`
	Branch     string `yaml:"branch"`
	Framework  string `yaml:"framework"`
	Cluster    string `yaml:"cluster"`
	Service    string `yaml:"service"`
	Registry   string `yaml:"registry"`
	Secret     string `yaml:"secret"`
}

// Config is the root YAML structure.
type Config struct {
	Projects map[string]ProjectConfig `yaml:"projects"`
}

// Registry is the in-memory collection of loaded projects.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]*Project
}

// NewRegistry creates a registry over already-validated projects.
func NewRegistry(projects map[string]*Project) *Registry {
	if projects == nil {
		projects = make(map[string]*Project)
	}
	return &Registry{projects: projects}
}

// Get retrieves a project by name.
func (r *Registry) Get(name string) (*Project, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	proj, exists := r.projects[name]
	if !exists {
		return nil, fmt.Errorf("project '%s' not found", name)
	}
	return proj, nil
}

// List returns all project names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.projects))
	for name := range r.projects {
		names = append(names, name)
	}
	return names
}

// Count returns the number of projects.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

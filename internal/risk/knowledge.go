package risk

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Default knowledge base file names inside the knowledge directory.
const (
	ArchitectureMapFile    = "architecture_map.txt"
	IncidentHistoryFile    = "incident_history.txt"
	DeploymentPoliciesFile = "deployment_policies.txt"
	ManifestFile           = "knowledge.yaml"
)

// DefaultRules are the classification rules given to the model when the
// manifest does not override them.
var DefaultRules = []string{
	"Schema changes (especially user_id field) = HIGH RISK (reference Incident #OUTAGE-2024-06)",
	"Changes affecting Legacy-Scanner-Adapter = HIGH RISK",
	"Database modifications = HIGH RISK",
	"Branch operations (create/delete) = LOW/MEDIUM RISK depending on context",
	"Documentation updates = LOW RISK",
}

// KnowledgeBase is the static reference material included in every
// analysis prompt. It is loaded once at startup and never mutated; copies
// share the rules slice, so callers must not modify Rules().
type KnowledgeBase struct {
	architectureMap    string
	incidentHistory    string
	deploymentPolicies string
	rules              []string
}

// Manifest optionally renames the knowledge files and replaces the rules.
//
//	files:
//	  architecture_map: services.md
//	  incident_history: incidents.md
//	rules:
//	  - Payment service changes = HIGH RISK
type Manifest struct {
	Files struct {
		ArchitectureMap    string `yaml:"architecture_map"`
		IncidentHistory    string `yaml:"incident_history"`
		DeploymentPolicies string `yaml:"deployment_policies"`
	} `yaml:"files"`
	Rules []string `yaml:"rules"`
}

// NewKnowledgeBase builds a knowledge base from literal text. A nil rules
// slice selects DefaultRules.
func NewKnowledgeBase(architectureMap, incidentHistory, deploymentPolicies string, rules []string) KnowledgeBase {
	if rules == nil {
		rules = DefaultRules
	}
	return KnowledgeBase{
		architectureMap:    architectureMap,
		incidentHistory:    incidentHistory,
		deploymentPolicies: deploymentPolicies,
		rules:              append([]string(nil), rules...),
	}
}

// LoadKnowledgeBase reads the knowledge files from dir. A missing file is
// replaced by a "# <file> not available" placeholder so analysis can still
// run. An empty dir yields a knowledge base made only of placeholders.
func LoadKnowledgeBase(dir string) (KnowledgeBase, error) {
	var m Manifest
	if dir != "" {
		data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &m); err != nil {
				return KnowledgeBase{}, fmt.Errorf("parse %s: %w", ManifestFile, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return KnowledgeBase{}, fmt.Errorf("read %s: %w", ManifestFile, err)
		}
	}

	arch, err := readKnowledgeFile(dir, orDefault(m.Files.ArchitectureMap, ArchitectureMapFile))
	if err != nil {
		return KnowledgeBase{}, err
	}
	incidents, err := readKnowledgeFile(dir, orDefault(m.Files.IncidentHistory, IncidentHistoryFile))
	if err != nil {
		return KnowledgeBase{}, err
	}
	policies, err := readKnowledgeFile(dir, orDefault(m.Files.DeploymentPolicies, DeploymentPoliciesFile))
	if err != nil {
		return KnowledgeBase{}, err
	}

	var rules []string
	if len(m.Rules) > 0 {
		rules = m.Rules
	}
	return NewKnowledgeBase(arch, incidents, policies, rules), nil
}

func readKnowledgeFile(dir, name string) (string, error) {
	placeholder := fmt.Sprintf("# %s not available", name)
	if dir == "" {
		return placeholder, nil
	}
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return placeholder, nil
		}
		return "", fmt.Errorf("read knowledge file %s: %w", name, err)
	}
	return string(data), nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func (kb KnowledgeBase) ArchitectureMap() string    { return kb.architectureMap }
func (kb KnowledgeBase) IncidentHistory() string    { return kb.incidentHistory }
func (kb KnowledgeBase) DeploymentPolicies() string { return kb.deploymentPolicies }
func (kb KnowledgeBase) Rules() []string            { return kb.rules }

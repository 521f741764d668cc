package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// OrgProfile is an org's policy configuration: engine-wide settings plus a
// set of CUSTOM-stage deny rules expressed as CEL expressions, loaded from
// YAML rather than wired in Go so operators can change an org's rules
// without a redeploy.
type OrgProfile struct {
	OrgID        string       `yaml:"org_id" json:"org_id"`
	DryRun       bool         `yaml:"dry_run,omitempty" json:"dry_run,omitempty"`
	DefaultAllow bool         `yaml:"default_allow,omitempty" json:"default_allow,omitempty"`
	MaxCacheSize int          `yaml:"max_cache_size,omitempty" json:"max_cache_size,omitempty"`
	CustomRules  []CustomRule `yaml:"custom_rules,omitempty" json:"custom_rules,omitempty"`
}

// CustomRule is one CEL-expressed CUSTOM-stage deny rule.
type CustomRule struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
	Reason     string `yaml:"reason" json:"reason"`
}

// EngineConfig projects the profile's engine-wide settings onto Config.
func (p *OrgProfile) EngineConfig() Config {
	return Config{
		DryRun:       p.DryRun,
		DefaultAllow: p.DefaultAllow,
		MaxCacheSize: p.MaxCacheSize,
	}
}

// LoadOrgProfile loads an org's policy profile by orgId, searching
// profilesDir for policy_<orgId>.yaml.
func LoadOrgProfile(profilesDir, orgID string) (*OrgProfile, error) {
	path := filepath.Join(profilesDir, fmt.Sprintf("policy_%s.yaml", orgID))

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load policy profile %q: %w", orgID, err)
	}

	var profile OrgProfile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse policy profile %q: %w", orgID, err)
	}
	if profile.OrgID == "" {
		profile.OrgID = orgID
	}
	return &profile, nil
}

// LoadAllOrgProfiles loads every policy_*.yaml file from profilesDir, keyed
// by orgId.
func LoadAllOrgProfiles(profilesDir string) (map[string]*OrgProfile, error) {
	matches, err := filepath.Glob(filepath.Join(profilesDir, "policy_*.yaml"))
	if err != nil {
		return nil, err
	}

	profiles := make(map[string]*OrgProfile, len(matches))
	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}

		var profile OrgProfile
		if err := yaml.Unmarshal(data, &profile); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		if profile.OrgID == "" {
			base := filepath.Base(path)
			profile.OrgID = strings.TrimSuffix(strings.TrimPrefix(base, "policy_"), ".yaml")
		}
		profiles[profile.OrgID] = &profile
	}

	return profiles, nil
}

// CompileCustomHooks compiles the profile's CEL rules into CustomHooks ready
// for Engine.AddCustomHook, using c to compile and cache each expression.
func (p *OrgProfile) CompileCustomHooks(c *CELHookCompiler) ([]CustomHook, error) {
	hooks := make([]CustomHook, 0, len(p.CustomRules))
	for _, rule := range p.CustomRules {
		hook, err := c.Compile(rule.Expression, rule.Reason)
		if err != nil {
			return nil, fmt.Errorf("compile custom rule %q: %w", rule.Name, err)
		}
		hooks = append(hooks, hook)
	}
	return hooks, nil
}

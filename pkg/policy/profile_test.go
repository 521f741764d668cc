package policy_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aigos/governor/pkg/policy"
	"github.com/stretchr/testify/require"
)

const acmeProfileYAML = `
org_id: acme
dry_run: false
default_allow: false
max_cache_size: 1024
custom_rules:
  - name: block-prod-deploys-after-hours
    expression: "req.action == 'deploy' && req.context['hour'] > 20"
    reason: deploys are blocked after 20:00
`

func writeProfile(t *testing.T, dir, name, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(contents), 0o644))
}

func TestLoadOrgProfile(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "policy_acme.yaml", acmeProfileYAML)

	p, err := policy.LoadOrgProfile(dir, "acme")
	require.NoError(t, err)
	require.Equal(t, "acme", p.OrgID)
	require.Equal(t, 1024, p.MaxCacheSize)
	require.Len(t, p.CustomRules, 1)
	require.Equal(t, "block-prod-deploys-after-hours", p.CustomRules[0].Name)
}

func TestLoadOrgProfile_MissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := policy.LoadOrgProfile(dir, "nope")
	require.Error(t, err)
}

func TestLoadAllOrgProfiles(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "policy_acme.yaml", acmeProfileYAML)
	writeProfile(t, dir, "policy_globex.yaml", "dry_run: true\n")

	profiles, err := policy.LoadAllOrgProfiles(dir)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	require.Equal(t, "acme", profiles["acme"].OrgID)
	require.Equal(t, "globex", profiles["globex"].OrgID)
	require.True(t, profiles["globex"].DryRun)
}

func TestOrgProfile_EngineConfig(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "policy_acme.yaml", acmeProfileYAML)
	p, err := policy.LoadOrgProfile(dir, "acme")
	require.NoError(t, err)

	cfg := p.EngineConfig()
	require.False(t, cfg.DryRun)
	require.Equal(t, 1024, cfg.MaxCacheSize)
}

func TestOrgProfile_CompileCustomHooks(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "policy_acme.yaml", acmeProfileYAML)
	p, err := policy.LoadOrgProfile(dir, "acme")
	require.NoError(t, err)

	compiler, err := policy.NewCELHookCompiler()
	require.NoError(t, err)

	hooks, err := p.CompileCustomHooks(compiler)
	require.NoError(t, err)
	require.Len(t, hooks, 1)

	deny, reason := hooks[0](policy.Request{
		Action:  "deploy",
		Context: map[string]interface{}{"hour": 22},
	})
	require.True(t, deny)
	require.Equal(t, "deploys are blocked after 20:00", reason)

	deny, _ = hooks[0](policy.Request{
		Action:  "deploy",
		Context: map[string]interface{}{"hour": 10},
	})
	require.False(t, deny)
}

func TestOrgProfile_CompileCustomHooks_InvalidExpression(t *testing.T) {
	dir := t.TempDir()
	writeProfile(t, dir, "policy_bad.yaml", `
org_id: bad
custom_rules:
  - name: broken
    expression: "req.action =="
    reason: never reached
`)
	p, err := policy.LoadOrgProfile(dir, "bad")
	require.NoError(t, err)

	compiler, err := policy.NewCELHookCompiler()
	require.NoError(t, err)

	_, err = p.CompileCustomHooks(compiler)
	require.Error(t, err)
}

package capability_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/capability"
	"github.com/aigos/governor/pkg/identity"
)

func rootIdentity(manifest identity.CapabilitiesManifest) *identity.RuntimeIdentity {
	return &identity.RuntimeIdentity{
		InstanceID:           "root-1",
		CapabilitiesManifest: manifest,
		Lineage: identity.Lineage{
			RootInstanceID:  "root-1",
			GenerationDepth: 0,
		},
	}
}

// TestSpawn_DecayScenario mirrors the concrete end-to-end scenario from
// spec §8.1: a decay-mode parent with max_cost_per_session=100,
// max_child_depth=3, generation_depth=0.
func TestSpawn_DecayScenario(t *testing.T) {
	parent := rootIdentity(identity.CapabilitiesManifest{
		MaySpawnChildren:  true,
		MaxChildDepth:     3,
		CapabilityMode:    identity.CapabilityDecay,
		MaxCostPerSession: 100,
		MaxCostPerDay:     100,
	})

	child, err := capability.Spawn(capability.SpawnRequest{Parent: parent})
	require.NoError(t, err)

	assert.EqualValues(t, 80, child.CapabilitiesManifest.MaxCostPerSession)
	assert.Equal(t, 3, child.CapabilitiesManifest.MaxChildDepth)
	assert.Equal(t, 1, child.Lineage.GenerationDepth)
	assert.True(t, child.CapabilitiesManifest.MaySpawnChildren)
	assert.Equal(t, parent.InstanceID, *child.Lineage.ParentInstanceID)
	assert.Equal(t, parent.Lineage.RootInstanceID, child.Lineage.RootInstanceID)
}

func TestSpawn_DepthExceeded(t *testing.T) {
	parent := rootIdentity(identity.CapabilitiesManifest{
		MaySpawnChildren: true,
		MaxChildDepth:    1,
		CapabilityMode:   identity.CapabilityDecay,
	})
	parent.Lineage.GenerationDepth = 1 // child would be depth 2 > max_child_depth 1

	_, err := capability.Spawn(capability.SpawnRequest{Parent: parent})
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrDepthExceeded)
}

func TestSpawn_Inherit(t *testing.T) {
	parent := rootIdentity(identity.CapabilitiesManifest{
		MaySpawnChildren: true,
		MaxChildDepth:    2,
		CapabilityMode:   identity.CapabilityInherit,
		AllowedTools:     []string{"fs:*"},
		MaxCostPerDay:    50,
	})

	child, err := capability.Spawn(capability.SpawnRequest{Parent: parent})
	require.NoError(t, err)
	assert.Equal(t, parent.CapabilitiesManifest.AllowedTools, child.CapabilitiesManifest.AllowedTools)
	assert.EqualValues(t, 50, child.CapabilitiesManifest.MaxCostPerDay)
	assert.Equal(t, 2, child.CapabilitiesManifest.MaxChildDepth)
}

func TestSpawn_ExplicitRejectsSupersetTools(t *testing.T) {
	parent := rootIdentity(identity.CapabilitiesManifest{
		MaySpawnChildren: true,
		MaxChildDepth:    2,
		CapabilityMode:   identity.CapabilityExplicit,
		AllowedTools:     []string{"fs:read"},
		MaxCostPerSession: 10,
	})

	requested := identity.CapabilitiesManifest{
		AllowedTools:      []string{"fs:read", "fs:write"},
		MaxCostPerSession: 10,
	}

	_, err := capability.Spawn(capability.SpawnRequest{Parent: parent, ExplicitManifest: &requested})
	require.Error(t, err)
	assert.ErrorIs(t, err, capability.ErrInvalidCapability)
}

func TestSpawn_ExplicitAcceptsSubset(t *testing.T) {
	parent := rootIdentity(identity.CapabilitiesManifest{
		MaySpawnChildren:  true,
		MaxChildDepth:     2,
		CapabilityMode:    identity.CapabilityExplicit,
		AllowedTools:      []string{"fs:*"},
		MaxCostPerSession: 10,
		MaxCostPerDay:     20,
	})

	requested := identity.CapabilitiesManifest{
		AllowedTools:      []string{"fs:read"},
		MaxCostPerSession: 5,
		MaxCostPerDay:     5,
		MaxChildDepth:     1,
	}

	child, err := capability.Spawn(capability.SpawnRequest{Parent: parent, ExplicitManifest: &requested})
	require.NoError(t, err)
	assert.Equal(t, []string{"fs:read"}, child.CapabilitiesManifest.AllowedTools)
}

func TestMatchDomain_WildcardSubdomain(t *testing.T) {
	assert.True(t, capability.MatchDomain("*.example.com", "example.com"))
	assert.True(t, capability.MatchDomain("*.example.com", "api.example.com"))
	assert.False(t, capability.MatchDomain("*.example.com", "example.org"))
}

package ingestion_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/ingestion"
)

func hashLeaf(t *testing.T, data string) string {
	t.Helper()
	evt, err := ingestion.NewEvent(ingestion.Draft{
		Type:  "test",
		OrgID: "org-1",
		Data:  map[string]any{"v": data},
	})
	require.NoError(t, err)
	return evt.Hash
}

// TestBuildRoot_Scenario6 checks the determinism half of spec §8 scenario 6
// over leaves [H1,H2,H3]: two calls give the same sha256:-prefixed root, and
// adding H4 changes it. The root is not compared against an independently
// computed value.
func TestBuildRoot_Scenario6(t *testing.T) {
	h1 := hashLeaf(t, "a")
	h2 := hashLeaf(t, "b")
	h3 := hashLeaf(t, "c")

	root1 := ingestion.BuildRoot([]string{h1, h2, h3})
	root2 := ingestion.BuildRoot([]string{h1, h2, h3})
	assert.Equal(t, root1, root2, "BuildRoot must be deterministic")
	assert.Contains(t, root1, "sha256:")

	h4 := hashLeaf(t, "d")
	root4 := ingestion.BuildRoot([]string{h1, h2, h3, h4})
	assert.NotEqual(t, root1, root4, "adding a leaf must change the root")
}

func TestBuildRoot_EmptySentinel(t *testing.T) {
	root := ingestion.BuildRoot(nil)
	assert.Equal(t, "sha256:e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", root)
}

func TestSealer_ShouldSealByCount(t *testing.T) {
	s := ingestion.Sealer{MaxLeaves: 3}
	now := time.Now()
	assert.False(t, s.ShouldSeal(now, 2, now))
	assert.True(t, s.ShouldSeal(now, 3, now))
}

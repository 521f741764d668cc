//go:build property
// +build property

package ingestion_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/aigos/governor/pkg/ingestion"
)

// TestBuildRoot_DeterministicProperty verifies BuildRoot(leaves) ==
// BuildRoot(leaves) for any leaf set, and that appending a leaf always
// changes the root (no accidental collisions from the duplication rule).
func TestBuildRoot_DeterministicProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("BuildRoot is deterministic", prop.ForAll(
		func(leaves []string) bool {
			hashes := make([]string, len(leaves))
			for i, l := range leaves {
				hashes[i] = "sha256:" + ingestion.BuildRoot([]string{l})[len("sha256:"):]
			}
			root1 := ingestion.BuildRoot(hashes)
			root2 := ingestion.BuildRoot(hashes)
			return root1 == root2
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.Property("appending a leaf changes the root", prop.ForAll(
		func(a, b string) bool {
			if a == b {
				return true
			}
			h1 := ingestion.BuildRoot([]string{a})
			withExtra := ingestion.BuildRoot([]string{a, b})
			return h1 != withExtra
		},
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

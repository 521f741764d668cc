//go:build property
// +build property

package canonicalize_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/aigos/governor/pkg/canonicalize"
)

// TestCanonicalHash_Deterministic verifies CanonicalHash(obj) is stable
// across repeated calls and independent of Go map iteration order, which
// is randomized per process.
func TestCanonicalHash_Deterministic(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("canonical hash is stable for any key/value set", prop.ForAll(
		func(keys []string, values []string) bool {
			obj := make(map[string]any)
			for i := 0; i < len(keys) && i < len(values); i++ {
				if keys[i] != "" {
					obj[keys[i]] = values[i]
				}
			}
			h1, err1 := canonicalize.CanonicalHash(obj)
			h2, err2 := canonicalize.CanonicalHash(obj)
			if err1 != nil || err2 != nil {
				return err1 != nil && err2 != nil
			}
			return h1 == h2
		},
		gen.SliceOf(gen.AlphaString()),
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}

// TestHashExcluding_IgnoresExcludedField verifies that mutating an excluded
// top-level field never changes the computed hash, the property C6's
// event-hashing scheme depends on.
func TestHashExcluding_IgnoresExcludedField(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("hash is unaffected by the excluded field's value", prop.ForAll(
		func(kept, excludedA, excludedB string) bool {
			base := map[string]any{"kept": kept}
			withA := map[string]any{"kept": kept, "hash": excludedA}
			withB := map[string]any{"kept": kept, "hash": excludedB}

			hBase, err := canonicalize.HashExcluding(base, "hash")
			if err != nil {
				return false
			}
			hA, err := canonicalize.HashExcluding(withA, "hash")
			if err != nil {
				return false
			}
			hB, err := canonicalize.HashExcluding(withB, "hash")
			if err != nil {
				return false
			}
			return hBase == hA && hA == hB
		},
		gen.AlphaString(),
		gen.AlphaString(),
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}

package identity

import "github.com/aigos/governor/pkg/canonicalize"

// VerifyResult is the outcome of recomputing an identity's cryptographic
// bindings.
type VerifyResult struct {
	Verified bool
	Errors   []string
}

// Verify recomputes the Golden Thread hash from an identity's recorded
// approval fields and checks it against the recorded hash. It is pure: no
// I/O, no clock reads, no network calls (spec §4.1).
//
// Invariant: verified ⇒ golden_thread_hash matches canonical recomputation.
func Verify(id *RuntimeIdentity) VerifyResult {
	var errs []string

	recomputed, err := canonicalize.GoldenThreadHash(
		id.GoldenThread.TicketID,
		id.GoldenThread.ApprovedBy,
		id.GoldenThread.ApprovedAt,
	)
	if err != nil {
		return VerifyResult{Verified: false, Errors: []string{"golden_thread: " + err.Error()}}
	}
	if recomputed != id.GoldenThreadHash {
		errs = append(errs, "golden_thread_hash mismatch: recomputation does not match recorded hash")
	}
	if id.GoldenThread.Hash != "" && id.GoldenThread.Hash != recomputed {
		errs = append(errs, "golden_thread.hash mismatch: recomputation does not match recorded hash")
	}

	if id.Lineage.ParentInstanceID == nil {
		if id.Lineage.GenerationDepth != 0 {
			errs = append(errs, "generation_depth must be 0 for a root instance")
		}
		if id.Lineage.RootInstanceID != id.InstanceID {
			errs = append(errs, "root_instance_id must equal instance_id for a root instance")
		}
	} else {
		if id.Lineage.GenerationDepth <= 0 {
			errs = append(errs, "generation_depth must be > 0 for a non-root instance")
		}
		if len(id.Lineage.AncestorChain) != id.Lineage.GenerationDepth {
			errs = append(errs, "ancestor_chain length must equal generation_depth")
		}
	}

	if err := validateManifest(id.CapabilitiesManifest); err != nil {
		errs = append(errs, err.Error())
	}

	return VerifyResult{Verified: len(errs) == 0, Errors: errs}
}

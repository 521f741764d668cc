package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Checkpoint is a sealed Merkle window over one org's event hashes, in
// time order (spec §4.6).
type Checkpoint struct {
	OrgID        string    `json:"org_id"`
	WindowStart  time.Time `json:"window_start"`
	WindowEnd    time.Time `json:"window_end"`
	LeafCount    int       `json:"leaf_count"`
	Root         string    `json:"root"`
	PreviousRoot string    `json:"previous_root,omitempty"`
}

// emptyRoot is the sentinel root for a window with zero leaves:
// sha256:sha256("").
var emptyRoot = "sha256:" + sha256Hex(nil)

// BuildRoot computes the Merkle root over leafHashes (each already a
// "sha256:<hex>" event hash, in time order), per spec §4.6 and the golden
// scenario in spec §8 scenario 6: internal nodes are the plain
// sha256(left‖right) hex concatenation with no domain-separation prefix
// (a deliberate divergence from prefixed Merkle schemes elsewhere in this
// codebase's lineage, since the spec pins an exact byte-for-byte test
// vector). Odd counts duplicate the last leaf. Deterministic: calling this
// twice on the same list yields the same root.
func BuildRoot(leafHashes []string) string {
	if len(leafHashes) == 0 {
		return emptyRoot
	}

	level := make([][]byte, len(leafHashes))
	for i, h := range leafHashes {
		level[i] = leafBytes(h)
	}

	for len(level) > 1 {
		if len(level)%2 != 0 {
			level = append(level, level[len(level)-1])
		}
		next := make([][]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = nodeHash(level[i], level[i+1])
		}
		level = next
	}

	return "sha256:" + hex.EncodeToString(level[0])
}

// leafBytes strips an optional "sha256:" prefix and decodes the remaining
// hex digest back to raw bytes for node concatenation.
func leafBytes(hash string) []byte {
	h := hash
	if len(h) > 7 && h[:7] == "sha256:" {
		h = h[7:]
	}
	b, err := hex.DecodeString(h)
	if err != nil {
		// Not a valid hex digest; hash the string itself so BuildRoot
		// never panics on malformed input.
		sum := sha256.Sum256([]byte(hash))
		return sum[:]
	}
	return b
}

func nodeHash(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)
	return h.Sum(nil)
}

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Sealer seals windows for a single org as they close, by time or by event
// count, whichever happens first.
type Sealer struct {
	MaxWindow time.Duration
	MaxLeaves int
}

// ShouldSeal reports whether a window that started at windowStart with
// leafCount leaves has closed.
func (s Sealer) ShouldSeal(windowStart time.Time, leafCount int, now time.Time) bool {
	if s.MaxLeaves > 0 && leafCount >= s.MaxLeaves {
		return true
	}
	if s.MaxWindow > 0 && now.Sub(windowStart) >= s.MaxWindow {
		return true
	}
	return false
}

// Seal produces a Checkpoint for orgID over leafHashes spanning
// [windowStart, windowEnd). previousRoot is carried as metadata only and is
// never folded into the leaf list or the hash computation, per spec §9's
// resolved open question.
func Seal(orgID string, leafHashes []string, windowStart, windowEnd time.Time, previousRoot string) Checkpoint {
	return Checkpoint{
		OrgID:        orgID,
		WindowStart:  windowStart,
		WindowEnd:    windowEnd,
		LeafCount:    len(leafHashes),
		Root:         BuildRoot(leafHashes),
		PreviousRoot: previousRoot,
	}
}

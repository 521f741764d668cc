package canonicalize

import (
	"encoding/json"
)

// goldenThreadForm mirrors spec §4.1: UTF-8 JSON over exactly
// {ticket_id, approved_by, approved_at} in that key order, no insignificant
// whitespace. Go's encoding/json preserves declared struct field order, so a
// plain Marshal (not JCS, which re-sorts keys lexically) gives the pinned
// wire form.
type goldenThreadForm struct {
	TicketID   string `json:"ticket_id"`
	ApprovedBy string `json:"approved_by"`
	ApprovedAt string `json:"approved_at"`
}

// GoldenThreadBytes renders the canonical byte string for a Golden Thread
// per spec §4.1. The caller supplies the three raw string fields rather than
// a struct so this package has no dependency on pkg/identity.
func GoldenThreadBytes(ticketID, approvedBy, approvedAt string) ([]byte, error) {
	return json.Marshal(goldenThreadForm{
		TicketID:   ticketID,
		ApprovedBy: approvedBy,
		ApprovedAt: approvedAt,
	})
}

// GoldenThreadHash returns the `sha256:<hex>` digest of the canonical Golden
// Thread form.
func GoldenThreadHash(ticketID, approvedBy, approvedAt string) (string, error) {
	b, err := GoldenThreadBytes(ticketID, approvedBy, approvedAt)
	if err != nil {
		return "", err
	}
	return "sha256:" + HashBytes(b), nil
}

// Package ingestion implements the per-organization append-only governance
// event log, per-event content hashing, and Merkle checkpointing (spec §4.6).
package ingestion

import (
	"time"

	"github.com/google/uuid"
)

// Criticality classifies an event's urgency; "critical" events can bypass
// rate limiting when critical-exempt is configured.
type Criticality string

const (
	CriticalityLow      Criticality = "low"
	CriticalityNormal   Criticality = "normal"
	CriticalityHigh     Criticality = "high"
	CriticalityCritical Criticality = "critical"
)

// GoldenThreadRef is the minimal Golden Thread reference an event carries;
// it is not re-verified on ingest, only recorded.
type GoldenThreadRef struct {
	TicketID   string `json:"ticket_id,omitempty"`
	ApprovedBy string `json:"approved_by,omitempty"`
	ApprovedAt string `json:"approved_at,omitempty"`
	Hash       string `json:"hash,omitempty"`
}

// GovernanceEvent is a single append-only log entry. It is frozen after
// construction by NewEvent: callers must not mutate a GovernanceEvent
// returned from this package.
type GovernanceEvent struct {
	ID            string          `json:"id"`
	SpecVersion   string          `json:"spec_version"`
	SchemaVersion string          `json:"schema_version"`
	Type          string          `json:"type"`
	Category      string          `json:"category"`
	Criticality   Criticality     `json:"criticality"`
	Source        string          `json:"source"`
	OrgID         string          `json:"org_id"`
	AssetID       string          `json:"asset_id"`
	ProducedAt    time.Time       `json:"produced_at"`
	Received      *time.Time      `json:"received,omitempty"`
	GoldenThread  GoldenThreadRef `json:"golden_thread,omitempty"`
	Hash          string          `json:"hash"`
	Data          map[string]any  `json:"data,omitempty"`
}

// Draft is the caller-supplied event shape before a hash is computed and an
// id is minted.
type Draft struct {
	SpecVersion   string
	SchemaVersion string
	Type          string
	Category      string
	Criticality   Criticality
	Source        string
	OrgID         string
	AssetID       string
	ProducedAt    time.Time
	GoldenThread  GoldenThreadRef
	Data          map[string]any
}

func newEventID() string {
	return "evt_" + uuidHex32()
}

func uuidHex32() string {
	u := uuid.New()
	return hexNoDashes(u)
}

func hexNoDashes(u uuid.UUID) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 32)
	for i, b := range u {
		buf[i*2] = hexDigits[b>>4]
		buf[i*2+1] = hexDigits[b&0x0f]
	}
	return string(buf)
}

package ingestion_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/ingestion"
)

func TestNewEvent_AssignsIDAndHash(t *testing.T) {
	evt, err := ingestion.NewEvent(ingestion.Draft{
		Type:       "agent.terminated",
		OrgID:      "org-1",
		AssetID:    "asset-1",
		ProducedAt: time.Now().UTC(),
		Data:       map[string]any{"reason": "kill-switch"},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, evt.ID)
	assert.Contains(t, evt.Hash, "sha256:")

	ok, err := ingestion.VerifyHash(evt)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNewEvent_DistinctIDsPerCall(t *testing.T) {
	d := ingestion.Draft{Type: "t", OrgID: "org-1"}
	e1, err := ingestion.NewEvent(d)
	require.NoError(t, err)
	e2, err := ingestion.NewEvent(d)
	require.NoError(t, err)
	assert.NotEqual(t, e1.ID, e2.ID, "each event must mint a distinct id")
}

func TestVerifyHash_DetectsTamperedField(t *testing.T) {
	evt, err := ingestion.NewEvent(ingestion.Draft{
		Type:  "agent.spawned",
		OrgID: "org-1",
		Data:  map[string]any{"k": "v"},
	})
	require.NoError(t, err)

	evt.Category = "tampered"
	ok, err := ingestion.VerifyHash(evt)
	require.NoError(t, err)
	assert.False(t, ok, "mutating any hashed field must invalidate the stored hash")
}

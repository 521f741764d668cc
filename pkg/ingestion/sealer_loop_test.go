package ingestion_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/ingestion"
)

type fakeExporter struct {
	mu         sync.Mutex
	checkpoints []ingestion.Checkpoint
}

func (f *fakeExporter) Export(ctx context.Context, cp ingestion.Checkpoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checkpoints = append(f.checkpoints, cp)
	return nil
}

func (f *fakeExporter) exported() []ingestion.Checkpoint {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ingestion.Checkpoint, len(f.checkpoints))
	copy(out, f.checkpoints)
	return out
}

// TestSealLoop_SealsTrackedOrgAndExports covers the periodic checkpoint
// sealing spec §8 scenario 6 requires: once a tracked org's window has
// enough leaves, a tick seals it and exports the checkpoint.
func TestSealLoop_SealsTrackedOrgAndExports(t *testing.T) {
	p, _ := newTestPipeline()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := p.Accept(ctx, ingestion.Draft{
			Type:    "agent.spawned",
			OrgID:   "org-1",
			AssetID: "asset-1",
			Data:    map[string]any{"i": i},
		})
		require.Empty(t, res.Error)
	}

	exporter := &fakeExporter{}
	sealer := ingestion.Sealer{MaxLeaves: 3}
	loop := ingestion.NewSealLoop(p, sealer, time.Minute, exporter)

	loop.Tick(ctx)

	exported := exporter.exported()
	require.Len(t, exported, 1)
	assert.Equal(t, "org-1", exported[0].OrgID)
	assert.Equal(t, 3, exported[0].LeafCount)
	assert.Empty(t, exported[0].PreviousRoot)
}

// TestSealLoop_ChainsPreviousRoot covers the checkpoint-to-checkpoint
// linking spec §4.6 and §9 describe: the second sealed window for the same
// org carries the first window's root as previousRoot.
func TestSealLoop_ChainsPreviousRoot(t *testing.T) {
	p, _ := newTestPipeline()
	ctx := context.Background()

	accept := func(n int) {
		for i := 0; i < n; i++ {
			res := p.Accept(ctx, ingestion.Draft{
				Type:    "agent.spawned",
				OrgID:   "org-1",
				AssetID: "asset-1",
				Data:    map[string]any{"i": i},
			})
			require.Empty(t, res.Error)
		}
	}

	exporter := &fakeExporter{}
	sealer := ingestion.Sealer{MaxLeaves: 2}
	loop := ingestion.NewSealLoop(p, sealer, time.Minute, exporter)

	accept(2)
	loop.Tick(ctx)
	accept(2)
	loop.Tick(ctx)

	exported := exporter.exported()
	require.Len(t, exported, 2)
	assert.Empty(t, exported[0].PreviousRoot)
	assert.Equal(t, exported[0].Root, exported[1].PreviousRoot)
}

// TestSealLoop_NoOpWithoutExporter covers that a nil exporter is a valid
// configuration: sealing still happens, export is simply skipped.
func TestSealLoop_NoOpWithoutExporter(t *testing.T) {
	p, _ := newTestPipeline()
	ctx := context.Background()
	res := p.Accept(ctx, ingestion.Draft{Type: "a", OrgID: "org-1", AssetID: "asset-1"})
	require.Empty(t, res.Error)

	sealer := ingestion.Sealer{MaxLeaves: 1}
	loop := ingestion.NewSealLoop(p, sealer, time.Minute, nil)

	assert.NotPanics(t, func() { loop.Tick(ctx) })
}

// TestSealLoop_UntrackedOrgNeverSeals confirms an org with no accepted
// events (never calls trackOrg) is simply absent from TrackedOrgs, so a
// tick does no work for it.
func TestSealLoop_UntrackedOrgNeverSeals(t *testing.T) {
	p, _ := newTestPipeline()
	assert.Empty(t, p.TrackedOrgs())

	exporter := &fakeExporter{}
	sealer := ingestion.Sealer{MaxLeaves: 1}
	loop := ingestion.NewSealLoop(p, sealer, time.Minute, exporter)
	loop.Tick(context.Background())

	assert.Empty(t, exporter.exported())
}

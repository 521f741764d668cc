package ingestion

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// sealState tracks the open window and chain-linking root for one org
// between ticks of a SealLoop.
type sealState struct {
	windowStart  time.Time
	previousRoot string
}

// SealLoop periodically seals each tracked org's open Merkle window, per
// spec §8 scenario 6, chaining each checkpoint's previousRoot to the prior
// one and optionally exporting sealed checkpoints to cold storage. Grounded
// on the teacher's pkg/api/idempotency.go background-ticker-over-a-map
// shape.
type SealLoop struct {
	pipeline *Pipeline
	sealer   Sealer
	interval time.Duration
	exporter ColdStorageExporter
	logger   *slog.Logger

	mu     sync.Mutex
	states map[string]*sealState
}

// NewSealLoop constructs a SealLoop. exporter may be nil to skip cold
// storage export.
func NewSealLoop(pipeline *Pipeline, sealer Sealer, interval time.Duration, exporter ColdStorageExporter) *SealLoop {
	return &SealLoop{
		pipeline: pipeline,
		sealer:   sealer,
		interval: interval,
		exporter: exporter,
		logger:   slog.Default().With("component", "seal_loop"),
		states:   make(map[string]*sealState),
	}
}

// Run ticks every interval until ctx is canceled, sealing every tracked
// org's due window on each tick. Intended to run in its own goroutine.
func (l *SealLoop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Tick(ctx)
		}
	}
}

// Tick seals every tracked org's window that has closed as of now. Exported
// so callers (and tests) can drive sealing without waiting on the ticker.
func (l *SealLoop) Tick(ctx context.Context) {
	now := time.Now().UTC()
	for _, orgID := range l.pipeline.TrackedOrgs() {
		l.sealOrg(ctx, orgID, now)
	}
}

func (l *SealLoop) sealOrg(ctx context.Context, orgID string, now time.Time) {
	l.mu.Lock()
	state, ok := l.states[orgID]
	if !ok {
		// An org's first window starts at the zero time, so it covers every
		// event stored before the loop first saw the org.
		state = &sealState{}
		l.states[orgID] = state
	}
	windowStart := state.windowStart
	previousRoot := state.previousRoot
	l.mu.Unlock()

	cp, sealed, err := l.pipeline.SealWindow(ctx, orgID, l.sealer, windowStart, now, previousRoot)
	if err != nil {
		l.logger.Error("seal window failed", "org_id", orgID, "error", err)
		return
	}
	if !sealed {
		return
	}

	l.mu.Lock()
	state.windowStart = cp.WindowEnd
	state.previousRoot = cp.Root
	l.mu.Unlock()

	l.logger.Info("sealed checkpoint", "org_id", orgID, "root", cp.Root, "leaf_count", cp.LeafCount)

	if l.exporter != nil {
		if err := l.exporter.Export(ctx, cp); err != nil {
			l.logger.Error("checkpoint export failed", "org_id", orgID, "error", err)
		}
	}
}

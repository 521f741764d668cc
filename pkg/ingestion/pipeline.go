package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Verdict is what an ingest-time policy rule emits: none of these rewrite
// the event itself, per spec §4.6's "policy evaluation on ingest (optional
// pipeline)".
type Verdict struct {
	Kind    string // violation | warning | suggestion | waiver
	Rule    string
	Message string
}

// IngestRule inspects an about-to-be-stored event and may emit verdicts.
// A rule that returns a "violation" verdict does not block storage —
// spec §4.6 explicitly states rules never rewrite or reject the event,
// only annotate it for downstream consumers.
type IngestRule func(evt *GovernanceEvent) []Verdict

// Channel names the ingest entrypoint an event arrived through, used as
// half of the rate-limit key (channel, orgId).
type Channel string

const (
	ChannelSync  Channel = "sync"
	ChannelBatch Channel = "batch"
)

// Limiter is the rate-limit capability a Pipeline depends on, satisfied by
// both the in-process RateLimiter and the distributed RedisRateLimiter.
type Limiter interface {
	Allow(key string) Result
}

// MetricsRecorder is the subset of telemetry.Provider the pipeline needs,
// kept as an interface here so pkg/ingestion never imports pkg/telemetry
// directly. A nil MetricsRecorder is valid: every call site guards it.
type MetricsRecorder interface {
	RecordAccepted(ctx context.Context)
	RecordRejected(ctx context.Context, reason string)
	RecordRateLimited(ctx context.Context)
}

// Tracer starts a span named name around an ingest operation, returning the
// derived context and a finish func that ends the span (recording err, if
// non-nil, as the span's failure). Satisfied by telemetry.Provider; a nil
// Tracer is valid.
type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, func(err error))
}

// Pipeline is the C6 ingest entrypoint: constructs, rate-limits, validates,
// and stores events, independent of the HTTP transport in
// pkg/ingestion/httpapi.
type Pipeline struct {
	store    Store
	limiter  Limiter
	schemas  *SchemaRegistry
	rules    []IngestRule
	critical bool
	logger   *slog.Logger
	metrics  MetricsRecorder
	tracer   Tracer

	orgMu sync.Mutex
	orgs  map[string]struct{}
}

// NewPipeline constructs a Pipeline. schemas and rules may be nil/empty.
func NewPipeline(store Store, limiter Limiter, schemas *SchemaRegistry, rules []IngestRule, criticalExempt bool) *Pipeline {
	if schemas == nil {
		schemas = NewSchemaRegistry()
	}
	return &Pipeline{
		store:    store,
		limiter:  limiter,
		schemas:  schemas,
		rules:    rules,
		critical: criticalExempt,
		logger:   slog.Default().With("component", "ingestion"),
		orgs:     make(map[string]struct{}),
	}
}

// trackOrg records orgID as having stored at least one event, so a SealLoop
// knows which orgs to seal windows for.
func (p *Pipeline) trackOrg(orgID string) {
	p.orgMu.Lock()
	defer p.orgMu.Unlock()
	p.orgs[orgID] = struct{}{}
}

// TrackedOrgs returns every orgId that has stored at least one event through
// this pipeline.
func (p *Pipeline) TrackedOrgs() []string {
	p.orgMu.Lock()
	defer p.orgMu.Unlock()
	orgs := make([]string, 0, len(p.orgs))
	for id := range p.orgs {
		orgs = append(orgs, id)
	}
	return orgs
}

// WithMetrics attaches a MetricsRecorder the pipeline reports ingest
// outcomes to. Returns p for chaining at construction time.
func (p *Pipeline) WithMetrics(m MetricsRecorder) *Pipeline {
	p.metrics = m
	return p
}

// WithTracer attaches a Tracer the pipeline spans its accept path with.
// Returns p for chaining at construction time.
func (p *Pipeline) WithTracer(t Tracer) *Pipeline {
	p.tracer = t
	return p
}

// startSpan is a no-op when no Tracer is attached.
func (p *Pipeline) startSpan(ctx context.Context, name string) (context.Context, func(error)) {
	if p.tracer == nil {
		return ctx, func(error) {}
	}
	return p.tracer.StartSpan(ctx, name)
}

// AcceptResult is the outcome of accepting one event.
type AcceptResult struct {
	Event    *GovernanceEvent
	Verdicts []Verdict
	Error    string // EVT_BAD_REQUEST | EVT_BAD_HASH | EVT_INTERNAL (rate limiting is reported by RateLimitCheck)
}

// RateLimitCheck runs the fixed-window limiter for (channel, orgId),
// honoring the critical-criticality exemption, per spec §4.6.
func (p *Pipeline) RateLimitCheck(channel Channel, orgID string, criticality Criticality) Result {
	if p.critical && criticality == CriticalityCritical {
		return Result{Allowed: true}
	}
	res := p.limiter.Allow(string(channel) + ":" + orgID)
	if !res.Allowed && p.metrics != nil {
		p.metrics.RecordRateLimited(context.Background())
	}
	return res
}

// Accept builds, validates, and stores a single event from d. Callers must
// have already passed RateLimitCheck for this request.
func (p *Pipeline) Accept(ctx context.Context, d Draft) AcceptResult {
	ctx, finish := p.startSpan(ctx, "ingestion.Accept")
	result := p.accept(ctx, d)
	if result.Error != "" {
		finish(fmt.Errorf("ingest rejected: %s", result.Error))
	} else {
		finish(nil)
	}
	return result
}

func (p *Pipeline) accept(ctx context.Context, d Draft) AcceptResult {
	evt, err := NewEvent(d)
	if err != nil {
		p.recordRejected(ctx, "EVT_BAD_REQUEST")
		return AcceptResult{Error: "EVT_BAD_REQUEST"}
	}

	if err := p.schemas.ValidateData(evt.Type, evt.Data); err != nil {
		p.recordRejected(ctx, "EVT_BAD_REQUEST")
		return AcceptResult{Error: "EVT_BAD_REQUEST"}
	}

	var verdicts []Verdict
	for _, rule := range p.rules {
		verdicts = append(verdicts, rule(evt)...)
	}

	if err := p.store.Append(ctx, evt); err != nil {
		if err == ErrBadHash {
			p.recordRejected(ctx, "EVT_BAD_HASH")
			return AcceptResult{Event: evt, Error: "EVT_BAD_HASH"}
		}
		p.logger.Error("store append failed", "error", err, "org_id", evt.OrgID)
		p.recordRejected(ctx, "EVT_INTERNAL")
		return AcceptResult{Event: evt, Error: "EVT_INTERNAL"}
	}

	p.trackOrg(evt.OrgID)
	if p.metrics != nil {
		p.metrics.RecordAccepted(ctx)
	}
	return AcceptResult{Event: evt, Verdicts: verdicts}
}

func (p *Pipeline) recordRejected(ctx context.Context, reason string) {
	if p.metrics != nil {
		p.metrics.RecordRejected(ctx, reason)
	}
}

// AcceptBatch builds and stores up to maxBatchSize drafts, returning a
// per-event result in submission order, per spec §8 scenario 5. A batch
// larger than maxBatchSize is rejected wholesale: nothing is stored and the
// call returns (nil, false).
func (p *Pipeline) AcceptBatch(ctx context.Context, drafts []Draft, maxBatchSize int) ([]AcceptResult, bool) {
	ctx, finish := p.startSpan(ctx, "ingestion.AcceptBatch")
	results, ok := p.acceptBatch(ctx, drafts, maxBatchSize)
	if !ok {
		finish(fmt.Errorf("batch of %d exceeds max size %d", len(drafts), maxBatchSize))
	} else {
		finish(nil)
	}
	return results, ok
}

func (p *Pipeline) acceptBatch(ctx context.Context, drafts []Draft, maxBatchSize int) ([]AcceptResult, bool) {
	if maxBatchSize > 0 && len(drafts) > maxBatchSize {
		return nil, false
	}

	built := make([]*GovernanceEvent, len(drafts))
	results := make([]AcceptResult, len(drafts))
	toStore := make([]*GovernanceEvent, 0, len(drafts))
	storeIdx := make([]int, 0, len(drafts))

	for i, d := range drafts {
		evt, err := NewEvent(d)
		if err != nil {
			results[i] = AcceptResult{Error: "EVT_BAD_REQUEST"}
			p.recordRejected(ctx, "EVT_BAD_REQUEST")
			continue
		}
		if err := p.schemas.ValidateData(evt.Type, evt.Data); err != nil {
			results[i] = AcceptResult{Error: "EVT_BAD_REQUEST", Event: evt}
			p.recordRejected(ctx, "EVT_BAD_REQUEST")
			continue
		}
		built[i] = evt
		toStore = append(toStore, evt)
		storeIdx = append(storeIdx, i)
	}

	if len(toStore) > 0 {
		itemResults, err := p.store.AppendMany(ctx, toStore)
		if err != nil {
			p.logger.Error("batch append failed", "error", err)
			for _, i := range storeIdx {
				results[i] = AcceptResult{Event: built[i], Error: "EVT_INTERNAL"}
				p.recordRejected(ctx, "EVT_INTERNAL")
			}
			return results, true
		}
		for j, i := range storeIdx {
			ir := itemResults[j]
			if ir.OK {
				var verdicts []Verdict
				for _, rule := range p.rules {
					verdicts = append(verdicts, rule(built[i])...)
				}
				results[i] = AcceptResult{Event: built[i], Verdicts: verdicts}
				p.trackOrg(built[i].OrgID)
				if p.metrics != nil {
					p.metrics.RecordAccepted(ctx)
				}
			} else {
				results[i] = AcceptResult{Event: built[i], Error: ir.Error}
				p.recordRejected(ctx, ir.Error)
			}
		}
	}

	return results, true
}

// SealWindow seals the open window for orgID starting at windowStart if
// it has closed by now, per sealer, over leaf hashes produced since
// windowStart. Returns (checkpoint, true) when a checkpoint was sealed.
func (p *Pipeline) SealWindow(ctx context.Context, orgID string, sealer Sealer, windowStart, now time.Time, previousRoot string) (Checkpoint, bool, error) {
	leaves, last, err := p.store.LeafHashesSince(ctx, orgID, windowStart)
	if err != nil {
		return Checkpoint{}, false, err
	}
	if !sealer.ShouldSeal(windowStart, len(leaves), now) {
		return Checkpoint{}, false, nil
	}
	return Seal(orgID, leaves, windowStart, last, previousRoot), true, nil
}

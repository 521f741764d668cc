package killswitch

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// stateSnapshot is an immutable view of every instance's and asset's kill
// switch state, swapped atomically on write so concurrent policy checks
// never block on a writer (spec §5, §9).
type stateSnapshot struct {
	global      bool
	instances   map[string]State
	assets      map[string]State
}

func emptySnapshot() *stateSnapshot {
	return &stateSnapshot{instances: map[string]State{}, assets: map[string]State{}}
}

func (s *stateSnapshot) clone() *stateSnapshot {
	n := &stateSnapshot{
		global:    s.global,
		instances: make(map[string]State, len(s.instances)),
		assets:    make(map[string]State, len(s.assets)),
	}
	for k, v := range s.instances {
		n.instances[k] = v
	}
	for k, v := range s.assets {
		n.assets[k] = v
	}
	return n
}

// node is one registered instance's place in the spawn tree, used to drive
// cascade termination.
type node struct {
	target   Target
	children []string
}

// TerminateFunc performs the actual side-effecting termination of one
// instance (e.g. signaling its process, revoking its tokens). It is
// supplied by the caller; the receiver only owns the state machine and
// cascade fan-out. derivedCommandID is set during cascades to
// "<parent-command-id>-child-<shortInstanceId>" and equals the triggering
// command's own id for a direct (non-cascaded) termination.
type TerminateFunc func(ctx context.Context, instanceID, derivedCommandID, reason string) error

// Config controls receiver-wide behavior.
type Config struct {
	ClockSkewTolerance   time.Duration
	VerifySignature      bool // enables signature checks; the zero value leaves them off
	ReplayCacheSize      int
	ReplayHorizon        time.Duration
	MaxParallelTerminate int
	TerminationTimeout   time.Duration
}

// Receiver validates and applies kill-switch commands, and owns the spawn
// tree used for cascade termination (spec §4.4).
type Receiver struct {
	cfg   Config
	keys  KeyStore
	replay *ReplayCache

	snapshot atomic.Pointer[stateSnapshot]

	mu    sync.Mutex // guards writes to snapshot and tree
	tree  map[string]*node

	terminate TerminateFunc
	emitter   ValidationEmitter
	now       func() time.Time
}

// ValidationEmitter forwards validation-failed events (spec §4.4).
type ValidationEmitter interface {
	EmitValidationFailed(cmd Command, err error)
}

// NopValidationEmitter discards validation-failed events.
type NopValidationEmitter struct{}

func (NopValidationEmitter) EmitValidationFailed(Command, error) {}

// NewReceiver constructs a Receiver. terminate is invoked once per instance
// actually terminated, including during cascades.
func NewReceiver(cfg Config, keys KeyStore, terminate TerminateFunc, emitter ValidationEmitter) *Receiver {
	if emitter == nil {
		emitter = NopValidationEmitter{}
	}
	if cfg.MaxParallelTerminate <= 0 {
		cfg.MaxParallelTerminate = 10
	}
	if cfg.TerminationTimeout <= 0 {
		cfg.TerminationTimeout = 30 * time.Second
	}
	if cfg.ClockSkewTolerance <= 0 {
		cfg.ClockSkewTolerance = 60 * time.Second
	}
	r := &Receiver{
		cfg:       cfg,
		keys:      keys,
		replay:    NewReplayCache(cfg.ReplayCacheSize, cfg.ReplayHorizon),
		tree:      make(map[string]*node),
		terminate: terminate,
		emitter:   emitter,
		now:       func() time.Time { return time.Now().UTC() },
	}
	r.snapshot.Store(emptySnapshot())
	return r
}

// SetGlobalKill sets or clears the operator-level global kill flag, which
// stage 1 of the policy engine checks ahead of any per-instance state.
func (r *Receiver) SetGlobalKill(on bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.snapshot.Load().clone()
	snap.global = on
	r.snapshot.Store(snap)
}

// Register adds an instance to the spawn tree so it can be found by a later
// cascade. Roots have an empty ParentInstanceID.
func (r *Receiver) Register(t Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tree[t.InstanceID] = &node{target: t}
	if t.ParentInstanceID != "" {
		if p, ok := r.tree[t.ParentInstanceID]; ok {
			p.children = append(p.children, t.InstanceID)
		}
	}
	snap := r.snapshot.Load().clone()
	if _, ok := snap.instances[t.InstanceID]; !ok {
		snap.instances[t.InstanceID] = StateActive
	}
	r.snapshot.Store(snap)
}

// GlobalKill implements policy.KillSwitchState.
func (r *Receiver) GlobalKill() bool {
	return r.snapshot.Load().global
}

// InstanceState implements policy.KillSwitchState.
func (r *Receiver) InstanceState(instanceID string) (paused, terminated bool) {
	s := r.snapshot.Load().instances[instanceID]
	return s == StatePaused, s == StateTerminated
}

// AssetState implements policy.KillSwitchState.
func (r *Receiver) AssetState(assetID string) (paused, terminated bool) {
	s := r.snapshot.Load().assets[assetID]
	return s == StatePaused, s == StateTerminated
}

// Validate runs a command through the ordered validation pipeline of spec
// §4.4 without applying it. Apply runs it first. It records the command id
// in the replay cache, so a command that passed Validate is rejected as a
// replay by a later Apply of the same command.
func (r *Receiver) Validate(cmd Command, forTarget Target) error {
	if cmd.CommandID == "" || cmd.Type == "" || cmd.Timestamp.IsZero() {
		err := &ValidationError{Code: ErrBadSchema, Msg: "missing required field"}
		r.emitter.EmitValidationFailed(cmd, err)
		return err
	}
	switch cmd.Type {
	case CommandTerminate, CommandPause, CommandResume:
	default:
		err := &ValidationError{Code: ErrBadSchema, Msg: "unrecognized command type"}
		r.emitter.EmitValidationFailed(cmd, err)
		return err
	}

	skew := r.now().Sub(cmd.Timestamp)
	if skew < 0 {
		skew = -skew
	}
	if skew > r.cfg.ClockSkewTolerance {
		err := &ValidationError{Code: ErrClockSkew, Msg: "timestamp outside clock-skew tolerance"}
		r.emitter.EmitValidationFailed(cmd, err)
		return err
	}

	if r.cfg.VerifySignature {
		if err := VerifySignature(r.keys, cmd); err != nil {
			r.emitter.EmitValidationFailed(cmd, err)
			return err
		}
	}

	if r.replay.SeenBefore(cmd.CommandID) {
		err := &ValidationError{Code: ErrReplay, Msg: "command_id already processed"}
		r.emitter.EmitValidationFailed(cmd, err)
		return err
	}

	if !cmd.targets(forTarget.InstanceID, forTarget.AssetID, forTarget.Organization) {
		err := &ValidationError{Code: ErrTargetMismatch, Msg: "command does not target this identity"}
		r.emitter.EmitValidationFailed(cmd, err)
		return err
	}

	return nil
}

// Apply transitions forTarget's state per cmd and, on TERMINATE, cascades to
// every registered descendant (spec §4.4's state machine and cascade).
func (r *Receiver) Apply(ctx context.Context, cmd Command, forTarget Target) (*CascadeResult, error) {
	if err := r.Validate(cmd, forTarget); err != nil {
		return nil, err
	}

	r.mu.Lock()
	snap := r.snapshot.Load().clone()
	current := snap.instances[forTarget.InstanceID]

	var next State
	switch current {
	case StateTerminated:
		// Absorbing: further commands are no-ops.
		next = StateTerminated
	default:
		switch cmd.Type {
		case CommandPause:
			next = StatePaused
		case CommandResume:
			next = StateActive
		case CommandTerminate:
			next = StateTerminated
		}
	}
	snap.instances[forTarget.InstanceID] = next
	r.snapshot.Store(snap)
	r.mu.Unlock()

	var termErr error
	if cmd.Type == CommandTerminate && current != StateTerminated && r.terminate != nil {
		termCtx, cancel := context.WithTimeout(ctx, r.cfg.TerminationTimeout)
		termErr = r.terminate(termCtx, forTarget.InstanceID, cmd.CommandID, cmd.Reason)
		cancel()
	}

	if cmd.Type != CommandTerminate || current == StateTerminated || !forTarget.MaySpawnChildren {
		return &CascadeResult{}, termErr
	}

	return r.cascade(ctx, cmd, forTarget.InstanceID), termErr
}

// cascade enumerates registered descendants, sorts leaves-first by
// generation_depth descending, and terminates them in bounded-parallel
// batches (spec §4.4).
func (r *Receiver) cascade(ctx context.Context, parentCmd Command, rootInstanceID string) *CascadeResult {
	start := r.now()

	r.mu.Lock()
	descendants := r.collectDescendants(rootInstanceID)
	r.mu.Unlock()

	sort.Slice(descendants, func(i, j int) bool {
		return descendants[i].target.GenerationDepth > descendants[j].target.GenerationDepth
	})

	result := &CascadeResult{TotalChildren: len(descendants)}
	if len(descendants) == 0 {
		result.DurationMs = float64(r.now().Sub(start).Microseconds()) / 1000.0
		return result
	}

	batchSize := r.cfg.MaxParallelTerminate
	var mu sync.Mutex

	for i := 0; i < len(descendants); i += batchSize {
		end := i + batchSize
		if end > len(descendants) {
			end = len(descendants)
		}
		batch := descendants[i:end]

		var wg sync.WaitGroup
		for _, d := range batch {
			wg.Add(1)
			go func(d *node) {
				defer wg.Done()
				childCtx, cancel := context.WithTimeout(ctx, r.cfg.TerminationTimeout)
				defer cancel()

				shortID := d.target.InstanceID
				if len(shortID) > 8 {
					shortID = shortID[:8]
				}
				reason := fmt.Sprintf("Cascaded from parent: %s", parentCmd.Reason)
				derivedID := fmt.Sprintf("%s-child-%s", parentCmd.CommandID, shortID)

				r.mu.Lock()
				snap := r.snapshot.Load().clone()
				snap.instances[d.target.InstanceID] = StateTerminated
				r.snapshot.Store(snap)
				r.mu.Unlock()

				var err error
				if r.terminate != nil {
					err = r.terminate(childCtx, d.target.InstanceID, derivedID, reason)
				}

				mu.Lock()
				if err != nil {
					result.Failed++
					result.FailedChildren = append(result.FailedChildren, d.target.InstanceID)
				} else {
					result.Terminated++
				}
				mu.Unlock()
			}(d)
		}
		wg.Wait()
	}

	result.DurationMs = float64(r.now().Sub(start).Microseconds()) / 1000.0
	return result
}

// collectDescendants walks the spawn tree from root, returning every
// descendant node (not including root itself). Caller must hold r.mu.
func (r *Receiver) collectDescendants(rootInstanceID string) []*node {
	if _, ok := r.tree[rootInstanceID]; !ok {
		return nil
	}
	var out []*node
	var walk func(id string)
	walk = func(id string) {
		n, ok := r.tree[id]
		if !ok {
			return
		}
		for _, childID := range n.children {
			if child, ok := r.tree[childID]; ok {
				out = append(out, child)
				walk(childID)
			}
		}
	}
	walk(rootInstanceID)
	return out
}

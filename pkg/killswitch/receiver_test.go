package killswitch_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aigos/governor/pkg/killswitch"
)

func newReceiver(t *testing.T, terminate killswitch.TerminateFunc) *killswitch.Receiver {
	t.Helper()
	return killswitch.NewReceiver(killswitch.Config{
		ClockSkewTolerance:   time.Minute,
		VerifySignature:      false,
		MaxParallelTerminate: 10,
		TerminationTimeout:   5 * time.Second,
	}, nil, terminate, nil)
}

// TestCascade_TenChildrenOneBatch mirrors scenario 3 from spec §8: a parent
// with 10 children at depth 1, all terminated leaves-first in one batch of
// maxParallelTerminations=10.
func TestCascade_TenChildrenOneBatch(t *testing.T) {
	var mu sync.Mutex
	var terminatedOrder []string

	r := newReceiver(t, func(ctx context.Context, instanceID, derivedID, reason string) error {
		mu.Lock()
		terminatedOrder = append(terminatedOrder, instanceID)
		mu.Unlock()
		return nil
	})

	r.Register(killswitch.Target{InstanceID: "parent", GenerationDepth: 0, MaySpawnChildren: true})
	for i := 0; i < 10; i++ {
		r.Register(killswitch.Target{
			InstanceID:       childID(i),
			ParentInstanceID: "parent",
			GenerationDepth:  1,
		})
	}

	cmd := killswitch.Command{
		CommandID:  "cmd-1",
		Type:       killswitch.CommandTerminate,
		InstanceID: "parent",
		Timestamp:  time.Now().UTC(),
		Reason:     "operator requested",
	}

	result, err := r.Apply(context.Background(), cmd, killswitch.Target{
		InstanceID: "parent", GenerationDepth: 0, MaySpawnChildren: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 10, result.TotalChildren)
	assert.Equal(t, 10, result.Terminated)
	assert.Equal(t, 0, result.Failed)

	paused, terminated := r.InstanceState("parent")
	assert.False(t, paused)
	assert.True(t, terminated)

	_, replayErr := r.Apply(context.Background(), cmd, killswitch.Target{InstanceID: "parent"})
	require.Error(t, replayErr)
	assert.ErrorIs(t, replayErr, killswitch.ErrReplay)
}

func childID(i int) string {
	return "child-" + string(rune('a'+i))
}

func TestReceiver_PauseThenResume(t *testing.T) {
	r := newReceiver(t, nil)
	r.Register(killswitch.Target{InstanceID: "agent-1"})

	pause := killswitch.Command{CommandID: "c1", Type: killswitch.CommandPause, InstanceID: "agent-1", Timestamp: time.Now().UTC(), Reason: "maintenance"}
	_, err := r.Apply(context.Background(), pause, killswitch.Target{InstanceID: "agent-1"})
	require.NoError(t, err)
	paused, terminated := r.InstanceState("agent-1")
	assert.True(t, paused)
	assert.False(t, terminated)

	resume := killswitch.Command{CommandID: "c2", Type: killswitch.CommandResume, InstanceID: "agent-1", Timestamp: time.Now().UTC(), Reason: "done"}
	_, err = r.Apply(context.Background(), resume, killswitch.Target{InstanceID: "agent-1"})
	require.NoError(t, err)
	paused, terminated = r.InstanceState("agent-1")
	assert.False(t, paused)
	assert.False(t, terminated)
}

func TestReceiver_TerminatedIsAbsorbing(t *testing.T) {
	r := newReceiver(t, nil)
	r.Register(killswitch.Target{InstanceID: "agent-1"})

	term := killswitch.Command{CommandID: "c1", Type: killswitch.CommandTerminate, InstanceID: "agent-1", Timestamp: time.Now().UTC(), Reason: "bad behavior"}
	_, err := r.Apply(context.Background(), term, killswitch.Target{InstanceID: "agent-1"})
	require.NoError(t, err)

	resume := killswitch.Command{CommandID: "c2", Type: killswitch.CommandResume, InstanceID: "agent-1", Timestamp: time.Now().UTC(), Reason: "oops"}
	_, err = r.Apply(context.Background(), resume, killswitch.Target{InstanceID: "agent-1"})
	require.NoError(t, err)

	_, terminated := r.InstanceState("agent-1")
	assert.True(t, terminated)
}

func TestReceiver_RejectsStaleTimestamp(t *testing.T) {
	r := newReceiver(t, nil)
	r.Register(killswitch.Target{InstanceID: "agent-1"})

	cmd := killswitch.Command{
		CommandID:  "c1",
		Type:       killswitch.CommandTerminate,
		InstanceID: "agent-1",
		Timestamp:  time.Now().UTC().Add(-10 * time.Minute),
		Reason:     "x",
	}
	err := r.Validate(cmd, killswitch.Target{InstanceID: "agent-1"})
	require.Error(t, err)
	assert.ErrorIs(t, err, killswitch.ErrClockSkew)
}

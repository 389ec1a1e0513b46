package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(q *triggerQueue) []Trigger {
	var out []Trigger
	for {
		t, ok := q.Next()
		if !ok {
			return out
		}
		out = append(out, t)
	}
}

func TestTriggerQueuePreservesOrder(t *testing.T) {
	q := newTriggerQueue()
	q.Raise(TriggerConfigChanged)
	q.Raise(TriggerRelationChanged)
	q.Raise(TriggerUpdateStatus)
	assert.Equal(t, []Trigger{TriggerConfigChanged, TriggerRelationChanged, TriggerUpdateStatus}, drain(q))
}

func TestTriggerQueueCoalescesDuplicates(t *testing.T) {
	q := newTriggerQueue()
	q.Raise(TriggerConfigChanged)
	q.Raise(TriggerConfigChanged)
	q.Raise(TriggerConfigChanged)
	assert.Equal(t, []Trigger{TriggerConfigChanged}, drain(q))
}

func TestTriggerQueueSignalsConsumer(t *testing.T) {
	q := newTriggerQueue()
	q.Raise(TriggerStartup)
	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
}

func TestTriggerQueueNeverBlocksProducers(t *testing.T) {
	q := newTriggerQueue()
	// Far more raises than the signal channel can buffer.
	for i := 0; i < 100; i++ {
		q.Raise(TriggerUpdateStatus)
		q.Raise(TriggerPebbleReady)
	}
	got := drain(q)
	require.Len(t, got, 2)
	assert.Equal(t, []Trigger{TriggerUpdateStatus, TriggerPebbleReady}, got)
}

func TestTriggerQueueEmptyNext(t *testing.T) {
	q := newTriggerQueue()
	_, ok := q.Next()
	assert.False(t, ok)
}

func TestRelationConfigMapName(t *testing.T) {
	assert.Equal(t, "fiveg-rf-config", relationConfigMapName("fiveg_rf_config"))
}

package agent

import "sync"

// Trigger names an event that requires a reconciliation pass. The set
// mirrors the lifecycle events the operator reacts to.
type Trigger string

const (
	TriggerConfigChanged   Trigger = "config-changed"
	TriggerRelationChanged Trigger = "relation-changed"
	TriggerPebbleReady     Trigger = "pebble-ready"
	TriggerUpdateStatus    Trigger = "update-status"
	TriggerStartup         Trigger = "startup"
	TriggerLeadership      Trigger = "leadership-changed"
)

// triggerQueue coalesces trigger notifications. Producers never block:
// a trigger raised while an identical one is still pending is folded into
// it. The consumer drains the pending set one trigger at a time.
type triggerQueue struct {
	mu      sync.Mutex
	pending map[Trigger]struct{}
	order   []Trigger
	signal  chan struct{}
}

func newTriggerQueue() *triggerQueue {
	return &triggerQueue{
		pending: make(map[Trigger]struct{}),
		signal:  make(chan struct{}, 1),
	}
}

// Raise marks a trigger as pending and wakes the consumer.
func (q *triggerQueue) Raise(t Trigger) {
	q.mu.Lock()
	if _, dup := q.pending[t]; !dup {
		q.pending[t] = struct{}{}
		q.order = append(q.order, t)
	}
	q.mu.Unlock()
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Wait returns the channel the consumer blocks on.
func (q *triggerQueue) Wait() <-chan struct{} { return q.signal }

// Next pops the oldest pending trigger, ok false when the set is empty.
func (q *triggerQueue) Next() (Trigger, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.order) == 0 {
		return "", false
	}
	t := q.order[0]
	q.order = q.order[1:]
	delete(q.pending, t)
	return t, true
}

// Package registry implements the Task Registry: the in-memory table of
// task records and the per-subscriber event fanout described in §4.2. It is
// the single point of mutation for task state; callers address a record by
// task id and every mutation goes through the registry's lock.
package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/remotepilot/daemon/internal/events"
	"github.com/remotepilot/daemon/internal/task"
)

// ErrNotFound is returned when a task id is unknown to the registry.
var ErrNotFound = errNotFound{}

type errNotFound struct{}

func (errNotFound) Error() string { return "task not found" }

// subscriber is one live consumer of a task's events. outbox is the bounded
// queue; once the queue overflows backlog, the subscriber is dropped: its
// channel is closed and it is removed from the set (§3 Subscriber channel
// invariant). The task itself never blocks on this.
type subscriber struct {
	id     uint64
	outbox chan events.Event
}

// Registry owns the task_id → Record mapping and subscriber fanout.
type Registry struct {
	backlog int

	mu      sync.Mutex
	records map[string]*task.Record

	subMu   sync.Mutex
	subs    map[string]map[uint64]*subscriber
	nextSub uint64

	bus *events.Bus // optional: global fanout for WS /ws/logs and history
}

// AttachBus wires a global event bus that receives a copy of every
// broadcast, regardless of task — the source for the submission surface's
// all-tasks WS stream and the history store (§6, §4.10).
func (r *Registry) AttachBus(bus *events.Bus) {
	r.bus = bus
}

// New constructs a Registry. backlog is the per-subscriber queue depth
// before it is dropped (§3, §8 boundary behaviors).
func New(backlog int) *Registry {
	if backlog <= 0 {
		backlog = 256
	}
	return &Registry{
		backlog: backlog,
		records: make(map[string]*task.Record),
		subs:    make(map[string]map[uint64]*subscriber),
	}
}

// Create allocates a new task record in IDLE and returns its id.
func (r *Registry) Create(goal string) string {
	id := uuid.NewString()
	r.mu.Lock()
	r.records[id] = &task.Record{
		ID:        id,
		Goal:      goal,
		State:     task.StateIdle,
		CreatedAt: time.Now(),
	}
	r.mu.Unlock()
	return id
}

// Get returns a read-only snapshot of a task's current state.
func (r *Registry) Get(id string) (task.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[id]
	if !ok {
		return task.Snapshot{}, ErrNotFound
	}
	return snapshotOf(rec), nil
}

func snapshotOf(rec *task.Record) task.Snapshot {
	logs := make([]task.LogEntry, len(rec.Logs))
	copy(logs, rec.Logs)
	plan := make(task.Plan, len(rec.Plan))
	copy(plan, rec.Plan)
	return task.Snapshot{
		ID:         rec.ID,
		Status:     rec.State,
		Goal:       rec.Goal,
		Plan:       plan,
		Logs:       logs,
		FailReason: rec.FailReason,
	}
}

// SetState transitions a task to a new state and broadcasts a state event
// before returning (§4.1 "every state entry is broadcast ... before the
// associated work begins").
func (r *Registry) SetState(id string, state task.State) {
	r.mu.Lock()
	rec, ok := r.records[id]
	if ok {
		rec.State = state
	}
	r.mu.Unlock()
	if !ok {
		return
	}
	r.broadcast(events.NewStateEvent(id, string(state)))
}

// SetPlan replaces a task's plan wholesale (on initial plan or re-plan).
func (r *Registry) SetPlan(id string, plan task.Plan) {
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		rec.Plan = plan
	}
	r.mu.Unlock()
}

// Fail records a terminal failure reason. Callers still call SetState to
// broadcast the FAILED transition.
func (r *Registry) Fail(id string, reason string) {
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		rec.FailReason = reason
	}
	r.mu.Unlock()
}

// Log appends a log entry to the task's log list and broadcasts it. The
// append happens before broadcast (§4.2).
func (r *Registry) Log(id, agent, message string, sev task.Severity) {
	entry := task.LogEntry{
		Timestamp: time.Now(),
		Agent:     agent,
		Message:   message,
		Severity:  sev,
	}
	r.mu.Lock()
	if rec, ok := r.records[id]; ok {
		rec.Logs = append(rec.Logs, entry)
	}
	r.mu.Unlock()
	r.broadcast(events.NewLogEvent(id, agent, message, events.Severity(sev)))
}

// Subscribe attaches a new subscriber to a task's event stream and returns
// the receive channel plus an unsubscribe function.
func (r *Registry) Subscribe(id string) (<-chan events.Event, func()) {
	sub := &subscriber{outbox: make(chan events.Event, r.backlog)}

	r.subMu.Lock()
	sub.id = r.nextSub
	r.nextSub++
	if r.subs[id] == nil {
		r.subs[id] = make(map[uint64]*subscriber)
	}
	r.subs[id][sub.id] = sub
	r.subMu.Unlock()

	unsubscribe := func() {
		r.subMu.Lock()
		defer r.subMu.Unlock()
		if set, ok := r.subs[id]; ok {
			if s, ok := set[sub.id]; ok {
				delete(set, sub.id)
				close(s.outbox)
			}
		}
	}
	return sub.outbox, unsubscribe
}

// broadcast delivers an event to every subscriber of its task. A subscriber
// whose queue is full is dropped: its channel is closed and removed from
// the set, rather than stalling the broadcaster (§4.2, §8).
func (r *Registry) broadcast(e events.Event) {
	r.subMu.Lock()
	set := r.subs[e.TaskID]
	for subID, sub := range set {
		select {
		case sub.outbox <- e:
		default:
			delete(set, subID)
			close(sub.outbox)
		}
	}
	r.subMu.Unlock()

	if r.bus != nil {
		r.bus.Publish(e)
	}
}

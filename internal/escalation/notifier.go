// Package escalation delivers escalation events to humans without blocking
// the engine that raised them.
package escalation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vinayprograms/agentkit/logging"
)

// DefaultBuffer is the queue size used when none is configured.
const DefaultBuffer = 64

// Event is one escalation.
type Event struct {
	ID        string    `json:"id"`
	Reason    string    `json:"reason"`
	Subject   string    `json:"subject"`
	SubjectID string    `json:"subject_id,omitempty"`
	Team      string    `json:"team,omitempty"`
	Time      time.Time `json:"time"`
}

// Observer receives events on the dispatch goroutine.
type Observer func(Event)

// Notifier queues events and hands them to observers in order. Notify never
// blocks: events arriving while the queue is full are dropped and counted.
type Notifier struct {
	queue     chan Event
	observers []Observer
	dropped   atomic.Int64
	delivered atomic.Int64
	mu        sync.RWMutex
	closed    bool
	done      chan struct{}
	logger    *logging.Logger
}

// New starts a notifier with the given queue size.
func New(buffer int, observers ...Observer) *Notifier {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	n := &Notifier{
		queue:     make(chan Event, buffer),
		observers: observers,
		done:      make(chan struct{}),
		logger:    logging.New().WithComponent("escalation"),
	}
	go n.dispatch()
	return n
}

// Notify queues an escalation. It reports false when the event was dropped.
func (n *Notifier) Notify(reason, subject string) bool {
	return n.Publish(Event{Reason: reason, Subject: subject})
}

// Publish queues e, filling in its identifier and time when unset.
func (n *Notifier) Publish(e Event) bool {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		n.dropped.Add(1)
		return false
	}
	select {
	case n.queue <- e:
		return true
	default:
		n.dropped.Add(1)
		n.logger.Warn("escalation_dropped", map[string]interface{}{"subject": e.Subject})
		return false
	}
}

// Dropped returns the number of events that were not queued.
func (n *Notifier) Dropped() int64 { return n.dropped.Load() }

// Delivered returns the number of events handed to observers.
func (n *Notifier) Delivered() int64 { return n.delivered.Load() }

// Close stops accepting events and waits until queued events are delivered.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()
	<-n.done
}

func (n *Notifier) dispatch() {
	defer close(n.done)
	for e := range n.queue {
		for _, o := range n.observers {
			n.deliver(o, e)
		}
		n.delivered.Add(1)
	}
}

// deliver isolates the dispatcher from a misbehaving observer.
func (n *Notifier) deliver(o Observer, e Event) {
	defer func() {
		if rec := recover(); rec != nil {
			n.logger.Error("observer_panic", map[string]interface{}{"event": e.ID, "panic": rec})
		}
	}()
	o(e)
}

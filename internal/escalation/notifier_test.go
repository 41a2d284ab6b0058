package escalation

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
)

func TestNotifier_DeliversInOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	n := New(8, func(e Event) {
		mu.Lock()
		got = append(got, e.Reason)
		mu.Unlock()
	})
	n.Notify("first", "Users API")
	n.Notify("second", "Dashboard")
	n.Close()

	if len(got) != 2 || got[0] != "first" || got[1] != "second" {
		t.Errorf("unexpected deliveries: %v", got)
	}
	if n.Delivered() != 2 {
		t.Errorf("expected 2 delivered, got %d", n.Delivered())
	}
}

func TestNotifier_DropsWhenFull(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	n := New(1, func(e Event) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
	})

	n.Notify("a", "x")
	<-started // dispatcher holds "a"
	if !n.Notify("b", "x") {
		t.Error("second event should fit the queue")
	}
	if n.Notify("c", "x") {
		t.Error("third event should be dropped")
	}
	if n.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", n.Dropped())
	}
	close(release)
	n.Close()
	if n.Delivered() != 2 {
		t.Errorf("expected 2 delivered, got %d", n.Delivered())
	}
}

func TestNotifier_NoObservers(t *testing.T) {
	n := New(0)
	for i := 0; i < 10; i++ {
		n.Notify("reason", "subject")
	}
	n.Close()
	n.Close()
	if n.Notify("late", "subject") {
		t.Error("closed notifier should not accept events")
	}
}

func TestNotifier_ObserverPanic(t *testing.T) {
	var got []string
	n := New(4,
		func(e Event) { panic("boom") },
		func(e Event) { got = append(got, e.Subject) },
	)
	n.Notify("r", "Users API")
	n.Close()
	if len(got) != 1 || got[0] != "Users API" {
		t.Errorf("later observers should still run, got %v", got)
	}
}

type fakePublisher struct {
	subject string
	data    []byte
	err     error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	f.subject = subject
	f.data = data
	return f.err
}

func TestNATSObserver(t *testing.T) {
	pub := &fakePublisher{}
	n := New(1, NATSObserver(pub, ""))
	n.Publish(Event{Reason: "budget exhausted", Subject: "Users API", Team: "core"})
	n.Close()

	if pub.subject != DefaultSubject {
		t.Errorf("expected subject %s, got %s", DefaultSubject, pub.subject)
	}
	var e Event
	if err := json.Unmarshal(pub.data, &e); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if e.Reason != "budget exhausted" || e.Team != "core" || e.ID == "" || e.Time.IsZero() {
		t.Errorf("unexpected event: %+v", e)
	}
}

func TestNATSObserver_PublishError(t *testing.T) {
	pub := &fakePublisher{err: errors.New("no responders")}
	// Publish errors are logged, not raised.
	NATSObserver(pub, "alerts")(Event{ID: "1"})
	if pub.subject != "alerts" {
		t.Errorf("expected subject alerts, got %s", pub.subject)
	}
}

// Package watch turns committed writes into re-emitted query snapshots.
// Publishers name a topic; subscribers re-run their query on every event
// and always receive a full snapshot, never a delta.
package watch

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// Topics published by the services.
const (
	TopicInspections = "inspections"
	TopicEquipment   = "equipment"
)

// AnswersTopic is the topic of the answers of one inspection.
func AnswersTopic(inspectionID int64) string {
	return fmt.Sprintf("answers:%d", inspectionID)
}

// Event describes a committed change.
type Event struct {
	Topic  string `json:"topic"`
	Action string `json:"action"`
	ID     int64  `json:"id"`
}

// Subscription receives events of one topic. Events are coalesced: a slow
// subscriber sees at least one event after the last change, not all of them.
type Subscription struct {
	C     <-chan Event
	ch    chan Event
	topic string
	hub   *Hub
	once  sync.Once
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs[s.topic], s)
		if len(s.hub.subs[s.topic]) == 0 {
			delete(s.hub.subs, s.topic)
		}
		s.hub.mu.Unlock()
		close(s.ch)
	})
}

// Hub fans events out to subscriptions by topic.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  *logrus.Logger
}

// NewHub creates an empty hub.
func NewHub(log *logrus.Logger) *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{}), log: log}
}

// Subscribe registers interest in topic.
func (h *Hub) Subscribe(topic string) *Subscription {
	ch := make(chan Event, 1)
	s := &Subscription{C: ch, ch: ch, topic: topic, hub: h}

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Subscription]struct{})
	}
	h.subs[topic][s] = struct{}{}
	h.mu.Unlock()
	return s
}

// Publish notifies every subscriber of topic. It never blocks.
func (h *Hub) Publish(topic, action string, id int64) {
	evt := Event{Topic: topic, Action: action, ID: id}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[topic] {
		select {
		case s.ch <- evt:
		default:
			// A notification is already pending; the re-query will see this change too.
		}
	}
	if h.log != nil {
		h.log.WithFields(logrus.Fields{"topic": topic, "action": action, "id": id}).Debug("watch: published")
	}
}

// Subscribers returns the number of live subscriptions on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}

// Stream emits query's result once immediately and again after every event
// on topic, until ctx is done or query fails. Both channels are closed
// when the stream ends.
func Stream[T any](ctx context.Context, h *Hub, topic string, query func(context.Context) (T, error)) (<-chan T, <-chan error) {
	out := make(chan T)
	errc := make(chan error, 1)
	sub := h.Subscribe(topic)

	go func() {
		defer close(errc)
		defer close(out)
		defer sub.Close()

		emit := func() bool {
			v, err := query(ctx)
			if err != nil {
				if ctx.Err() == nil {
					errc <- err
				}
				return false
			}
			select {
			case out <- v:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-sub.C:
				if !ok || !emit() {
					return
				}
			}
		}
	}()
	return out, errc
}

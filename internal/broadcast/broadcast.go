// Package broadcast fans out trip, sequence-state, and analysis events to
// any number of registered listeners under a single mutex. Grounded on the
// registered-callback pattern used throughout the core (the sniffer's trip
// handler, the analyzer engine's analysis/waveform callbacks): a single
// producer, a set of listeners invoked synchronously while holding the
// registration lock.
package broadcast

import (
	"sort"
	"sync"
	"time"
)

// Well-known topic names used across the test set.
const (
	TopicTrip          = "trip"
	TopicSequenceState = "sequence.state"
	TopicAnalysisFrame = "analysis.frame"
	TopicWaveform      = "analysis.waveform"
)

// Event is one published message: a topic, an opaque payload, and the time
// it was published.
type Event struct {
	Topic     string
	Payload   interface{}
	Timestamp time.Time
}

// Listener receives events for the topic(s) it was subscribed to.
type Listener func(Event)

type subscription struct {
	id    int
	topic string // empty means "all topics"
	fn    Listener
}

// Bus is a topic-keyed fanout registry.
type Bus struct {
	mu     sync.Mutex
	subs   []subscription
	nextID int
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn to receive every event published on topic. The
// returned func removes the subscription.
func (b *Bus) Subscribe(topic string, fn Listener) (unsubscribe func()) {
	return b.subscribe(topic, fn)
}

// SubscribeAll registers fn to receive events on every topic.
func (b *Bus) SubscribeAll(fn Listener) (unsubscribe func()) {
	return b.subscribe("", fn)
}

func (b *Bus) subscribe(topic string, fn Listener) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, subscription{id: id, topic: topic, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers payload, tagged with topic and the current time, to
// every listener subscribed to topic or to all topics. Listeners run
// synchronously, in subscription order, while the registry lock is held —
// a slow listener delays every other subscriber and the next Publish call.
func (b *Bus) Publish(topic string, payload interface{}) {
	event := Event{Topic: topic, Payload: payload, Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range b.subs {
		if s.topic == "" || s.topic == topic {
			s.fn(event)
		}
	}
}

// Topics returns the distinct topic names with at least one subscriber,
// sorted, for diagnostics. Wildcard ("all topics") subscribers are not
// represented by a topic name and are excluded.
func (b *Bus) Topics() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	seen := make(map[string]bool)
	for _, s := range b.subs {
		if s.topic != "" {
			seen[s.topic] = true
		}
	}
	topics := make([]string, 0, len(seen))
	for t := range seen {
		topics = append(topics, t)
	}
	sort.Strings(topics)
	return topics
}

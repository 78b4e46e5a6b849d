// Package events provides the in-process publish/subscribe bus that decouples
// microphone capture from audio playback.
//
// Dispatch contract: Publish is synchronous. It runs every listener registered
// for the topic, in registration order, on the caller's goroutine, and returns
// only after the last one has finished. Capture relies on this to treat
// "publish stop-audio" as a rendezvous: when Publish returns, the player has
// already stopped and announced audio-stopped.
package events

import (
	"fmt"
	"sync"

	"github.com/irdan/vocalAI/internal/logging"
)

// Topic names an event channel on the bus.
type Topic string

// Topics exchanged between the capture and playback controllers.
const (
	// TopicAudioStarted is published by the player before any sample is emitted.
	TopicAudioStarted Topic = "audio-started"
	// TopicAudioStopped is published by the player exactly once per Play call.
	TopicAudioStopped Topic = "audio-stopped"
	// TopicStopAudio asks the player to interrupt the active stream.
	TopicStopAudio Topic = "stop-audio"
)

// Handler receives the published payload, nil when the event carries none.
// A returned error (or a panic) is logged by the bus and never reaches the publisher.
type Handler func(payload any) error

// Subscription identifies one registration; pass it to Unsubscribe.
type Subscription struct {
	topic Topic
	id    uint64
}

// Topic returns the topic the subscription was registered on.
func (s Subscription) Topic() Topic {
	return s.topic
}

type listener struct {
	id      uint64
	handler Handler
}

// Bus is a topic-keyed registry of handlers. A topic key exists only while it
// has at least one listener.
type Bus struct {
	mu        sync.RWMutex
	listeners map[Topic][]listener
	nextID    uint64
	logger    *logging.Logger
}

// NewBus creates an empty bus. It is meant to be built once per process and
// handed to every component that needs it.
func NewBus(logger *logging.Logger) *Bus {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Bus{
		listeners: make(map[Topic][]listener),
		logger:    logger.Named("events"),
	}
}

// Subscribe registers handler for topic. The same handler may be registered
// several times; each registration is invoked once per Publish.
func (b *Bus) Subscribe(topic Topic, handler Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	if _, ok := b.listeners[topic]; !ok {
		b.logger.Debugf("New event topic added: %s", topic)
	}
	b.listeners[topic] = append(b.listeners[topic], listener{id: b.nextID, handler: handler})
	b.logger.Debugf("Listener %d subscribed to %s", b.nextID, topic)
	return Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes one registration. It reports false when the
// subscription was not (or no longer) registered.
func (b *Bus) Unsubscribe(sub Subscription) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	current, ok := b.listeners[sub.topic]
	if !ok {
		return false
	}
	for i, l := range current {
		if l.id != sub.id {
			continue
		}
		remaining := make([]listener, 0, len(current)-1)
		remaining = append(remaining, current[:i]...)
		remaining = append(remaining, current[i+1:]...)
		if len(remaining) == 0 {
			delete(b.listeners, sub.topic)
			b.logger.Debugf("No more listeners for %s, topic removed", sub.topic)
		} else {
			b.listeners[sub.topic] = remaining
		}
		return true
	}
	return false
}

// Publish invokes every handler currently registered for topic, in
// registration order. Handlers run without the bus lock held, so they may
// publish or (un)subscribe themselves.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	snapshot := b.listeners[topic]
	b.mu.RUnlock()

	for _, l := range snapshot {
		if err := b.dispatch(l, payload); err != nil {
			b.logger.Errorw("Error handling event", "topic", string(topic), "listener", l.id, "error", err)
		}
	}
	b.logger.Debugf("Event published: %s (%d listeners)", topic, len(snapshot))
}

func (b *Bus) dispatch(l listener, payload any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panicked: %v", r)
		}
	}()
	return l.handler(payload)
}

// Topics returns the topics that currently have listeners.
func (b *Bus) Topics() []Topic {
	b.mu.RLock()
	defer b.mu.RUnlock()

	topics := make([]Topic, 0, len(b.listeners))
	for t := range b.listeners {
		topics = append(topics, t)
	}
	return topics
}

// ListenerCount returns how many registrations topic has.
func (b *Bus) ListenerCount(topic Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners[topic])
}

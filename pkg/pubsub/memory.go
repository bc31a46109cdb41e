package pubsub

import (
	"context"
	"encoding/json"
	"path"
	"sync"
)

// MemoryPubSub delivers events inside one process. It backs single-instance
// deployments and tests.
type MemoryPubSub struct {
	mu     sync.RWMutex
	subs   map[string][]*memorySub
	closed bool
}

type memorySub struct {
	pattern bool
	ch      chan *Event
	done    chan struct{}
	once    sync.Once
}

func (s *memorySub) stop() {
	s.once.Do(func() { close(s.done) })
}

// NewMemoryPubSub creates an in-process PubSub.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string][]*memorySub)}
}

// Publish delivers a copy of the event to every matching subscriber.
// Slow subscribers lose events rather than block the publisher.
func (m *MemoryPubSub) Publish(_ context.Context, channel string, event *Event) error {
	// Round-trip through JSON so subscribers see the same shape as with
	// the networked drivers.
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for key, subs := range m.subs {
		for _, sub := range subs {
			if !matches(key, channel, sub.pattern) {
				continue
			}
			var copied Event
			if err := json.Unmarshal(data, &copied); err != nil {
				return err
			}
			select {
			case <-sub.done:
			case sub.ch <- &copied:
			default:
			}
		}
	}
	return nil
}

func matches(key, channel string, pattern bool) bool {
	if !pattern {
		return key == channel
	}
	ok, err := path.Match(key, channel)
	return err == nil && ok
}

func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, error) {
	return m.add(ctx, channel, false), nil
}

func (m *MemoryPubSub) SubscribePattern(ctx context.Context, pattern string) (<-chan *Event, error) {
	return m.add(ctx, pattern, true), nil
}

func (m *MemoryPubSub) add(ctx context.Context, key string, pattern bool) <-chan *Event {
	sub := &memorySub{
		pattern: pattern,
		ch:      make(chan *Event, subscriberBuffer),
		done:    make(chan struct{}),
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		close(sub.ch)
		return sub.ch
	}
	m.subs[key] = append(m.subs[key], sub)
	m.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			m.remove(key, sub)
		case <-sub.done:
		}
	}()

	return sub.ch
}

func (m *MemoryPubSub) remove(key string, target *memorySub) {
	m.mu.Lock()
	defer m.mu.Unlock()

	subs := m.subs[key]
	for i, sub := range subs {
		if sub == target {
			m.subs[key] = append(subs[:i], subs[i+1:]...)
			sub.stop()
			close(sub.ch)
			break
		}
	}
	if len(m.subs[key]) == 0 {
		delete(m.subs, key)
	}
}

// Unsubscribe closes every subscription registered under channel.
func (m *MemoryPubSub) Unsubscribe(_ context.Context, channel string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs[channel] {
		sub.stop()
		close(sub.ch)
	}
	delete(m.subs, channel)
	return nil
}

func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, subs := range m.subs {
		for _, sub := range subs {
			sub.stop()
			close(sub.ch)
		}
		delete(m.subs, key)
	}
	m.closed = true
	return nil
}

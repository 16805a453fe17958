package realtime

import (
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryBus is the in-process Bus backend: a mutex-guarded registry of group
// subscriber sets. It serves a single instance; deployments spanning several
// processes back it with the AMQP relay instead.
type MemoryBus struct {
	mu     sync.RWMutex
	groups map[string]map[*Subscriber]struct{}
}

// NewMemoryBus creates an empty in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{groups: make(map[string]map[*Subscriber]struct{})}
}

// Subscribe adds the handle to the group, creating the group on first use.
func (b *MemoryBus) Subscribe(group string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.groups[group]
	if !ok {
		set = make(map[*Subscriber]struct{})
		b.groups[group] = set
	}
	set[sub] = struct{}{}
}

// Unsubscribe removes the handle; empty groups are deleted.
func (b *MemoryBus) Unsubscribe(group string, sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.groups[group]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(b.groups, group)
	}
}

// Publish marshals the event once and pushes it to every current subscriber.
func (b *MemoryBus) Publish(group string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("realtime.Publish: %w", err)
	}
	b.deliver(group, data)
	return nil
}

// deliver fans pre-marshalled bytes out to the group. Holding the read lock
// while pushing keeps per-publisher ordering; pushes never block.
func (b *MemoryBus) deliver(group string, data []byte) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.groups[group] {
		sub.push(data)
	}
}

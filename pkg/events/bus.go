package events

import (
	"strings"
	"sync"
)

// Subscriber receives events from the bus.
type Subscriber interface {
	Receive(ev Event)
	Closed() bool
}

// Bus is a per-player pub/sub event bus with support for global subscribers.
// Server code emits events; each subscriber (a Session, a log writer) renders
// them for its own transport. Player names are matched case-insensitively.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	global      []Subscriber
}

// NewBus creates a new event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
	}
}

func key(player string) string {
	return strings.ToLower(player)
}

// Subscribe registers a subscriber for a specific player's events.
func (b *Bus) Subscribe(player string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(player)
	b.subscribers[k] = append(b.subscribers[k], sub)
}

// Unsubscribe removes a subscriber for a specific player.
func (b *Bus) Unsubscribe(player string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(player)
	subs := b.subscribers[k]
	for i, s := range subs {
		if s == sub {
			b.subscribers[k] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subscribers[k]) == 0 {
		delete(b.subscribers, k)
	}
}

// SubscribeGlobal registers a subscriber that receives all events.
func (b *Bus) SubscribeGlobal(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.global = append(b.global, sub)
}

// Emit sends an event to the player named in ev.Player and all global subscribers.
func (b *Bus) Emit(ev Event) {
	b.mu.RLock()
	subs := b.subscribers[key(ev.Player)]
	globals := b.global
	b.mu.RUnlock()

	deliver(subs, ev)
	deliver(globals, ev)
}

// EmitToPlayer sends an event to a specific player (overriding ev.Player).
func (b *Bus) EmitToPlayer(player string, ev Event) {
	ev.Player = player
	b.Emit(ev)
}

// Broadcast sends an event to every subscribed player. Each player receives
// a copy with Player set to its own name; global subscribers get ev once.
func (b *Bus) Broadcast(ev Event) {
	b.BroadcastExcept("", ev)
}

// BroadcastExcept is Broadcast skipping one player.
func (b *Bus) BroadcastExcept(except string, ev Event) {
	b.mu.RLock()
	targets := make(map[string][]Subscriber, len(b.subscribers))
	for player, subs := range b.subscribers {
		targets[player] = subs
	}
	globals := b.global
	b.mu.RUnlock()

	skip := key(except)
	for player, subs := range targets {
		if except != "" && player == skip {
			continue
		}
		playerEv := ev
		playerEv.Player = player
		deliver(subs, playerEv)
	}
	ev.Player = ""
	deliver(globals, ev)
}

func deliver(subs []Subscriber, ev Event) {
	for _, s := range subs {
		if !s.Closed() {
			s.Receive(ev)
		}
	}
}

// PlayerSubscribers returns the number of subscribers for a player.
func (b *Bus) PlayerSubscribers(player string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers[key(player)])
}

// Cleanup removes closed subscribers from all lists.
func (b *Bus) Cleanup() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for player, subs := range b.subscribers {
		var active []Subscriber
		for _, s := range subs {
			if !s.Closed() {
				active = append(active, s)
			}
		}
		if len(active) == 0 {
			delete(b.subscribers, player)
		} else {
			b.subscribers[player] = active
		}
	}

	var activeGlobal []Subscriber
	for _, s := range b.global {
		if !s.Closed() {
			activeGlobal = append(activeGlobal, s)
		}
	}
	b.global = activeGlobal
}

package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

var timeNow = time.Now

// ErrClosed is returned when publishing on a closed bridge
var ErrClosed = errors.New("notification bridge closed")

// LocalHub connects the sessions of one process. Every bridge joined to the
// hub receives the events published by any of them, its own included.
type LocalHub struct {
	mu      sync.RWMutex
	members map[*LocalBridge]struct{}
}

// NewLocalHub creates an empty hub
func NewLocalHub() *LocalHub {
	return &LocalHub{members: make(map[*LocalBridge]struct{})}
}

// Join creates a bridge attached to the hub
func (h *LocalHub) Join(log *logger.Logger) *LocalBridge {
	if log == nil {
		log = logger.NewNop()
	}
	b := &LocalBridge{
		hub:       h,
		origin:    newOrigin(),
		listeners: newListenerSet(log.WithComponent("notify")),
	}
	h.mu.Lock()
	h.members[b] = struct{}{}
	h.mu.Unlock()
	return b
}

func (h *LocalHub) leave(b *LocalBridge) {
	h.mu.Lock()
	delete(h.members, b)
	h.mu.Unlock()
}

func (h *LocalHub) broadcast(e Event) {
	h.mu.RLock()
	members := make([]*LocalBridge, 0, len(h.members))
	for m := range h.members {
		members = append(members, m)
	}
	h.mu.RUnlock()

	for _, m := range members {
		m.listeners.dispatch(e)
	}
}

// LocalBridge is an in-process Bridge
type LocalBridge struct {
	hub       *LocalHub
	origin    string
	listeners *listenerSet

	mu     sync.Mutex
	closed bool
}

// NewLocalBridge creates a bridge on a private hub
func NewLocalBridge(log *logger.Logger) *LocalBridge {
	return NewLocalHub().Join(log)
}

func (b *LocalBridge) Notify(ctx context.Context, e Event) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.hub.broadcast(stamp(e, b.origin))
	return nil
}

func (b *LocalBridge) OnUpdate(fn Listener) func() {
	return b.listeners.add(fn)
}

func (b *LocalBridge) Origin() string {
	return b.origin
}

func (b *LocalBridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	b.hub.leave(b)
	b.listeners.clear()
	return nil
}

// NopBridge drops every event
type NopBridge struct{ origin string }

func NewNopBridge() *NopBridge { return &NopBridge{origin: newOrigin()} }

func (NopBridge) Notify(context.Context, Event) error { return nil }

func (NopBridge) OnUpdate(Listener) func() { return func() {} }

func (b NopBridge) Origin() string { return b.origin }

func (NopBridge) Close() error { return nil }

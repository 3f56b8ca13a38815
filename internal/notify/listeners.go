package notify

import (
	"sync"

	"github.com/google/uuid"

	"github.com/lexzyftunix141/vote-ossip-ikhwan-2/pkg/logger"
)

// listenerSet fans events out to registered callbacks. A panicking listener
// is logged and does not stop delivery to the others.
type listenerSet struct {
	mu     sync.RWMutex
	nextID int
	fns    map[int]Listener
	log    *logger.Logger
}

func newListenerSet(log *logger.Logger) *listenerSet {
	return &listenerSet{fns: make(map[int]Listener), log: log}
}

func (s *listenerSet) add(fn Listener) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.fns[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.fns, id)
			s.mu.Unlock()
		})
	}
}

func (s *listenerSet) dispatch(e Event) {
	s.mu.RLock()
	fns := make([]Listener, 0, len(s.fns))
	for _, fn := range s.fns {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		s.call(fn, e)
	}
}

func (s *listenerSet) call(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("sync listener panicked", "event", e.Type, "panic", r)
		}
	}()
	fn(e)
}

func (s *listenerSet) clear() {
	s.mu.Lock()
	s.fns = make(map[int]Listener)
	s.mu.Unlock()
}

func newOrigin() string {
	return uuid.NewString()
}

func stamp(e Event, origin string) Event {
	if e.Origin == "" {
		e.Origin = origin
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = timeNow().UTC()
	}
	return e
}

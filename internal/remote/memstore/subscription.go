package memstore

import (
	"sync"

	"github.com/dmitrijs2005/billsync/internal/remote"
)

// subscription buffers changes in an unbounded queue so writers never block
// on slow consumers; run drains the queue into out in order.
type subscription struct {
	mu     sync.Mutex
	queue  []remote.Change
	signal chan struct{}
	out    chan remote.Change
	done   chan struct{}
	once   sync.Once
	detach func(*subscription)
}

func newSubscription(detach func(*subscription)) *subscription {
	return &subscription{
		signal: make(chan struct{}, 1),
		out:    make(chan remote.Change),
		done:   make(chan struct{}),
		detach: detach,
	}
}

func (s *subscription) push(c remote.Change) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		c := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- c:
		case <-s.done:
			return
		}
	}
}

func (s *subscription) Changes() <-chan remote.Change { return s.out }

func (s *subscription) Err() error { return nil }

func (s *subscription) Close() error {
	s.once.Do(func() {
		close(s.done)
		s.detach(s)
	})
	return nil
}

package session

import (
	"sync"

	"github.com/google/uuid"
)

// CloseReason tells a connection why its outbox was closed.
type CloseReason int

const (
	ReasonNone CloseReason = iota
	ReasonLeft
	ReasonReplaced
	ReasonSlow
	ReasonEnded
)

func (r CloseReason) String() string {
	switch r {
	case ReasonLeft:
		return "left"
	case ReasonReplaced:
		return "replaced by a newer connection"
	case ReasonSlow:
		return "too slow"
	case ReasonEnded:
		return "session ended"
	default:
		return "open"
	}
}

// Subscriber is one player's delivery outbox. The runtime is the only
// writer; Outbox is closed when the subscription ends.
type Subscriber struct {
	PlayerID uuid.UUID

	out    chan []byte
	once   sync.Once
	mu     sync.Mutex
	reason CloseReason
}

func newSubscriber(id uuid.UUID, size int) *Subscriber {
	return &Subscriber{PlayerID: id, out: make(chan []byte, size)}
}

func (s *Subscriber) Outbox() <-chan []byte { return s.out }

// Reason is ReasonNone while the outbox is open.
func (s *Subscriber) Reason() CloseReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// close must be called with the runtime lock held so no send races it.
func (s *Subscriber) close(reason CloseReason) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()
		close(s.out)
	})
}

package bridge

import "sync"

// Subscription is one active listener registration.
// After Remove returns the listener receives no further events; extra calls are no-ops.
type Subscription interface {
	Remove()
}

type subscription struct {
	once    sync.Once
	release func()
}

func (s *subscription) Remove() {
	s.once.Do(func() {
		if s.release != nil {
			s.release()
		}
	})
}

// NewSubscription wraps release so that it runs at most once.
func NewSubscription(release func()) Subscription { //nolint:ireturn
	return &subscription{release: release}
}

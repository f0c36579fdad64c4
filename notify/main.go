// Package notify fans values out to subscribers.
package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/exp/slices"
)

const DefaultTimeout = 200 * time.Millisecond

type subscriber[E any] struct {
	ch      chan E
	comment string
}

// Multiplexer delivers every sent value to every subscriber, in order.
// A subscriber that does not receive within the timeout misses that value.
type Multiplexer[E any] struct {
	comment string
	timeout time.Duration

	subscribersLock sync.Mutex
	subscribers     []subscriber[E]
}

func NewMultiplexer[E any](comment string) *Multiplexer[E] {
	return &Multiplexer[E]{
		comment: comment,
		timeout: DefaultTimeout,
	}
}

func (m *Multiplexer[E]) SetTimeout(d time.Duration) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	m.timeout = d
}

func (m *Multiplexer[E]) Subscribe(comment string, c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	m.subscribers = append(m.subscribers, subscriber[E]{ch: c, comment: comment})
}

// Unsubscribe panics if c is not subscribed.
func (m *Multiplexer[E]) Unsubscribe(c chan E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	i := slices.IndexFunc(m.subscribers, func(sub subscriber[E]) bool { return sub.ch == c })
	if i == -1 {
		panic("already unsubscribed")
	}
	m.subscribers = slices.Delete(m.subscribers, i, i+1)
}

func (m *Multiplexer[E]) Len() int {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	return len(m.subscribers)
}

// Send blocks until every subscriber has received e or timed out.
func (m *Multiplexer[E]) Send(e E) {
	m.subscribersLock.Lock()
	defer m.subscribersLock.Unlock()
	for _, sub := range m.subscribers {
		timer := time.NewTimer(m.timeout)
		select {
		case sub.ch <- e:
		case <-timer.C:
			zap.S().Warnw("subscriber timed out",
				"multiplexer", m.comment,
				"subscriber", sub.comment,
			)
		}
		timer.Stop()
	}
}

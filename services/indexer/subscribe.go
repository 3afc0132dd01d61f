package indexer

import "sync"

const subscriptionBuffer = 64

type subscription struct {
	ch   chan Record
	once sync.Once
}

func (s *subscription) close() {
	s.once.Do(func() { close(s.ch) })
}

// Subscribe delivers every record appended after the call. The channel is
// closed when cancel is invoked or when the subscriber falls more than a
// buffer behind; callers resume from the last sequence they saw with Query.
func (i *Indexer) Subscribe() (<-chan Record, func()) {
	sub := &subscription{ch: make(chan Record, subscriptionBuffer)}
	i.mu.Lock()
	i.subs[sub] = struct{}{}
	i.mu.Unlock()
	cancel := func() {
		i.mu.Lock()
		delete(i.subs, sub)
		i.mu.Unlock()
		sub.close()
	}
	return sub.ch, cancel
}

func (i *Indexer) broadcastLocked(record Record) {
	for sub := range i.subs {
		select {
		case sub.ch <- record:
		default:
			delete(i.subs, sub)
			sub.close()
			i.logger.Warn("indexer: dropped slow subscriber")
		}
	}
}

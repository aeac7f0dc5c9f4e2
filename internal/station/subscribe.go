package station

import "github.com/google/uuid"

const subscriberBuffer = 16

// Subscribe returns a channel receiving a status after every state change.
// A subscriber that falls behind loses its oldest queued statuses; the last
// one it reads is always current.
func (s *Station) Subscribe() (string, <-chan Status) {
	id := uuid.NewString()
	ch := make(chan Status, subscriberBuffer)
	s.subMu.Lock()
	s.subscribers[id] = ch
	s.subMu.Unlock()
	return id, ch
}

// Unsubscribe closes the subscriber's channel.
func (s *Station) Unsubscribe(id string) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

func (s *Station) broadcast(st Status) {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	for _, ch := range s.subscribers {
		offer(ch, st)
	}
}

// offer queues st, evicting the oldest queued status when ch is full.
// Callers hold subMu, so no other sender can refill the freed slot.
func offer(ch chan Status, st Status) {
	for {
		select {
		case ch <- st:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}

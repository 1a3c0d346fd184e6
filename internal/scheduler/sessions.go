package scheduler

import "imgfilter/internal/domain"

// endedSessions remembers the most recently ended session IDs so late
// submissions for a closed tab are not dispatched.
type endedSessions struct {
	capacity int
	ring     []domain.SessionID
	next     int
	set      map[domain.SessionID]struct{}
}

func newEndedSessions(capacity int) *endedSessions {
	return &endedSessions{
		capacity: capacity,
		set:      make(map[domain.SessionID]struct{}),
	}
}

func (e *endedSessions) add(id domain.SessionID) {
	if e.capacity <= 0 {
		return
	}
	if _, ok := e.set[id]; ok {
		return
	}
	if len(e.ring) < e.capacity {
		e.ring = append(e.ring, id)
	} else {
		delete(e.set, e.ring[e.next])
		e.ring[e.next] = id
		e.next = (e.next + 1) % e.capacity
	}
	e.set[id] = struct{}{}
}

func (e *endedSessions) contains(id domain.SessionID) bool {
	_, ok := e.set[id]
	return ok
}

func (e *endedSessions) len() int {
	return len(e.set)
}

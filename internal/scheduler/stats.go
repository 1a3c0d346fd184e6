package scheduler

// Counters are lifetime totals since the scheduler was created.
type Counters struct {
	Submitted  uint64 `json:"submitted"`
	Dispatched uint64 `json:"dispatched"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	Cancelled  uint64 `json:"cancelled"`
	Discarded  uint64 `json:"discarded"`
	Expired    uint64 `json:"expired"`
	Rejected   uint64 `json:"rejected"`
}

type Stats struct {
	Ready         bool `json:"ready"`
	Concurrency   int  `json:"concurrency"`
	Running       int  `json:"running"`
	Queued        int  `json:"queued"`
	Sessions      int  `json:"sessions"`
	EndedSessions int  `json:"ended_sessions"`
	Counters
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	return Stats{
		Ready:         s.adapter != nil && !s.closed,
		Concurrency:   s.concurrency,
		Running:       s.running,
		Queued:        s.queue.Len(),
		Sessions:      len(s.sessions),
		EndedSessions: s.ended.len(),
		Counters:      s.counters,
	}
}

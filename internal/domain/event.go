package domain

import "time"

type EventType string

const (
	EventClassify     EventType = "classify"
	EventSessionEnded EventType = "session_ended"
)

// Event is an inbound message from the request queue.
type Event struct {
	Type      EventType `json:"type"`
	ID        string    `json:"id,omitempty"`
	URL       string    `json:"url,omitempty"`
	SessionID SessionID `json:"session,omitempty"`
}

func (e Event) Request() Request {
	return Request{ID: e.ID, URL: e.URL, SessionID: e.SessionID}.WithID()
}

// VerdictEvent is the outbound record of a delivered verdict.
type VerdictEvent struct {
	RequestID string    `json:"request_id"`
	SessionID SessionID `json:"session,omitempty"`
	URL       string    `json:"url"`
	Blocked   bool      `json:"blocked"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func NewVerdictEvent(req Request, v Verdict) VerdictEvent {
	return VerdictEvent{
		RequestID: req.ID,
		SessionID: req.SessionID,
		URL:       v.URL,
		Blocked:   v.Blocked,
		Error:     v.Error,
		CreatedAt: time.Now(),
	}
}

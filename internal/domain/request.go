package domain

import "github.com/google/uuid"

// SessionID groups requests that are torn down together, e.g. one browser tab.
// The zero value means the request belongs to no session.
type SessionID string

type Request struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	SessionID SessionID `json:"session,omitempty"`
}

func NewRequest(url string, session SessionID) Request {
	return Request{
		ID:        uuid.NewString(),
		URL:       url,
		SessionID: session,
	}
}

// WithID fills in a random ID when the caller did not supply one.
func (r Request) WithID() Request {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return r
}

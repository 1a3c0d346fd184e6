package domain

// Verdict is the terminal result of one Request.
type Verdict struct {
	Blocked bool   `json:"blocked"`
	URL     string `json:"url"`
	Error   string `json:"error,omitempty"`
}

// CancelledMessage is the error text carried by verdicts of requests whose
// session ended before they completed.
const CancelledMessage = "request cancelled"

func Pass(url string) Verdict {
	return Verdict{URL: url}
}

func Failed(url string, err error) Verdict {
	return Verdict{URL: url, Error: err.Error()}
}

func (v Verdict) Failed() bool {
	return v.Error != ""
}

func (v Verdict) Cancelled() bool {
	return v.Error == CancelledMessage
}

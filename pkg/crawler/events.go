package crawler

import (
	"scrapix/pkg/result"
	"scrapix/pkg/validator"
)

// EventKind classifies harvest progress events.
type EventKind string

const (
	EventPass              EventKind = "pass"
	EventAccepted          EventKind = "accepted"
	EventRejected          EventKind = "rejected"
	EventInteractionFailed EventKind = "interaction_failed"
	EventExhausted         EventKind = "exhausted"
	EventLimitReached      EventKind = "limit_reached"
)

// Event reports harvest progress. Accepted is the running total.
type Event struct {
	Kind     EventKind
	Pass     int
	Index    int
	Visible  int
	New      int
	Accepted int
	Result   result.Result
	Verdict  validator.Verdict
	Err      error
}

// Stats counts what one harvest did.
type Stats struct {
	Passes              int            `json:"passes"`
	Clicked             int            `json:"clicked"`
	InteractionFailures int            `json:"interaction_failures"`
	Empty               int            `json:"empty"`
	Verdicts            map[string]int `json:"verdicts"`
}

func newStats() Stats {
	return Stats{Verdicts: make(map[string]int)}
}

func (s Stats) clone() Stats {
	out := s
	out.Verdicts = make(map[string]int, len(s.Verdicts))
	for k, v := range s.Verdicts {
		out.Verdicts[k] = v
	}
	return out
}

// Package event defines the typed event stream a prober emits to its
// caller.
package event

import "encoding/json"

// Event is one update in a session's stream. A session emits one Started
// first (one per candidate attempt on the download path), zero or more
// Progress, and exactly one Finished or Error last. Consumers should switch
// over the four variants exhaustively.
type Event interface {
	name() string
}

// Started announces that a session is about to issue its first request.
type Started struct {
	URL        string `json:"url"`
	DurationMs int64  `json:"durationMs"`
	ChunkSize  int64  `json:"chunkSize,omitempty"`
}

// Progress carries a live throughput sample.
type Progress struct {
	ElapsedMs int64   `json:"elapsedMs"`
	Bytes     int64   `json:"bytes"`
	Mbps      float64 `json:"mbps"`
}

// Finished is the terminal event of a successful session. AvgMbps is the
// cumulative average over the whole session.
type Finished struct {
	ElapsedMs int64   `json:"elapsedMs"`
	Bytes     int64   `json:"bytes"`
	AvgMbps   float64 `json:"avgMbps"`
}

// Error is the terminal event of a failed session. Message includes the
// full causal chain.
type Error struct {
	Message string `json:"message"`
}

func (Started) name() string  { return "started" }
func (Progress) name() string { return "progress" }
func (Finished) name() string { return "finished" }
func (Error) name() string    { return "error" }

type envelope struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// Marshal serializes ev in the tagged wire shape consumed by the caller:
// {"event": <name>, "data": {...}}.
func Marshal(ev Event) ([]byte, error) {
	return json.Marshal(envelope{Event: ev.name(), Data: ev})
}

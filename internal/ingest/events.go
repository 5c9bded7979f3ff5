package ingest

import "time"

// State is a step of one document's ingestion.
type State string

const (
	StateStart          State = "START"
	StateHashing        State = "HASHING"
	StateTextDedupCheck State = "TEXT_DEDUP_CHECK"
	StateTextSkip       State = "TEXT_SKIP"
	StateTextWrite      State = "TEXT_WRITE"
	StateImageExtract   State = "IMAGE_EXTRACT"
	StateImageDedup     State = "IMAGE_DEDUP_CHECK"
	StateImageSkip      State = "IMAGE_SKIP"
	StateImageWrite     State = "IMAGE_WRITE"
	StateDone           State = "DONE"
	StateError          State = "ERROR"
)

// Event is one progress line. Message is the caller-facing contract;
// consumers match substrings such as "Added 3 text chunks".
type Event struct {
	State   State
	Message string
	Time    time.Time

	// Outcome is set on the event that concludes a domain (TEXT_SKIP,
	// TEXT_WRITE, IMAGE_SKIP, IMAGE_WRITE) and on ERROR events.
	Outcome *Outcome
	// Report is set on the final DONE event.
	Report *Report
}

func (e Event) String() string { return e.Message }

// Terminal reports whether e ends the run.
func (e Event) Terminal() bool {
	return e.State == StateDone || e.State == StateError
}

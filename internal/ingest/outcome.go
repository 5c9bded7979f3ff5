package ingest

import "time"

// Domain is an independently deduplicated part of a document.
type Domain string

const (
	DomainText  Domain = "text"
	DomainImage Domain = "image"
)

// OutcomeKind tags the result of one domain step.
type OutcomeKind int

const (
	Success OutcomeKind = iota
	Skipped
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// FailureKind classifies a Failed outcome.
type FailureKind string

const (
	FailureNone                 FailureKind = ""
	FailureSourceMissing        FailureKind = "source_missing"
	FailureOpen                 FailureKind = "open"
	FailureDetectionUnavailable FailureKind = "detection_unavailable"
	FailureLock                 FailureKind = "lock"
	FailureSegmentation         FailureKind = "segmentation"
	FailureDescription          FailureKind = "description"
	FailureWrite                FailureKind = "write"
	FailureInternal             FailureKind = "internal"
)

// Outcome is the typed result of one domain step.
type Outcome struct {
	Domain  Domain
	Kind    OutcomeKind
	Units   int    // Units written (Success) or found (Skipped)
	Reason  string // Why a domain was skipped, e.g. the matching tier
	Failure FailureKind
	Err     error
}

// Report summarises a finished run.
type Report struct {
	Source   string
	Text     Outcome
	Images   Outcome
	Rejected int // Images dropped as non-informative
	Duration time.Duration
}

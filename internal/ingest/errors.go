package ingest

import "github.com/pkg/errors"

var (
	// ErrSourceMissing means the document path does not exist.
	ErrSourceMissing = errors.New("file does not exist")

	// errStopped means the caller cancelled; nothing more is emitted.
	errStopped = errors.New("ingestion stopped by caller")

	// errMissingReported means the missing-source event was already sent.
	errMissingReported = errors.New("missing source reported")
)

// stepError is a failure that ends the run with ERROR events.
type stepError struct {
	domain Domain
	kind   FailureKind
	err    error
}

func (e *stepError) Error() string { return e.err.Error() }

func (e *stepError) Unwrap() error { return e.err }

// fail records a stack trace at the failure site unless err carries one.
func fail(domain Domain, kind FailureKind, err error) error {
	if _, ok := err.(interface{ StackTrace() errors.StackTrace }); !ok {
		err = errors.WithStack(err)
	}
	return &stepError{domain: domain, kind: kind, err: err}
}

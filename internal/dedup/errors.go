package dedup

import "errors"

// ErrDetectionUnavailable means the store could not answer an existence
// query. It is never equivalent to "no duplicate".
var ErrDetectionUnavailable = errors.New("duplicate detection unavailable")

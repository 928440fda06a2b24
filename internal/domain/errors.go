package domain

import "errors"

// ErrGenerateTimeout reports that the generation backend did not
// answer within the configured deadline.
var ErrGenerateTimeout = errors.New("generation timed out")

// ErrIndexMissing reports that the underlying search structure does
// not exist. Callers treat it as an empty result, never as a fatal
// request failure.
var ErrIndexMissing = errors.New("search index missing")

package main

import (
	"context"
	"errors"

	"github.com/dkrol/blescout/internal/pipeline"
	"github.com/dkrol/blescout/internal/retry"
)

// FormatUserError turns internal error chains into a message suitable for
// the terminal, without stack-like wrapping noise for the common cases.
func FormatUserError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "operation timed out: " + err.Error()
	case errors.Is(err, retry.ErrRetriesExhausted):
		return "device did not respond after repeated attempts: " + err.Error()
	case errors.Is(err, pipeline.ErrCollectTimeout):
		return "sensor never reported all required values: " + err.Error()
	default:
		return err.Error()
	}
}

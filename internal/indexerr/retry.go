package indexerr

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Retryable reports whether a failed run is worth repeating as a whole.
//
// Nothing inside the pipeline retries; this classifier only serves the
// run-level policy a caller may wrap around Run. Validation and schema
// failures are permanent. Transport failures are retryable when their status
// says so: 429, 5xx, or 403 accompanied by rate-limit information, and for
// gRPC: Unavailable, DeadlineExceeded, Aborted, ResourceExhausted. A transport
// failure without any status (connection reset, DNS) is treated as transient.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if IsValidation(err) || IsSchema(err) {
		return false
	}

	if st, ok := grpcStatus(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.Aborted, codes.ResourceExhausted:
			return true
		default:
			return false
		}
	}

	var te *TransportError
	if !errors.As(err, &te) {
		return false
	}
	return RetryableStatus(te.Status, errors.Is(err, ErrRateLimited))
}

// ErrRateLimited marks a transport failure that carried rate-limit headers.
var ErrRateLimited = errors.New("rate limited")

// RetryableStatus classifies an HTTP status code.
// A zero status means no response was received.
func RetryableStatus(statusCode int, rateLimited bool) bool {
	switch statusCode {
	case 0:
		return true
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		// Secondary rate limits arrive as 403.
		return rateLimited
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusNotFound, http.StatusUnprocessableEntity:
		return false
	default:
		return statusCode >= 500 && statusCode < 600
	}
}

func grpcStatus(err error) (*status.Status, bool) {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := status.FromError(e); ok && st.Code() != codes.OK && st.Code() != codes.Unknown {
			return st, true
		}
	}
	return nil, false
}

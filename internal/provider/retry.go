package provider

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/adflow/pipeline/internal/logging"
	"github.com/adflow/pipeline/internal/metrics"
	"github.com/adflow/pipeline/internal/pipeline/errs"
)

// maxPageAttempts is the retry budget for a single page fetch: spec.md §4.B
// gives each page 3 attempts before the source is marked failed for this
// batch. Delays follow the teacher's exponential schedule, capped well
// below its ceiling since a page, unlike a whole API client, should fail
// fast.
const maxPageAttempts = 3

var pageRetryBaseDelay = time.Second

// AuthRefresher re-authenticates an adapter mid-extraction after an
// AuthExpired response, returning the new bearer/signature material the
// next attempt should use.
type AuthRefresher func(ctx context.Context) error

// WithPageRetry wraps a single-page fetch with the taxonomy's retry policy:
// transient and rate-limited failures retry up to maxPageAttempts with
// exponential backoff honoring Retry-After; an auth-expired failure
// triggers one refresh-and-retry; anything else (or the refresher itself
// failing) is fatal for the page.
func WithPageRetry[T any](ctx context.Context, source string, refresh AuthRefresher, fetch func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	refreshedOnce := false

	for attempt := 1; attempt <= maxPageAttempts; attempt++ {
		result, err := fetch(ctx)
		if err == nil {
			return result, nil
		}

		kind, _ := errs.KindOf(err)

		if kind == errs.KindAuthExpired && !refreshedOnce && refresh != nil {
			refreshedOnce = true
			if refreshErr := refresh(ctx); refreshErr != nil {
				return zero, errs.Wrap(errs.KindAuthExpired, source, refreshErr)
			}
			metrics.AdapterRetries.WithLabelValues(source, string(errs.KindAuthExpired)).Inc()
			continue
		}

		if !isRetryableKind(kind) || attempt == maxPageAttempts {
			return zero, err
		}

		delay := retryDelay(attempt, err)
		metrics.AdapterRetries.WithLabelValues(source, string(kind)).Inc()
		logging.Warn().Str("source", source).Int("attempt", attempt).Dur("delay", delay).Err(err).Msg("provider page fetch failed, retrying")

		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(delay):
		}
	}
	return zero, errs.New(errs.KindTransient, source, "exhausted page retry attempts")
}

func isRetryableKind(kind errs.Kind) bool {
	return kind == errs.KindTransient || kind == errs.KindRateLimited
}

// retryDelay computes the backoff for attempt (1-indexed), honoring a
// Retry-After duration embedded in err when present.
func retryDelay(attempt int, err error) time.Duration {
	if d, ok := retryAfterFrom(err); ok {
		return d
	}
	return pageRetryBaseDelay * time.Duration(1<<(attempt-1))
}

// retryAfterError lets an adapter attach an upstream Retry-After duration to
// a classified error so the retry loop honors it exactly, per the teacher's
// RFC 6585 handling.
type retryAfterError struct {
	error
	after time.Duration
}

// WithRetryAfter annotates err with a server-provided retry delay.
func WithRetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return &retryAfterError{error: err, after: after}
}

func retryAfterFrom(err error) (time.Duration, bool) {
	var ra *retryAfterError
	if errors.As(err, &ra) {
		return ra.after, true
	}
	return 0, false
}

// ClassifyHTTPStatus maps a response status code onto the taxonomy used
// throughout provider adapters.
func ClassifyHTTPStatus(source string, status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errs.New(errs.KindAuthExpired, source, http.StatusText(status))
	case status == http.StatusTooManyRequests || status == http.StatusServiceUnavailable:
		return errs.New(errs.KindRateLimited, source, http.StatusText(status))
	case status >= 500:
		return errs.New(errs.KindTransient, source, http.StatusText(status))
	case status >= 400:
		return errs.New(errs.KindInvalid, source, http.StatusText(status))
	default:
		return nil
	}
}

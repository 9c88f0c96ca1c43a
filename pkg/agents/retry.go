package agents

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"agentscan/pkg/logger"
)

const (
	maxBackoff    = 30 * time.Second
	maxRetryAfter = time.Minute
)

// retryTransport retries throttled and server-side failures. Each retry
// waits for Retry-After when the service sends one, otherwise for an
// exponential backoff.
type retryTransport struct {
	base       http.RoundTripper
	maxRetries int
	backoff    time.Duration
	logger     *logger.Logger
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func (t *retryTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rewindable := req.Body == nil || req.Body == http.NoBody || req.GetBody != nil

	for attempt := 0; ; attempt++ {
		current := req
		if attempt > 0 {
			current = req.Clone(req.Context())
			if req.GetBody != nil {
				body, err := req.GetBody()
				if err != nil {
					return nil, fmt.Errorf("rewind request body: %w", err)
				}
				current.Body = body
			}
		}

		resp, err := t.base.RoundTrip(current)
		if err != nil || !retryable(resp.StatusCode) || attempt >= t.maxRetries || !rewindable {
			return resp, err
		}

		wait := retryDelay(resp.Header.Get("Retry-After"), t.backoff, attempt, time.Now())
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()

		t.logger.WithFields(logger.Fields{
			"status":  resp.StatusCode,
			"attempt": attempt + 1,
			"wait":    wait.String(),
		}).Warn("Inference request throttled or failed, retrying")

		timer := time.NewTimer(wait)
		select {
		case <-req.Context().Done():
			timer.Stop()
			return nil, req.Context().Err()
		case <-timer.C:
		}
	}
}

// retryDelay reads Retry-After as seconds or an HTTP date, capped at a
// minute. Without a usable header it doubles base per attempt.
func retryDelay(header string, base time.Duration, attempt int, now time.Time) time.Duration {
	if header = strings.TrimSpace(header); header != "" {
		if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
			return min(time.Duration(secs)*time.Second, maxRetryAfter)
		}
		if at, err := http.ParseTime(header); err == nil {
			return min(max(at.Sub(now), 0), maxRetryAfter)
		}
	}
	d := base
	for i := 0; i < attempt && d < maxBackoff; i++ {
		d *= 2
	}
	return min(d, maxBackoff)
}

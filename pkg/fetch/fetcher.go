package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/web2text/pkg/config"
	"github.com/Sriram-PR/web2text/pkg/utils"
)

// RetryPolicy controls how often and how patiently a request is retried
type RetryPolicy struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// RetryPolicyFrom copies the retry settings out of cfg
func RetryPolicyFrom(cfg *config.Config) RetryPolicy {
	return RetryPolicy{
		MaxRetries:   cfg.MaxRetries,
		InitialDelay: cfg.InitialRetryDelay,
		MaxDelay:     cfg.MaxRetryDelay,
	}
}

// Backoff returns the pause before retry number attempt (1-based):
// initial * 2^(attempt-1), capped at MaxDelay, with +/-10% jitter.
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	delay := time.Duration(float64(p.InitialDelay) * math.Pow(2, float64(attempt-1)))
	if delay <= 0 || delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay <= 0 {
		return 0
	}
	var jitter time.Duration
	if span := int64(delay) / 5; span > 0 {
		jitter = time.Duration(rand.Int63n(span)) - delay/10
	}
	if d := delay + jitter; d > 0 {
		return d
	}
	return 0
}

// Fetcher performs GET requests with retries on transient failures
type Fetcher struct {
	client    *http.Client
	policy    RetryPolicy
	userAgent string
	log       *logrus.Entry
}

// NewFetcher creates a Fetcher around client
func NewFetcher(client *http.Client, policy RetryPolicy, userAgent string, log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client:    client,
		policy:    policy,
		userAgent: userAgent,
		log:       log,
	}
}

// Get builds a GET request for rawURL and runs it through FetchWithRetry
func (f *Fetcher) Get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	return f.FetchWithRetry(ctx, req)
}

// FetchWithRetry executes req, retrying network errors, 5xx and 429 with
// exponential backoff. 2xx and 3xx responses are returned with a nil error.
// A 4xx (other than 429) or other unexpected status is returned together with
// a wrapped error and the caller must close the body. After the last failed
// attempt the error wraps utils.ErrRetryFailed. Context errors are returned
// unwrapped and never retried.
func (f *Fetcher) FetchWithRetry(ctx context.Context, req *http.Request) (*http.Response, error) {
	reqLog := f.log.WithField("url", req.URL.String())
	var lastErr error

	for attempt := 0; attempt <= f.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return nil, fmt.Errorf("context cancelled (%v) after error: %w", err, lastErr)
			}
			return nil, err
		}

		if attempt > 0 {
			pause := f.policy.Backoff(attempt)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_retries": f.policy.MaxRetries, "delay": pause}).Warn("Retrying request")
			timer := time.NewTimer(pause)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, fmt.Errorf("context cancelled (%v) during retry delay after error: %w", ctx.Err(), lastErr)
			}
		}

		resp, err := f.client.Do(req.WithContext(ctx))
		if err != nil {
			drain(resp)
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			lastErr = err
			continue
		}

		code := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": code, "attempt": attempt})
		switch {
		case code >= 200 && code < 400:
			resLog.Debug("Fetched")
			return resp, nil
		case code >= 500:
			resLog.Warn("Server error")
			lastErr = fmt.Errorf("%w: status %d", utils.ErrServerHTTPError, code)
			drain(resp)
		case code == http.StatusTooManyRequests:
			resLog.Warn("Rate limited by server")
			lastErr = fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
			drain(resp)
		case code >= 400:
			return resp, fmt.Errorf("%w: status %d", utils.ErrClientHTTPError, code)
		default:
			return resp, fmt.Errorf("%w: status %d", utils.ErrOtherHTTPError, code)
		}
	}

	reqLog.Errorf("All %d attempts failed: %v", f.policy.MaxRetries+1, lastErr)
	if lastErr == nil {
		return nil, utils.ErrRetryFailed
	}
	return nil, fmt.Errorf("%w: %w", utils.ErrRetryFailed, lastErr)
}

func drain(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

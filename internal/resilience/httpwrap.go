package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

// HTTPClient wraps an http.Client with per-attempt timeouts, retries and a
// circuit breaker. Only transport errors and 5xx/429 responses are retried.
type HTTPClient struct {
	Client      *http.Client
	Breaker     *Breaker
	Target      string
	BaseBackoff time.Duration
	MaxAttempts int
	Jitter      float64
	Timeout     time.Duration
}

// Do executes req honouring ctx. The body is buffered so it can be replayed.
// When every attempt fails with a server response, the last response is
// returned unread so callers can inspect it; earlier ones are drained.
func (cl HTTPClient) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	if cl.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	maxAttempts := cl.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	body, err := bufferBody(req)
	if err != nil {
		return nil, err
	}
	target := cl.Target
	if target == "" {
		target = req.URL.Host
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if cl.Breaker != nil && !cl.Breaker.Allow(ctx) {
			RetryAttempts.WithLabelValues(target, "circuit_open").Inc()
			if lastErr != nil {
				return nil, fmt.Errorf("%w (last error: %v)", ErrOpenCircuit, lastErr)
			}
			return nil, ErrOpenCircuit
		}
		resp, err := cl.doOnce(ctx, req, body)
		retryable := err != nil || resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests
		if cl.Breaker != nil {
			cl.Breaker.Report(ctx, !retryable)
		}
		if !retryable {
			RetryAttempts.WithLabelValues(target, "ok").Inc()
			return resp, nil
		}
		if err != nil {
			RetryAttempts.WithLabelValues(target, "error").Inc()
			lastErr = err
		} else {
			RetryAttempts.WithLabelValues(target, "status_"+strconv.Itoa(resp.StatusCode)).Inc()
			if attempt == maxAttempts {
				return resp, nil
			}
			lastErr = errors.New(resp.Status)
			_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
			_ = resp.Body.Close()
		}
		if ctx.Err() != nil || attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(Backoff(cl.BaseBackoff, attempt, cl.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

// doOnce applies the per-attempt timeout. The timeout context is released
// when the response body is closed.
func (cl HTTPClient) doOnce(ctx context.Context, req *http.Request, body []byte) (*http.Response, error) {
	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if cl.Timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, cl.Timeout)
	}
	attempt := req.Clone(callCtx)
	if body != nil {
		attempt.Body = io.NopCloser(bytes.NewReader(body))
		attempt.GetBody = func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		}
	}
	resp, err := cl.Client.Do(attempt)
	if err != nil {
		cancel()
		return nil, err
	}
	resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

func bufferBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return nil, err
	}
	return data, nil
}

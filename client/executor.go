package client

import (
	"context"
	"io"
	"net/http"
	"time"

	"apibridge/auth"
	"apibridge/common/errors"
	"apibridge/common/logging"
	"apibridge/common/ratelimit"
	"apibridge/common/retry"
	"apibridge/config"
)

// maxErrorBodyBytes bounds how much of a failed response body is carried on
// the status error
const maxErrorBodyBytes = 2048

// execute runs the retry loop around single attempts. Each attempt acquires
// a rate limit token, builds a fresh request, applies auth, and performs the
// exchange under the circuit breaker. The per-attempt timeout never bounds
// the whole sequence; cancelling ctx aborts between attempts.
func (c *Client) execute(ctx context.Context, endpointName string, endpoint *config.EndpointDefinition, parts *RequestParts, cc callConfig) (*APIResponse, error) {
	retryPolicy := c.provider.RetryFor(endpoint)

	timeout := cc.timeout
	if timeout <= 0 {
		timeout = c.provider.TimeoutFor(endpoint)
	}

	strategy := c.strategy
	if cc.authOverride != nil {
		merged := auth.MergeOverrides(c.authConfig, cc.authOverride)
		override, err := auth.NewStrategy(merged, c.tokens)
		if err != nil {
			return nil, err
		}
		strategy = override
	}

	limiter, limitKey := c.limiterFor(endpointName)

	var (
		attempts       int
		lastAttemptErr error
		final          *APIResponse
		lastFailure    *APIResponse
	)
	start := time.Now()

	attempt := func() error {
		attempts++

		if limiter != nil {
			if err := limiter.Acquire(ctx, limitKey); err != nil {
				lastAttemptErr = err
				return err
			}
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		req, err := parts.HTTPRequest(attemptCtx, c.provider.BaseURL)
		if err != nil {
			lastAttemptErr = err
			return err
		}
		if err := strategy.Apply(attemptCtx, req); err != nil {
			lastAttemptErr = err
			return err
		}

		var resp *httpResponse
		err = c.breaker.Execute(attemptCtx, func() error {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return doErr
			}
			defer r.Body.Close()

			body, readErr := io.ReadAll(r.Body)
			if readErr != nil {
				return readErr
			}
			resp = &httpResponse{statusCode: r.StatusCode, header: r.Header, body: body}
			return nil
		})
		if err != nil {
			if !errors.IsType(err, errors.ErrTypeTransport) {
				err = errors.TransportError("request failed", err)
			}
			lastAttemptErr = err
			return err
		}

		envelope := normalizeResponse(resp.statusCode, resp.header, resp.body)
		if !envelope.Success && retryPolicy.IsRetryableStatus(resp.statusCode) {
			lastFailure = envelope
			lastAttemptErr = errors.HTTPStatusError(resp.statusCode, truncate(resp.body))
			return lastAttemptErr
		}

		final = envelope
		return nil
	}

	retryConfig := retry.Config{
		MaxRetries:    retryPolicy.MaxRetries,
		BackoffFactor: retryPolicy.BackoffFactor,
		MaxDelay:      retryPolicy.MaxDelay,
		JitterFactor:  0.1,
		RetryableErrors: func(err error) bool {
			switch errors.GetType(err) {
			case errors.ErrTypeTransport, errors.ErrTypeHTTPStatus:
				return true
			}
			return false
		},
	}

	if err := retry.Do(ctx, retryConfig, attempt); err != nil {
		if ctx.Err() != nil {
			return nil, errors.TransportError("call cancelled", ctx.Err())
		}

		// Retryable statuses that never recovered still produce a response
		// envelope; only transport-level exhaustion surfaces as an error.
		if errors.IsType(lastAttemptErr, errors.ErrTypeHTTPStatus) && lastFailure != nil {
			final = lastFailure
		} else {
			c.logger.Warn("Call failed",
				logging.Field{Key: "provider", Value: c.provider.Name},
				logging.Field{Key: "endpoint", Value: endpointName},
				logging.Field{Key: "attempts", Value: attempts},
				logging.Field{Key: "error", Value: lastAttemptErr.Error()},
			)
			return nil, lastAttemptErr
		}
	}

	final.Provider = c.provider.Name
	final.Endpoint = endpointName
	final.Attempts = attempts
	final.Duration = time.Since(start)

	c.logger.Debug("Call completed",
		logging.Field{Key: "provider", Value: c.provider.Name},
		logging.Field{Key: "endpoint", Value: endpointName},
		logging.Field{Key: "status", Value: final.StatusCode},
		logging.Field{Key: "attempts", Value: attempts},
		logging.Field{Key: "duration", Value: final.Duration.String()},
	)

	return final, nil
}

// limiterFor resolves which limiter and key govern a call. Endpoint-scoped
// limits take precedence over the provider-wide limit.
func (c *Client) limiterFor(endpointName string) (ratelimit.Limiter, string) {
	if limiter, ok := c.endpointLimiters[endpointName]; ok {
		return limiter, c.provider.Name + ":" + endpointName
	}
	return c.limiter, c.provider.Name
}

type httpResponse struct {
	statusCode int
	header     http.Header
	body       []byte
}

func truncate(body []byte) string {
	if len(body) > maxErrorBodyBytes {
		return string(body[:maxErrorBodyBytes])
	}
	return string(body)
}

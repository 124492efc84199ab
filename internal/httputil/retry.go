// Package httputil provides HTTP helpers shared by the external collaborators
// (object store, transformation trigger, index service).
package httputil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = 500 * time.Millisecond

// RetryMaxDelay caps a single backoff wait.
var RetryMaxDelay = 10 * time.Second

const defaultMaxRetries = 3

// DoWithRetry executes an HTTP request and retries on 429 and 5xx responses
// and on transport errors, doubling the delay each attempt and honouring
// Retry-After. The request body must be replayable (GetBody set, as done by
// http.NewRequest for bytes/strings readers).
//
// When maxRetries is 0 the default (3) is used. If the context is cancelled
// during a backoff wait ctx.Err() is returned. After exhausting retries the
// last response (or transport error) is returned to the caller.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, maxRetries int) (*http.Response, error) {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if client == nil {
		client = http.DefaultClient
	}

	for attempt := 0; ; attempt++ {
		r := req.Clone(ctx)
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, err
			}
			r.Body = body
		}

		resp, err := client.Do(r)
		retryAfter := ""
		if err == nil {
			if !retryable(resp.StatusCode) || attempt >= maxRetries {
				return resp, nil
			}
			retryAfter = resp.Header.Get("Retry-After")
			// Drain and close the body before retrying.
			_, _ = io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		} else if attempt >= maxRetries || ctx.Err() != nil {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff(attempt, retryAfter)):
		}
	}
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

func backoff(attempt int, retryAfter string) time.Duration {
	if secs, err := strconv.Atoi(strings.TrimSpace(retryAfter)); err == nil && secs >= 0 {
		d := time.Duration(secs) * time.Second
		return min(d, RetryMaxDelay)
	}
	d := RetryBaseDelay << attempt
	if d <= 0 || d > RetryMaxDelay {
		return RetryMaxDelay
	}
	return d
}

// Ack is the acknowledgement envelope returned by the trigger and index services.
type Ack struct {
	OK      *bool  `json:"ok,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// DecodeAck reads resp and returns a non-nil error when the call did not
// succeed: a non-2xx status or an explicit "ok": false. The message is the
// external error text when one was provided. The body is consumed and closed.
func DecodeAck(resp *http.Response) (Ack, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Ack{}, fmt.Errorf("read response: %w", err)
	}
	var ack Ack
	if len(bytes.TrimSpace(body)) > 0 {
		// Non-JSON bodies are reported verbatim below.
		_ = json.Unmarshal(body, &ack)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ack, fmt.Errorf("http %d: %s", resp.StatusCode, ack.message(body))
	}
	if ack.OK != nil && !*ack.OK {
		return ack, fmt.Errorf("%s", ack.message(body))
	}
	return ack, nil
}

func (a Ack) message(raw []byte) string {
	switch {
	case a.Error != "":
		return a.Error
	case a.Detail != "":
		return a.Detail
	case a.Message != "":
		return a.Message
	}
	s := strings.TrimSpace(string(raw))
	if s == "" {
		return "no response body"
	}
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

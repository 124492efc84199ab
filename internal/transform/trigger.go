// Package transform starts the external tabular-to-columnar conversion and
// tracks it until the derived artifact shows up in the store.
package transform

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/httputil"
)

// OutputExtension is the extension of the derived columnar artifact.
const OutputExtension = ".parquet"

// ExpectedOutputName derives the name of the converted artifact from the
// source base name: "rooms_2024.csv" becomes "rooms_2024.parquet".
func ExpectedOutputName(source string) string {
	base := path.Base(source)
	return strings.TrimSuffix(base, path.Ext(base)) + OutputExtension
}

// Trigger starts the external job for a source object path (folder/name).
type Trigger interface {
	Trigger(ctx context.Context, sourcePath string) error
}

// HTTPTrigger posts {"sourcePath": ...} to the job runner.
type HTTPTrigger struct {
	url    string
	token  string
	client *http.Client
}

// TriggerOption configures an HTTPTrigger.
type TriggerOption func(*HTTPTrigger)

// WithTriggerToken sends a bearer token.
func WithTriggerToken(token string) TriggerOption {
	return func(t *HTTPTrigger) { t.token = token }
}

// WithTriggerClient overrides the HTTP client.
func WithTriggerClient(c *http.Client) TriggerOption {
	return func(t *HTTPTrigger) { t.client = c }
}

// NewHTTPTrigger creates a trigger posting to url.
func NewHTTPTrigger(url string, opts ...TriggerOption) *HTTPTrigger {
	t := &HTTPTrigger{url: url, client: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Trigger starts the job. The POST is sent once and never retried: the
// runner may have started a job even when it answered with an error. A
// transport failure, a non-2xx status or "ok": false is an apperr trigger
// error carrying the runner's message.
func (t *HTTPTrigger) Trigger(ctx context.Context, sourcePath string) error {
	body, err := json.Marshal(map[string]string{"sourcePath": sourcePath})
	if err != nil {
		return apperr.Wrap(apperr.KindTrigger, "trigger", sourcePath, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return apperr.Wrap(apperr.KindTrigger, "trigger", sourcePath, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}
	resp, err := t.client.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.KindTrigger, "trigger", sourcePath, err)
	}
	if _, err := httputil.DecodeAck(resp); err != nil {
		return apperr.Wrap(apperr.KindTrigger, "trigger", sourcePath, err)
	}
	return nil
}

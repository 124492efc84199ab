package index

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/httputil"
	"github.com/starford/kbsync/internal/models"
)

// Remote drives an external index service:
//
//	POST {base}/upload       multipart: file, priority, path, location, start_date, end_date
//	POST {base}/delete-file  {"path": "..."}
//	POST {base}/init_index
//
// Every endpoint answers with {"ok": bool, "error": "..."}.
type Remote struct {
	baseURL    string
	token      string
	client     *http.Client
	maxRetries int
	logger     *slog.Logger
}

// RemoteOption configures a Remote index.
type RemoteOption func(*Remote)

// WithRemoteHTTPClient overrides the HTTP client.
func WithRemoteHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) { r.client = c }
}

// WithRemoteToken sends a bearer token on every call.
func WithRemoteToken(token string) RemoteOption {
	return func(r *Remote) { r.token = token }
}

// WithRemoteRetries sets the retry budget for 429 and 5xx responses.
func WithRemoteRetries(n int) RemoteOption {
	return func(r *Remote) { r.maxRetries = n }
}

// WithRemoteLogger sets the logger.
func WithRemoteLogger(logger *slog.Logger) RemoteOption {
	return func(r *Remote) { r.logger = logger }
}

// NewRemote creates a Remote index rooted at baseURL.
func NewRemote(baseURL string, opts ...RemoteOption) *Remote {
	r := &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 2 * time.Minute},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Add uploads d. Notes are sent as their indexable text.
func (r *Remote) Add(ctx context.Context, d Document) error {
	payload := d.Data
	filename := d.Name
	if d.Kind == models.KindNote {
		n, err := models.DecodeNote(d.Data)
		if err != nil {
			return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
		}
		payload = []byte(n.Text())
		filename = strings.TrimSuffix(d.Name, "."+models.NoteExtension) + ".txt"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
	}
	if _, err := fw.Write(payload); err != nil {
		return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
	}
	fields := map[string]string{
		"priority":   strconv.Itoa(d.Priority),
		"path":       d.Path,
		"location":   d.Location,
		"start_date": dateOnly(d.EffectiveStart),
		"end_date":   dateOnly(d.EffectiveEnd),
	}
	for _, k := range []string{"priority", "path", "location", "start_date", "end_date"} {
		if err := mw.WriteField(k, fields[k]); err != nil {
			return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
		}
	}
	if err := mw.Close(); err != nil {
		return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
	}

	if err := r.call(ctx, "/upload", mw.FormDataContentType(), body.Bytes()); err != nil {
		return apperr.Wrap(apperr.KindSync, "index add", d.Path, err)
	}
	r.logger.Debug("index: remote added", slog.String("path", d.Path), slog.Int("priority", d.Priority))
	return nil
}

// Remove asks the service to purge every chunk of path.
func (r *Remote) Remove(ctx context.Context, path string) error {
	body, err := json.Marshal(map[string]string{"path": path})
	if err != nil {
		return apperr.Wrap(apperr.KindSync, "index remove", path, err)
	}
	if err := r.call(ctx, "/delete-file", "application/json", body); err != nil {
		return apperr.Wrap(apperr.KindSync, "index remove", path, err)
	}
	r.logger.Debug("index: remote removed", slog.String("path", path))
	return nil
}

// Reset wipes the remote index.
func (r *Remote) Reset(ctx context.Context) error {
	if err := r.call(ctx, "/init_index", "application/json", []byte("{}")); err != nil {
		return apperr.Wrap(apperr.KindSync, "index reset", "", err)
	}
	r.logger.Info("index: remote reset")
	return nil
}

func (r *Remote) call(ctx context.Context, endpoint, contentType string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}
	resp, err := httputil.DoWithRetry(ctx, r.client, req, r.maxRetries)
	if err != nil {
		return fmt.Errorf("post %s: %w", endpoint, err)
	}
	_, err = httputil.DecodeAck(resp)
	return err
}

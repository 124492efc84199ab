package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/httputil"
	"github.com/starford/kbsync/internal/models"
)

const supabaseListPage = 100

// Supabase implements Provider on the Supabase Storage REST API. Buckets map
// to storage buckets, folders to key prefixes.
type Supabase struct {
	baseURL    string
	serviceKey string
	publicBase string
	client     *http.Client
	maxRetries int
}

// SupabaseOption configures a Supabase provider.
type SupabaseOption func(*Supabase)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) SupabaseOption {
	return func(s *Supabase) { s.client = c }
}

// WithPublicURLBase overrides the host used for public object URLs.
func WithPublicURLBase(u string) SupabaseOption {
	return func(s *Supabase) {
		if u != "" {
			s.publicBase = strings.TrimRight(u, "/")
		}
	}
}

// WithMaxRetries sets the retry budget for 429 and 5xx responses.
func WithMaxRetries(n int) SupabaseOption {
	return func(s *Supabase) { s.maxRetries = n }
}

// NewSupabase creates a Supabase storage provider for the project at baseURL.
func NewSupabase(baseURL, serviceKey string, opts ...SupabaseOption) *Supabase {
	base := strings.TrimRight(baseURL, "/")
	s := &Supabase{
		baseURL:    base,
		serviceKey: serviceKey,
		publicBase: base,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type supabaseObject struct {
	ID        *string   `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Metadata  struct {
		Size     int64  `json:"size"`
		Mimetype string `json:"mimetype"`
	} `json:"metadata"`
}

type supabaseError struct {
	StatusCode string `json:"statusCode"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// List returns every object under folder/, following pagination.
func (s *Supabase) List(ctx context.Context, p models.Partition) ([]ObjectInfo, error) {
	var out []ObjectInfo
	for offset := 0; ; offset += supabaseListPage {
		body, err := json.Marshal(map[string]any{
			"prefix": p.Folder,
			"limit":  supabaseListPage,
			"offset": offset,
			"sortBy": map[string]string{"column": "name", "order": "asc"},
		})
		if err != nil {
			return nil, err
		}
		resp, err := s.do(ctx, http.MethodPost, "/storage/v1/object/list/"+url.PathEscape(p.Bucket),
			bytes.NewReader(body), "application/json", nil)
		if err != nil {
			return nil, fmt.Errorf("storage: list %s: %w", p, err)
		}
		var page []supabaseObject
		if err := decodeOrError(resp, &page); err != nil {
			return nil, s.classify("list", p.String(), err)
		}
		for _, o := range page {
			// Folder placeholders carry no id.
			if o.ID == nil {
				continue
			}
			out = append(out, ObjectInfo{
				Name:        o.Name,
				Size:        o.Metadata.Size,
				ContentType: o.Metadata.Mimetype,
				CreatedAt:   o.CreatedAt,
				UpdatedAt:   o.UpdatedAt,
			})
		}
		if len(page) < supabaseListPage {
			return out, nil
		}
	}
}

// Get downloads an object with the service key.
func (s *Supabase) Get(ctx context.Context, p models.Partition, name string) ([]byte, error) {
	resp, err := s.do(ctx, http.MethodGet, s.objectPath(p, name), nil, "", nil)
	if err != nil {
		return nil, fmt.Errorf("storage: get %s: %w", p.QualifiedPath(name), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, s.classify("get", p.QualifiedPath(name), readError(resp))
	}
	return io.ReadAll(resp.Body)
}

// Put uploads data. Without Overwrite the store rejects an existing key.
func (s *Supabase) Put(ctx context.Context, p models.Partition, name string, data []byte, opts PutOptions) (PutResult, error) {
	ct := opts.ContentType
	if ct == "" {
		ct = ContentType(name)
	}
	hdr := http.Header{}
	hdr.Set("x-upsert", fmt.Sprintf("%t", opts.Overwrite))
	hdr.Set("Cache-Control", "max-age=3600")

	resp, err := s.do(ctx, http.MethodPost, s.objectPath(p, name), bytes.NewReader(data), ct, hdr)
	if err != nil {
		return PutResult{}, fmt.Errorf("storage: put %s: %w", p.QualifiedPath(name), err)
	}
	if err := decodeOrError(resp, nil); err != nil {
		return PutResult{}, s.classify("put", p.QualifiedPath(name), err)
	}
	// The upload response is {"Key", "Id"} only; stamp the local write time.
	return PutResult{Locator: s.PublicURL(p, name), UpdatedAt: time.Now().UTC()}, nil
}

// Remove deletes one object. Supabase reports success with an empty list
// when nothing matched, which maps to not found.
func (s *Supabase) Remove(ctx context.Context, p models.Partition, name string) error {
	body, err := json.Marshal(map[string][]string{"prefixes": {p.ObjectPath(name)}})
	if err != nil {
		return err
	}
	resp, err := s.do(ctx, http.MethodDelete, "/storage/v1/object/"+url.PathEscape(p.Bucket),
		bytes.NewReader(body), "application/json", nil)
	if err != nil {
		return fmt.Errorf("storage: delete %s: %w", p.QualifiedPath(name), err)
	}
	var removed []supabaseObject
	if err := decodeOrError(resp, &removed); err != nil {
		return s.classify("remove", p.QualifiedPath(name), err)
	}
	if len(removed) == 0 {
		return apperr.New(apperr.KindNotFound, "remove", p.QualifiedPath(name), "")
	}
	return nil
}

// PublicURL returns the public object URL. The bucket must be public for it to resolve.
func (s *Supabase) PublicURL(p models.Partition, name string) string {
	return s.publicBase + "/storage/v1/object/public/" + url.PathEscape(p.Bucket) + "/" +
		url.PathEscape(p.Folder) + "/" + url.PathEscape(name)
}

func (s *Supabase) objectPath(p models.Partition, name string) string {
	return "/storage/v1/object/" + url.PathEscape(p.Bucket) + "/" + url.PathEscape(p.Folder) + "/" + url.PathEscape(name)
}

func (s *Supabase) do(ctx context.Context, method, path string, body io.Reader, contentType string, hdr http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	for k, v := range hdr {
		req.Header[k] = v
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("apikey", s.serviceKey)
	return httputil.DoWithRetry(ctx, s.client, req, s.maxRetries)
}

// statusError is a non-2xx response from the storage API.
type statusError struct {
	status  int
	message string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.status, e.message)
}

func decodeOrError(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp)
	}
	if v == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil && err != io.EOF {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var se supabaseError
	msg := strings.TrimSpace(string(raw))
	if json.Unmarshal(raw, &se) == nil {
		switch {
		case se.Message != "":
			msg = se.Message
		case se.Error != "":
			msg = se.Error
		}
	}
	// Storage reports some failures as 400 with the real status in the body.
	status := resp.StatusCode
	if se.StatusCode != "" {
		var n int
		if _, err := fmt.Sscanf(se.StatusCode, "%d", &n); err == nil && n > 0 {
			status = n
		}
	}
	return &statusError{status: status, message: msg}
}

func (s *Supabase) classify(op, path string, err error) error {
	se, ok := err.(*statusError)
	if !ok {
		return fmt.Errorf("storage: %s %s: %w", op, path, err)
	}
	lower := strings.ToLower(se.message)
	switch {
	case se.status == http.StatusConflict || strings.Contains(lower, "already exists"):
		return apperr.New(apperr.KindConflict, op, path, se.message)
	case se.status == http.StatusUnsupportedMediaType ||
		(strings.Contains(lower, "mime type") && strings.Contains(lower, "not supported")):
		return apperr.New(apperr.KindUnsupportedMedia, op, path, se.message)
	case se.status == http.StatusNotFound || strings.Contains(lower, "not found"):
		return apperr.New(apperr.KindNotFound, op, path, se.message)
	}
	return &apperr.Error{Kind: apperr.KindUnknown, Op: op, Path: path, Err: err}
}

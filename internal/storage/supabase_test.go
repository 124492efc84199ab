package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

func supabaseServer(t *testing.T, h http.HandlerFunc) *Supabase {
	t.Helper()
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)
	return NewSupabase(ts.URL, "service-key", WithHTTPClient(ts.Client()), WithMaxRetries(1))
}

func TestSupabasePut(t *testing.T) {
	var gotUpsert, gotAuth, gotType, gotPath, gotBody string
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		gotUpsert = r.Header.Get("x-upsert")
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		gotPath = r.URL.EscapedPath()
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		w.Write([]byte(`{"Key":"epic-scheduling/Locations_Rooms/rooms_2024.csv"}`))
	})

	before := time.Now().UTC()
	res, err := s.Put(context.Background(), rooms, "rooms_2024.csv", []byte("a,b\n"), PutOptions{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if res.UpdatedAt.Before(before) || res.UpdatedAt.After(time.Now().UTC()) {
		t.Errorf("UpdatedAt = %v, want the local write time", res.UpdatedAt)
	}
	if gotPath != "/storage/v1/object/epic-scheduling/Locations_Rooms/rooms_2024.csv" {
		t.Errorf("path = %q", gotPath)
	}
	if gotUpsert != "false" {
		t.Errorf("x-upsert = %q, want false", gotUpsert)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotType != "text/csv" {
		t.Errorf("Content-Type = %q", gotType)
	}
	if gotBody != "a,b\n" {
		t.Errorf("body = %q", gotBody)
	}
	if !strings.HasSuffix(res.Locator, "/storage/v1/object/public/epic-scheduling/Locations_Rooms/rooms_2024.csv") {
		t.Errorf("locator = %q", res.Locator)
	}
}

func TestSupabasePutErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"duplicate", http.StatusBadRequest, `{"statusCode":"409","error":"Duplicate","message":"The resource already exists"}`, apperr.ErrConflict},
		{"conflict status", http.StatusConflict, `{}`, apperr.ErrConflict},
		{"mime", http.StatusBadRequest, `{"statusCode":"415","error":"invalid_mime_type","message":"mime type application/x-msdownload is not supported"}`, apperr.ErrUnsupportedMedia},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			s := supabaseServer(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			})
			_, err := s.Put(context.Background(), rooms, "a.csv", []byte("x"), PutOptions{})
			if !errors.Is(err, c.want) {
				t.Errorf("err = %v, want %v", err, c.want)
			}
		})
	}
}

func TestSupabaseListPaginates(t *testing.T) {
	var offsets []int
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/storage/v1/object/list/epic-scheduling" {
			t.Errorf("path = %q", r.URL.Path)
		}
		var req struct {
			Prefix string `json:"prefix"`
			Limit  int    `json:"limit"`
			Offset int    `json:"offset"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prefix != "Locations_Rooms" {
			t.Errorf("prefix = %q", req.Prefix)
		}
		offsets = append(offsets, req.Offset)

		n := req.Limit
		if req.Offset > 0 {
			n = 2
		}
		items := make([]map[string]any, 0, n+1)
		if req.Offset == 0 {
			items = append(items, map[string]any{"id": nil, "name": "subfolder"})
			n--
		}
		for i := 0; i < n; i++ {
			items = append(items, map[string]any{
				"id":         fmt.Sprintf("id-%d-%d", req.Offset, i),
				"name":       fmt.Sprintf("f%03d.csv", req.Offset+i),
				"created_at": "2024-05-01T10:00:00Z",
				"updated_at": "2024-05-02T10:00:00Z",
				"metadata":   map[string]any{"size": 10, "mimetype": "text/csv"},
			})
		}
		_ = json.NewEncoder(w).Encode(items)
	})

	items, err := s.List(context.Background(), rooms)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(offsets) != 2 || offsets[1] != supabaseListPage {
		t.Errorf("offsets = %v", offsets)
	}
	if len(items) != supabaseListPage-1+2 {
		t.Errorf("len = %d", len(items))
	}
	if items[0].UpdatedAt.Day() != 2 || items[0].Size != 10 {
		t.Errorf("first item = %+v", items[0])
	}
}

func TestSupabaseRemove(t *testing.T) {
	var gotPrefixes []string
	removed := true
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		var req struct {
			Prefixes []string `json:"prefixes"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotPrefixes = req.Prefixes
		if removed {
			w.Write([]byte(`[{"id":"1","name":"Locations_Rooms/a.csv"}]`))
			return
		}
		w.Write([]byte(`[]`))
	})

	if err := s.Remove(context.Background(), rooms, "a.csv"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if len(gotPrefixes) != 1 || gotPrefixes[0] != "Locations_Rooms/a.csv" {
		t.Errorf("prefixes = %v", gotPrefixes)
	}

	removed = false
	if err := s.Remove(context.Background(), rooms, "a.csv"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSupabaseGet(t *testing.T) {
	s := supabaseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/missing.csv") {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"statusCode":"404","error":"not_found","message":"Object not found"}`))
			return
		}
		w.Write([]byte("payload"))
	})
	got, err := s.Get(context.Background(), rooms, "a.csv")
	if err != nil || string(got) != "payload" {
		t.Fatalf("Get = %q, %v", got, err)
	}
	if _, err := s.Get(context.Background(), rooms, "missing.csv"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSupabasePublicURL(t *testing.T) {
	s := NewSupabase("https://proj.supabase.co/", "k", WithPublicURLBase("https://cdn.example.org"))
	got := s.PublicURL(models.Partition{Bucket: "other-content", Folder: "Preps"}, "MRI prep.pdf")
	want := "https://cdn.example.org/storage/v1/object/public/other-content/Preps/MRI%20prep.pdf"
	if got != want {
		t.Errorf("PublicURL = %q, want %q", got, want)
	}
}

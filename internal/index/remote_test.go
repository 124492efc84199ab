package index

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/kbsync/internal/apperr"
	"github.com/starford/kbsync/internal/models"
)

func TestRemoteAdd(t *testing.T) {
	var fields map[string]string
	var fileName, fileBody, auth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/upload", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		fields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			fields[k] = v[0]
		}
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		fileName, fileBody = hdr.Filename, string(b)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	r := NewRemote(ts.URL, WithRemoteHTTPClient(ts.Client()), WithRemoteToken("secret"))
	n := models.Note{Title: "Parking", Content: "Use garage B", Category: models.CategoryScheduling,
		Location: "MSM", EffectiveStart: day("2024-06-01")}
	d := noteDoc(t, "epic-scheduling/Scheduling_Notes/LOC_MSM__Parking.json", n)

	require.NoError(t, r.Add(context.Background(), d))
	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "LOC_MSM__Parking.txt", fileName)
	assert.Equal(t, "Parking\n\nUse garage B", fileBody)
	assert.Equal(t, "1", fields["priority"])
	assert.Equal(t, "epic-scheduling/Scheduling_Notes/LOC_MSM__Parking.json", fields["path"])
	assert.Equal(t, "MSM", fields["location"])
	assert.Equal(t, "2024-06-01", fields["start_date"])
	assert.Equal(t, "", fields["end_date"])
}

func TestRemoteAddDocumentSendsBytes(t *testing.T) {
	var fileBody string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		b, _ := io.ReadAll(f)
		fileBody = string(b)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	r := NewRemote(ts.URL, WithRemoteHTTPClient(ts.Client()))
	require.NoError(t, r.Add(context.Background(), doc("other-content/Preps/a.pdf", "a.pdf", "%PDF")))
	assert.Equal(t, "%PDF", fileBody)
}

func TestRemoteFailuresAreSyncErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
		msg    string
	}{
		{"ok false", http.StatusOK, `{"ok":false,"error":"vector store unavailable"}`, "vector store unavailable"},
		{"client error", http.StatusUnprocessableEntity, `{"detail":"path missing"}`, "path missing"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(c.status)
				w.Write([]byte(c.body))
			}))
			defer ts.Close()

			r := NewRemote(ts.URL, WithRemoteHTTPClient(ts.Client()))
			err := r.Remove(context.Background(), "other-content/Preps/a.pdf")
			require.Error(t, err)
			assert.ErrorIs(t, err, apperr.ErrSync)
			assert.Contains(t, err.Error(), c.msg)
			assert.Contains(t, err.Error(), "other-content/Preps/a.pdf")
		})
	}
}

func TestRemoteRemoveAndReset(t *testing.T) {
	var calls []string
	var removed string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.URL.Path)
		if r.URL.Path == "/delete-file" {
			var body struct {
				Path string `json:"path"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			removed = body.Path
		}
		w.Write([]byte(`{"ok":true}`))
	}))
	defer ts.Close()

	r := NewRemote(ts.URL+"/", WithRemoteHTTPClient(ts.Client()))
	require.NoError(t, r.Remove(context.Background(), "b/f/x.md"))
	require.NoError(t, r.Reset(context.Background()))
	assert.Equal(t, []string{"/delete-file", "/init_index"}, calls)
	assert.Equal(t, "b/f/x.md", removed)
}

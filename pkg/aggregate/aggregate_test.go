package aggregate

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	ts := time.Date(2024, 5, 1, 22, 15, 0, 0, time.UTC)

	t.Run("ghost event", func(t *testing.T) {
		var got map[string]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))
			got = map[string]string{}
			for k := range r.PostForm {
				got[k] = r.PostForm.Get(k)
			}
			w.WriteHeader(http.StatusOK)
		}))
		defer srv.Close()

		c := NewClient(srv.URL, "secret")
		err := c.Record(context.Background(), Event{Name: "garage", Label: "garage (Door)", Timestamp: ts, Ghost: true})
		require.NoError(t, err)
		assert.Equal(t, map[string]string{
			"key":       "secret",
			"name":      "garage",
			"label":     "garage (Door)",
			"timestamp": "2024-05-01T22:15:00Z",
			"ghost":     "1",
		}, got)
	})

	t.Run("regular event omits ghost", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, r.ParseForm())
			_, has := r.PostForm["ghost"]
			assert.False(t, has)
		}))
		defer srv.Close()

		require.NoError(t, NewClient(srv.URL, "k").Record(context.Background(), Event{Name: "x", Timestamp: ts}))
	})

	t.Run("server error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "denied", http.StatusForbidden)
		}))
		defer srv.Close()

		err := NewClient(srv.URL, "k").Record(context.Background(), Event{Name: "x", Timestamp: ts})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "403")
	})

	t.Run("not configured", func(t *testing.T) {
		var c *Client
		assert.False(t, c.Configured())
		require.ErrorIs(t, NewClient("", "").Record(context.Background(), Event{}), ErrNotConfigured)
	})
}
